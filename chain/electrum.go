package chain

import (
	"context"
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/stampchain-io/vault-plugin-stamps/electrum"
)

// Default Electrum server pools per network
// When no custom electrum_url is configured, a random server is selected per connection
var (
	MainnetElectrumServers = []string{
		"ssl://electrum.blockstream.info:50002",
		"ssl://electrum.bitaroo.net:50002",
		"ssl://electrum.emzy.de:50002",
	}

	Testnet4ElectrumServers = []string{
		"ssl://mempool.space:40002",
		"ssl://electrum.blockstream.info:60002",
	}

	// Signet has no default servers - requires explicit configuration
	SignetElectrumServers = []string{}
)

// ElectrumServers returns the default pool for a canonical network name.
func ElectrumServers(network string) []string {
	switch network {
	case "mainnet", "":
		return MainnetElectrumServers
	case "testnet4":
		return Testnet4ElectrumServers
	default:
		return SignetElectrumServers
	}
}

// randomServer returns a random server from the pool for the given network
// Uses crypto/rand for secure randomness
func randomServer(network string) string {
	servers := ElectrumServers(network)
	if len(servers) == 0 {
		return ""
	}

	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(int64(len(servers))))
	if err != nil {
		// Fallback to first server if crypto/rand fails (shouldn't happen)
		return servers[0]
	}

	return servers[n.Int64()]
}

// ElectrumBackend is a Backend over one Electrum connection that is
// re-established after connection errors.
type ElectrumBackend struct {
	url     string
	network string
	logger  hclog.Logger

	// dial is replaced in tests.
	dial func(ctx context.Context, url string) (*electrum.Client, error)

	lock   sync.RWMutex
	client *electrum.Client
}

// NewElectrumBackend returns a backend for url, or for a random server of
// the network's default pool when url is empty.
func NewElectrumBackend(url, network string, logger hclog.Logger) *ElectrumBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	b := &ElectrumBackend{url: url, network: network, logger: logger}
	b.dial = func(ctx context.Context, url string) (*electrum.Client, error) {
		return electrum.NewClient(ctx, url, electrum.Options{Logger: logger})
	}
	return b
}

// getClient returns the Electrum client, creating one if necessary
func (b *ElectrumBackend) getClient(ctx context.Context) (*electrum.Client, error) {
	b.lock.RLock()
	if b.client != nil {
		b.lock.RUnlock()
		return b.client, nil
	}
	b.lock.RUnlock()

	b.lock.Lock()
	defer b.lock.Unlock()

	// Double-check after acquiring write lock
	if b.client != nil {
		return b.client, nil
	}

	serverURL := b.url
	if serverURL == "" {
		serverURL = randomServer(b.network)
		if serverURL == "" {
			return nil, fmt.Errorf("no default Electrum servers configured for network %q - please set electrum_url in config", b.network)
		}
	}

	b.logger.Debug("connecting to Electrum server", "url", serverURL, "network", b.network)
	client, err := b.dial(ctx, serverURL)
	if err != nil {
		b.logger.Warn("failed to connect to Electrum server", "url", serverURL, "error", err)
		return nil, err
	}

	b.logger.Info("connected to Electrum server", "url", serverURL, "network", b.network)
	b.client = client
	return b.client, nil
}

// reset drops the cached connection.
func (b *ElectrumBackend) reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.client != nil {
		b.logger.Debug("closing Electrum connection")
		b.client.Close()
		b.client = nil
	}
}

// handleClientError resets the connection after a connection error so the
// next attempt dials a fresh one.
func (b *ElectrumBackend) handleClientError(err error) error {
	if IsTransient(err) {
		b.logger.Warn("detected stale connection, resetting client", "error", err)
		b.reset()
	}
	var serverErr *electrum.ServerError
	if errors.As(err, &serverErr) && isMissingMessage(serverErr.Message) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func isMissingMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no such") ||
		strings.Contains(msg, "missing transaction")
}

func (b *ElectrumBackend) ListUnspent(ctx context.Context, address string, script []byte) ([]UTXO, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return nil, err
	}
	utxos, err := client.ListUnspent(ctx, electrum.ScriptHash(script))
	if err != nil {
		return nil, b.handleClientError(err)
	}

	out := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		height := u.Height
		// Electrum reports -1 for unconfirmed parents.
		if height < 0 {
			height = 0
		}
		out = append(out, UTXO{TxID: u.TxHash, Vout: u.TxPos, Value: u.Value, Height: height})
	}
	return out, nil
}

func (b *ElectrumBackend) RawTransaction(ctx context.Context, txid string) (string, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return "", err
	}
	raw, err := client.GetTransaction(ctx, txid)
	if err != nil {
		return "", b.handleClientError(err)
	}
	return raw, nil
}

func (b *ElectrumBackend) FeeRate(ctx context.Context) (int64, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return 0, err
	}
	rate, err := client.EstimateFee(ctx, FeeTargetBlocks)
	if err != nil {
		return 0, b.handleClientError(err)
	}
	if rate <= 0 {
		b.logger.Debug("no fee estimate, falling back to relay fee", "target_blocks", FeeTargetBlocks)
		if rate, err = client.RelayFee(ctx); err != nil {
			return 0, b.handleClientError(err)
		}
	}
	if rate <= 0 {
		return 0, ErrNoFeeEstimate
	}
	return btcPerKBToSatPerVB(rate), nil
}

func (b *ElectrumBackend) TipHeight(ctx context.Context) (int64, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return 0, err
	}
	height, err := client.GetBlockHeight(ctx)
	if err != nil {
		return 0, b.handleClientError(err)
	}
	return height, nil
}

// Close closes the connection, if any.
func (b *ElectrumBackend) Close() error {
	b.reset()
	return nil
}
