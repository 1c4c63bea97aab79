// Package chain connects the transaction builder to a blockchain data
// source. A Provider wraps one Backend (Electrum, a mempool.space style
// REST API, or bitcoind) with a retry policy and a transaction cache, and
// implements the txbuilder collaborator interfaces.
package chain

import (
	"context"
	"fmt"
	"math"

	"github.com/hashicorp/go-hclog"
)

// Backend kinds.
const (
	BackendElectrum = "electrum"
	BackendMempool  = "mempool"
	BackendBitcoind = "bitcoind"
)

// FeeTargetBlocks is the confirmation target used for fee estimates.
const FeeTargetBlocks = 6

// UTXO is an unspent output as reported by a backend. Height is zero for
// unconfirmed outputs.
type UTXO struct {
	TxID   string
	Vout   uint32
	Value  int64
	Height int64
}

// Backend is a raw blockchain data source.
type Backend interface {
	// ListUnspent returns the unspent outputs locked by script, which pays
	// to address.
	ListUnspent(ctx context.Context, address string, script []byte) ([]UTXO, error)

	// RawTransaction returns the hex serialization of txid.
	RawTransaction(ctx context.Context, txid string) (string, error)

	// FeeRate returns a fee rate estimate in sat/vB.
	FeeRate(ctx context.Context) (int64, error)

	// TipHeight returns the height of the best block.
	TipHeight(ctx context.Context) (int64, error)

	Close() error
}

// selfRetrying is implemented by backends whose transport already retries
// transient failures. The Provider then makes a single attempt per call.
type selfRetrying interface {
	RetriesRequests() bool
}

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Kind    string
	Network string

	ElectrumURL string
	MempoolURL  string

	RPCHost string
	RPCUser string
	RPCPass string

	Retry  RetryPolicy
	Logger hclog.Logger
}

// NewBackend creates the backend named by cfg.Kind. Electrum connections are
// made lazily on first use.
func NewBackend(cfg BackendConfig) (Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	switch cfg.Kind {
	case BackendElectrum, "":
		return NewElectrumBackend(cfg.ElectrumURL, cfg.Network, cfg.Logger.Named("electrum")), nil
	case BackendMempool:
		return NewMempoolBackend(cfg.MempoolURL, cfg.Network, cfg.Retry, cfg.Logger.Named("mempool"))
	case BackendBitcoind:
		return NewBitcoindBackend(cfg.RPCHost, cfg.RPCUser, cfg.RPCPass, cfg.Logger.Named("bitcoind"))
	default:
		return nil, fmt.Errorf("%w: %q (supported: electrum, mempool, bitcoind)", ErrUnknownBackend, cfg.Kind)
	}
}

// btcPerKBToSatPerVB converts a BTC/kvB estimate to whole sat/vB, rounding up.
func btcPerKBToSatPerVB(rate float64) int64 {
	satPerKB := int64(math.Round(rate * 1e8))
	return (satPerKB + 999) / 1000
}

// await runs fn and returns early if ctx ends first. fn keeps running in
// the background in that case; it is used for clients without context
// support.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
