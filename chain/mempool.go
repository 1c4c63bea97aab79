package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/stampchain-io/vault-plugin-stamps/mempool"
)

// MempoolBackend is a Backend over a mempool.space style REST API.
type MempoolBackend struct {
	client *mempool.Client
	logger hclog.Logger
}

// NewMempoolBackend returns a backend for baseURL, or for the public
// instance of the network when baseURL is empty. HTTP retries follow policy.
func NewMempoolBackend(baseURL, network string, policy RetryPolicy, logger hclog.Logger) (*MempoolBackend, error) {
	if baseURL == "" {
		baseURL = mempool.DefaultURL(network)
		if baseURL == "" {
			return nil, fmt.Errorf("no public mempool API for network %q - please set mempool_url in config", network)
		}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	policy = policy.withDefaults()
	return &MempoolBackend{
		client: mempool.NewClient(baseURL, mempool.Options{
			MaxAttempts: policy.MaxAttempts,
			Delay:       policy.Delay,
			Logger:      logger,
		}),
		logger: logger,
	}, nil
}

// RetriesRequests reports that HTTP retries happen inside the client.
func (b *MempoolBackend) RetriesRequests() bool { return true }

func mapMempoolError(err error) error {
	var statusErr *mempool.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func (b *MempoolBackend) ListUnspent(ctx context.Context, address string, _ []byte) ([]UTXO, error) {
	utxos, err := b.client.ListUnspent(ctx, address)
	if err != nil {
		return nil, mapMempoolError(err)
	}
	out := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		var height int64
		if u.Status.Confirmed {
			height = u.Status.BlockHeight
		}
		out = append(out, UTXO{TxID: u.TxID, Vout: u.Vout, Value: u.Value, Height: height})
	}
	return out, nil
}

func (b *MempoolBackend) RawTransaction(ctx context.Context, txid string) (string, error) {
	raw, err := b.client.GetTransactionHex(ctx, txid)
	if err != nil {
		return "", mapMempoolError(err)
	}
	return raw, nil
}

// FeeRate returns the half hour recommendation.
func (b *MempoolBackend) FeeRate(ctx context.Context) (int64, error) {
	fees, err := b.client.RecommendedFees(ctx)
	if err != nil {
		return 0, mapMempoolError(err)
	}
	if fees.HalfHourFee <= 0 {
		return 0, ErrNoFeeEstimate
	}
	return fees.HalfHourFee, nil
}

func (b *MempoolBackend) TipHeight(ctx context.Context) (int64, error) {
	return b.client.TipHeight(ctx)
}

func (b *MempoolBackend) Close() error { return nil }
