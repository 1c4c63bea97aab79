package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/stampchain-io/vault-plugin-stamps/network"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

var (
	_ txbuilder.TxLookup     = (*Provider)(nil)
	_ txbuilder.UTXOSource   = (*Provider)(nil)
	_ txbuilder.FeeEstimator = (*Provider)(nil)
)

// Config configures a Provider.
type Config struct {
	Network string

	// MinConfirmations filters ListUnspent. Zero includes unconfirmed outputs.
	MinConfirmations int

	Retry RetryPolicy

	// Cache defaults to a MemoryCache.
	Cache TxCache

	Logger hclog.Logger
}

// Provider serves the txbuilder collaborator interfaces from a Backend.
type Provider struct {
	backend Backend
	network string
	cfg     Config
	logger  hclog.Logger
}

// NewProvider wraps backend.
func NewProvider(backend Backend, cfg Config) (*Provider, error) {
	name, err := network.Canonical(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache(0, 0)
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = cfg.Logger
	}
	if sr, ok := backend.(selfRetrying); ok && sr.RetriesRequests() {
		cfg.Retry.MaxAttempts = 1
	}
	return &Provider{backend: backend, network: name, cfg: cfg, logger: cfg.Logger}, nil
}

// Network returns the canonical network name.
func (p *Provider) Network() string {
	return p.network
}

// ListUnspent returns the spendable outputs of address with at least
// MinConfirmations confirmations. Each UTXO carries the address script so
// its input size can be estimated.
func (p *Provider) ListUnspent(ctx context.Context, address string) ([]txbuilder.UTXO, error) {
	script, err := txbuilder.ScriptForAddress(address, p.network)
	if err != nil {
		return nil, err
	}

	var utxos []UTXO
	err = p.cfg.Retry.Do(ctx, "list unspent", func(ctx context.Context) error {
		var err error
		utxos, err = p.backend.ListUnspent(ctx, address, script)
		return err
	})
	if err != nil {
		return nil, err
	}

	var tip int64
	if p.cfg.MinConfirmations > 0 {
		if tip, err = p.TipHeight(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]txbuilder.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if confs := Confirmations(u.Height, tip); p.cfg.MinConfirmations > 0 && confs < int64(p.cfg.MinConfirmations) {
			continue
		}
		out = append(out, txbuilder.UTXO{
			TxID:   u.TxID,
			Vout:   u.Vout,
			Value:  u.Value,
			Script: script,
		})
	}

	p.logger.Debug("listed unspent outputs", "address", address, "total", len(utxos), "spendable", len(out),
		"min_confirmations", p.cfg.MinConfirmations)
	return out, nil
}

// Confirmations returns the confirmation count of an output mined at height
// given the tip height. Unconfirmed outputs have height zero.
func Confirmations(height, tip int64) int64 {
	if height <= 0 || tip < height {
		return 0
	}
	return tip - height + 1
}

// GetTransaction returns txid with its outputs classified. Results are cached.
func (p *Provider) GetTransaction(ctx context.Context, txid string) (*txbuilder.PrevTx, error) {
	if prev, ok := p.cfg.Cache.Get(txid); ok {
		p.logger.Trace("transaction cache hit", "txid", txid)
		return prev, nil
	}

	var raw string
	err := p.cfg.Retry.Do(ctx, "get transaction", func(ctx context.Context) error {
		var err error
		raw, err = p.backend.RawTransaction(ctx, txid)
		return err
	})
	if err != nil {
		return nil, err
	}

	prev, err := DecodePrevTx(txid, raw)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Cache.Put(prev); err != nil {
		p.logger.Warn("failed to cache transaction", "txid", txid, "error", err)
	}
	return prev, nil
}

// FeeRate returns the backend's fee estimate in sat/vB, at least 1.
func (p *Provider) FeeRate(ctx context.Context) (int64, error) {
	var rate int64
	err := p.cfg.Retry.Do(ctx, "fee rate", func(ctx context.Context) error {
		var err error
		rate, err = p.backend.FeeRate(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if rate < 1 {
		rate = 1
	}
	return rate, nil
}

// TipHeight returns the best block height.
func (p *Provider) TipHeight(ctx context.Context) (int64, error) {
	var height int64
	err := p.cfg.Retry.Do(ctx, "tip height", func(ctx context.Context) error {
		var err error
		height, err = p.backend.TipHeight(ctx)
		return err
	})
	return height, err
}

// Close closes the backend.
func (p *Provider) Close() error {
	return p.backend.Close()
}

// DecodePrevTx parses a raw transaction and checks that it hashes to txid.
func DecodePrevTx(txid, rawHex string) (*txbuilder.PrevTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hex for %s: %w", txid, err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", txid, err)
	}
	if got := tx.TxHash().String(); got != txid {
		return nil, fmt.Errorf("backend returned transaction %s for %s", got, txid)
	}

	prev := &txbuilder.PrevTx{
		TxID:    txid,
		Outputs: make([]txbuilder.PrevOutput, len(tx.TxOut)),
		Hex:     rawHex,
	}
	for i, out := range tx.TxOut {
		prev.Outputs[i] = txbuilder.PrevOutput{
			Script:     out.PkScript,
			Value:      out.Value,
			ScriptType: txbuilder.ScriptType(out.PkScript),
		}
	}
	return prev, nil
}
