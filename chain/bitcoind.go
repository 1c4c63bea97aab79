package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/hashicorp/go-hclog"
)

// BitcoindBackend is a Backend over Bitcoin Core JSON-RPC. Unspent outputs
// are found with scantxoutset, so no wallet needs to be loaded.
type BitcoindBackend struct {
	client *rpcclient.Client
	logger hclog.Logger
}

// NewBitcoindBackend returns a backend talking to host (host:port).
func NewBitcoindBackend(host, user, pass string, logger hclog.Logger) (*BitcoindBackend, error) {
	if host == "" {
		return nil, fmt.Errorf("bitcoind backend requires rpc_host")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	connCfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true, // Bitcoin core only supports HTTP POST mode
		DisableTLS:   true, // Bitcoin core does not provide TLS by default
	}
	// Notice the notification parameter is nil since notifications are
	// not supported in HTTP POST mode.
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitcoind client: %w", err)
	}
	return &BitcoindBackend{client: client, logger: logger}, nil
}

func mapRPCError(err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCNoTxInfo {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

type scanResult struct {
	Success  bool  `json:"success"`
	Height   int64 `json:"height"`
	Unspents []struct {
		TxID   string  `json:"txid"`
		Vout   uint32  `json:"vout"`
		Amount float64 `json:"amount"`
		Height int64   `json:"height"`
	} `json:"unspents"`
}

func (b *BitcoindBackend) ListUnspent(ctx context.Context, address string, _ []byte) ([]UTXO, error) {
	action, _ := json.Marshal("start")
	descs, _ := json.Marshal([]map[string]string{{"desc": "addr(" + address + ")"}})

	raw, err := await(ctx, func() (json.RawMessage, error) {
		return b.client.RawRequest("scantxoutset", []json.RawMessage{action, descs})
	})
	if err != nil {
		return nil, mapRPCError(err)
	}

	var res scanResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to parse scantxoutset result: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("scantxoutset did not complete")
	}

	out := make([]UTXO, 0, len(res.Unspents))
	for _, u := range res.Unspents {
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for %s:%d: %w", u.TxID, u.Vout, err)
		}
		out = append(out, UTXO{TxID: u.TxID, Vout: u.Vout, Value: int64(amount), Height: u.Height})
	}
	b.logger.Trace("scanned UTXO set", "address", address, "unspents", len(out), "height", res.Height)
	return out, nil
}

func (b *BitcoindBackend) RawTransaction(ctx context.Context, txid string) (string, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return "", fmt.Errorf("invalid txid %s: %w", txid, err)
	}
	tx, err := await(ctx, func() (*btcutil.Tx, error) {
		return b.client.GetRawTransaction(hash)
	})
	if err != nil {
		return "", mapRPCError(err)
	}
	var buf bytes.Buffer
	if err := tx.MsgTx().Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction %s: %w", txid, err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func (b *BitcoindBackend) FeeRate(ctx context.Context) (int64, error) {
	mode := btcjson.EstimateModeConservative
	res, err := await(ctx, func() (*btcjson.EstimateSmartFeeResult, error) {
		return b.client.EstimateSmartFee(FeeTargetBlocks, &mode)
	})
	if err != nil {
		return 0, mapRPCError(err)
	}
	if res.FeeRate == nil || *res.FeeRate <= 0 {
		b.logger.Debug("estimatesmartfee returned no rate", "errors", res.Errors)
		return 0, ErrNoFeeEstimate
	}
	return btcPerKBToSatPerVB(*res.FeeRate), nil
}

func (b *BitcoindBackend) TipHeight(ctx context.Context) (int64, error) {
	return await(ctx, b.client.GetBlockCount)
}

// Close shuts the RPC client down.
func (b *BitcoindBackend) Close() error {
	b.client.Shutdown()
	return nil
}
