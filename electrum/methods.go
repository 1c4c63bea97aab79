package electrum

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// UTXO is an entry of blockchain.scripthash.listunspent. Height is zero for
// unconfirmed outputs and -1 when a parent is unconfirmed.
type UTXO struct {
	TxHash string `json:"tx_hash"`
	TxPos  uint32 `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  int64  `json:"value"`
}

// ScriptHash returns the Electrum scripthash of a locking script: its
// SHA-256 in reversed byte order, hex encoded.
func ScriptHash(script []byte) string {
	return chainhash.HashH(script).String()
}

// ListUnspent returns the unspent outputs locked by the script behind
// scripthash.
func (c *Client) ListUnspent(ctx context.Context, scripthash string) ([]UTXO, error) {
	var utxos []UTXO
	err := c.request(ctx, "blockchain.scripthash.listunspent", &utxos, scripthash)
	return utxos, err
}

// GetTransaction returns the raw transaction hex.
func (c *Client) GetTransaction(ctx context.Context, txid string) (string, error) {
	var raw string
	err := c.request(ctx, "blockchain.transaction.get", &raw, txid)
	return raw, err
}

// EstimateFee returns the estimated fee in BTC per kilobyte. The server
// answers -1 when it has no estimate.
func (c *Client) EstimateFee(ctx context.Context, blocks int) (float64, error) {
	var fee float64
	err := c.request(ctx, "blockchain.estimatefee", &fee, blocks)
	return fee, err
}

// RelayFee returns the server's minimum relay fee in BTC per kilobyte.
func (c *Client) RelayFee(ctx context.Context) (float64, error) {
	var fee float64
	err := c.request(ctx, "blockchain.relayfee", &fee)
	return fee, err
}

// GetBlockHeight returns the height of the server's best block.
func (c *Client) GetBlockHeight(ctx context.Context) (int64, error) {
	var header struct {
		Height int64 `json:"height"`
	}
	err := c.request(ctx, "blockchain.headers.subscribe", &header)
	return header.Height, err
}

// Ping keeps the connection alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, "server.ping", nil)
}
