package txbuilder

import "context"

// UTXO is an unspent output available for funding.
type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Script []byte `json:"script,omitempty"`

	// Size overrides the estimate derived from Script when positive.
	Size int `json:"size,omitempty"`
}

// InputSize returns the size charged for spending u.
func (u UTXO) InputSize() (int, bool) {
	if u.Size > 0 {
		return u.Size, true
	}
	return EstimateInputSize(u.Script)
}

// Output is a candidate transaction output, given either by address or by
// raw locking script.
type Output struct {
	Address string
	Script  []byte
	Value   int64
}

// IsScript reports whether o is a raw script output.
func (o Output) IsScript() bool {
	return o.Address == ""
}

// PrevOutput is one output of a previous transaction.
type PrevOutput struct {
	Script     []byte `json:"script"`
	Value      int64  `json:"value"`
	ScriptType string `json:"script_type"`
}

// PrevTx is a previous transaction as returned by a TxLookup.
type PrevTx struct {
	TxID    string       `json:"txid"`
	Outputs []PrevOutput `json:"outputs"`
	Hex     string       `json:"hex"`
}

// TxLookup fetches previous transactions by id.
type TxLookup interface {
	GetTransaction(ctx context.Context, txid string) (*PrevTx, error)
}

// UTXOSource lists the unspent outputs of an address.
type UTXOSource interface {
	ListUnspent(ctx context.Context, address string) ([]UTXO, error)
}

// FeeEstimator returns the current network fee rate in sat/vB.
type FeeEstimator interface {
	FeeRate(ctx context.Context) (int64, error)
}
