package src20

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/stampchain-io/vault-plugin-stamps/frame"
	"github.com/stampchain-io/vault-plugin-stamps/multisig"
	"github.com/stampchain-io/vault-plugin-stamps/scramble"
)

// DecodeTransaction recovers the SRC-20 message embedded in tx. The data
// outputs are descrambled with the txid spent by the first input.
func DecodeTransaction(tx *wire.MsgTx) (*Message, error) {
	if len(tx.TxIn) == 0 {
		return nil, fmt.Errorf("%w: transaction has no inputs", ErrNotSRC20)
	}

	var scripts [][]byte
	for _, out := range tx.TxOut {
		if multisig.IsDataScript(out.PkScript) {
			scripts = append(scripts, out.PkScript)
		}
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("%w: no data outputs", ErrNotSRC20)
	}

	data, err := multisig.Extract(scripts)
	if err != nil {
		return nil, err
	}
	key, err := scramble.KeyFromTxID(tx.TxIn[0].PreviousOutPoint.Hash.String())
	if err != nil {
		return nil, err
	}
	framed, err := scramble.Apply(key, data)
	if err != nil {
		return nil, err
	}
	text, err := frame.Unframe(framed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSRC20, err)
	}
	return Parse(text)
}
