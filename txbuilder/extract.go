package txbuilder

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// ExtractOutputs returns the outputs of tx in script form, skipping any that
// pay to exclude. It is used to carry the outputs of a template transaction
// (typically built by a token API) into a new assembly, dropping the
// template's own change output.
func ExtractOutputs(tx *wire.MsgTx, exclude string, params *chaincfg.Params) []Output {
	outputs := make([]Output, 0, len(tx.TxOut))
	for _, out := range tx.TxOut {
		if exclude != "" {
			if addr, ok := AddressForScript(out.PkScript, params); ok && addr == exclude {
				continue
			}
		}
		script := make([]byte, len(out.PkScript))
		copy(script, out.PkScript)
		outputs = append(outputs, Output{Script: script, Value: out.Value})
	}
	return outputs
}
