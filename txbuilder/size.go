package txbuilder

import (
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

const (
	// InputBaseSize covers the outpoint txid (32), vout (4) and sequence (4).
	InputBaseSize = 32 + 4 + 4

	// P2PKHUnlockSize is the scriptSig allowance for a P2PKH input.
	P2PKHUnlockSize = 108

	// P2SHUnlockSize is the scriptSig allowance for a P2SH input.
	P2SHUnlockSize = 260

	// P2WPKHUnlockSize is the allowance for a P2WPKH input.
	// Non-witness part: 32 + 4 + 4 + 1 = 41 bytes.
	// Witness: 1 + 72 (signature) + 1 + 33 (pubkey) = 107 bytes at a quarter weight = 26.75.
	// floor(41 + 26.75) + 1 = 68.
	P2WPKHUnlockSize = 68

	// AddressOutputSize is the size charged for an output given by address.
	AddressOutputSize = 34

	// ScriptOutputOverhead is added to the script length of raw script outputs.
	ScriptOutputOverhead = 8

	// TxOverhead is the fixed transaction overhead
	TxOverhead = 10
)

// EstimateInputSize returns the size charged for spending an output locked
// by script. known is false when the script matches none of the recognised
// patterns; the size then covers only InputBaseSize and the caller should
// treat it as an estimation gap.
func EstimateInputSize(script []byte) (size int, known bool) {
	switch txscript.GetScriptClass(script) {
	case txscript.PubKeyHashTy:
		return InputBaseSize + P2PKHUnlockSize, true
	case txscript.ScriptHashTy:
		return InputBaseSize + P2SHUnlockSize, true
	case txscript.WitnessV0PubKeyHashTy:
		return InputBaseSize + P2WPKHUnlockSize, true
	default:
		return InputBaseSize, false
	}
}

// EstimateOutputSize returns the size charged for an output.
func EstimateOutputSize(o Output) int {
	if o.IsScript() {
		return len(o.Script) + ScriptOutputOverhead
	}
	return AddressOutputSize
}

// Script types as reported by bitcoind's decoderawtransaction.
const (
	ScriptTypePubKey         = "pubkey"
	ScriptTypePubKeyHash     = "pubkeyhash"
	ScriptTypeScriptHash     = "scripthash"
	ScriptTypeMultisig       = "multisig"
	ScriptTypeNullData       = "nulldata"
	ScriptTypeWitnessV0PKH   = "witness_v0_keyhash"
	ScriptTypeWitnessV0SH    = "witness_v0_scripthash"
	ScriptTypeWitnessV1TR    = "witness_v1_taproot"
	ScriptTypeWitnessUnknown = "witness_unknown"
	ScriptTypeNonStandard    = "nonstandard"
)

// ScriptType classifies script using bitcoind's type names.
func ScriptType(script []byte) string {
	switch txscript.GetScriptClass(script) {
	case txscript.PubKeyTy:
		return ScriptTypePubKey
	case txscript.PubKeyHashTy:
		return ScriptTypePubKeyHash
	case txscript.ScriptHashTy:
		return ScriptTypeScriptHash
	case txscript.MultiSigTy:
		return ScriptTypeMultisig
	case txscript.NullDataTy:
		return ScriptTypeNullData
	case txscript.WitnessV0PubKeyHashTy:
		return ScriptTypeWitnessV0PKH
	case txscript.WitnessV0ScriptHashTy:
		return ScriptTypeWitnessV0SH
	case txscript.WitnessV1TaprootTy:
		return ScriptTypeWitnessV1TR
	case txscript.WitnessUnknownTy:
		return ScriptTypeWitnessUnknown
	default:
		return ScriptTypeNonStandard
	}
}

// IsWitnessType reports whether a script type is spent through the witness.
func IsWitnessType(scriptType string) bool {
	return strings.HasPrefix(scriptType, "witness")
}
