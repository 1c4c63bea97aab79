package multisig

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// IsDataScript reports whether script has the data multisig layout.
func IsDataScript(script []byte) bool {
	_, err := ExtractChunk(script)
	return err == nil
}

// ExtractChunk returns the 62 data bytes carried by one data script.
func ExtractChunk(script []byte) ([]byte, error) {
	var (
		ops    []byte
		pushes [][]byte
	)
	tok := txscript.MakeScriptTokenizer(0, script)
	for tok.Next() {
		ops = append(ops, tok.Opcode())
		if tok.Opcode() == txscript.OP_DATA_33 {
			pushes = append(pushes, tok.Data())
		}
	}
	if err := tok.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDataScript, err)
	}
	if len(ops) != 6 || ops[0] != txscript.OP_1 || ops[4] != txscript.OP_3 ||
		ops[5] != txscript.OP_CHECKMULTISIG || len(pushes) != 3 {
		return nil, ErrNotDataScript
	}

	chunk := make([]byte, 0, ChunkSize)
	chunk = append(chunk, pushes[0][1:1+HalfSize]...)
	chunk = append(chunk, pushes[1][1:1+HalfSize]...)
	return chunk, nil
}

// Extract concatenates the data carried by scripts, in order.
func Extract(scripts [][]byte) ([]byte, error) {
	data := make([]byte, 0, len(scripts)*ChunkSize)
	for i, script := range scripts {
		chunk, err := ExtractChunk(script)
		if err != nil {
			return nil, fmt.Errorf("script %d: %w", i, err)
		}
		data = append(data, chunk...)
	}
	return data, nil
}
