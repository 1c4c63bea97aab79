// Package multisig hides data in the public key slots of bare 1-of-3
// multisig outputs.
//
// Each 62-byte chunk is split into two 31-byte halves. A half becomes a
// compressed public key by adding a 0x02/0x03 prefix and one trailing byte,
// redrawn until the result decodes to a curve point.
package multisig

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// ChunkSize is the number of data bytes carried by one script.
	ChunkSize = 62

	// HalfSize is the number of data bytes carried by one key.
	HalfSize = ChunkSize / 2

	// PubKeySize is the length of a compressed public key.
	PubKeySize = 33

	// ScriptSize is the length of a data script.
	ScriptSize = 1 + 3*(1+PubKeySize) + 2

	// DefaultMaxAttempts bounds the trailing byte search per key. Roughly
	// half of all candidates are valid, so exhausting it means the reader
	// is broken or the segment cannot be completed.
	DefaultMaxAttempts = 256
)

// KeyFinder completes 31-byte segments into valid public keys.
type KeyFinder struct {
	// Rand supplies the prefix parity and trailing byte. Defaults to
	// crypto/rand.
	Rand io.Reader

	// MaxAttempts caps the draws per key. Defaults to DefaultMaxAttempts.
	MaxAttempts int
}

// Find returns a 33-byte compressed public key whose bytes 1..31 are segment.
func (f *KeyFinder) Find(segment []byte) ([]byte, error) {
	if len(segment) != HalfSize {
		return nil, fmt.Errorf("%w: segment is %d bytes, want %d", ErrUnalignedData, len(segment), HalfSize)
	}

	r := f.Rand
	if r == nil {
		r = rand.Reader
	}
	maxAttempts := f.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	key := make([]byte, PubKeySize)
	copy(key[1:1+HalfSize], segment)

	var draw [2]byte
	for i := 0; i < maxAttempts; i++ {
		if _, err := io.ReadFull(r, draw[:]); err != nil {
			return nil, fmt.Errorf("multisig: read random source: %w", err)
		}
		key[0] = 0x02 | draw[0]&0x01
		key[PubKeySize-1] = draw[1]
		if _, err := btcec.ParsePubKey(key); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: no valid key after %d attempts", ErrKeyGenerationExhausted, maxAttempts)
}

// Embed turns chunk aligned data into one data script per 62-byte chunk.
func Embed(data, burnKey []byte, finder *KeyFinder) ([][]byte, error) {
	if len(data) == 0 || len(data)%ChunkSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnalignedData, len(data))
	}
	if len(burnKey) != PubKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidBurnKey, len(burnKey))
	}
	if finder == nil {
		finder = &KeyFinder{}
	}

	scripts := make([][]byte, 0, len(data)/ChunkSize)
	for off := 0; off < len(data); off += ChunkSize {
		k1, err := finder.Find(data[off : off+HalfSize])
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", off/ChunkSize, err)
		}
		k2, err := finder.Find(data[off+HalfSize : off+ChunkSize])
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", off/ChunkSize, err)
		}
		script, err := Script(k1, k2, burnKey)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}
	return scripts, nil
}

// Script builds OP_1 <k1> <k2> <burn> OP_3 OP_CHECKMULTISIG.
func Script(k1, k2, burnKey []byte) ([]byte, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(k1).
		AddData(k2).
		AddData(burnKey).
		AddOp(txscript.OP_3).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	if err != nil {
		return nil, fmt.Errorf("multisig: build script: %w", err)
	}
	return script, nil
}
