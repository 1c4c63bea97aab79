// Package scramble disguises framed payload bytes with an RC4 keystream so
// that the embedded multisig keys do not expose the plaintext. Applying the
// same key twice restores the input.
package scramble

import (
	"crypto/rc4"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrEmptyKey indicates a zero-length key.
	ErrEmptyKey = errors.New("scramble: empty key")

	// ErrInvalidTxID indicates a txid that is not 32 bytes of hex.
	ErrInvalidTxID = errors.New("scramble: invalid txid")
)

// Apply XORs data with the RC4 keystream derived from key and returns a new
// slice. Apply(key, Apply(key, d)) == d.
func Apply(key, data []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	// rc4 accepts keys of 1 to 256 bytes; longer keys only affect the
	// schedule through their first 256 bytes anyway.
	if len(key) > 256 {
		key = key[:256]
	}
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("scramble: %w", err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// KeyFromTxID returns the key used for a transaction whose first input
// spends txid. The txid is taken in its displayed (big-endian) byte order.
func KeyFromTxID(txid string) ([]byte, error) {
	key, err := hex.DecodeString(txid)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTxID, txid)
	}
	return key, nil
}
