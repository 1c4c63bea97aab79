package multisig

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Burn keys occupy the third slot of every data multisig. Nobody holds
// their private keys, so the outputs can only be spent with one of the two
// data keys, which nobody holds either.
const (
	BurnKey22 = "022222222222222222222222222222222222222222222222222222222222222222"
	BurnKey33 = "033333333333333333333333333333333333333333333333333333333333333333"
	BurnKey02 = "020202020202020202020202020202020202020202020202020202020202020202"

	// DefaultBurnKey is the key SRC-20 transactions are indexed with.
	DefaultBurnKey = BurnKey02
)

// DefaultBurnKeys is the table of recognised burn keys.
var DefaultBurnKeys = []string{BurnKey22, BurnKey33, BurnKey02}

// ParseBurnKey decodes a hex burn key. The key must look like a compressed
// public key but is not required to be a point on the curve.
func ParseBurnKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBurnKey, err)
	}
	if len(key) != PubKeySize || (key[0] != 0x02 && key[0] != 0x03) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBurnKey, s)
	}
	return key, nil
}
