package multisig

import "errors"

var (
	// ErrKeyGenerationExhausted indicates that no valid public key was found
	// for a data segment within the attempt limit.
	ErrKeyGenerationExhausted = errors.New("multisig: key generation exhausted")

	// ErrUnalignedData indicates data that is not a whole number of chunks.
	ErrUnalignedData = errors.New("multisig: data is not chunk aligned")

	// ErrInvalidBurnKey indicates a burn key that is not a 33-byte compressed key encoding.
	ErrInvalidBurnKey = errors.New("multisig: invalid burn key")

	// ErrNotDataScript indicates a script that is not a 1-of-3 data multisig.
	ErrNotDataScript = errors.New("multisig: not a data script")
)
