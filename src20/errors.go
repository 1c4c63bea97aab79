package src20

import "errors"

var (
	// ErrInvalidParams indicates an SRC-20 operation with a missing or
	// malformed field. The wrapping error names the field.
	ErrInvalidParams = errors.New("src20: invalid params")

	// ErrNotSRC20 indicates text or a transaction that carries no SRC-20 message.
	ErrNotSRC20 = errors.New("src20: not an SRC-20 message")
)
