package chain

import "errors"

var (
	// ErrTransientIO indicates a provider call that kept failing with
	// transient errors until the retry policy gave up. It wraps the last error.
	ErrTransientIO = errors.New("chain: transient I/O failure")

	// ErrNotFound indicates a transaction or address the backend does not know.
	ErrNotFound = errors.New("chain: not found")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("chain: unknown backend")

	// ErrNoFeeEstimate indicates a backend that could not estimate a fee rate.
	ErrNoFeeEstimate = errors.New("chain: no fee estimate available")
)
