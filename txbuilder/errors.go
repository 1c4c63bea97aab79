package txbuilder

import "errors"

var (
	// ErrInsufficientFunds indicates that no input set covers the outputs plus fee.
	ErrInsufficientFunds = errors.New("txbuilder: insufficient funds")

	// ErrSelectionNotConverged indicates that the sigops fee multiplier did
	// not settle within the iteration limit.
	ErrSelectionNotConverged = errors.New("txbuilder: coin selection did not converge")

	// ErrInvalidFeeRate indicates a non-positive or unreasonable fee rate.
	ErrInvalidFeeRate = errors.New("txbuilder: invalid fee rate")

	// ErrInvalidOutput indicates an output with a negative value or no destination.
	ErrInvalidOutput = errors.New("txbuilder: invalid output")

	// ErrEmptyPayload indicates a request without payload bytes.
	ErrEmptyPayload = errors.New("txbuilder: empty payload")

	// ErrUnknownEncoding indicates an unsupported payload encoding.
	ErrUnknownEncoding = errors.New("txbuilder: unknown encoding")

	// ErrPrevOutMismatch indicates that a looked up transaction does not
	// match the UTXO it is supposed to fund.
	ErrPrevOutMismatch = errors.New("txbuilder: previous output mismatch")

	// ErrMissingPublicKey indicates a script-hash change address without a
	// usable public key for the redeem script.
	ErrMissingPublicKey = errors.New("txbuilder: missing public key for redeem script")
)
