package cip33

import "errors"

var (
	// ErrInvalidEncodingInput indicates an address or chunk that cannot be
	// decoded or encoded.
	ErrInvalidEncodingInput = errors.New("cip33: invalid encoding input")

	// ErrPayloadTooLarge indicates a payload whose length does not fit the
	// 2-byte length prefix.
	ErrPayloadTooLarge = errors.New("cip33: payload too large")

	// ErrUnknownNetwork indicates a network name with no bech32 prefix.
	ErrUnknownNetwork = errors.New("cip33: unknown network")
)
