package frame

import "errors"

var (
	// ErrCompressionIntegrity indicates that a compressed payload did not
	// inflate back to its input.
	ErrCompressionIntegrity = errors.New("frame: compression round trip mismatch")

	// ErrPayloadTooLarge indicates a payload longer than the length prefix allows.
	ErrPayloadTooLarge = errors.New("frame: payload too large")

	// ErrTruncatedFrame indicates a frame shorter than its declared length.
	ErrTruncatedFrame = errors.New("frame: truncated frame")
)
