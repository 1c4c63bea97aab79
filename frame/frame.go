// Package frame produces the byte frame that is scrambled and embedded into
// multisig outputs: a 2-byte big-endian payload length, the payload
// (zlib compressed when that is smaller), and zero padding to a whole number
// of 62-byte blocks.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// BlockSize is the data capacity of one multisig output.
	BlockSize = 62

	// MaxPayloadSize is the largest payload the length prefix can describe.
	MaxPayloadSize = math.MaxUint16

	prefixSize = 2
)

// Frame compresses text and wraps it in a length-prefixed, block padded
// frame. The result is checked to unframe back to text.
//
// Whether the payload is compressed is inferred on Unframe by trying to
// inflate it. Text that already is a zlib stream is therefore always stored
// compressed, which can make its frame longer than the raw form would be.
func Frame(text []byte) ([]byte, error) {
	payload, err := Compress(text)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	size := prefixSize + len(payload)
	if rem := size % BlockSize; rem != 0 {
		size += BlockSize - rem
	}
	out := make([]byte, size)
	binary.BigEndian.PutUint16(out, uint16(len(payload)))
	copy(out[prefixSize:], payload)

	check, err := Unframe(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionIntegrity, err)
	}
	if !bytes.Equal(check, text) {
		return nil, ErrCompressionIntegrity
	}
	return out, nil
}

// Unframe returns the text carried by a frame, inflating it if needed.
// Trailing padding is ignored.
func Unframe(framed []byte) ([]byte, error) {
	payload, err := Payload(framed)
	if err != nil {
		return nil, err
	}
	text, _ := Decompress(payload)
	return text, nil
}

// Payload returns the length-delimited payload of a frame without inflating it.
func Payload(framed []byte) ([]byte, error) {
	if len(framed) < prefixSize {
		return nil, fmt.Errorf("%w: missing length prefix", ErrTruncatedFrame)
	}
	n := int(binary.BigEndian.Uint16(framed))
	if prefixSize+n > len(framed) {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d", ErrTruncatedFrame, n, len(framed)-prefixSize)
	}
	return framed[prefixSize : prefixSize+n], nil
}
