// Package cip33 stores arbitrary bytes as a sequence of version 0 witness
// script hash addresses. Each address carries 32 bytes of the payload; the
// first two bytes of the stream are the big-endian payload length.
package cip33

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/stampchain-io/vault-plugin-stamps/network"
)

const (
	// ChunkSize is the witness program length of a P2WSH output.
	ChunkSize = 32

	// MaxPayloadSize is the largest payload the length prefix can describe.
	MaxPayloadSize = math.MaxUint16

	lengthPrefixSize = 2
	witnessVersion   = 0
)

// Encode returns the addresses that carry payload on the given network.
func Encode(payload []byte, networkName string) ([]string, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	hrp, err := network.HRP(networkName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, networkName)
	}

	stream := make([]byte, lengthPrefixSize, lengthPrefixSize+len(payload)+ChunkSize)
	binary.BigEndian.PutUint16(stream, uint16(len(payload)))
	stream = append(stream, payload...)
	if rem := len(stream) % ChunkSize; rem != 0 {
		stream = append(stream, make([]byte, ChunkSize-rem)...)
	}

	addresses := make([]string, 0, len(stream)/ChunkSize)
	for i := 0; i < len(stream); i += ChunkSize {
		addr, err := encodeProgram(hrp, stream[i:i+ChunkSize])
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// EncodeHex is Encode for a hex encoded payload.
func EncodeHex(payloadHex, networkName string) ([]string, error) {
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncodingInput, err)
	}
	return Encode(payload, networkName)
}

// EncodeChunk encodes one 64 hex character chunk under the given prefix.
func EncodeChunk(chunkHex, hrp string) (string, error) {
	if len(chunkHex) != ChunkSize*2 {
		return "", fmt.Errorf("%w: chunk is %d hex chars, want %d", ErrInvalidEncodingInput, len(chunkHex), ChunkSize*2)
	}
	chunk, err := hex.DecodeString(chunkHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncodingInput, err)
	}
	return encodeProgram(hrp, chunk)
}

func encodeProgram(hrp string, program []byte) (string, error) {
	groups, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncodingInput, err)
	}
	data := make([]byte, 0, len(groups)+1)
	data = append(data, witnessVersion)
	data = append(data, groups...)
	addr, err := bech32.Encode(hrp, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncodingInput, err)
	}
	return addr, nil
}

// DecodeAddress returns the witness program carried by a single address.
func DecodeAddress(addr string) ([]byte, error) {
	_, data, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEncodingInput, addr, err)
	}
	if len(data) < 1 || data[0] != witnessVersion {
		return nil, fmt.Errorf("%w: %s: not a version 0 witness program", ErrInvalidEncodingInput, addr)
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEncodingInput, addr, err)
	}
	return program, nil
}

// Decode reassembles the payload stored in addresses by Encode.
func Decode(addresses []string) ([]byte, error) {
	var stream []byte
	for _, addr := range addresses {
		program, err := DecodeAddress(addr)
		if err != nil {
			return nil, err
		}
		stream = append(stream, program...)
	}
	if len(stream) < lengthPrefixSize {
		return nil, fmt.Errorf("%w: missing length prefix", ErrInvalidEncodingInput)
	}

	n := int(binary.BigEndian.Uint16(stream))
	body := stream[lengthPrefixSize:]
	if n > len(body) {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d available bytes", ErrInvalidEncodingInput, n, len(body))
	}
	return body[:n], nil
}
