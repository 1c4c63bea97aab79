package cip33

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePEPE1(t *testing.T) {
	addrs, err := Encode([]byte("PEPE1"), "bitcoin")
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	assert.True(t, strings.HasPrefix(addrs[0], "bc1q"))
	assert.Len(t, addrs[0], 62)

	got, err := Decode(addrs)
	require.NoError(t, err)
	assert.Equal(t, []byte("PEPE1"), got)
}

func TestEncodeMatchesP2WSHAddress(t *testing.T) {
	payload := []byte("PEPE1")
	addrs, err := Encode(payload, "mainnet")
	require.NoError(t, err)

	chunk := make([]byte, ChunkSize)
	chunk[1] = byte(len(payload))
	copy(chunk[2:], payload)

	want, err := btcutil.NewAddressWitnessScriptHash(chunk, &chaincfg.MainNetParams)
	require.NoError(t, err)
	assert.Equal(t, want.EncodeAddress(), addrs[0])
}

func TestEncodeNetworks(t *testing.T) {
	tests := []struct {
		network string
		prefix  string
	}{
		{"bitcoin", "bc1q"},
		{"mainnet", "bc1q"},
		{"testnet", "tb1q"},
		{"testnet4", "tb1q"},
		{"signet", "tb1q"},
		{"regtest", "bcrt1q"},
	}
	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			addrs, err := Encode([]byte{0xde, 0xad}, tt.network)
			require.NoError(t, err)
			for _, a := range addrs {
				assert.True(t, strings.HasPrefix(a, tt.prefix), a)
			}
		})
	}

	_, err := Encode([]byte{1}, "dogecoin")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestEncodeChunking(t *testing.T) {
	tests := []struct {
		size  int
		addrs int
	}{
		{0, 1},
		{30, 1},
		{31, 2},
		{62, 2},
		{63, 3},
		{1000, 32},
	}
	for _, tt := range tests {
		addrs, err := Encode(make([]byte, tt.size), "bitcoin")
		require.NoError(t, err)
		assert.Len(t, addrs, tt.addrs, "payload of %d bytes", tt.size)
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	for _, size := range []int{0, 1, 2, 31, 32, 33, 64, 255, 4096, MaxPayloadSize} {
		payload := make([]byte, size)
		rng.Read(payload)

		addrs, err := Encode(payload, "bitcoin")
		require.NoError(t, err)

		got, err := Decode(addrs)
		require.NoError(t, err)
		require.True(t, bytes.Equal(payload, got), "round trip failed for %d bytes", size)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(make([]byte, MaxPayloadSize+1), "bitcoin")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestEncodeChunk(t *testing.T) {
	chunkHex := strings.Repeat("ab", ChunkSize)
	addr, err := EncodeChunk(chunkHex, "bc")
	require.NoError(t, err)

	program, err := DecodeAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, chunkHex, hex.EncodeToString(program))

	_, err = EncodeChunk(chunkHex[:62], "bc")
	assert.ErrorIs(t, err, ErrInvalidEncodingInput)

	_, err = EncodeChunk(strings.Repeat("zz", ChunkSize), "bc")
	assert.ErrorIs(t, err, ErrInvalidEncodingInput)
}

func TestEncodeHex(t *testing.T) {
	addrs, err := EncodeHex(hex.EncodeToString([]byte("PEPE1")), "bitcoin")
	require.NoError(t, err)
	got, err := Decode(addrs)
	require.NoError(t, err)
	assert.Equal(t, "PEPE1", string(got))

	_, err = EncodeHex("xyz", "bitcoin")
	assert.ErrorIs(t, err, ErrInvalidEncodingInput)
}

func TestDecodeInvalid(t *testing.T) {
	addrs, err := Encode([]byte("PEPE1"), "bitcoin")
	require.NoError(t, err)
	valid := addrs[0]

	tests := []struct {
		name  string
		addrs []string
	}{
		// 'b' is not part of the bech32 alphabet
		{"character outside alphabet", []string{valid[:10] + "b" + valid[11:]}},
		{"bad checksum", []string{valid[:len(valid)-1] + flip(valid[len(valid)-1])}},
		{"mixed case", []string{strings.ToUpper(valid[:20]) + valid[20:]}},
		{"empty list", nil},
		{"taproot address", []string{"bc1p5d7rjq7g6rdk2yhzks9smlaqtedr4dekq08ge8ztwac72sfr9rusxg3297"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.addrs)
			assert.ErrorIs(t, err, ErrInvalidEncodingInput)
		})
	}
}

func TestDecodeDeclaredLengthTooLong(t *testing.T) {
	chunk := make([]byte, ChunkSize)
	chunk[0], chunk[1] = 0x01, 0x00 // 256 bytes declared, 30 available
	addr, err := EncodeChunk(hex.EncodeToString(chunk), "bc")
	require.NoError(t, err)

	_, err = Decode([]string{addr})
	assert.ErrorIs(t, err, ErrInvalidEncodingInput)
}

func flip(c byte) string {
	if c == 'q' {
		return "p"
	}
	return "q"
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte("PEPE1"))
	f.Add([]byte{})
	f.Add(bytes.Repeat([]byte{0xff}, 100))
	f.Fuzz(func(t *testing.T, payload []byte) {
		if len(payload) > MaxPayloadSize {
			t.Skip()
		}
		addrs, err := Encode(payload, "bitcoin")
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		got, err := Decode(addrs)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !bytes.Equal(payload, got) {
			t.Fatalf("round trip mismatch")
		}
	})
}
