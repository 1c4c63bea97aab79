package frame

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressChoosesSmaller(t *testing.T) {
	tests := []struct {
		name           string
		text           []byte
		wantCompressed bool
	}{
		{"short text stays raw", []byte("stamp:PEPE1"), false},
		{"repetitive text compresses", []byte(strings.Repeat("stamp:PEPE ", 40)), true},
		{"empty", []byte{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compress(tt.text)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(out), len(tt.text))

			inflated, compressed := Decompress(out)
			assert.Equal(t, tt.wantCompressed, compressed)
			assert.Equal(t, tt.text, inflated)
		})
	}
}

func TestFrameLayout(t *testing.T) {
	text := []byte("stamp:KEVIN")
	framed, err := Frame(text)
	require.NoError(t, err)

	assert.Zero(t, len(framed)%BlockSize)
	n := int(binary.BigEndian.Uint16(framed))
	assert.Equal(t, len(text), n, "short text is framed uncompressed")
	assert.Equal(t, text, framed[2:2+n])
	assert.True(t, bytes.Equal(make([]byte, len(framed)-2-n), framed[2+n:]), "padding must be zero")
}

func TestFrameRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	texts := [][]byte{
		{},
		[]byte("x"),
		[]byte(strings.Repeat("a", 60)),
		[]byte(strings.Repeat("a", 61)),
		[]byte(strings.Repeat(`{"p":"src-20","op":"deploy"}`, 100)),
	}
	for i := 0; i < 20; i++ {
		b := make([]byte, rng.Intn(3000))
		rng.Read(b)
		texts = append(texts, b)
	}

	for _, text := range texts {
		framed, err := Frame(text)
		require.NoError(t, err)
		require.Zero(t, len(framed)%BlockSize)

		got, err := Unframe(framed)
		require.NoError(t, err)
		require.True(t, bytes.Equal(text, got))
	}
}

func TestFrameTextThatIsZlib(t *testing.T) {
	random := make([]byte, 200)
	rand.New(rand.NewSource(7)).Read(random)
	text, err := deflate(random)
	require.NoError(t, err)

	payload, err := Compress(text)
	require.NoError(t, err)
	inflated, compressed := Decompress(payload)
	assert.True(t, compressed)
	assert.Equal(t, text, inflated)

	framed, err := Frame(text)
	require.NoError(t, err)
	got, err := Unframe(framed)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestFrameTooLarge(t *testing.T) {
	text := make([]byte, MaxPayloadSize+100)
	rand.New(rand.NewSource(1)).Read(text)
	_, err := Frame(text)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestUnframeTruncated(t *testing.T) {
	_, err := Unframe([]byte{0x00})
	assert.ErrorIs(t, err, ErrTruncatedFrame)

	_, err = Unframe([]byte{0x00, 0x10, 'a'})
	assert.ErrorIs(t, err, ErrTruncatedFrame)
}

func TestPayloadIgnoresPadding(t *testing.T) {
	framed := append([]byte{0x00, 0x03, 'a', 'b', 'c'}, make([]byte, 57)...)
	p, err := Payload(framed)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), p)
}

func FuzzFrame(f *testing.F) {
	f.Add([]byte("stamp:hello"))
	f.Fuzz(func(t *testing.T, text []byte) {
		framed, err := Frame(text)
		if err != nil {
			t.Skip()
		}
		got, err := Unframe(framed)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(text, got) {
			t.Fatal("frame round trip mismatch")
		}
	})
}
