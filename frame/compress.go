package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compress returns the smaller of the zlib encoding of text and text itself.
// The zlib encoding is always inflated and compared with text first; a
// mismatch is an error, never a silent fallback to the raw bytes.
//
// Frames carry no compression flag, so text that is itself a complete zlib
// stream is returned in compressed form even when that is larger. Decompress
// then yields text rather than its inflation.
func Compress(text []byte) ([]byte, error) {
	compressed, err := deflate(text)
	if err != nil {
		return nil, err
	}
	inflated, err := inflate(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionIntegrity, err)
	}
	if !bytes.Equal(inflated, text) {
		return nil, ErrCompressionIntegrity
	}

	if len(compressed) < len(text) {
		return compressed, nil
	}
	if _, ok := Decompress(text); ok {
		return compressed, nil
	}
	return append([]byte{}, text...), nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("frame: zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("frame: zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("frame: zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Decompress inflates data when it is a complete zlib stream and otherwise
// returns it unchanged. It reports whether data was compressed.
func Decompress(data []byte) ([]byte, bool) {
	out, err := inflate(data)
	if err != nil {
		return data, false
	}
	return out, true
}
