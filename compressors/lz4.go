package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// LZ4 uses the lz4 frame format, which is self-terminating (it ends with an
// end mark), so decompression needs no size heuristics.
type LZ4 struct{}

type lz4ReadCloser struct {
	*bytes.Reader
}

func (l *lz4ReadCloser) Close() error { return nil }

var _ Compressor = (*LZ4)(nil)

func (c *LZ4) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress close error: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *LZ4) Decompress(data []byte) (io.ReadCloser, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	return &lz4ReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *LZ4) Type() Type { return TypeLZ4 }
