package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Snappy is the default codec compression: cheap enough for metadata blobs
// written on every catalog transition.
type Snappy struct{}

type snappyReadCloser struct {
	*bytes.Reader
}

func (s *snappyReadCloser) Close() error { return nil }

var _ Compressor = (*Snappy)(nil)

func (c *Snappy) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *Snappy) Decompress(data []byte) (io.ReadCloser, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return &snappyReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *Snappy) Type() Type { return TypeSnappy }
