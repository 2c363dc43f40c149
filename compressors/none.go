package compressors

import (
	"bytes"
	"io"
)

// NoCompression passes payloads through unchanged.
type NoCompression struct{}

type plainReadCloser struct {
	*bytes.Reader
}

func (p *plainReadCloser) Close() error { return nil }

var _ Compressor = (*NoCompression)(nil)

func (c *NoCompression) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c *NoCompression) Decompress(data []byte) (io.ReadCloser, error) {
	return &plainReadCloser{Reader: bytes.NewReader(data)}, nil
}

func (c *NoCompression) Type() Type { return TypeNone }
