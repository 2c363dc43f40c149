package compressors

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses payloads with pooled encoders and decoders; the pools
// amortize the cost of zstd context setup across concurrent codec writes.
type Zstd struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

type zstdReadCloser struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (z *zstdReadCloser) Close() error {
	// Returning the decoder to the pool instead of closing keeps it usable.
	z.pool.Put(z.Decoder)
	return nil
}

var _ Compressor = (*Zstd)(nil)

func NewZstd() *Zstd {
	return &Zstd{
		encoderPool: sync.Pool{
			New: func() interface{} {
				enc, err := zstd.NewWriter(nil)
				if err != nil {
					return nil
				}
				return enc
			},
		},
		decoderPool: sync.Pool{
			New: func() interface{} {
				dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(100*1024*1024))
				if err != nil {
					return nil
				}
				return dec
			},
		},
	}
}

func (c *Zstd) Compress(data []byte) ([]byte, error) {
	enc, ok := c.encoderPool.Get().(*zstd.Encoder)
	if !ok || enc == nil {
		return nil, fmt.Errorf("failed to acquire zstd encoder")
	}
	defer c.encoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (c *Zstd) Decompress(data []byte) (io.ReadCloser, error) {
	dec, ok := c.decoderPool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		return nil, fmt.Errorf("failed to acquire zstd decoder")
	}
	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		c.decoderPool.Put(dec)
		return nil, fmt.Errorf("zstd decoder reset error: %w", err)
	}
	return &zstdReadCloser{Decoder: dec, pool: &c.decoderPool}, nil
}

func (c *Zstd) Type() Type { return TypeZstd }
