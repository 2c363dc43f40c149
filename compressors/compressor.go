// Package compressors provides the pluggable payload compression used by the
// checksummed blob codec. The compressor that wrote a blob is recorded in the
// blob header; readers dispatch on that marker and never consult settings.
package compressors

import (
	"fmt"
	"io"
)

// Type is the one-byte compression marker embedded in blob headers.
type Type byte

const (
	TypeNone   Type = 0
	TypeSnappy Type = 1
	TypeZstd   Type = 2
	TypeLZ4    Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeSnappy:
		return "snappy"
	case TypeZstd:
		return "zstd"
	case TypeLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Compressor compresses and decompresses whole payloads.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) (io.ReadCloser, error)
	Type() Type
}

// Get returns the compressor for a marker byte read from a blob header.
func Get(t Type) (Compressor, error) {
	switch t {
	case TypeNone:
		return &NoCompression{}, nil
	case TypeSnappy:
		return &Snappy{}, nil
	case TypeZstd:
		return NewZstd(), nil
	case TypeLZ4:
		return &LZ4{}, nil
	default:
		return nil, fmt.Errorf("unknown compression type marker %d", byte(t))
	}
}

// ForName maps a configuration string to a compressor.
func ForName(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return &NoCompression{}, nil
	case "snappy":
		return &Snappy{}, nil
	case "zstd":
		return NewZstd(), nil
	case "lz4":
		return &LZ4{}, nil
	default:
		return nil, fmt.Errorf("unknown compression name %q", name)
	}
}
