// Package config holds the repository settings and their yaml loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultRateBytesPerSec is the default upload and restore throttle.
	DefaultRateBytesPerSec int64 = 40 * 1024 * 1024
)

// Settings configures one repository instance. Settings are immutable for
// the lifetime of the instance.
type Settings struct {
	// Name identifies the repository in errors and logs.
	Name string `yaml:"name"`

	// Location is the blob store location (base directory for fs stores).
	Location string `yaml:"location"`

	// Compress enables compression of metadata blobs. Data blobs are
	// written as-is. Nil means the default (enabled). Reads never consult
	// this flag; they detect compression from the blob itself.
	Compress *bool `yaml:"compress"`

	// ChunkSizeBytes is the maximum bytes per data-blob part. Zero means no
	// chunking; negative is invalid.
	ChunkSizeBytes int64 `yaml:"chunk_size_bytes"`

	// MaxSnapshotBytesPerSec throttles uploads. Zero applies the default;
	// negative disables throttling.
	MaxSnapshotBytesPerSec int64 `yaml:"max_snapshot_bytes_per_sec"`

	// MaxRestoreBytesPerSec throttles restores, same semantics.
	MaxRestoreBytesPerSec int64 `yaml:"max_restore_bytes_per_sec"`

	// ReadOnly disables all writes; initialize, finalize and delete fail.
	ReadOnly bool `yaml:"readonly"`

	// CompressionCodec selects the metadata compressor when compression is
	// enabled: "snappy" (default), "zstd", "lz4" or "none".
	CompressionCodec string `yaml:"compression_codec"`
}

// Load reads settings from a yaml file and applies defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyDefaults fills unset fields.
func (s *Settings) ApplyDefaults() {
	if s.Compress == nil {
		enabled := true
		s.Compress = &enabled
	}
	if s.MaxSnapshotBytesPerSec == 0 {
		s.MaxSnapshotBytesPerSec = DefaultRateBytesPerSec
	}
	if s.MaxRestoreBytesPerSec == 0 {
		s.MaxRestoreBytesPerSec = DefaultRateBytesPerSec
	}
	if s.CompressionCodec == "" {
		s.CompressionCodec = "snappy"
	}
}

// Validate rejects settings no repository can start with.
func (s *Settings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("repository name must not be empty")
	}
	if s.ChunkSizeBytes < 0 {
		return fmt.Errorf("the chunk size cannot be negative: [%d]", s.ChunkSizeBytes)
	}
	switch s.CompressionCodec {
	case "snappy", "zstd", "lz4", "none":
	default:
		return fmt.Errorf("unknown compression codec %q", s.CompressionCodec)
	}
	return nil
}

// CompressEnabled reports the effective compression flag.
func (s *Settings) CompressEnabled() bool {
	return s.Compress == nil || *s.Compress
}
