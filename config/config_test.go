package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{Name: "backups"}
	s.ApplyDefaults()
	require.NoError(t, s.Validate())

	assert.True(t, s.CompressEnabled())
	assert.Equal(t, DefaultRateBytesPerSec, s.MaxSnapshotBytesPerSec)
	assert.Equal(t, DefaultRateBytesPerSec, s.MaxRestoreBytesPerSec)
	assert.Equal(t, "snappy", s.CompressionCodec)
	assert.False(t, s.ReadOnly)
	assert.Zero(t, s.ChunkSizeBytes)
}

func TestSettings_ExplicitCompressOffSurvivesDefaults(t *testing.T) {
	off := false
	s := &Settings{Name: "backups", Compress: &off}
	s.ApplyDefaults()
	assert.False(t, s.CompressEnabled())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(s *Settings) {}, false},
		{"empty name", func(s *Settings) { s.Name = "" }, true},
		{"negative chunk size", func(s *Settings) { s.ChunkSizeBytes = -1 }, true},
		{"zero chunk size ok", func(s *Settings) { s.ChunkSizeBytes = 0 }, false},
		{"positive chunk size ok", func(s *Settings) { s.ChunkSizeBytes = 4096 }, false},
		{"bad codec", func(s *Settings) { s.CompressionCodec = "brotli" }, true},
		{"lz4 codec ok", func(s *Settings) { s.CompressionCodec = "lz4" }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &Settings{Name: "repo"}
			s.ApplyDefaults()
			tc.mutate(s)
			err := s.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repo.yaml")
	content := `
name: nightly
location: /var/backups/nightly
compress: false
chunk_size_bytes: 1073741824
max_snapshot_bytes_per_sec: -1
readonly: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", s.Name)
	assert.Equal(t, "/var/backups/nightly", s.Location)
	assert.False(t, s.CompressEnabled())
	assert.Equal(t, int64(1073741824), s.ChunkSizeBytes)
	assert.Equal(t, int64(-1), s.MaxSnapshotBytesPerSec, "negative disables throttling")
	assert.Equal(t, DefaultRateBytesPerSec, s.MaxRestoreBytesPerSec, "unset gets the default")
	assert.True(t, s.ReadOnly)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
