// Package localstore implements the repository's LocalStore and
// RestoreTarget seams over a plain directory of shard files, with crc32
// checksums computed at scan time and verified on read.
package localstore

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/INLOpen/nexusvault/core"
)

// Dir exposes one directory of shard files to the snapshot engine.
type Dir struct {
	dir  string
	refs atomic.Int64

	mu        sync.Mutex
	corrupted error
}

func Open(dir string) *Dir {
	return &Dir{dir: dir}
}

func (d *Dir) Path() string { return d.dir }

// FileNames lists the regular files of the directory, sorted for
// deterministic snapshot diffs.
func (d *Dir) FileNames() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory %s: %w", d.dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Metadata stats one file and computes its checksum.
func (d *Dir) Metadata(name string) (core.StoreFileMetadata, error) {
	path := filepath.Join(d.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return core.StoreFileMetadata{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	h := crc32.NewIEEE()
	length, err := io.Copy(h, f)
	if err != nil {
		return core.StoreFileMetadata{}, fmt.Errorf("failed to checksum %s: %w", name, err)
	}
	return core.StoreFileMetadata{Name: name, Length: length, Checksum: ChecksumString(h.Sum32())}, nil
}

// OpenVerifying opens a file for sequential reading. The final read fails
// with a CorruptedError if the bytes streamed do not match the expected
// length and checksum.
func (d *Dir) OpenVerifying(md core.StoreFileMetadata) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.dir, md.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", md.Name, err)
	}
	return &verifyingReader{f: f, expected: md, hash: crc32.NewIEEE()}, nil
}

func (d *Dir) IncRef() { d.refs.Add(1) }
func (d *Dir) DecRef() { d.refs.Add(-1) }

// Refs returns the current pin count, for tests.
func (d *Dir) Refs() int64 { return d.refs.Load() }

// MarkCorrupted records the first corruption observed while reading this
// store.
func (d *Dir) MarkCorrupted(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.corrupted == nil {
		d.corrupted = err
	}
}

// Corrupted returns the recorded corruption, if any.
func (d *Dir) Corrupted() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.corrupted
}

// RestoreFile streams one restored file into the directory, writing to a
// temp name first so a failed restore never leaves a partial file under the
// final name.
func (d *Dir) RestoreFile(fi core.FileInfo, r io.Reader) error {
	name := fi.PhysicalName()
	tempPath := filepath.Join(d.dir, name+".restore.tmp")
	finalPath := filepath.Join(d.dir, name)

	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if n != fi.Length() {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("restored %d bytes for %s, expected %d", n, name, fi.Length())
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}
	return nil
}

// ChecksumString renders a crc32 value the way file metadata records it.
func ChecksumString(sum uint32) string {
	return fmt.Sprintf("%08x", sum)
}

type verifyingReader struct {
	f        *os.File
	expected core.StoreFileMetadata
	hash     interface {
		io.Writer
		Sum32() uint32
	}
	read int64
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.f.Read(p)
	if n > 0 {
		v.hash.Write(p[:n])
		v.read += int64(n)
	}
	if err == io.EOF {
		if v.read != v.expected.Length {
			return n, &core.CorruptedError{Blob: v.expected.Name,
				Reason: fmt.Sprintf("length mismatch: read %d, expected %d", v.read, v.expected.Length)}
		}
		if got := ChecksumString(v.hash.Sum32()); got != v.expected.Checksum {
			return n, &core.CorruptedError{Blob: v.expected.Name,
				Reason: fmt.Sprintf("checksum mismatch: got %s, expected %s", got, v.expected.Checksum)}
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error { return v.f.Close() }
