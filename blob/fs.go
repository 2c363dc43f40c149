package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// tempBlobPrefix marks in-flight atomic writes. Blobs with this prefix are
// never part of the repository state and are swept during shard finalization.
const tempBlobPrefix = "pending-"

// IsTempBlobName reports whether a blob name belongs to an unfinished atomic
// write.
func IsTempBlobName(name string) bool {
	return strings.HasPrefix(name, tempBlobPrefix)
}

// FSStore is a blob store over a local (or mounted shared) filesystem.
type FSStore struct {
	root     string
	readOnly bool
}

// NewFSStore opens a filesystem blob store rooted at dir, creating it if
// needed.
func NewFSStore(dir string, readOnly bool) (*FSStore, error) {
	if !readOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create blob store root %s: %w", dir, err)
		}
	}
	return &FSStore{root: dir, readOnly: readOnly}, nil
}

func (s *FSStore) Container(path string) (Container, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(path))
	if !s.readOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create container directory %s: %w", dir, err)
		}
	}
	return &fsContainer{dir: dir, path: path, store: s}, nil
}

func (s *FSStore) Delete(path string) error {
	if s.readOnly {
		return fmt.Errorf("blob store at %s is readonly", s.root)
	}
	return os.RemoveAll(filepath.Join(s.root, filepath.FromSlash(path)))
}

func (s *FSStore) Close() error { return nil }

func (s *FSStore) String() string { return "fs(" + s.root + ")" }

type fsContainer struct {
	dir   string
	path  string
	store *FSStore
}

func (c *fsContainer) Path() string { return c.path }

func (c *fsContainer) ReadBlob(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(c.dir, name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *fsContainer) WriteBlob(name string, r io.Reader, length int64, failIfExists bool) error {
	if c.store.readOnly {
		return fmt.Errorf("container %s is readonly", c.path)
	}
	target := filepath.Join(c.dir, name)
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if failIfExists {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("blob %s: %w", name, ErrBlobExists)
		}
		return fmt.Errorf("failed to create blob %s: %w", name, err)
	}
	if err := copyExactly(f, r, length); err != nil {
		f.Close()
		os.Remove(target)
		return fmt.Errorf("failed to write blob %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync blob %s: %w", name, err)
	}
	return f.Close()
}

// WriteBlobAtomic writes to a pending- temp file and publishes it by link
// (fail-if-exists) or rename. A crash mid-write leaves only the temp blob.
func (c *fsContainer) WriteBlobAtomic(name string, r io.Reader, length int64, failIfExists bool) error {
	if c.store.readOnly {
		return fmt.Errorf("container %s is readonly", c.path)
	}
	tempName := tempBlobPrefix + uuid.NewString()
	tempPath := filepath.Join(c.dir, tempName)
	target := filepath.Join(c.dir, name)

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp blob for %s: %w", name, err)
	}
	if err := copyExactly(f, r, length); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp blob for %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp blob for %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp blob for %s: %w", name, err)
	}

	if failIfExists {
		// Hard link publishes the complete temp file only if the target is
		// absent; two racing writers see exactly one winner.
		if err := os.Link(tempPath, target); err != nil {
			os.Remove(tempPath)
			if os.IsExist(err) {
				return fmt.Errorf("blob %s: %w", name, ErrBlobExists)
			}
			return fmt.Errorf("failed to publish blob %s: %w", name, err)
		}
		os.Remove(tempPath)
		return nil
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to publish blob %s: %w", name, err)
	}
	return nil
}

func (c *fsContainer) ListByPrefix(prefix string) (map[string]Meta, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Meta{}, nil
		}
		return nil, fmt.Errorf("failed to list container %s: %w", c.path, err)
	}
	out := make(map[string]Meta)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out[entry.Name()] = Meta{Length: info.Size()}
	}
	return out, nil
}

func (c *fsContainer) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(c.dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (c *fsContainer) DeleteIgnoringMissing(name string) error {
	err := os.Remove(filepath.Join(c.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

func (c *fsContainer) DeleteBlobsIgnoringMissing(names []string) error {
	var firstErr error
	for _, name := range names {
		if err := c.DeleteIgnoringMissing(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// copyExactly streams exactly length bytes from r to w; fewer or more is a
// hard failure because the declared length is part of the blob contract.
func copyExactly(w io.Writer, r io.Reader, length int64) error {
	n, err := io.Copy(w, io.LimitReader(r, length))
	if err != nil {
		return err
	}
	if n != length {
		return fmt.Errorf("expected %d bytes, got %d", length, n)
	}
	// One more read distinguishes "exactly length" from "more than length".
	var probe [1]byte
	if extra, _ := r.Read(probe[:]); extra > 0 {
		return fmt.Errorf("stream longer than declared length %d", length)
	}
	return nil
}
