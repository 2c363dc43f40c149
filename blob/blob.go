// Package blob defines the uniform key/value+stream interface the snapshot
// repository uses to talk to an object store, plus the filesystem and
// in-memory implementations. The store offers per-blob atomic put and
// best-effort list/delete only; there are no cross-blob transactions.
package blob

import (
	"errors"
	"io"
)

// ErrBlobExists is returned by writes with failIfExists=true when the target
// blob is already present.
var ErrBlobExists = errors.New("blob already exists")

// ErrUnsupportedListing is returned by ListByPrefix on stores that cannot
// enumerate blobs (URL and read-only stores). Callers must fall back to the
// index.latest pointer.
var ErrUnsupportedListing = errors.New("listing blobs by prefix is not supported")

// Meta describes one listed blob.
type Meta struct {
	Length int64
}

// Container is one directory-like namespace of a blob store. All operations
// block and are expected to run on a snapshot or generic pool worker.
type Container interface {
	// Path returns the container path relative to the store root.
	Path() string

	// ReadBlob opens the named blob for reading. A missing blob surfaces
	// os.ErrNotExist through the error chain.
	ReadBlob(name string) (io.ReadCloser, error)

	// WriteBlob streams length bytes into the named blob. With failIfExists
	// the write fails with ErrBlobExists if the blob is present. A mismatch
	// between length and the bytes actually read is an error.
	WriteBlob(name string, r io.Reader, length int64, failIfExists bool) error

	// WriteBlobAtomic is WriteBlob with the additional guarantee that the
	// blob is either durably complete or absent; no partial blob is ever
	// visible under the final name.
	WriteBlobAtomic(name string, r io.Reader, length int64, failIfExists bool) error

	// ListByPrefix enumerates blobs whose names start with prefix. May fail
	// with ErrUnsupportedListing.
	ListByPrefix(prefix string) (map[string]Meta, error)

	// Exists reports whether the named blob is present.
	Exists(name string) (bool, error)

	// DeleteIgnoringMissing removes the named blob, treating absence as
	// success.
	DeleteIgnoringMissing(name string) error

	// DeleteBlobsIgnoringMissing removes the named blobs, treating absence
	// as success. The first real failure is returned after all names are
	// attempted.
	DeleteBlobsIgnoringMissing(names []string) error
}

// Store hands out containers and owns the underlying resource. It is created
// lazily by the repository and closed exactly once at shutdown.
type Store interface {
	// Container returns the container at the given slash-separated path
	// under the store root. An empty path is the root container.
	Container(path string) (Container, error)

	// Delete recursively removes the container at path and everything
	// under it.
	Delete(path string) error

	Close() error
}
