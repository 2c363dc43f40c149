package repository

import (
	"io"

	"github.com/INLOpen/nexusvault/core"
)

// LocalStore exposes the shard files the creator snapshots from. The host's
// store implements it; the engine never touches store internals directly.
type LocalStore interface {
	// FileNames lists the files of the commit being snapshotted.
	FileNames() ([]string, error)

	// Metadata returns name, length and checksum for one file.
	Metadata(name string) (core.StoreFileMetadata, error)

	// OpenVerifying opens a file for reading; the returned reader verifies
	// the content against the expected metadata and fails the final read
	// with a core.CorruptedError on mismatch.
	OpenVerifying(md core.StoreFileMetadata) (io.ReadCloser, error)

	// IncRef and DecRef pin the underlying commit while it is being read.
	IncRef()
	DecRef()

	// MarkCorrupted records that the local store's content failed
	// verification, before the error propagates.
	MarkCorrupted(err error)
}

// RestoreTarget receives restored files.
type RestoreTarget interface {
	// RestoreFile streams one file's bytes into the local store. The reader
	// yields exactly fi.Length() bytes.
	RestoreFile(fi core.FileInfo, r io.Reader) error
}

// RecoveryState observes restore progress.
type RecoveryState interface {
	// AddFile announces a file about to be restored.
	AddFile(name string, length int64)
	// FileDone reports one file fully restored.
	FileDone(name string)
}

// NopRecoveryState discards progress events.
type NopRecoveryState struct{}

func (NopRecoveryState) AddFile(string, int64) {}
func (NopRecoveryState) FileDone(string)       {}
