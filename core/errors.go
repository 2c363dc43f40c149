package core

import (
	"errors"
	"fmt"
)

// ErrSnapshotAborted is surfaced when a shard snapshot observes its sticky
// abort flag mid-upload.
var ErrSnapshotAborted = errors.New("snapshot aborted")

// RepositoryError wraps a lower-level failure with repository name context.
type RepositoryError struct {
	Repository string
	Message    string
	Err        error
}

func (e *RepositoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository [%s]: %s: %v", e.Repository, e.Message, e.Err)
	}
	return fmt.Sprintf("repository [%s]: %s", e.Repository, e.Message)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// ReadOnlyError reports a write attempted against a readonly repository.
type ReadOnlyError struct {
	Repository string
	Operation  string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("repository [%s] is readonly, cannot %s", e.Repository, e.Operation)
}

// ConcurrentModificationError reports a generation CAS mismatch on the
// index-N blob. The caller re-reads current state and retries.
type ConcurrentModificationError struct {
	Repository  string
	ExpectedGen int64
	ActualGen   int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("repository [%s]: concurrent modification of the index-N blob, expected generation [%d], actual [%d]",
		e.Repository, e.ExpectedGen, e.ActualGen)
}

// SnapshotMissingError reports a snapshot id absent during read or delete.
type SnapshotMissingError struct {
	Repository string
	Snapshot   SnapshotID
	Err        error
}

func (e *SnapshotMissingError) Error() string {
	return fmt.Sprintf("repository [%s]: snapshot [%s] is missing", e.Repository, e.Snapshot)
}

func (e *SnapshotMissingError) Unwrap() error { return e.Err }

// InvalidSnapshotNameError reports a duplicate name at creation.
type InvalidSnapshotNameError struct {
	Repository string
	Name       string
	Reason     string
}

func (e *InvalidSnapshotNameError) Error() string {
	return fmt.Sprintf("repository [%s]: invalid snapshot name [%s]: %s", e.Repository, e.Name, e.Reason)
}

// SnapshotCreationError wraps failures while initializing a snapshot.
type SnapshotCreationError struct {
	Repository string
	Snapshot   SnapshotID
	Err        error
}

func (e *SnapshotCreationError) Error() string {
	return fmt.Sprintf("repository [%s]: failed to create snapshot [%s]: %v", e.Repository, e.Snapshot, e.Err)
}

func (e *SnapshotCreationError) Unwrap() error { return e.Err }

// ShardSnapshotFailedError wraps failures during one shard's snapshot.
type ShardSnapshotFailedError struct {
	Index   string
	ShardID int
	Message string
	Err     error
}

func (e *ShardSnapshotFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("shard [%s][%d] snapshot failed: %s: %v", e.Index, e.ShardID, e.Message, e.Err)
	}
	return fmt.Sprintf("shard [%s][%d] snapshot failed: %s", e.Index, e.ShardID, e.Message)
}

func (e *ShardSnapshotFailedError) Unwrap() error { return e.Err }

// ShardRestoreFailedError wraps failures during one shard's restore.
type ShardRestoreFailedError struct {
	Index   string
	ShardID int
	Message string
	Err     error
}

func (e *ShardRestoreFailedError) Error() string {
	return fmt.Sprintf("shard [%s][%d] restore failed: %s: %v", e.Index, e.ShardID, e.Message, e.Err)
}

func (e *ShardRestoreFailedError) Unwrap() error { return e.Err }

// VerificationError reports a cross-node reachability failure, carrying the
// path that was attempted.
type VerificationError struct {
	Repository string
	Path       string
	Message    string
	Err        error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("repository [%s]: verification failed at [%s]: %s", e.Repository, e.Path, e.Message)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// CorruptedError reports a checksum or codec header mismatch on read.
type CorruptedError struct {
	Blob   string
	Reason string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted repository blob [%s]: %s", e.Blob, e.Reason)
}

func IsConcurrentModification(err error) bool {
	var cme *ConcurrentModificationError
	return errors.As(err, &cme)
}

func IsSnapshotMissing(err error) bool {
	var sme *SnapshotMissingError
	return errors.As(err, &sme)
}

func IsCorrupted(err error) bool {
	var ce *CorruptedError
	return errors.As(err, &ce)
}

func IsReadOnly(err error) bool {
	var roe *ReadOnlyError
	return errors.As(err, &roe)
}

func IsAborted(err error) bool {
	return errors.Is(err, ErrSnapshotAborted)
}
