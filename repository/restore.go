package repository

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"github.com/INLOpen/nexusvault/core"
	"github.com/INLOpen/nexusvault/stream"
)

// RestoreShard streams every file of a shard commit point back into the
// local store, driving the recovery-state observer. Each file is read as one
// contiguous stream over its data blob parts, throttled by the restore
// limiter.
func (r *Repository) RestoreShard(ctx context.Context, target RestoreTarget, snapshotID core.SnapshotID,
	indexID core.IndexID, shardID int, recovery RecoveryState) error {

	_, span := r.tracer.Start(ctx, "Repository.RestoreShard")
	defer span.End()
	span.SetAttributes(
		attribute.String("snapshot.name", snapshotID.Name),
		attribute.String("index.id", indexID.ID),
		attribute.Int("shard.id", shardID),
	)

	wrap := func(message string, err error) error {
		return &core.ShardRestoreFailedError{Index: indexID.Name, ShardID: shardID,
			Message: fmt.Sprintf("failed to restore snapshot [%s]: %s", snapshotID.Name, message), Err: err}
	}

	container, err := r.shardContainer(indexID, shardID)
	if err != nil {
		return wrap("failed to open shard container", err)
	}
	snapshot, err := r.shardSnapshotFormat.Read(container, snapshotID.UUID)
	if err != nil {
		return wrap("failed to read shard snapshot file", err)
	}
	files := core.SnapshotFiles{Snapshot: snapshot.Snapshot, Files: snapshot.Files}

	if recovery == nil {
		recovery = NopRecoveryState{}
	}
	for _, fi := range files.Files {
		recovery.AddFile(fi.PhysicalName(), fi.Length())
	}
	for _, fi := range files.Files {
		fi := fi
		sliced := stream.NewSlicedReader(fi.NumParts(), func(i int) (io.ReadCloser, error) {
			return container.ReadBlob(fi.PartName(i))
		})
		reader := stream.NewRateLimitedReader(sliced, r.restoreLimiter, &r.RestoreThrottledNanos)
		err := target.RestoreFile(fi, reader)
		sliced.Close()
		if err != nil {
			return wrap(fmt.Sprintf("failed to restore file [%s]", fi.PhysicalName()), err)
		}
		recovery.FileDone(fi.PhysicalName())
	}
	r.logger.Info("restored shard", "snapshot", snapshotID.Name, "index", indexID.Name,
		"shard", shardID, "files", len(files.Files))
	return nil
}
