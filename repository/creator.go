package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/INLOpen/nexusvault/async"
	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/core"
	"github.com/INLOpen/nexusvault/stream"
)

// SnapshotShard snapshots one shard into the repository. It diffs the local
// store against the shard catalog, uploads only the new files, writes the
// commit point and advances the shard catalog generation. The outcome is the
// new shard generation, delivered to the listener.
func (r *Repository) SnapshotShard(ctx context.Context, store LocalStore, snapshotID core.SnapshotID, indexID core.IndexID,
	shardID int, status *core.ShardSnapshotStatus, listener async.Listener[string]) {

	_, span := r.tracer.Start(ctx, "Repository.SnapshotShard")
	span.SetAttributes(
		attribute.String("snapshot.name", snapshotID.Name),
		attribute.String("index.id", indexID.ID),
		attribute.Int("shard.id", shardID),
	)

	done := async.NewStep[string]()
	done.WhenComplete(
		func(gen string) {
			span.End()
			listener.OnResponse(gen)
		},
		func(err error) {
			span.End()
			status.MoveToFailed(r.clock(), err.Error())
			var failed *core.ShardSnapshotFailedError
			if !errors.As(err, &failed) {
				err = &core.ShardSnapshotFailedError{Index: indexID.Name, ShardID: shardID, Message: "shard snapshot failed", Err: err}
			}
			listener.OnFailure(err)
		},
	)

	c := &shardSnapshotCreator{
		r:          r,
		store:      store,
		snapshotID: snapshotID,
		indexID:    indexID,
		shardID:    shardID,
		status:     status,
		done:       done,
	}
	if err := c.run(); err != nil {
		done.OnFailure(err)
	}
}

// shardSnapshotCreator holds the state of one (shard, snapshot) creation.
type shardSnapshotCreator struct {
	r          *Repository
	store      LocalStore
	snapshotID core.SnapshotID
	indexID    core.IndexID
	shardID    int
	status     *core.ShardSnapshotStatus
	done       *async.Step[string]

	container    blob.Container
	shardBlobs   map[string]blob.Meta
	catalog      *core.ShardSnapshots
	catalogGen   int64
	commitFiles  []core.FileInfo // every file of the commit point
	filesToSnap  []core.FileInfo // the subset that needs uploading
	startTime    int64
}

func (c *shardSnapshotCreator) run() error {
	c.startTime = c.r.clock()
	c.r.logger.Debug("starting shard snapshot", "snapshot", c.snapshotID.Name, "index", c.indexID.Name, "shard", c.shardID)

	if err := c.loadCatalog(); err != nil {
		return err
	}
	if c.catalog.HasSnapshot(c.snapshotID.Name) {
		return c.failf("duplicate snapshot name [%s] detected, aborting", c.snapshotID.Name)
	}
	if err := c.diffAgainstCatalog(); err != nil {
		return err
	}
	c.uploadAndFinalize()
	return nil
}

func (c *shardSnapshotCreator) loadCatalog() error {
	container, err := c.r.shardContainer(c.indexID, c.shardID)
	if err != nil {
		return c.wrap("failed to open shard container", err)
	}
	c.container = container
	blobs, err := container.ListByPrefix("")
	if err != nil {
		return c.wrap("failed to list blobs", err)
	}
	c.shardBlobs = blobs
	c.catalog, c.catalogGen = c.r.buildShardSnapshots(blobs, container)
	return nil
}

// diffAgainstCatalog gathers the local file metadata and splits it into
// reused entries and fresh FileInfos with newly allocated data blob names.
func (c *shardSnapshotCreator) diffAgainstCatalog() error {
	c.store.IncRef()
	defer c.store.DecRef()

	fileNames, err := c.store.FileNames()
	if err != nil {
		return c.wrap("failed to get store file metadata", err)
	}

	var incrementalFiles, totalFiles int
	var incrementalSize, totalSize int64
	for _, name := range fileNames {
		if c.status.IsAborted() {
			c.r.logger.Debug("aborted during file diff", "file", name)
			return core.ErrSnapshotAborted
		}
		md, err := c.store.Metadata(name)
		if err != nil {
			return c.wrap("failed to get store file metadata", err)
		}

		var existing *core.FileInfo
		for _, candidate := range c.catalog.FindPhysicalFiles(name) {
			if candidate.IsSame(md) {
				// Same name, length and checksum: the content is already in
				// the repository and is shared with this commit point.
				fi := candidate
				existing = &fi
				break
			}
		}

		totalFiles++
		totalSize += md.Length

		if existing == nil {
			incrementalFiles++
			incrementalSize += md.Length
			fresh := core.NewFileInfo(core.DataBlobPrefix+uuid.NewString(), md, c.r.ChunkSize())
			c.commitFiles = append(c.commitFiles, fresh)
			c.filesToSnap = append(c.filesToSnap, fresh)
		} else {
			c.commitFiles = append(c.commitFiles, *existing)
		}
	}

	c.status.MoveToStarted(c.startTime, incrementalFiles, totalFiles, incrementalSize, totalSize)
	return nil
}

// uploadAndFinalize fans the new files out to the snapshot pool and chains
// the commit-point write strictly after the last upload.
func (c *shardSnapshotCreator) uploadAndFinalize() {
	allUploaded := async.NewStep[[]struct{}]()
	allUploaded.WhenComplete(
		func([]struct{}) {
			if err := c.finalize(); err != nil {
				c.done.OnFailure(err)
			}
		},
		c.done.OnFailure,
	)

	if len(c.filesToSnap) == 0 {
		allUploaded.OnResponse(nil)
		return
	}

	grouped := async.NewGrouped[struct{}](len(c.filesToSnap), allUploaded)
	// Once one upload fails, queued ones bail out early; in-flight ones
	// drain on their own.
	var alreadyFailed atomic.Bool
	for _, fi := range c.filesToSnap {
		fi := fi
		c.r.snapPool.Execute(func() {
			if !alreadyFailed.Load() {
				if err := c.uploadFile(fi); err != nil {
					alreadyFailed.Store(true)
					grouped.OnFailure(err)
					return
				}
			}
			grouped.OnResponse(struct{}{})
		})
	}
}

// uploadFile streams one file into its data blob parts.
func (c *shardSnapshotCreator) uploadFile(fi core.FileInfo) error {
	c.store.IncRef()
	defer c.store.DecRef()

	input, err := c.store.OpenVerifying(fi.Metadata)
	if err != nil {
		return c.wrap("failed to open file for snapshot", err)
	}
	defer input.Close()

	for i := 0; i < fi.NumParts(); i++ {
		if c.status.IsAborted() {
			c.r.logger.Debug("aborted on file", "file", fi.PhysicalName())
			return core.ErrSnapshotAborted
		}
		partBytes := fi.PartBytes(i)
		var partReader = stream.NewRateLimitedReader(
			&limitedPart{r: input, remaining: partBytes},
			c.r.snapshotLimiter,
			&c.r.SnapshotThrottledNanos,
		)
		partReader = stream.NewAbortableReader(partReader, c.status.IsAborted)
		if err := c.container.WriteBlob(fi.PartName(i), partReader, partBytes, true); err != nil {
			if core.IsCorrupted(err) {
				c.store.MarkCorrupted(err)
			}
			if core.IsAborted(err) {
				return err
			}
			return c.wrap(fmt.Sprintf("failed to write data blob %s", fi.PartName(i)), err)
		}
	}

	// Drive the verifying input through EOF: every part was read by exact
	// count, so the reader's length/checksum check has not fired yet.
	var probe [1]byte
	if _, err := input.Read(probe[:]); err != nil && err != io.EOF {
		if core.IsCorrupted(err) {
			c.store.MarkCorrupted(err)
		}
		return c.wrap(fmt.Sprintf("failed to verify %s after upload", fi.PhysicalName()), err)
	}

	c.status.AddProcessedFile(fi.Length())
	return nil
}

// finalize writes the commit point, then advances the shard catalog
// generation atomically. An existing index-<gen+1> means another writer
// raced us and this attempt must fail.
func (c *shardSnapshotCreator) finalize() error {
	lastStatus := c.status.MoveToFinalize()

	snapshot := &core.ShardSnapshot{
		Snapshot:             c.snapshotID.Name,
		Files:                c.commitFiles,
		StartTime:            lastStatus.StartTime,
		Time:                 c.r.clock() - lastStatus.StartTime,
		IncrementalFileCount: lastStatus.IncrementalFileCount,
		IncrementalSize:      lastStatus.IncrementalSize,
	}

	c.r.logger.Debug("writing shard snapshot file", "snapshot", c.snapshotID.Name, "shard", c.shardID)
	// Not fail-if-exists: a replayed attempt after coordinator failover
	// must be able to overwrite its own commit point.
	if err := c.r.shardSnapshotFormat.Write(snapshot, c.container, c.snapshotID.UUID, false); err != nil {
		return c.wrap("failed to write commit point", err)
	}

	newSnapshots := append([]core.SnapshotFiles{{Snapshot: snapshot.Snapshot, Files: snapshot.Files}}, c.catalog.Snapshots...)
	newGen := c.catalogGen + 1
	genName := strconv.FormatInt(newGen, 10)
	updated := core.NewShardSnapshots(newSnapshots)
	if err := c.r.shardIndexFormat.WriteAtomic(updated, c.container, genName, true); err != nil {
		return c.wrap(fmt.Sprintf("failed to finalize snapshot creation with shard index %s",
			c.r.shardIndexFormat.BlobName(genName)), err)
	}

	// Stale catalog generations are garbage now; losing this delete only
	// leaks blobs.
	var stale []string
	for name := range c.shardBlobs {
		if strings.HasPrefix(name, indexFilePrefix) && name != c.r.shardIndexFormat.BlobName(genName) {
			stale = append(stale, name)
		}
	}
	if err := c.container.DeleteBlobsIgnoringMissing(stale); err != nil {
		c.r.logger.Warn("failed to delete old shard index blobs during finalization", "error", err)
	}

	c.status.MoveToDone(c.r.clock())
	c.done.OnResponse(genName)
	return nil
}

func (c *shardSnapshotCreator) wrap(message string, err error) error {
	return &core.ShardSnapshotFailedError{Index: c.indexID.Name, ShardID: c.shardID, Message: message, Err: err}
}

func (c *shardSnapshotCreator) failf(format string, args ...any) error {
	return &core.ShardSnapshotFailedError{Index: c.indexID.Name, ShardID: c.shardID, Message: fmt.Sprintf(format, args...)}
}

// limitedPart reads exactly remaining bytes of the shared verifying input,
// leaving the input positioned at the next part.
type limitedPart struct {
	r         io.Reader
	remaining int64
}

func (l *limitedPart) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
