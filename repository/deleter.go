package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/nexusvault/async"
	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/core"
)

// DeleteSnapshot removes one snapshot id from the repository. The catalog
// rewrite is the linearization point: once index-<N+1> no longer lists the
// snapshot, every later step is best-effort cleanup. A crash mid-delete
// leaves leaked blobs but never broken references.
func (r *Repository) DeleteSnapshot(ctx context.Context, snapshotID core.SnapshotID, expectedRepoGen int64, listener async.Listener[struct{}]) {
	_, span := r.tracer.Start(ctx, "Repository.DeleteSnapshot")
	span.SetAttributes(attribute.String("snapshot.name", snapshotID.Name))

	done := async.ListenerFuncs[struct{}]{
		Response: func(v struct{}) {
			span.End()
			listener.OnResponse(v)
		},
		Failure: func(err error) {
			span.End()
			listener.OnFailure(err)
		},
	}

	if r.settings.ReadOnly {
		done.OnFailure(&core.ReadOnlyError{Repository: r.settings.Name, Operation: "delete snapshot"})
		return
	}

	d := &snapshotDeleter{r: r, snapshotID: snapshotID, expectedRepoGen: expectedRepoGen, done: done}
	r.genPool.Execute(d.run)
}

type snapshotDeleter struct {
	r               *Repository
	snapshotID      core.SnapshotID
	expectedRepoGen int64
	done            async.Listener[struct{}]

	info     *core.SnapshotInfo
	repoData *core.RepositoryData
	updated  *core.RepositoryData
}

func (d *snapshotDeleter) run() {
	r := d.r

	// Provenance read is best-effort: a missing snap-<uuid>.dat fails the
	// delete only if the catalog doesn't know the snapshot either; an
	// unreadable one merely skips shard-level cleanup for it.
	info, err := r.GetSnapshotInfo(d.snapshotID)
	if err != nil {
		if core.IsSnapshotMissing(err) {
			repoData, repoErr := r.GetRepositoryData()
			if repoErr != nil {
				d.done.OnFailure(repoErr)
				return
			}
			if _, ok := repoData.FindByName(d.snapshotID.Name); !ok {
				d.done.OnFailure(err)
				return
			}
		}
		r.logger.Warn("cannot read snapshot file", "snapshot", d.snapshotID.Name, "error", err)
	}
	d.info = info

	if err := d.commitRemoval(); err != nil {
		d.done.OnFailure(err)
		return
	}
	d.deleteRootBlobs()
	d.deleteIndices()
}

// commitRemoval rewrites the repository catalog without the snapshot. A
// failure here fails the whole delete.
func (d *snapshotDeleter) commitRemoval() error {
	repoData, err := d.r.GetRepositoryData()
	if err != nil {
		return err
	}
	d.repoData = repoData
	d.updated = repoData.RemoveSnapshot(d.snapshotID)
	if err := d.r.writeIndexGen(d.updated, d.expectedRepoGen); err != nil {
		if core.IsConcurrentModification(err) || core.IsReadOnly(err) {
			return err
		}
		return &core.RepositoryError{Repository: d.r.settings.Name,
			Message: fmt.Sprintf("failed to delete snapshot [%s]", d.snapshotID.Name), Err: err}
	}
	return nil
}

// deleteRootBlobs unlinks the snapshot info and global metadata blobs.
func (d *snapshotDeleter) deleteRootBlobs() {
	root, err := d.r.rootContainer()
	if err != nil {
		d.r.logger.Warn("unable to delete global metadata files", "snapshot", d.snapshotID.Name, "error", err)
		return
	}
	names := []string{
		d.r.snapshotFormat.BlobName(d.snapshotID.UUID),
		d.r.globalMetaFormat.BlobName(d.snapshotID.UUID),
	}
	if err := root.DeleteBlobsIgnoringMissing(names); err != nil {
		d.r.logger.Warn("unable to delete global metadata files", "snapshot", d.snapshotID.Name, "error", err)
	}
}

// deleteIndices fans per-index cleanup out to the snapshot pool and joins
// before removing index directories that no live snapshot references.
func (d *snapshotDeleter) deleteIndices() {
	var indices []core.IndexID
	if d.info != nil {
		for _, name := range d.info.Indices {
			if id, ok := d.repoData.ResolveIndexID(name); ok {
				indices = append(indices, id)
			}
		}
	}

	finish := async.ListenerFuncs[[]struct{}]{
		Response: func([]struct{}) {
			d.cleanupUnreferencedIndices()
			d.done.OnResponse(struct{}{})
		},
		Failure: func(err error) {
			// Shard-level failures were already logged per shard; the
			// catalog committed, so the delete itself succeeded.
			d.cleanupUnreferencedIndices()
			d.done.OnResponse(struct{}{})
		},
	}

	if len(indices) == 0 {
		finish.OnResponse(nil)
		return
	}

	grouped := async.NewGrouped[struct{}](len(indices), finish)
	for _, index := range indices {
		index := index
		d.r.snapPool.Execute(func() {
			d.deleteIndex(index)
			grouped.OnResponse(struct{}{})
		})
	}
}

// deleteIndex removes this snapshot's traces from one index: its index
// metadata blob and its per-shard commit points and data blobs.
func (d *snapshotDeleter) deleteIndex(index core.IndexID) {
	r := d.r
	indexMeta, err := r.GetSnapshotIndexMetadata(d.snapshotID, index)
	if err != nil {
		r.logger.Warn("failed to read metadata for index", "snapshot", d.snapshotID.Name, "index", index.Name, "error", err)
	}
	container, cerr := r.indexContainer(index)
	if cerr == nil {
		if err := r.indexMetaFormat.Delete(container, d.snapshotID.UUID); err != nil {
			r.logger.Warn("failed to delete metadata for index", "snapshot", d.snapshotID.Name, "index", index.Name, "error", err)
		}
	}
	if indexMeta == nil {
		return
	}
	// Shard directories are independent; clean them concurrently and join.
	// Per-shard failures are logged and swallowed: the catalog already
	// committed, the worst case is leaked blobs.
	var g errgroup.Group
	for shardID := 0; shardID < indexMeta.Shards; shardID++ {
		shardID := shardID
		g.Go(func() error {
			if err := d.deleteShardSnapshot(index, shardID); err != nil {
				r.logger.Warn("failed to delete shard data", "snapshot", d.snapshotID.Name,
					"index", index.Name, "shard", shardID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// deleteShardSnapshot rewrites one shard's catalog without the snapshot and
// unlinks every data blob no commit point references anymore.
func (d *snapshotDeleter) deleteShardSnapshot(index core.IndexID, shardID int) error {
	r := d.r
	container, err := r.shardContainer(index, shardID)
	if err != nil {
		return err
	}
	blobs, err := container.ListByPrefix("")
	if err != nil {
		return fmt.Errorf("failed to list content of shard directory: %w", err)
	}

	catalog, gen := r.buildShardSnapshots(blobs, container)

	if err := r.shardSnapshotFormat.Delete(container, d.snapshotID.UUID); err != nil {
		r.logger.Warn("failed to delete shard snapshot file", "snapshot", d.snapshotID.Name, "shard", shardID, "error", err)
	}

	remaining := catalog.Without(d.snapshotID.Name)
	return d.finalizeShard(remaining, gen, blobs, container, index, shardID)
}

// finalizeShard writes the new shard catalog generation (or, when no commit
// points remain, deletes everything) and sweeps unreferenced blobs.
func (d *snapshotDeleter) finalizeShard(remaining []core.SnapshotFiles, gen int64, blobs map[string]blob.Meta,
	container blob.Container, index core.IndexID, shardID int) error {

	r := d.r
	var toDelete []string
	if len(remaining) == 0 {
		// Last snapshot of the shard gone: no catalog needed, every blob in
		// the directory is garbage.
		for name := range blobs {
			toDelete = append(toDelete, name)
		}
	} else {
		updated := core.NewShardSnapshots(remaining)
		genName := strconv.FormatInt(gen+1, 10)
		if err := r.shardIndexFormat.WriteAtomic(updated, container, genName, true); err != nil {
			return &core.ShardSnapshotFailedError{Index: index.Name, ShardID: shardID,
				Message: fmt.Sprintf("failed to finalize snapshot deletion with shard index %s", r.shardIndexFormat.BlobName(genName)), Err: err}
		}
		for name := range blobs {
			switch {
			case strings.HasPrefix(name, indexFilePrefix):
				toDelete = append(toDelete, name)
			case strings.HasPrefix(name, core.DataBlobPrefix) && updated.FindNameFile(core.CanonicalBlobName(name)) == nil:
				toDelete = append(toDelete, name)
			case blob.IsTempBlobName(name):
				toDelete = append(toDelete, name)
			}
		}
	}
	if err := container.DeleteBlobsIgnoringMissing(toDelete); err != nil {
		r.logger.Warn("failed to delete blobs during shard finalization", "snapshot", d.snapshotID.Name, "shard", shardID, "error", err)
	}
	return nil
}

// cleanupUnreferencedIndices removes the directories of indices no snapshot
// references anymore.
func (d *snapshotDeleter) cleanupUnreferencedIndices() {
	r := d.r
	store, err := r.blobStore()
	if err != nil {
		return
	}
	for _, index := range d.repoData.UnreferencedIndices(d.updated) {
		if err := store.Delete(indicesDir + "/" + index.ID); err != nil {
			r.logger.Warn("index is no longer part of any snapshot, but failed to clean up its folder",
				"index", index.Name, "error", err)
		}
	}
}
