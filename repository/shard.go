package repository

import (
	"strconv"
	"strings"

	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/core"
)

// buildShardSnapshots loads the per-shard catalog from a listed shard
// directory. The largest index-<gen> blob is authoritative and is never
// cross-checked against the snap-* blobs. Only when there is no index-<gen>
// blob, or the largest one cannot be read, are the individual commit points
// used to rebuild it; older generations are not tried. That recovery path is
// only sound for a single writer.
func (r *Repository) buildShardSnapshots(shardBlobs map[string]blob.Meta, container blob.Container) (*core.ShardSnapshots, int64) {
	latest := core.EmptyRepoGen
	for name := range shardBlobs {
		if !strings.HasPrefix(name, indexFilePrefix) {
			continue
		}
		gen, err := strconv.ParseInt(strings.TrimPrefix(name, indexFilePrefix), 10, 64)
		if err != nil {
			r.logger.Warn("failed to parse shard index blob name", "blob", name)
			continue
		}
		if gen > latest {
			latest = gen
		}
	}

	if latest >= 0 {
		catalog, err := r.shardIndexFormat.Read(container, strconv.FormatInt(latest, 10))
		if err == nil {
			catalog.Reindex()
			return catalog, latest
		}
		r.logger.Warn("failed to read shard index blob", "generation", latest, "error", err)
	} else if len(shardBlobs) > 0 {
		r.logger.Warn("could not find a readable index-N blob in a non-empty shard directory", "path", container.Path())
	}

	// Recovery: rebuild the catalog from each commit point.
	var snapshots []core.SnapshotFiles
	for name := range shardBlobs {
		if !strings.HasPrefix(name, snapshotPrefix) {
			continue
		}
		snap, err := r.shardSnapshotFormat.ReadBlobByName(container, name)
		if err != nil {
			r.logger.Warn("failed to read shard snapshot blob", "blob", name, "error", err)
			continue
		}
		snapshots = append(snapshots, core.SnapshotFiles{Snapshot: snap.Snapshot, Files: snap.Files})
	}
	return core.NewShardSnapshots(snapshots), latest
}
