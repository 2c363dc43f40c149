package repository

import (
	"context"
	"errors"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/INLOpen/nexusvault/async"
	"github.com/INLOpen/nexusvault/core"
)

// InitializeSnapshot creates the snapshot's metadata blobs: the global
// cluster metadata at the root and one index metadata blob per index. The
// snapshot id becomes visible in the repository catalog only at finalize.
func (r *Repository) InitializeSnapshot(ctx context.Context, snapshotID core.SnapshotID, indices []core.IndexID, meta *core.ClusterMetadata) error {
	_, span := r.tracer.Start(ctx, "Repository.InitializeSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("snapshot.name", snapshotID.Name))

	if r.settings.ReadOnly {
		return &core.ReadOnlyError{Repository: r.settings.Name, Operation: "create snapshot"}
	}
	repoData, err := r.GetRepositoryData()
	if err != nil {
		return &core.SnapshotCreationError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
	}
	if repoData.HasSnapshotName(snapshotID.Name) {
		return &core.InvalidSnapshotNameError{Repository: r.settings.Name, Name: snapshotID.Name, Reason: "snapshot with the same name already exists"}
	}

	root, err := r.rootContainer()
	if err != nil {
		return &core.SnapshotCreationError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
	}
	if err := r.globalMetaFormat.Write(meta, root, snapshotID.UUID, true); err != nil {
		return &core.SnapshotCreationError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
	}
	for _, index := range indices {
		indexMeta, ok := meta.Indices[index.Name]
		if !ok {
			return &core.SnapshotCreationError{Repository: r.settings.Name, Snapshot: snapshotID,
				Err: &core.RepositoryError{Repository: r.settings.Name, Message: "cluster metadata is missing index " + index.Name}}
		}
		container, err := r.indexContainer(index)
		if err != nil {
			return &core.SnapshotCreationError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
		}
		if err := r.indexMetaFormat.Write(&indexMeta, container, snapshotID.UUID, false); err != nil {
			return &core.SnapshotCreationError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
		}
	}
	r.logger.Info("initialized snapshot", "snapshot", snapshotID.Name, "indices", len(indices))
	return nil
}

// FinalizeArgs carries the inputs of FinalizeSnapshot.
type FinalizeArgs struct {
	SnapshotID    core.SnapshotID
	Indices       []core.IndexID
	StartTime     int64
	Failure       string
	TotalShards   int
	ShardFailures []core.SnapshotShardFailure
	// ExpectedRepoGen is the catalog generation this finalize was planned
	// against; the CAS token.
	ExpectedRepoGen int64
	Metadata        *core.ClusterMetadata
}

// FinalizeSnapshot writes the remaining metadata blobs (idempotently, so a
// coordinator failover can replay it) and then commits the snapshot into the
// repository catalog. The index-<N+1> write is the linearization point; a
// replay with the same expected generation fails with
// ConcurrentModificationError.
func (r *Repository) FinalizeSnapshot(ctx context.Context, args FinalizeArgs, listener async.Listener[*core.SnapshotInfo]) {
	_, span := r.tracer.Start(ctx, "Repository.FinalizeSnapshot")
	span.SetAttributes(attribute.String("snapshot.name", args.SnapshotID.Name))

	if r.settings.ReadOnly {
		span.End()
		listener.OnFailure(&core.ReadOnlyError{Repository: r.settings.Name, Operation: "finalize snapshot"})
		return
	}

	afterMetaWrites := async.ListenerFuncs[*core.SnapshotInfo]{
		Response: func(info *core.SnapshotInfo) {
			defer span.End()
			repoData, err := r.GetRepositoryData()
			if err != nil {
				listener.OnFailure(err)
				return
			}
			updated := repoData.AddSnapshot(args.SnapshotID, info.State, args.Indices)
			if err := r.writeIndexGen(updated, args.ExpectedRepoGen); err != nil {
				listener.OnFailure(err)
				return
			}
			r.logger.Info("finalized snapshot", "snapshot", args.SnapshotID.Name, "state", string(info.State))
			listener.OnResponse(info)
		},
		Failure: func(err error) {
			span.End()
			listener.OnFailure(&core.SnapshotCreationError{Repository: r.settings.Name, Snapshot: args.SnapshotID, Err: err})
		},
	}

	// One completion per index metadata blob, plus the global metadata and
	// the snapshot info blob. All writes tolerate pre-existing blobs: a
	// replayed finalize must not fail before reaching the generational CAS.
	grouped := async.NewGrouped[*core.SnapshotInfo](2+len(args.Indices), async.ListenerFuncs[[]*core.SnapshotInfo]{
		Response: func(results []*core.SnapshotInfo) {
			for _, res := range results {
				if res != nil {
					afterMetaWrites.OnResponse(res)
					return
				}
			}
			afterMetaWrites.OnFailure(&core.RepositoryError{Repository: r.settings.Name, Message: "snapshot info blob was never produced"})
		},
		Failure: afterMetaWrites.OnFailure,
	})

	r.snapPool.Execute(func() {
		root, err := r.rootContainer()
		if err != nil {
			grouped.OnFailure(err)
			return
		}
		if err := r.globalMetaFormat.Write(args.Metadata, root, args.SnapshotID.UUID, false); err != nil {
			grouped.OnFailure(err)
			return
		}
		grouped.OnResponse(nil)
	})

	for _, index := range args.Indices {
		index := index
		r.snapPool.Execute(func() {
			indexMeta, ok := args.Metadata.Indices[index.Name]
			if !ok {
				grouped.OnFailure(&core.RepositoryError{Repository: r.settings.Name, Message: "cluster metadata is missing index " + index.Name})
				return
			}
			container, err := r.indexContainer(index)
			if err != nil {
				grouped.OnFailure(err)
				return
			}
			if err := r.indexMetaFormat.Write(&indexMeta, container, args.SnapshotID.UUID, false); err != nil {
				grouped.OnFailure(err)
				return
			}
			grouped.OnResponse(nil)
		})
	}

	r.snapPool.Execute(func() {
		indexNames := make([]string, 0, len(args.Indices))
		for _, index := range args.Indices {
			indexNames = append(indexNames, index.Name)
		}
		info := &core.SnapshotInfo{
			Snapshot:  args.SnapshotID,
			State:     core.StateFromFailures(args.TotalShards, args.ShardFailures),
			Indices:   indexNames,
			StartTime: args.StartTime,
			EndTime:   r.clock(),
			Shards:    args.TotalShards,
			Failures:  args.ShardFailures,
			Reason:    args.Failure,
		}
		root, err := r.rootContainer()
		if err != nil {
			grouped.OnFailure(err)
			return
		}
		if err := r.snapshotFormat.Write(info, root, args.SnapshotID.UUID, false); err != nil {
			grouped.OnFailure(err)
			return
		}
		grouped.OnResponse(info)
	})
}

// GetSnapshotInfo reads the per-snapshot record.
func (r *Repository) GetSnapshotInfo(snapshotID core.SnapshotID) (*core.SnapshotInfo, error) {
	root, err := r.rootContainer()
	if err != nil {
		return nil, err
	}
	info, err := r.snapshotFormat.Read(root, snapshotID.UUID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &core.SnapshotMissingError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
		}
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "failed to read snapshot info", Err: err}
	}
	return info, nil
}

// GetSnapshotGlobalMetadata reads the cluster metadata stored with a
// snapshot.
func (r *Repository) GetSnapshotGlobalMetadata(snapshotID core.SnapshotID) (*core.ClusterMetadata, error) {
	root, err := r.rootContainer()
	if err != nil {
		return nil, err
	}
	meta, err := r.globalMetaFormat.Read(root, snapshotID.UUID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &core.SnapshotMissingError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
		}
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "failed to read global metadata", Err: err}
	}
	return meta, nil
}

// GetSnapshotIndexMetadata reads the per-(index, snapshot) metadata.
func (r *Repository) GetSnapshotIndexMetadata(snapshotID core.SnapshotID, index core.IndexID) (*core.IndexMetadata, error) {
	container, err := r.indexContainer(index)
	if err != nil {
		return nil, err
	}
	meta, err := r.indexMetaFormat.Read(container, snapshotID.UUID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &core.SnapshotMissingError{Repository: r.settings.Name, Snapshot: snapshotID, Err: err}
		}
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "failed to read index metadata", Err: err}
	}
	return meta, nil
}
