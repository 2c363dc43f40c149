package core

// SnapshotShardFailure records one shard that failed during a snapshot.
type SnapshotShardFailure struct {
	Index   string `json:"index"`
	ShardID int    `json:"shard_id"`
	Reason  string `json:"reason"`
}

// SnapshotInfo is the per-snapshot record written as snap-<uuid>.dat at the
// repository root when the snapshot is finalized.
type SnapshotInfo struct {
	Snapshot  SnapshotID             `json:"snapshot"`
	State     SnapshotState          `json:"state"`
	Indices   []string               `json:"indices"`
	StartTime int64                  `json:"start_time"`
	EndTime   int64                  `json:"end_time"`
	Shards    int                    `json:"total_shards"`
	Failures  []SnapshotShardFailure `json:"failures,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
}

// StateFromFailures derives the recorded state from shard outcomes.
func StateFromFailures(totalShards int, failures []SnapshotShardFailure) SnapshotState {
	switch {
	case len(failures) == 0:
		return SnapshotSuccess
	case len(failures) >= totalShards:
		return SnapshotFailed
	default:
		return SnapshotPartial
	}
}

// ClusterMetadata is the global cluster state persisted alongside a
// snapshot. The repository treats it as an opaque, self-describing record;
// the coordinator produces and consumes it.
type ClusterMetadata struct {
	ClusterName string                   `json:"cluster_name"`
	Version     int64                    `json:"version"`
	Indices     map[string]IndexMetadata `json:"indices"`
}

// IndexMetadata is the per-index metadata persisted once per (index,
// snapshot) pair.
type IndexMetadata struct {
	Index    string            `json:"index"`
	Shards   int               `json:"number_of_shards"`
	Replicas int               `json:"number_of_replicas"`
	Settings map[string]string `json:"settings,omitempty"`
}
