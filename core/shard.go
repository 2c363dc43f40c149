package core

// ShardSnapshot is the immutable commit point of one shard at one snapshot:
// the exact set of files that together reconstruct the shard.
type ShardSnapshot struct {
	Snapshot             string     `json:"snapshot"`
	Files                []FileInfo `json:"files"`
	StartTime            int64      `json:"start_time"`
	Time                 int64      `json:"time"`
	IncrementalFileCount int        `json:"incremental_file_count"`
	IncrementalSize      int64      `json:"incremental_size"`
}

// SnapshotFiles pairs a snapshot name with the FileInfos of its commit point.
type SnapshotFiles struct {
	Snapshot string     `json:"snapshot"`
	Files    []FileInfo `json:"files"`
}

// ShardSnapshots is the per-shard catalog: every commit point of every
// snapshot that shares the shard directory, indexed for content-addressed
// reuse.
type ShardSnapshots struct {
	Snapshots []SnapshotFiles `json:"snapshots"`

	physicalFiles map[string][]FileInfo // physical filename -> candidates
	nameFiles     map[string]FileInfo   // logical blob name -> FileInfo
}

// NewShardSnapshots builds the catalog and its lookup indexes.
func NewShardSnapshots(snapshots []SnapshotFiles) *ShardSnapshots {
	s := &ShardSnapshots{Snapshots: snapshots}
	s.Reindex()
	return s
}

// Reindex rebuilds the lookup indexes; callers that deserialize a catalog
// must invoke it before using the Find methods.
func (s *ShardSnapshots) Reindex() {
	s.physicalFiles = make(map[string][]FileInfo)
	s.nameFiles = make(map[string]FileInfo)
	for _, snap := range s.Snapshots {
		for _, fi := range snap.Files {
			if _, ok := s.nameFiles[fi.Name]; !ok {
				s.physicalFiles[fi.PhysicalName()] = append(s.physicalFiles[fi.PhysicalName()], fi)
				s.nameFiles[fi.Name] = fi
			}
		}
	}
}

// FindPhysicalFiles returns every FileInfo sharing the given physical
// filename, across all commit points. The caller picks one by length and
// checksum.
func (s *ShardSnapshots) FindPhysicalFiles(physicalName string) []FileInfo {
	return s.physicalFiles[physicalName]
}

// FindNameFile resolves a canonicalized blob name. A nil result means no
// commit point references the blob.
func (s *ShardSnapshots) FindNameFile(canonicalName string) *FileInfo {
	if fi, ok := s.nameFiles[canonicalName]; ok {
		return &fi
	}
	return nil
}

// HasSnapshot reports whether a commit point exists for the snapshot name.
func (s *ShardSnapshots) HasSnapshot(name string) bool {
	for _, snap := range s.Snapshots {
		if snap.Snapshot == name {
			return true
		}
	}
	return false
}

// Without returns the catalog's commit points minus the named snapshot.
func (s *ShardSnapshots) Without(name string) []SnapshotFiles {
	var out []SnapshotFiles
	for _, snap := range s.Snapshots {
		if snap.Snapshot != name {
			out = append(out, snap)
		}
	}
	return out
}
