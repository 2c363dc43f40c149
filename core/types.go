package core

import (
	"fmt"
	"sort"
)

// EmptyRepoGen is the generation of a repository that has never had an
// index-N blob written to it.
const EmptyRepoGen int64 = -1

// SnapshotState describes the terminal (or in-flight) state of a snapshot
// as recorded in the repository catalog.
type SnapshotState string

const (
	SnapshotInProgress SnapshotState = "IN_PROGRESS"
	SnapshotSuccess    SnapshotState = "SUCCESS"
	SnapshotPartial    SnapshotState = "PARTIAL"
	SnapshotFailed     SnapshotState = "FAILED"
)

// SnapshotID identifies a snapshot by its human-readable name and an opaque
// UUID. The UUID is immutable and embedded in every blob name that belongs
// to the snapshot; the name must be unique across all live snapshots.
type SnapshotID struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

func (s SnapshotID) String() string {
	return fmt.Sprintf("%s/%s", s.Name, s.UUID)
}

// IndexID identifies an index by its original name and the stable id the
// repository assigned to it. The id survives index renames; the name is
// informational only.
type IndexID struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (i IndexID) String() string {
	return fmt.Sprintf("[%s/%s]", i.Name, i.ID)
}

// RepositoryData is the generational repository catalog: the authoritative
// list of snapshot ids, their states, and the indices they reference.
// Instances are immutable; mutating operations return an updated copy.
type RepositoryData struct {
	// Generation is the index-N generation this catalog was read from. It is
	// not serialized; the blob name carries it.
	Generation int64 `json:"-"`

	Snapshots []SnapshotID             `json:"snapshots"`
	States    map[string]SnapshotState `json:"snapshot_states"` // keyed by snapshot UUID
	Indices   map[string]IndexID       `json:"indices"`         // keyed by index name
	// IndexSnapshots maps an index id to the UUIDs of the snapshots that
	// reference it. Every id referenced by any live snapshot appears here
	// exactly once.
	IndexSnapshots map[string][]string `json:"index_snapshots"`
}

// EmptyRepositoryData returns the catalog of a blank repository.
func EmptyRepositoryData() *RepositoryData {
	return &RepositoryData{
		Generation:     EmptyRepoGen,
		Snapshots:      nil,
		States:         map[string]SnapshotState{},
		Indices:        map[string]IndexID{},
		IndexSnapshots: map[string][]string{},
	}
}

// HasSnapshotName reports whether any live snapshot carries the given name.
func (r *RepositoryData) HasSnapshotName(name string) bool {
	for _, s := range r.Snapshots {
		if s.Name == name {
			return true
		}
	}
	return false
}

// FindByName returns the snapshot id with the given name.
func (r *RepositoryData) FindByName(name string) (SnapshotID, bool) {
	for _, s := range r.Snapshots {
		if s.Name == name {
			return s, true
		}
	}
	return SnapshotID{}, false
}

// State returns the recorded state for a snapshot UUID.
func (r *RepositoryData) State(uuid string) (SnapshotState, bool) {
	st, ok := r.States[uuid]
	return st, ok
}

// ResolveIndexID maps an index name to its repository-assigned id.
func (r *RepositoryData) ResolveIndexID(name string) (IndexID, bool) {
	id, ok := r.Indices[name]
	return id, ok
}

// AddSnapshot returns a copy of the catalog with the snapshot and its index
// references added.
func (r *RepositoryData) AddSnapshot(id SnapshotID, state SnapshotState, indices []IndexID) *RepositoryData {
	out := r.clone()
	out.Snapshots = append(out.Snapshots, id)
	out.States[id.UUID] = state
	for _, idx := range indices {
		out.Indices[idx.Name] = idx
		refs := out.IndexSnapshots[idx.ID]
		if !containsString(refs, id.UUID) {
			out.IndexSnapshots[idx.ID] = append(refs, id.UUID)
		}
	}
	return out
}

// RemoveSnapshot returns a copy of the catalog without the snapshot. Indices
// that are no longer referenced by any snapshot are dropped from the catalog.
func (r *RepositoryData) RemoveSnapshot(id SnapshotID) *RepositoryData {
	out := r.clone()
	kept := out.Snapshots[:0]
	for _, s := range out.Snapshots {
		if s.UUID != id.UUID {
			kept = append(kept, s)
		}
	}
	out.Snapshots = kept
	delete(out.States, id.UUID)

	for indexID, refs := range out.IndexSnapshots {
		filtered := refs[:0]
		for _, uuid := range refs {
			if uuid != id.UUID {
				filtered = append(filtered, uuid)
			}
		}
		if len(filtered) == 0 {
			delete(out.IndexSnapshots, indexID)
		} else {
			out.IndexSnapshots[indexID] = filtered
		}
	}
	for name, idx := range out.Indices {
		if _, ok := out.IndexSnapshots[idx.ID]; !ok {
			delete(out.Indices, name)
		}
	}
	return out
}

// UnreferencedIndices returns the index ids present in r but absent from
// updated, i.e. the indices that only the removed snapshot referenced.
func (r *RepositoryData) UnreferencedIndices(updated *RepositoryData) []IndexID {
	var out []IndexID
	for name, idx := range r.Indices {
		if _, ok := updated.Indices[name]; !ok {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *RepositoryData) clone() *RepositoryData {
	out := &RepositoryData{
		Generation:     r.Generation,
		Snapshots:      append([]SnapshotID(nil), r.Snapshots...),
		States:         make(map[string]SnapshotState, len(r.States)),
		Indices:        make(map[string]IndexID, len(r.Indices)),
		IndexSnapshots: make(map[string][]string, len(r.IndexSnapshots)),
	}
	for k, v := range r.States {
		out.States[k] = v
	}
	for k, v := range r.Indices {
		out.Indices[k] = v
	}
	for k, v := range r.IndexSnapshots {
		out.IndexSnapshots[k] = append([]string(nil), v...)
	}
	return out
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
