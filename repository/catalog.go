package repository

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/core"
)

// GetRepositoryData reads the current repository catalog: resolve the latest
// generation, then read and parse index-<N>. A repository without any index
// blob is a blank repository.
func (r *Repository) GetRepositoryData() (*core.RepositoryData, error) {
	root, err := r.rootContainer()
	if err != nil {
		return nil, err
	}
	gen, err := r.latestIndexBlobID(root)
	if err != nil {
		return nil, err
	}
	if gen == core.EmptyRepoGen {
		return core.EmptyRepositoryData(), nil
	}
	return r.readRepositoryData(root, gen)
}

// readRepositoryData reads one specific catalog generation. Exposed
// behavior: reading index-<N-1> after a corrupt index-<N> is the one-step
// rollback path.
func (r *Repository) readRepositoryData(root blob.Container, gen int64) (*core.RepositoryData, error) {
	blobName := indexFilePrefix + strconv.FormatInt(gen, 10)
	rc, err := root.ReadBlob(blobName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.EmptyRepositoryData(), nil
		}
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "could not read repository data from index blob", Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "could not read repository data from index blob", Err: err}
	}
	repoData := core.EmptyRepositoryData()
	if err := json.Unmarshal(data, repoData); err != nil {
		return nil, &core.CorruptedError{Blob: blobName, Reason: fmt.Sprintf("index blob is not parsable: %v", err)}
	}
	repoData.Generation = gen
	return repoData, nil
}

// ReadRepositoryDataAtGen reads an explicit generation, for operator-driven
// downgrade reads after discovering a corrupt latest catalog.
func (r *Repository) ReadRepositoryDataAtGen(gen int64) (*core.RepositoryData, error) {
	root, err := r.rootContainer()
	if err != nil {
		return nil, err
	}
	return r.readRepositoryData(root, gen)
}

// latestIndexBlobID resolves the current catalog generation. The listing
// path is authoritative: index.latest is written non-atomically relative to
// index-<N> and is only consulted when the store cannot list.
func (r *Repository) latestIndexBlobID(root blob.Container) (int64, error) {
	gen, err := listLatestGeneration(root, indexFilePrefix)
	if err == nil {
		return gen, nil
	}
	if !errors.Is(err, blob.ErrUnsupportedListing) {
		return 0, &core.RepositoryError{Repository: r.settings.Name, Message: "failed to list index blobs", Err: err}
	}
	gen, err = readIndexLatest(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.EmptyRepoGen, nil
		}
		return 0, &core.RepositoryError{Repository: r.settings.Name, Message: "failed to read index.latest", Err: err}
	}
	return gen, nil
}

// listLatestGeneration lists prefix-matching blobs and returns the largest
// parsable integer suffix, EmptyRepoGen when none exist.
func listLatestGeneration(c blob.Container, prefix string) (int64, error) {
	blobs, err := c.ListByPrefix(prefix)
	if err != nil {
		return 0, err
	}
	latest := core.EmptyRepoGen
	for name := range blobs {
		suffix := strings.TrimPrefix(name, prefix)
		gen, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			// Not an index-N blob; it doesn't belong to the catalog.
			continue
		}
		if gen > latest {
			latest = gen
		}
	}
	return latest, nil
}

// readIndexLatest reads the 8-byte big-endian generation pointer.
func readIndexLatest(c blob.Container) (int64, error) {
	rc, err := c.ReadBlob(indexLatestBlob)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	var buf [8]byte
	if _, err := io.ReadFull(rc, buf[:]); err != nil {
		return 0, fmt.Errorf("index.latest blob is truncated: %w", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// writeIndexGen commits a new repository catalog generation. This is the
// single serialization point for catalog transitions: concurrent writers
// resolve by CAS on the expected generation plus the fail-if-exists write of
// index-<N+1>; at most one of two racing writers succeeds.
func (r *Repository) writeIndexGen(data *core.RepositoryData, expectedGen int64) error {
	if r.settings.ReadOnly {
		return &core.ReadOnlyError{Repository: r.settings.Name, Operation: "write index generation"}
	}
	root, err := r.rootContainer()
	if err != nil {
		return err
	}
	currentGen, err := r.latestIndexBlobID(root)
	if err != nil {
		return err
	}
	if currentGen != expectedGen {
		return &core.ConcurrentModificationError{Repository: r.settings.Name, ExpectedGen: expectedGen, ActualGen: currentGen}
	}
	newGen := expectedGen + 1
	indexBlob := indexFilePrefix + strconv.FormatInt(newGen, 10)
	r.logger.Debug("writing new index generational blob", "blob", indexBlob)

	payload, err := json.Marshal(data)
	if err != nil {
		return &core.RepositoryError{Repository: r.settings.Name, Message: "failed to serialize repository data", Err: err}
	}
	if err := root.WriteBlobAtomic(indexBlob, bytes.NewReader(payload), int64(len(payload)), true); err != nil {
		if errors.Is(err, blob.ErrBlobExists) {
			// Another writer raced us to this generation.
			return &core.ConcurrentModificationError{Repository: r.settings.Name, ExpectedGen: expectedGen, ActualGen: newGen}
		}
		return &core.RepositoryError{Repository: r.settings.Name, Message: "failed to write index blob " + indexBlob, Err: err}
	}

	var genBytes [8]byte
	binary.BigEndian.PutUint64(genBytes[:], uint64(newGen))
	r.logger.Debug("updating index.latest", "generation", newGen)
	if err := root.WriteBlobAtomic(indexLatestBlob, bytes.NewReader(genBytes[:]), 8, false); err != nil {
		return &core.RepositoryError{Repository: r.settings.Name, Message: "failed to write index.latest", Err: err}
	}

	// Keep one prior generation as a rollback; everything older goes.
	if newGen-2 >= 0 {
		oldBlob := indexFilePrefix + strconv.FormatInt(newGen-2, 10)
		if err := root.DeleteIgnoringMissing(oldBlob); err != nil {
			r.logger.Warn("failed to clean up old index blob", "blob", oldBlob, "error", err)
		}
	}
	return nil
}

// GetIncompatibleSnapshots reads the ids of snapshots written by versions
// this engine cannot restore. Absence means none.
func (r *Repository) GetIncompatibleSnapshots() ([]core.SnapshotID, error) {
	root, err := r.rootContainer()
	if err != nil {
		return nil, err
	}
	rc, err := root.ReadBlob(incompatibleSnapshotsBlob)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "failed to read incompatible-snapshots", Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "failed to read incompatible-snapshots", Err: err}
	}
	var out struct {
		Incompatible []core.SnapshotID `json:"incompatible_snapshots"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &core.CorruptedError{Blob: incompatibleSnapshotsBlob, Reason: err.Error()}
	}
	return out.Incompatible, nil
}
