package repository

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/core"
)

const verificationMasterBlob = "master.dat"

// ReadOnlyVerificationSeed is returned by StartVerification on readonly
// repositories, where the probe degrades to a smoke read.
const ReadOnlyVerificationSeed = "read-only"

func testBlobPath(seed string) string { return testsPrefix + seed }

// StartVerification begins an end-to-end reachability probe. On a writable
// repository the master node writes a seed blob under a test prefix; every
// node then proves it can read and write next to it via VerifyNode. On a
// readonly repository only the catalog pointer is smoke-read.
func (r *Repository) StartVerification() (string, error) {
	if r.settings.ReadOnly {
		root, err := r.rootContainer()
		if err != nil {
			return "", err
		}
		if _, err := r.latestIndexBlobID(root); err != nil {
			return "", &core.VerificationError{Repository: r.settings.Name, Path: root.Path(),
				Message: "path is not accessible on master node", Err: err}
		}
		return ReadOnlyVerificationSeed, nil
	}

	seed := uuid.NewString()
	container, err := r.testContainer(seed)
	if err != nil {
		return "", err
	}
	payload := []byte(seed)
	if err := container.WriteBlobAtomic(verificationMasterBlob, bytes.NewReader(payload), int64(len(payload)), true); err != nil {
		return "", &core.VerificationError{Repository: r.settings.Name, Path: container.Path(),
			Message: "path is not accessible on master node", Err: err}
	}
	return seed, nil
}

// VerifyNode asserts that the seed blob written by the master is visible
// from this node, and leaves a per-node marker blob beside it.
func (r *Repository) VerifyNode(seed, nodeID string) error {
	if r.settings.ReadOnly {
		root, err := r.rootContainer()
		if err != nil {
			return err
		}
		if _, err := r.latestIndexBlobID(root); err != nil {
			return &core.VerificationError{Repository: r.settings.Name, Path: root.Path(),
				Message: fmt.Sprintf("path is not accessible on node [%s]", nodeID), Err: err}
		}
		return nil
	}

	container, err := r.testContainer(seed)
	if err != nil {
		return err
	}
	exists, err := container.Exists(verificationMasterBlob)
	if err != nil || !exists {
		return &core.VerificationError{Repository: r.settings.Name, Path: container.Path(),
			Message: fmt.Sprintf("a file written by master to the store cannot be accessed on node [%s]; "+
				"this might indicate that the store is not shared between this node and the master node or "+
				"that permissions on the store don't allow reading files written by the master node", nodeID),
			Err: err}
	}
	payload := []byte(seed)
	name := fmt.Sprintf("data-%s.dat", nodeID)
	if err := container.WriteBlob(name, bytes.NewReader(payload), int64(len(payload)), true); err != nil {
		return &core.VerificationError{Repository: r.settings.Name, Path: container.Path(),
			Message: fmt.Sprintf("store location is not accessible on node [%s]", nodeID), Err: err}
	}
	return nil
}

// EndVerification removes the test prefix and everything under it.
func (r *Repository) EndVerification(seed string) error {
	if r.settings.ReadOnly || seed == ReadOnlyVerificationSeed {
		return nil
	}
	store, err := r.blobStore()
	if err != nil {
		return err
	}
	if err := store.Delete(testBlobPath(seed)); err != nil {
		return &core.VerificationError{Repository: r.settings.Name, Path: testBlobPath(seed),
			Message: "cannot delete test data", Err: err}
	}
	return nil
}

func (r *Repository) testContainer(seed string) (blob.Container, error) {
	store, err := r.blobStore()
	if err != nil {
		return nil, err
	}
	return store.Container(testBlobPath(seed))
}
