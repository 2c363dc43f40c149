package blob

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFSContainer(t *testing.T) (Container, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFSStore(dir, false)
	require.NoError(t, err)
	c, err := store.Container("indices/idx/0")
	require.NoError(t, err)
	return c, dir
}

func TestFSContainer_WriteAndReadBlob(t *testing.T) {
	c, _ := setupFSContainer(t)
	content := []byte("hello blob store")

	err := c.WriteBlob("snap-1.dat", bytes.NewReader(content), int64(len(content)), true)
	require.NoError(t, err)

	rc, err := c.ReadBlob("snap-1.dat")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFSContainer_ReadMissingBlob(t *testing.T) {
	c, _ := setupFSContainer(t)
	_, err := c.ReadBlob("nope")
	assert.True(t, errors.Is(err, os.ErrNotExist) || os.IsNotExist(err))
}

func TestFSContainer_FailIfExists(t *testing.T) {
	c, _ := setupFSContainer(t)
	content := []byte("v1")
	require.NoError(t, c.WriteBlob("x", bytes.NewReader(content), 2, true))

	err := c.WriteBlob("x", bytes.NewReader(content), 2, true)
	assert.ErrorIs(t, err, ErrBlobExists)

	// Without failIfExists the write replaces the blob.
	require.NoError(t, c.WriteBlob("x", bytes.NewReader([]byte("v2")), 2, false))
	rc, err := c.ReadBlob("x")
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, []byte("v2"), got)
}

func TestFSContainer_WriteBlobAtomicFailIfExists(t *testing.T) {
	c, _ := setupFSContainer(t)
	require.NoError(t, c.WriteBlobAtomic("index-0", bytes.NewReader([]byte("a")), 1, true))

	err := c.WriteBlobAtomic("index-0", bytes.NewReader([]byte("b")), 1, true)
	assert.ErrorIs(t, err, ErrBlobExists)

	// The loser's temp blob must not linger.
	blobs, err := c.ListByPrefix(tempBlobPrefix)
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestFSContainer_LengthMismatchIsHardFailure(t *testing.T) {
	c, _ := setupFSContainer(t)

	err := c.WriteBlob("short", bytes.NewReader([]byte("abc")), 10, true)
	require.Error(t, err, "declared length longer than stream")
	exists, _ := c.Exists("short")
	assert.False(t, exists, "failed write must not leave a blob behind")

	err = c.WriteBlob("long", bytes.NewReader([]byte("abcdef")), 3, true)
	require.Error(t, err, "stream longer than declared length")
}

func TestFSContainer_ListByPrefix(t *testing.T) {
	c, _ := setupFSContainer(t)
	for _, name := range []string{"index-0", "index-1", "snap-a.dat", "__data"} {
		require.NoError(t, c.WriteBlob(name, strings.NewReader("x"), 1, true))
	}

	blobs, err := c.ListByPrefix("index-")
	require.NoError(t, err)
	assert.Len(t, blobs, 2)
	assert.Contains(t, blobs, "index-0")
	assert.Contains(t, blobs, "index-1")
	assert.Equal(t, int64(1), blobs["index-0"].Length)

	all, err := c.ListByPrefix("")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestFSContainer_DeleteIgnoringMissing(t *testing.T) {
	c, _ := setupFSContainer(t)
	require.NoError(t, c.WriteBlob("x", strings.NewReader("x"), 1, true))

	require.NoError(t, c.DeleteIgnoringMissing("x"))
	require.NoError(t, c.DeleteIgnoringMissing("x"), "missing blob is not an error")
	require.NoError(t, c.DeleteBlobsIgnoringMissing([]string{"a", "b", "x"}))
}

func TestFSStore_DeletePath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir, false)
	require.NoError(t, err)
	c, err := store.Container("tests-seed")
	require.NoError(t, err)
	require.NoError(t, c.WriteBlob("master.dat", strings.NewReader("s"), 1, true))

	require.NoError(t, store.Delete("tests-seed"))
	_, err = os.Stat(filepath.Join(dir, "tests-seed"))
	assert.True(t, os.IsNotExist(err))
}

func TestIsTempBlobName(t *testing.T) {
	assert.True(t, IsTempBlobName("pending-abc"))
	assert.False(t, IsTempBlobName("index-0"))
}
