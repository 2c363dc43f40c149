package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/compressors"
	"github.com/INLOpen/nexusvault/core"
)

type testRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func testContainer(t *testing.T) blob.Container {
	t.Helper()
	store := blob.NewMemStore()
	c, err := store.Container("c")
	require.NoError(t, err)
	return c
}

func TestFormat_WriteReadRoundTrip(t *testing.T) {
	c := testContainer(t)
	format := NewFormat[testRecord]("snapshot", "snap-%s.dat", &compressors.NoCompression{})

	in := &testRecord{Name: "snap-1", Count: 7}
	require.NoError(t, format.Write(in, c, "uuid-1", true))

	out, err := format.Read(c, "uuid-1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFormat_BlobName(t *testing.T) {
	format := NewFormat[testRecord]("snapshots", "index-%s", nil)
	assert.Equal(t, "index-12", format.BlobName("12"))
}

func TestFormat_CompressionDetectedFromBlobNotSettings(t *testing.T) {
	c := testContainer(t)
	compressed := NewFormat[testRecord]("metadata", "meta-%s.dat", &compressors.Snappy{})
	plain := NewFormat[testRecord]("metadata", "meta-%s.dat", &compressors.NoCompression{})

	in := &testRecord{Name: "compressed", Count: 42}
	require.NoError(t, compressed.Write(in, c, "u1", true))

	// A reader configured without compression still reads the compressed
	// blob: the marker byte decides.
	out, err := plain.Read(c, "u1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NoError(t, plain.Write(in, c, "u2", true))
	out, err = compressed.Read(c, "u2")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFormat_AllCompressorsRoundTrip(t *testing.T) {
	for _, comp := range []compressors.Compressor{
		&compressors.NoCompression{},
		&compressors.Snappy{},
		compressors.NewZstd(),
		&compressors.LZ4{},
	} {
		t.Run(comp.Type().String(), func(t *testing.T) {
			c := testContainer(t)
			format := NewFormat[testRecord]("snapshot", "snap-%s.dat", comp)
			in := &testRecord{Name: "payload payload payload payload", Count: 1}
			require.NoError(t, format.Write(in, c, "u", true))
			out, err := format.Read(c, "u")
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestFormat_ChecksumMismatch(t *testing.T) {
	format := NewFormat[testRecord]("snapshot", "snap-%s.dat", nil)
	data, err := format.Encode(&testRecord{Name: "x"})
	require.NoError(t, err)

	// Flip one payload byte; the trailer no longer matches.
	data[len(data)/2] ^= 0xFF
	_, err = format.Decode("snap-u.dat", data)
	require.Error(t, err)
	assert.True(t, core.IsCorrupted(err))
}

func TestFormat_CodecNameMismatch(t *testing.T) {
	writer := NewFormat[testRecord]("metadata", "meta-%s.dat", nil)
	reader := NewFormat[testRecord]("snapshot", "meta-%s.dat", nil)

	data, err := writer.Encode(&testRecord{Name: "x"})
	require.NoError(t, err)
	_, err = reader.Decode("meta-u.dat", data)
	require.Error(t, err)
	assert.True(t, core.IsCorrupted(err))
}

func TestFormat_TruncatedBlob(t *testing.T) {
	format := NewFormat[testRecord]("snapshot", "snap-%s.dat", nil)
	data, err := format.Encode(&testRecord{Name: "x"})
	require.NoError(t, err)

	_, err = format.Decode("snap-u.dat", data[:4])
	assert.True(t, core.IsCorrupted(err))

	_, err = format.Decode("snap-u.dat", data[:len(data)-1])
	assert.True(t, core.IsCorrupted(err))
}

func TestFormat_WriteAtomicFailIfExists(t *testing.T) {
	c := testContainer(t)
	format := NewFormat[testRecord]("snapshots", "index-%s", nil)

	require.NoError(t, format.WriteAtomic(&testRecord{Name: "gen1"}, c, "1", true))
	err := format.WriteAtomic(&testRecord{Name: "gen1-again"}, c, "1", true)
	assert.ErrorIs(t, err, blob.ErrBlobExists)
}

func TestFormat_Delete(t *testing.T) {
	c := testContainer(t)
	format := NewFormat[testRecord]("snapshot", "snap-%s.dat", nil)
	require.NoError(t, format.Write(&testRecord{}, c, "u", true))
	require.NoError(t, format.Delete(c, "u"))
	require.NoError(t, format.Delete(c, "u"), "deleting a missing record is not an error")
}
