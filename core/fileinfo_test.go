package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileInfo_PartMath(t *testing.T) {
	md := StoreFileMetadata{Name: "b.fdt", Length: 5000, Checksum: "y"}

	tests := []struct {
		name      string
		length    int64
		partSize  int64
		wantParts int
		wantLast  int64
	}{
		{"unchunked", 5000, 0, 1, 5000},
		{"single part fits", 100, 4096, 1, 100},
		{"two parts", 5000, 4096, 2, 904},
		{"exact multiple", 8192, 4096, 2, 4096},
		{"many parts", 50 * 1024 * 1024, 4 * 1024 * 1024, 13, 2 * 1024 * 1024},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := md
			m.Length = tc.length
			fi := NewFileInfo("__abc", m, tc.partSize)
			assert.Equal(t, tc.wantParts, fi.NumParts())
			assert.Equal(t, tc.wantLast, fi.PartBytes(fi.NumParts()-1))

			var total int64
			for i := 0; i < fi.NumParts(); i++ {
				total += fi.PartBytes(i)
			}
			assert.Equal(t, tc.length, total, "part bytes must sum to the file length")
		})
	}
}

func TestFileInfo_PartNames(t *testing.T) {
	md := StoreFileMetadata{Name: "a.si", Length: 100, Checksum: "x"}
	single := NewFileInfo("__abc", md, 4096)
	assert.Equal(t, "__abc", single.PartName(0))

	md.Length = 5000
	multi := NewFileInfo("__abc", md, 4096)
	assert.Equal(t, "__abc.part0", multi.PartName(0))
	assert.Equal(t, "__abc.part1", multi.PartName(1))
}

func TestFileInfo_IsSame(t *testing.T) {
	md := StoreFileMetadata{Name: "a.si", Length: 100, Checksum: "x"}
	fi := NewFileInfo("__abc", md, 0)

	assert.True(t, fi.IsSame(md))
	assert.False(t, fi.IsSame(StoreFileMetadata{Name: "a.si", Length: 100, Checksum: "z"}))
	assert.False(t, fi.IsSame(StoreFileMetadata{Name: "a.si", Length: 101, Checksum: "x"}))
	assert.False(t, fi.IsSame(StoreFileMetadata{Name: "b.si", Length: 100, Checksum: "x"}))
}

func TestCanonicalBlobName(t *testing.T) {
	assert.Equal(t, "__abc", CanonicalBlobName("__abc"))
	assert.Equal(t, "__abc", CanonicalBlobName("__abc.part0"))
	assert.Equal(t, "__abc", CanonicalBlobName("__abc.part12"))
}

func TestShardSnapshots_Lookups(t *testing.T) {
	mdA := StoreFileMetadata{Name: "a.si", Length: 100, Checksum: "x"}
	mdB := StoreFileMetadata{Name: "b.fdt", Length: 5000, Checksum: "y"}
	fiA := NewFileInfo("__a", mdA, 0)
	fiB := NewFileInfo("__b", mdB, 4096)

	catalog := NewShardSnapshots([]SnapshotFiles{
		{Snapshot: "snap-1", Files: []FileInfo{fiA, fiB}},
		{Snapshot: "snap-2", Files: []FileInfo{fiA}},
	})

	assert.True(t, catalog.HasSnapshot("snap-1"))
	assert.False(t, catalog.HasSnapshot("snap-3"))

	candidates := catalog.FindPhysicalFiles("a.si")
	assert.Len(t, candidates, 1, "the shared FileInfo appears once")
	assert.Equal(t, "__a", candidates[0].Name)

	assert.NotNil(t, catalog.FindNameFile("__b"))
	assert.Nil(t, catalog.FindNameFile("__missing"))

	remaining := catalog.Without("snap-1")
	assert.Len(t, remaining, 1)
	assert.Equal(t, "snap-2", remaining[0].Snapshot)
}
