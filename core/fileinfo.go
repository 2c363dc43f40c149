package core

import (
	"fmt"
	"strings"
)

// DataBlobPrefix prefixes every data blob name in a shard directory.
const DataBlobPrefix = "__"

// StoreFileMetadata describes one physical file of the local shard store.
type StoreFileMetadata struct {
	Name     string `json:"name"`
	Length   int64  `json:"length"`
	Checksum string `json:"checksum"`
}

// FileInfo maps one physical shard file to the data blob(s) that hold its
// bytes in the repository. Two FileInfos with equal physical name, length and
// checksum describe the same underlying content and are shared across commit
// points.
type FileInfo struct {
	// Name is the logical blob name, always beginning with "__".
	Name     string            `json:"name"`
	Metadata StoreFileMetadata `json:"metadata"`
	// PartSize is the maximum bytes per data blob part. Zero means the file
	// is stored as a single blob regardless of length.
	PartSize int64 `json:"part_size,omitempty"`
}

// NewFileInfo fixes the part size at allocation time.
func NewFileInfo(name string, md StoreFileMetadata, partSize int64) FileInfo {
	return FileInfo{Name: name, Metadata: md, PartSize: partSize}
}

func (f FileInfo) PhysicalName() string { return f.Metadata.Name }
func (f FileInfo) Length() int64        { return f.Metadata.Length }
func (f FileInfo) Checksum() string     { return f.Metadata.Checksum }

// NumParts returns the number of data blobs the file is split into.
func (f FileInfo) NumParts() int {
	if f.PartSize <= 0 || f.Metadata.Length <= f.PartSize {
		return 1
	}
	n := f.Metadata.Length / f.PartSize
	if f.Metadata.Length%f.PartSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return int(n)
}

// PartBytes returns the byte count of part i.
func (f FileInfo) PartBytes(i int) int64 {
	if f.NumParts() == 1 {
		return f.Metadata.Length
	}
	if i < f.NumParts()-1 {
		return f.PartSize
	}
	last := f.Metadata.Length % f.PartSize
	if last == 0 {
		return f.PartSize
	}
	return last
}

// PartName returns the blob name of part i: the bare name for single-part
// files, "__<uuid>.part<i>" otherwise.
func (f FileInfo) PartName(i int) string {
	if f.NumParts() == 1 {
		return f.Name
	}
	return fmt.Sprintf("%s.part%d", f.Name, i)
}

// IsSame reports whether the file described by md is byte-identical to the
// content this FileInfo already references.
func (f FileInfo) IsSame(md StoreFileMetadata) bool {
	return f.Metadata.Name == md.Name &&
		f.Metadata.Length == md.Length &&
		f.Metadata.Checksum == md.Checksum
}

// CanonicalBlobName strips a ".part<i>" suffix so multi-part blob names
// resolve to the FileInfo that owns them.
func CanonicalBlobName(blobName string) string {
	if idx := strings.LastIndex(blobName, ".part"); idx > 0 {
		return blobName[:idx]
	}
	return blobName
}
