// Package codec implements the checksummed blob format every metadata record
// of the repository is framed with: a codec-name header, an optional
// compression marker, a JSON payload, and a crc32 trailer. The compressor
// that wrote a blob is recorded in the frame, so reads never depend on
// repository settings.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/compressors"
	"github.com/INLOpen/nexusvault/core"
)

// Magic identifies a checksummed repository blob.
const Magic uint32 = 0x4E565348 // "NVSH"

// FormatVersion is the current frame version.
const FormatVersion uint8 = 1

// Frame layout:
//
//	magic(4) | nameLen(2) name | version(1) | compression(1) |
//	payloadLen(4) payload | checksum(8)
//
// checksum = crc32-IEEE over every byte before it, widened to 8 bytes.
const checksumSize = 8

// Format reads and writes one record type under a fixed codec name and blob
// name pattern.
type Format[T any] struct {
	codecName  string
	nameFormat string
	compressor compressors.Compressor
}

// NewFormat fixes (codec-name, blob-name format, compressor) for a record
// type. A nil compressor writes uncompressed frames.
func NewFormat[T any](codecName, nameFormat string, compressor compressors.Compressor) *Format[T] {
	if compressor == nil {
		compressor = &compressors.NoCompression{}
	}
	return &Format[T]{codecName: codecName, nameFormat: nameFormat, compressor: compressor}
}

// BlobName renders the blob name for an id (snapshot uuid or generation).
func (f *Format[T]) BlobName(id string) string {
	return fmt.Sprintf(f.nameFormat, id)
}

// Encode frames a record.
func (f *Format[T]) Encode(v *T) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s record: %w", f.codecName, err)
	}
	compressed, err := f.compressor.Compress(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to compress %s record: %w", f.codecName, err)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, Magic)
	binary.Write(&buf, binary.BigEndian, uint16(len(f.codecName)))
	buf.WriteString(f.codecName)
	buf.WriteByte(FormatVersion)
	buf.WriteByte(byte(f.compressor.Type()))
	binary.Write(&buf, binary.BigEndian, uint32(len(compressed)))
	buf.Write(compressed)

	checksum := uint64(crc32.ChecksumIEEE(buf.Bytes()))
	binary.Write(&buf, binary.BigEndian, checksum)
	return buf.Bytes(), nil
}

// Decode verifies and parses a frame read from the named blob.
func (f *Format[T]) Decode(blobName string, data []byte) (*T, error) {
	corrupted := func(reason string) error {
		return &core.CorruptedError{Blob: blobName, Reason: reason}
	}
	if len(data) < 4+2+1+1+4+checksumSize {
		return nil, corrupted("blob too short for codec frame")
	}

	body := data[:len(data)-checksumSize]
	stored := binary.BigEndian.Uint64(data[len(data)-checksumSize:])
	if stored != uint64(crc32.ChecksumIEEE(body)) {
		return nil, corrupted("checksum mismatch")
	}

	r := bytes.NewReader(body)
	var magic uint32
	binary.Read(r, binary.BigEndian, &magic)
	if magic != Magic {
		return nil, corrupted(fmt.Sprintf("bad magic %#x", magic))
	}
	var nameLen uint16
	binary.Read(r, binary.BigEndian, &nameLen)
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return nil, corrupted("truncated codec name")
	}
	if string(nameBytes) != f.codecName {
		return nil, corrupted(fmt.Sprintf("codec name mismatch: got %q, want %q", nameBytes, f.codecName))
	}
	version, _ := r.ReadByte()
	if version != FormatVersion {
		return nil, corrupted(fmt.Sprintf("unsupported format version %d", version))
	}
	marker, _ := r.ReadByte()
	compressor, err := compressors.Get(compressors.Type(marker))
	if err != nil {
		return nil, corrupted(err.Error())
	}

	var payloadLen uint32
	binary.Read(r, binary.BigEndian, &payloadLen)
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, corrupted("truncated payload")
	}

	rc, err := compressor.Decompress(payload)
	if err != nil {
		return nil, corrupted(fmt.Sprintf("failed to decompress payload: %v", err))
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, corrupted(fmt.Sprintf("failed to read decompressed payload: %v", err))
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, corrupted(fmt.Sprintf("failed to parse payload: %v", err))
	}
	return &v, nil
}

// Read reads and parses the record for an id.
func (f *Format[T]) Read(c blob.Container, id string) (*T, error) {
	return f.ReadBlobByName(c, f.BlobName(id))
}

// ReadBlobByName reads and parses a record by its full blob name.
func (f *Format[T]) ReadBlobByName(c blob.Container, blobName string) (*T, error) {
	rc, err := c.ReadBlob(blobName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", blobName, err)
	}
	return f.Decode(blobName, data)
}

// Write frames and writes the record for an id.
func (f *Format[T]) Write(v *T, c blob.Container, id string, failIfExists bool) error {
	data, err := f.Encode(v)
	if err != nil {
		return err
	}
	return c.WriteBlob(f.BlobName(id), bytes.NewReader(data), int64(len(data)), failIfExists)
}

// WriteAtomic frames and writes the record so that it is either durably
// complete or absent.
func (f *Format[T]) WriteAtomic(v *T, c blob.Container, id string, failIfExists bool) error {
	data, err := f.Encode(v)
	if err != nil {
		return err
	}
	return c.WriteBlobAtomic(f.BlobName(id), bytes.NewReader(data), int64(len(data)), failIfExists)
}

// Delete removes the record blob for an id, ignoring absence.
func (f *Format[T]) Delete(c blob.Container, id string) error {
	return c.DeleteIgnoringMissing(f.BlobName(id))
}
