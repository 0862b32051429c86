package heap

import (
	"encoding/binary"
	"os"
	"path/filepath"

	apperrors "github.com/heapdump-analysis/pkg/errors"
)

// Every on-disk index file begins with this 20-byte big-endian header
// (magic, format version, entry count, flags), per §4.3/R1. A magic or
// version mismatch on read is a recoverable IndexVersion condition: the
// caller rebuilds rather than treating it as fatal.
const (
	indexHeaderSize    = 20
	indexMagicObjects  = 0x4844504F // "HDPO"
	indexMagicSpans    = 0x48445053 // "HDPS"
	indexMagicData     = 0x48445044 // "HDPD"
	indexMagicInbound  = 0x48445049 // "HDPI"
	indexFormatVersion = 1
)

type indexHeader struct {
	Magic      uint32
	Version    uint32
	EntryCount uint64
	Flags      uint32
}

func (h indexHeader) encode() []byte {
	buf := make([]byte, indexHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	binary.BigEndian.PutUint64(buf[8:16], h.EntryCount)
	binary.BigEndian.PutUint32(buf[16:20], h.Flags)
	return buf
}

func decodeIndexHeader(buf []byte, wantMagic uint32) (indexHeader, error) {
	if len(buf) < indexHeaderSize {
		return indexHeader{}, apperrors.New(apperrors.CodeIndexVersion, "index file header truncated")
	}
	h := indexHeader{
		Magic:      binary.BigEndian.Uint32(buf[0:4]),
		Version:    binary.BigEndian.Uint32(buf[4:8]),
		EntryCount: binary.BigEndian.Uint64(buf[8:16]),
		Flags:      binary.BigEndian.Uint32(buf[16:20]),
	}
	if h.Magic != wantMagic || h.Version != indexFormatVersion {
		return h, apperrors.New(apperrors.CodeIndexVersion, "index file magic/version mismatch")
	}
	return h, nil
}

// writeIndexFileAtomic writes header+body to path via a "<name>.tmp" sibling
// followed by a rename, so a crash mid-write never leaves a partially
// written index file in place (§4.3, §5).
func writeIndexFileAtomic(path string, header indexHeader, body []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, "create temp index file", err)
	}
	if _, err := f.Write(header.encode()); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.CodeIoFailure, "write index header", err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.CodeIoFailure, "write index body", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.CodeIoFailure, "fsync index file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.CodeIoFailure, "close index file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.CodeIoFailure, "rename index file into place", err)
	}
	return nil
}

func readIndexFile(path string, wantMagic uint32) (indexHeader, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return indexHeader{}, nil, apperrors.New(apperrors.CodeIndexVersion, "index file missing")
		}
		return indexHeader{}, nil, apperrors.Wrap(apperrors.CodeIoFailure, "read index file", err)
	}
	h, err := decodeIndexHeader(data, wantMagic)
	if err != nil {
		return h, nil, err
	}
	return h, data[indexHeaderSize:], nil
}

func indexPaths(dataDir string) (objects, spanOffsets, spanData, inbound string) {
	return filepath.Join(dataDir, "objects.idx"),
		filepath.Join(dataDir, "classinstances-offset.idx"),
		filepath.Join(dataDir, "classinstances-data.idx"),
		filepath.Join(dataDir, "inbound.idx")
}

// --- objects.idx: one fixed 36-byte entry per id32 -------------------------

const objectEntrySize = 4 + 8 + 4 + 8 + 4 + 8

type objectEntry struct {
	ID32        int32
	NativeID    uint64
	ClassID32   int32
	ShallowSize int64
	ArrayLen    int32
	BodyOffset  int64
}

func (e objectEntry) encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.ID32))
	binary.BigEndian.PutUint64(buf[4:12], e.NativeID)
	binary.BigEndian.PutUint32(buf[12:16], uint32(e.ClassID32))
	binary.BigEndian.PutUint64(buf[16:24], uint64(e.ShallowSize))
	binary.BigEndian.PutUint32(buf[24:28], uint32(e.ArrayLen))
	binary.BigEndian.PutUint64(buf[28:36], uint64(e.BodyOffset))
}

func decodeObjectEntry(buf []byte) objectEntry {
	return objectEntry{
		ID32:        int32(binary.BigEndian.Uint32(buf[0:4])),
		NativeID:    binary.BigEndian.Uint64(buf[4:12]),
		ClassID32:   int32(binary.BigEndian.Uint32(buf[12:16])),
		ShallowSize: int64(binary.BigEndian.Uint64(buf[16:24])),
		ArrayLen:    int32(binary.BigEndian.Uint32(buf[24:28])),
		BodyOffset:  int64(binary.BigEndian.Uint64(buf[28:36])),
	}
}

// --- classinstances-offset.idx: one 20-byte entry per classId32 -----------

const classSpanEntrySize = 4 + 8 + 8

type classSpanEntry struct {
	ClassID32     int32
	DataOffset    int64
	InstanceCount int64
}

func (e classSpanEntry) encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.ClassID32))
	binary.BigEndian.PutUint64(buf[4:12], uint64(e.DataOffset))
	binary.BigEndian.PutUint64(buf[12:20], uint64(e.InstanceCount))
}

func decodeClassSpanEntry(buf []byte) classSpanEntry {
	return classSpanEntry{
		ClassID32:     int32(binary.BigEndian.Uint32(buf[0:4])),
		DataOffset:    int64(binary.BigEndian.Uint64(buf[4:12])),
		InstanceCount: int64(binary.BigEndian.Uint64(buf[12:20])),
	}
}

// --- classinstances-data.idx: concatenated int32 id32 values ---------------

func encodeID32Slice(ids []int32) []byte {
	buf := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], uint32(id))
	}
	return buf
}

func decodeID32At(data []byte, i int64) int32 {
	return int32(binary.BigEndian.Uint32(data[i*4 : i*4+4]))
}

// --- inbound.idx: one 8-byte entry per id32 --------------------------------

const inboundEntrySize = 4 + 4

type inboundEntry struct {
	ID32          int32
	InboundCount  int32
}

func (e inboundEntry) encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.ID32))
	binary.BigEndian.PutUint32(buf[4:8], uint32(e.InboundCount))
}

func decodeInboundEntry(buf []byte) inboundEntry {
	return inboundEntry{
		ID32:         int32(binary.BigEndian.Uint32(buf[0:4])),
		InboundCount: int32(binary.BigEndian.Uint32(buf[4:8])),
	}
}
