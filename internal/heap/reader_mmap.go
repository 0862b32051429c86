package heap

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"

	apperrors "github.com/heapdump-analysis/pkg/errors"
)

// DefaultMmapSegmentSize is the size of each lazily-mapped window over the
// dump file (§4.1). A dump larger than this is served from more than one
// mmap call rather than one huge mapping.
const DefaultMmapSegmentSize = 256 * 1024 * 1024

// mmapSegment is one syscall.Mmap-backed window of the underlying file,
// mapped read-only (PROT_READ/MAP_SHARED) over a slice of the source dump
// file.
type mmapSegment struct {
	data []byte // mmap'd bytes, length == segment size (last segment may be shorter)
}

// MappedReader is a seekable, big-endian cursor over an HPROF file backed
// by segmented read-only mmap windows (C1). Random absolute reads never
// perturb the cursor. MappedReader performs no caching beyond what the OS
// page cache already gives mmap'd pages, and never mutates the file.
type MappedReader struct {
	file        *os.File
	size        int64
	segmentSize int64
	segments    []*mmapSegment // lazily populated, index i covers [i*segmentSize, (i+1)*segmentSize)
	idSize      int
	pos         int64
}

// NewMappedReader opens path and prepares a segmented mmap reader.
// segmentSize <= 0 selects DefaultMmapSegmentSize.
func NewMappedReader(path string, segmentSize int64) (*MappedReader, error) {
	if segmentSize <= 0 {
		segmentSize = DefaultMmapSegmentSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, "open heap dump", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, "stat heap dump", err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, apperrors.New(apperrors.CodeFormatInvalid, "heap dump file is empty")
	}

	size := info.Size()
	numSegments := int((size + segmentSize - 1) / segmentSize)

	return &MappedReader{
		file:        f,
		size:        size,
		segmentSize: segmentSize,
		segments:    make([]*mmapSegment, numSegments),
		idSize:      8,
	}, nil
}

// Size returns the total length of the dump file in bytes.
func (r *MappedReader) Size() int64 { return r.size }

// SetIDSize sets the identifier width (4 or 8) once the header has been
// read; ReadID uses this to size its reads.
func (r *MappedReader) SetIDSize(n int) { r.idSize = n }

// IDSize returns the current identifier width.
func (r *MappedReader) IDSize() int { return r.idSize }

// Position returns the current cursor offset.
func (r *MappedReader) Position() int64 { return r.pos }

// Seek moves the cursor to an absolute offset.
func (r *MappedReader) Seek(pos int64) {
	r.pos = pos
}

// Remaining returns the number of bytes between the cursor and EOF.
func (r *MappedReader) Remaining() int64 {
	return r.size - r.pos
}

// segmentFor lazily mmaps and returns segment idx, which covers bytes
// [idx*segmentSize, (idx+1)*segmentSize) of the file.
func (r *MappedReader) segmentFor(idx int) (*mmapSegment, error) {
	if idx < 0 || idx >= len(r.segments) {
		return nil, apperrors.New(apperrors.CodeIoFailure, "mmap segment index out of range")
	}
	if seg := r.segments[idx]; seg != nil {
		return seg, nil
	}

	start := int64(idx) * r.segmentSize
	length := r.segmentSize
	if start+length > r.size {
		length = r.size - start
	}

	// syscall.Mmap requires the offset to be a multiple of the system page
	// size; segmentSize is chosen by configuration to already satisfy that
	// in the common case (multiples of 4KiB), so no additional rounding is
	// performed here.
	data, err := syscall.Mmap(int(r.file.Fd()), start, int(length), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, "mmap heap dump segment", err)
	}

	seg := &mmapSegment{data: data}
	r.segments[idx] = seg
	return seg, nil
}

// readAt returns n bytes starting at absolute offset off, without moving
// the cursor. The returned slice may alias mapped memory (when the read
// falls entirely inside one segment) or be a freshly allocated copy (when
// it spans a segment boundary); callers must not assume either.
func (r *MappedReader) readAt(off int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if off < 0 || off+int64(n) > r.size {
		return nil, apperrors.Wrap(apperrors.CodeFormatInvalid, "truncated record", io.ErrUnexpectedEOF)
	}

	startSeg := int(off / r.segmentSize)
	endSeg := int((off + int64(n) - 1) / r.segmentSize)

	if startSeg == endSeg {
		seg, err := r.segmentFor(startSeg)
		if err != nil {
			return nil, err
		}
		localOff := off - int64(startSeg)*r.segmentSize
		return seg.data[localOff : localOff+int64(n)], nil
	}

	// Spans a segment boundary: copy out, rare in practice (occurs for
	// records straddling a 256MiB splice point).
	out := make([]byte, n)
	filled := 0
	cur := off
	remaining := n
	for remaining > 0 {
		segIdx := int(cur / r.segmentSize)
		seg, err := r.segmentFor(segIdx)
		if err != nil {
			return nil, err
		}
		localOff := cur - int64(segIdx)*r.segmentSize
		avail := int64(len(seg.data)) - localOff
		take := int64(remaining)
		if take > avail {
			take = avail
		}
		copy(out[filled:], seg.data[localOff:localOff+take])
		filled += int(take)
		cur += take
		remaining -= int(take)
	}
	return out, nil
}

// ReadAt returns n bytes starting at absolute offset off without touching
// the cursor, for random-access re-extraction of object field data (§9
// "lazy materialization").
func (r *MappedReader) ReadAt(off int64, n int) ([]byte, error) {
	return r.readAt(off, n)
}

// next reads n bytes at the cursor and advances it.
func (r *MappedReader) next(n int) ([]byte, error) {
	b, err := r.readAt(r.pos, n)
	if err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return b, nil
}

// ReadU1 reads one unsigned byte and advances the cursor.
func (r *MappedReader) ReadU1() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU2 reads a big-endian uint16 and advances the cursor.
func (r *MappedReader) ReadU2() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadU4 reads a big-endian uint32 and advances the cursor.
func (r *MappedReader) ReadU4() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadI4 reads a big-endian int32 and advances the cursor.
func (r *MappedReader) ReadI4() (int32, error) {
	v, err := r.ReadU4()
	return int32(v), err
}

// ReadU8 reads a big-endian uint64 and advances the cursor.
func (r *MappedReader) ReadU8() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadI8 reads a big-endian int64 and advances the cursor.
func (r *MappedReader) ReadI8() (int64, error) {
	v, err := r.ReadU8()
	return int64(v), err
}

// ReadF32 reads a big-endian IEEE-754 float32 and advances the cursor.
func (r *MappedReader) ReadF32() (float32, error) {
	v, err := r.ReadU4()
	if err != nil {
		return 0, err
	}
	return float32FromBits(v), nil
}

// ReadF64 reads a big-endian IEEE-754 float64 and advances the cursor.
func (r *MappedReader) ReadF64() (float64, error) {
	v, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	return float64FromBits(v), nil
}

// ReadID reads an identifier sized per the file's header idSize (4 or 8
// bytes, I5) and advances the cursor.
func (r *MappedReader) ReadID() (uint64, error) {
	if r.idSize == 4 {
		v, err := r.ReadU4()
		return uint64(v), err
	}
	return r.ReadU8()
}

// ReadBytes reads n raw bytes and advances the cursor.
func (r *MappedReader) ReadBytes(n int) ([]byte, error) {
	return r.next(n)
}

// ReadNullTerminatedString reads bytes up to (and consuming) the next NUL
// byte, used only for the fixed HPROF header magic string.
func (r *MappedReader) ReadNullTerminatedString() (string, error) {
	start := r.pos
	for {
		b, err := r.next(1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
	}
	raw, err := r.readAt(start, int(r.pos-start-1))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Skip advances the cursor by n bytes without reading them.
func (r *MappedReader) Skip(n int64) error {
	if r.pos+n > r.size || n < 0 {
		return apperrors.Wrap(apperrors.CodeFormatInvalid, "truncated record", io.ErrUnexpectedEOF)
	}
	r.pos += n
	return nil
}

// Close unmaps every segment that was touched and closes the file.
func (r *MappedReader) Close() error {
	var firstErr error
	for _, seg := range r.segments {
		if seg == nil {
			continue
		}
		if err := syscall.Munmap(seg.data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("closing mapped reader: %w", firstErr)
	}
	return nil
}
