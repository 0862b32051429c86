package heap

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, body []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.hprof")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	return path
}

func TestMappedReaderSequentialReads(t *testing.T) {
	body := make([]byte, 0, 32)
	body = append(body, 0x01)                               // u1
	body = append(body, 0x00, 0x02)                          // u2 = 2
	body = append(body, 0x00, 0x00, 0x00, 0x2A)              // u4 = 42
	body = append(body, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07) // u8 = 7
	body = append(body, 'h', 'i', 0x00)                      // NUL-terminated string

	path := writeTempFile(t, body)
	r, err := NewMappedReader(path, 0)
	if err != nil {
		t.Fatalf("NewMappedReader: %v", err)
	}
	defer r.Close()

	b1, err := r.ReadU1()
	if err != nil || b1 != 0x01 {
		t.Fatalf("ReadU1() = %d, %v", b1, err)
	}
	u2, err := r.ReadU2()
	if err != nil || u2 != 2 {
		t.Fatalf("ReadU2() = %d, %v", u2, err)
	}
	u4, err := r.ReadU4()
	if err != nil || u4 != 42 {
		t.Fatalf("ReadU4() = %d, %v", u4, err)
	}
	u8, err := r.ReadU8()
	if err != nil || u8 != 7 {
		t.Fatalf("ReadU8() = %d, %v", u8, err)
	}
	s, err := r.ReadNullTerminatedString()
	if err != nil || s != "hi" {
		t.Fatalf("ReadNullTerminatedString() = %q, %v", s, err)
	}
	if r.Position() != int64(len(body)) {
		t.Errorf("Position() = %d, want %d (cursor should land at EOF)", r.Position(), len(body))
	}
}

func TestMappedReaderReadAtDoesNotMoveCursor(t *testing.T) {
	body := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	path := writeTempFile(t, body)
	r, err := NewMappedReader(path, 0)
	if err != nil {
		t.Fatalf("NewMappedReader: %v", err)
	}
	defer r.Close()

	before := r.Position()
	got, err := r.ReadAt(2, 2)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got[0] != 0xCC || got[1] != 0xDD {
		t.Errorf("ReadAt(2, 2) = %x, want ccdd", got)
	}
	if r.Position() != before {
		t.Errorf("ReadAt moved the cursor from %d to %d", before, r.Position())
	}
}

func TestMappedReaderIDSizeSelectsWidth(t *testing.T) {
	body := make([]byte, 16)
	binary.BigEndian.PutUint32(body[0:4], 0x11223344)
	binary.BigEndian.PutUint64(body[4:12], 0x1122334455667788)
	path := writeTempFile(t, body)

	r, err := NewMappedReader(path, 0)
	if err != nil {
		t.Fatalf("NewMappedReader: %v", err)
	}
	defer r.Close()

	r.SetIDSize(4)
	id, err := r.ReadID()
	if err != nil || id != 0x11223344 {
		t.Fatalf("ReadID() (4-byte) = %x, %v", id, err)
	}

	r.SetIDSize(8)
	id, err = r.ReadID()
	if err != nil || id != 0x1122334455667788 {
		t.Fatalf("ReadID() (8-byte) = %x, %v", id, err)
	}
}

func TestMappedReaderSkipAndRemaining(t *testing.T) {
	body := []byte{1, 2, 3, 4, 5}
	path := writeTempFile(t, body)
	r, err := NewMappedReader(path, 0)
	if err != nil {
		t.Fatalf("NewMappedReader: %v", err)
	}
	defer r.Close()

	if r.Remaining() != int64(len(body)) {
		t.Fatalf("Remaining() = %d, want %d", r.Remaining(), len(body))
	}
	if err := r.Skip(3); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if r.Remaining() != 2 {
		t.Errorf("Remaining() after Skip(3) = %d, want 2", r.Remaining())
	}
	if err := r.Skip(100); err == nil {
		t.Errorf("Skip past EOF should fail")
	}
}

func TestNewMappedReaderRejectsEmptyFile(t *testing.T) {
	path := writeTempFile(t, nil)
	_, err := NewMappedReader(path, 0)
	if err == nil {
		t.Fatalf("expected an error opening an empty dump file")
	}
}

func TestMappedReaderSpansSegmentBoundary(t *testing.T) {
	// A page-aligned segment size forces readAt to stitch together a read
	// that crosses more than one mmap window (segmentFor requires mmap
	// offsets to land on a page boundary).
	const segSize = 4096
	body := make([]byte, segSize*2)
	for i := range body {
		body[i] = byte(i)
	}
	path := writeTempFile(t, body)
	r, err := NewMappedReader(path, segSize)
	if err != nil {
		t.Fatalf("NewMappedReader: %v", err)
	}
	defer r.Close()

	got, err := r.ReadAt(segSize-10, 20)
	if err != nil {
		t.Fatalf("ReadAt across segments: %v", err)
	}
	for i, b := range got {
		if b != byte(segSize-10+i) {
			t.Fatalf("ReadAt(%d, 20)[%d] = %d, want %d", segSize-10, i, b, byte(segSize-10+i))
		}
	}
}
