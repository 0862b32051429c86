package heap

import "time"

// RecordTag identifies a top-level record in the HPROF record stream.
type RecordTag uint8

const (
	TagUTF8            RecordTag = 0x01
	TagLoadClass       RecordTag = 0x02
	TagHeapDump        RecordTag = 0x0C
	TagHeapDumpSegment RecordTag = 0x1C
	TagHeapDumpEnd     RecordTag = 0x2C
)

// HeapDumpTag identifies a sub-record within a heap dump / heap dump
// segment record.
type HeapDumpTag uint8

const (
	HeapTagRootUnknown      HeapDumpTag = 0xFF
	HeapTagRootJNIGlobal    HeapDumpTag = 0x01
	HeapTagRootJNILocal     HeapDumpTag = 0x02
	HeapTagRootJavaFrame    HeapDumpTag = 0x03
	HeapTagRootNativeStack  HeapDumpTag = 0x04
	HeapTagRootStickyClass  HeapDumpTag = 0x05
	HeapTagRootThreadBlock  HeapDumpTag = 0x06
	HeapTagRootMonitorUsed  HeapDumpTag = 0x07
	HeapTagRootThreadObject HeapDumpTag = 0x08

	HeapTagClassDump       HeapDumpTag = 0x20
	HeapTagInstanceDump    HeapDumpTag = 0x21
	HeapTagObjArrayDump    HeapDumpTag = 0x22
	HeapTagPrimArrayDump   HeapDumpTag = 0x23
)

// BasicType is a Java primitive/reference type code as it appears in field
// descriptors and array element types.
type BasicType uint8

const (
	TypeObject  BasicType = 2
	TypeBoolean BasicType = 4
	TypeChar    BasicType = 5
	TypeFloat   BasicType = 6
	TypeDouble  BasicType = 7
	TypeByte    BasicType = 8
	TypeShort   BasicType = 9
	TypeInt     BasicType = 10
	TypeLong    BasicType = 11
)

// BasicTypeSize returns the on-disk size in bytes of a value of type t,
// given the file's identifier size (4 or 8).
func BasicTypeSize(t BasicType, idSize int) int {
	switch t {
	case TypeObject:
		return idSize
	case TypeBoolean, TypeByte:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeFloat, TypeInt:
		return 4
	case TypeDouble, TypeLong:
		return 8
	default:
		return 0
	}
}

// Header is the fixed HPROF file preamble.
type Header struct {
	Format    string
	IDSize    int
	Timestamp time.Time
}

// UndefID32 marks an id32/classId32/idom slot that has not been assigned.
const UndefID32 = -1

// HeapField describes one field declared by a class.
type HeapField struct {
	Name     string
	Type     BasicType
	NameID   uint64 // native id of the field-name string, for decoder-internal lookups
	Static   bool
}

// HeapClass is class metadata, immutable once the metadata pass completes.
type HeapClass struct {
	ClassID32     int32
	NativeID      uint64
	Name          string
	SuperClassID  uint64 // native id; resolved to ClassID32 lazily by the reader
	LoaderID      uint64
	InstanceSize  int // declared instance size in bytes, excluding object header
	Fields        []HeapField
	StaticFields  []HeapField
	InstanceCount int64

	// IsPrimitiveArray marks the synthesized pseudo-classes (int[], byte[],
	// ...) index_store.go creates for PRIM_ARRAY_DUMP records, which carry
	// no outbound references and were never described by a CLASS_DUMP.
	IsPrimitiveArray bool
}

// HeapObject is per-object metadata as materialized from an index entry or
// (in IN_MEMORY mode) an in-memory record. Outbound references are never
// stored here; they are re-extracted from the dump on demand (§4.3).
type HeapObject struct {
	ID32        int32
	NativeID    uint64
	ClassID32   int32
	ShallowSize int64
	ArrayLen    int32 // -1 if this object is not an array
	BodyOffset  int64 // absolute offset of the record body in the dump file

	// Mutated by the dominator engine; until dominators are computed they
	// hold UndefID32 and the object's shallow size.
	IdomID32     int32
	RetainedSize int64
}

// GcRootType enumerates the nine standard GC root kinds (§4.2).
type GcRootType uint8

const (
	GcRootUnknown GcRootType = iota
	GcRootJNIGlobal
	GcRootJNILocal
	GcRootJavaFrame
	GcRootNativeStack
	GcRootStickyClass
	GcRootThreadBlock
	GcRootMonitorUsed
	GcRootThreadObject
)

func (t GcRootType) String() string {
	switch t {
	case GcRootJNIGlobal:
		return "JNI_GLOBAL"
	case GcRootJNILocal:
		return "JNI_LOCAL"
	case GcRootJavaFrame:
		return "JAVA_FRAME"
	case GcRootNativeStack:
		return "NATIVE_STACK"
	case GcRootStickyClass:
		return "STICKY_CLASS"
	case GcRootThreadBlock:
		return "THREAD_BLOCK"
	case GcRootMonitorUsed:
		return "MONITOR_USED"
	case GcRootThreadObject:
		return "THREAD_OBJECT"
	default:
		return "UNKNOWN"
	}
}

func heapDumpTagToGcRootType(t HeapDumpTag) GcRootType {
	switch t {
	case HeapTagRootJNIGlobal:
		return GcRootJNIGlobal
	case HeapTagRootJNILocal:
		return GcRootJNILocal
	case HeapTagRootJavaFrame:
		return GcRootJavaFrame
	case HeapTagRootNativeStack:
		return GcRootNativeStack
	case HeapTagRootStickyClass:
		return GcRootStickyClass
	case HeapTagRootThreadBlock:
		return GcRootThreadBlock
	case HeapTagRootMonitorUsed:
		return GcRootMonitorUsed
	case HeapTagRootThreadObject:
		return GcRootThreadObject
	default:
		return GcRootUnknown
	}
}

// GcRoot is a single GC root entry (§4.2).
type GcRoot struct {
	Type         GcRootType
	NativeID     uint64
	ThreadSerial uint32 // valid for JNI_LOCAL, JAVA_FRAME, NATIVE_STACK, THREAD_BLOCK, THREAD_OBJECT
	FrameNumber  int32  // valid for JNI_LOCAL and JAVA_FRAME, -1 otherwise
}

// ParsingMode selects how the index is represented (§3, §6).
type ParsingMode int

const (
	ModeAuto ParsingMode = iota
	ModeInMemory
	ModeIndexed
)

func (m ParsingMode) String() string {
	switch m {
	case ModeInMemory:
		return "IN_MEMORY"
	case ModeIndexed:
		return "INDEXED"
	default:
		return "AUTO"
	}
}

// Progress is a caller-supplied sink for long-running-operation progress
// ticks (§4.4, §6). Implementations may carry rate-limiting state, which is
// why this is an explicit interface rather than a function value.
type Progress interface {
	// Tick reports fractional completion in [0, 1] plus a short human
	// readable stage message.
	Tick(fraction float64, message string)
}

// NullProgress discards every tick.
type NullProgress struct{}

func (NullProgress) Tick(float64, string) {}

// CancelPredicate is polled at the checkpoints named in §5 (per RPO
// iteration, per 10,000 objects during predecessor-map construction). There
// is no in-band cancellation channel; a caller that wants to abort a
// long-running call supplies a predicate that starts returning true.
type CancelPredicate interface {
	Cancelled() bool
}

// NeverCancel never reports cancellation.
type NeverCancel struct{}

func (NeverCancel) Cancelled() bool { return false }
