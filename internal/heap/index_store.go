package heap

import (
	"fmt"
	"os"

	apperrors "github.com/heapdump-analysis/pkg/errors"
	"github.com/heapdump-analysis/pkg/utils"
)

// DefaultIndexedThresholdBytes is the dump-file size above which AUTO mode
// chooses INDEXED over IN_MEMORY (§3, §4.3).
const DefaultIndexedThresholdBytes = 2 * 1024 * 1024 * 1024

// primitiveArrayClassBase is a sentinel native-id space reserved for the
// pseudo classes synthesized for primitive array types, which HPROF never
// gives a CLASS_DUMP (or even an explicit class id on the array record
// itself — only PRIM_ARRAY_DUMP's elemType byte says what it is). Real
// object native ids are small compared to this, so collisions don't happen
// in practice; this is purely an internal bookkeeping key, never exposed.
const primitiveArrayClassBase = uint64(1) << 62

// BuildOptions configures an index build (§6 HeapDump options).
type BuildOptions struct {
	Mode                  ParsingMode
	IndexedThresholdBytes int64
	DataDir               string // required when Mode resolves to INDEXED
	TrackInboundRefs       bool
	Progress               Progress
	Cancel                 CancelPredicate
	Logger                 utils.Logger
}

func (o *BuildOptions) fillDefaults() {
	if o.IndexedThresholdBytes <= 0 {
		o.IndexedThresholdBytes = DefaultIndexedThresholdBytes
	}
	if o.Progress == nil {
		o.Progress = NullProgress{}
	}
	if o.Cancel == nil {
		o.Cancel = NeverCancel{}
	}
	if o.Logger == nil {
		o.Logger = &utils.NullLogger{}
	}
}

// resolveMode applies the AUTO file-size threshold (§3).
func resolveMode(opts BuildOptions, fileSize int64) ParsingMode {
	if opts.Mode != ModeAuto {
		return opts.Mode
	}
	if fileSize > opts.IndexedThresholdBytes {
		return ModeIndexed
	}
	return ModeInMemory
}

// Index is the built object/class table produced by a two-scan pass over a
// dump (C3). It backs HeapDump's read-side accessors and is what the
// dominator engine and path finder iterate over.
type Index struct {
	idSize int
	mode   ParsingMode

	classes       []*HeapClass       // by classId32
	classByNative map[uint64]int32

	objects          []HeapObject // by id32, always kept in memory even in INDEXED mode (36 bytes/object on disk)
	objIndexByNative map[uint64]int32

	classSpans [][]int32 // by classId32: id32s belonging to that class, in discovery order

	gcRoots []GcRoot

	dataDir      string
	inboundCount []int32 // by id32, built by EnsureInboundIndex (Open calls it when TrackInboundRefs is set)
}

// IDSize reports the dump's identifier width (4 or 8).
func (ix *Index) IDSize() int { return ix.idSize }

// Mode reports which representation backs this index.
func (ix *Index) Mode() ParsingMode { return ix.mode }

// ObjectCount returns the dense object-id space size (P1).
func (ix *Index) ObjectCount() int { return len(ix.objects) }

// ClassCount returns the dense class-id space size (P1).
func (ix *Index) ClassCount() int { return len(ix.classes) }

// Object returns the object at id32, or false if out of range.
func (ix *Index) Object(id32 int32) (*HeapObject, bool) {
	if id32 < 0 || int(id32) >= len(ix.objects) {
		return nil, false
	}
	return &ix.objects[id32], true
}

// ObjectByNativeID resolves a native (wire-format) id to its dense id32.
func (ix *Index) ObjectByNativeID(nativeID uint64) (int32, bool) {
	id, ok := ix.objIndexByNative[nativeID]
	return id, ok
}

// Class returns the class at classId32, or false if out of range.
func (ix *Index) Class(classID32 int32) (*HeapClass, bool) {
	if classID32 < 0 || int(classID32) >= len(ix.classes) {
		return nil, false
	}
	return ix.classes[classID32], true
}

// ClassByNativeID resolves a native class id to its dense classId32.
func (ix *Index) ClassByNativeID(nativeID uint64) (int32, bool) {
	id, ok := ix.classByNative[nativeID]
	return id, ok
}

// InstancesOf returns the id32 of every object whose class is classID32.
func (ix *Index) InstancesOf(classID32 int32) []int32 {
	if classID32 < 0 || int(classID32) >= len(ix.classSpans) {
		return nil
	}
	return ix.classSpans[classID32]
}

// GcRoots returns every GC root recorded in the dump.
func (ix *Index) GcRoots() []GcRoot { return ix.gcRoots }

// classBuilder accumulates class metadata across both scans: native-id keyed
// resolution, first-encounter dense classId32 assignment, and name
// resolution that can be completed only once LOAD_CLASS + UTF8 have both
// been seen (they may appear in either order upstream of a given record,
// though in practice LOAD_CLASS precedes the class's own CLASS_DUMP).
type classBuilder struct {
	decoder        *Decoder
	classByNative  map[uint64]*HeapClass
	order          []*HeapClass // first-encounter order == classId32 assignment order
	loadClassNames map[uint64]uint64 // classObjectID -> classNameStringID
	primClasses    map[BasicType]*HeapClass
}

func newClassBuilder(decoder *Decoder) *classBuilder {
	return &classBuilder{
		decoder:        decoder,
		classByNative:  make(map[uint64]*HeapClass),
		loadClassNames: make(map[uint64]uint64),
		primClasses:    make(map[BasicType]*HeapClass),
	}
}

func (cb *classBuilder) nameFor(nativeID uint64) string {
	if nameID, ok := cb.loadClassNames[nativeID]; ok {
		if s, ok := cb.decoder.StringByID(nameID); ok {
			return s
		}
	}
	return fmt.Sprintf("<unresolved-class-0x%x>", nativeID)
}

// resolveOrCreate returns the HeapClass for nativeID, creating a bare
// placeholder (dense classId32 assigned on first encounter, I2) if this is
// the first time it's referenced. A later CLASS_DUMP for the same id fills
// in the placeholder in place rather than creating a duplicate.
func (cb *classBuilder) resolveOrCreate(nativeID uint64) *HeapClass {
	if c, ok := cb.classByNative[nativeID]; ok {
		return c
	}
	c := &HeapClass{
		ClassID32: int32(len(cb.order)),
		NativeID:  nativeID,
		Name:      cb.nameFor(nativeID),
	}
	cb.classByNative[nativeID] = c
	cb.order = append(cb.order, c)
	return c
}

// primitiveArrayClass returns the shared pseudo-class for primitive arrays
// of element type t, synthesizing it on first use (real HPROF dumps never
// describe these via CLASS_DUMP).
func (cb *classBuilder) primitiveArrayClass(t BasicType) *HeapClass {
	if c, ok := cb.primClasses[t]; ok {
		return c
	}
	nativeID := primitiveArrayClassBase + uint64(t)
	c := &HeapClass{
		ClassID32:        int32(len(cb.order)),
		NativeID:         nativeID,
		Name:             primitiveArrayClassName(t),
		IsPrimitiveArray: true,
	}
	cb.classByNative[nativeID] = c
	cb.order = append(cb.order, c)
	cb.primClasses[t] = c
	return c
}

func primitiveArrayClassName(t BasicType) string {
	switch t {
	case TypeBoolean:
		return "boolean[]"
	case TypeChar:
		return "char[]"
	case TypeFloat:
		return "float[]"
	case TypeDouble:
		return "double[]"
	case TypeByte:
		return "byte[]"
	case TypeShort:
		return "short[]"
	case TypeInt:
		return "int[]"
	case TypeLong:
		return "long[]"
	default:
		return "unknown[]"
	}
}

// discoverySink is scan 1's Sink: it builds class metadata and the
// classId32 space in first-encounter order (§4.3 step 1). Instance/array
// records are inspected only far enough to register array pseudo-classes;
// their lazy offsets are recorded in scan 2.
type discoverySink struct {
	cb *classBuilder
}

func (s *discoverySink) OnString(uint64, string) {}

func (s *discoverySink) OnLoadClass(classObjectID, classNameStringID uint64) {
	s.cb.loadClassNames[classObjectID] = classNameStringID
}

func (s *discoverySink) OnClass(c *DecodedClass) {
	hc := s.cb.resolveOrCreate(c.NativeID)
	hc.Name = s.cb.nameFor(c.NativeID)
	hc.SuperClassID = c.SuperClassID
	hc.LoaderID = c.LoaderID
	hc.InstanceSize = c.InstanceSize
	hc.Fields = c.Fields
	hc.StaticFields = c.StaticFields
}

func (s *discoverySink) OnInstance(*DecodedInstance) {}

func (s *discoverySink) OnObjectArray(a *DecodedArray) {
	s.cb.resolveOrCreate(a.ArrayClassID)
}

func (s *discoverySink) OnPrimitiveArray(a *DecodedArray) {
	s.cb.primitiveArrayClass(a.ElemType)
}

func (s *discoverySink) OnGcRoot(GcRoot) {}

// objectTableSink is scan 2's Sink: it assigns dense id32s to every
// INSTANCE/OBJ_ARRAY/PRIM_ARRAY_DUMP record, in the order they appear in
// the dump, and accumulates GC roots (§4.3 step 2).
type objectTableSink struct {
	cb               *classBuilder
	objects          []HeapObject
	objIndexByNative map[uint64]int32
	classSpans       [][]int32
	gcRoots          []GcRoot
}

func (s *objectTableSink) nextID32() int32 { return int32(len(s.objects)) }

func (s *objectTableSink) appendObject(nativeID uint64, classID32 int32, shallow int64, arrayLen int, bodyOffset int64) {
	id32 := s.nextID32()
	s.objects = append(s.objects, HeapObject{
		ID32:        id32,
		NativeID:    nativeID,
		ClassID32:   classID32,
		ShallowSize: shallow,
		ArrayLen:    int32FromArrayLen(arrayLen),
		BodyOffset:  bodyOffset,
		IdomID32:    UndefID32,
		RetainedSize: shallow,
	})
	s.objIndexByNative[nativeID] = id32
	if classID32 >= 0 && int(classID32) < len(s.classSpans) {
		s.classSpans[classID32] = append(s.classSpans[classID32], id32)
	}
}

func int32FromArrayLen(n int) int32 {
	if n < 0 {
		return -1
	}
	return int32(n)
}

func (s *objectTableSink) OnString(uint64, string)                  {}
func (s *objectTableSink) OnLoadClass(uint64, uint64)                {}
func (s *objectTableSink) OnClass(*DecodedClass)                     {}

func (s *objectTableSink) OnInstance(i *DecodedInstance) {
	hc, ok := s.cb.classByNative[i.ClassID]
	var cid int32 = -1
	var shallow int64
	if ok {
		cid = hc.ClassID32
		shallow = int64(hc.InstanceSize)
	}
	// A dangling/unknown class id is dropped per I1: the object is kept
	// with an unresolved classId32 (-1) and zero shallow size rather than
	// discarded outright, since it may still be a reachable, legitimate
	// object whose class metadata was simply never dumped.
	s.appendObject(i.NativeID, cid, shallow, -1, i.BodyOffset)
}

func (s *objectTableSink) OnObjectArray(a *DecodedArray) {
	hc, ok := s.cb.classByNative[a.ArrayClassID]
	var cid int32 = -1
	if ok {
		cid = hc.ClassID32
	}
	s.appendObject(a.NativeID, cid, int64(a.DataLength), a.Length, a.BodyOffset)
}

func (s *objectTableSink) OnPrimitiveArray(a *DecodedArray) {
	pc := s.cb.primitiveArrayClass(a.ElemType)
	shallow := int64(a.DataLength)
	s.appendObject(a.NativeID, pc.ClassID32, shallow, a.Length, a.BodyOffset)
}

func (s *objectTableSink) OnGcRoot(root GcRoot) {
	s.gcRoots = append(s.gcRoots, root)
}

// BuildIndex runs the two-scan pass (§4.3) over r, producing an Index. It
// seeks r's cursor to headerEnd itself before each scan.
func BuildIndex(r *MappedReader, headerEnd int64, fileSize int64, opts BuildOptions) (*Index, error) {
	opts.fillDefaults()
	mode := resolveMode(opts, fileSize)

	decoder := NewDecoder()
	cb := newClassBuilder(decoder)

	opts.Progress.Tick(0.0, "scanning classes")
	r.Seek(headerEnd)
	if err := decoder.Decode(r, &discoverySink{cb: cb}); err != nil {
		return nil, err
	}

	classes := make([]*HeapClass, len(cb.order))
	copy(classes, cb.order)
	classByNative := make(map[uint64]int32, len(classes))
	for _, c := range classes {
		classByNative[c.NativeID] = c.ClassID32
	}

	opts.Progress.Tick(0.2, "scanning objects")
	objSink := &objectTableSink{
		cb:               cb,
		objIndexByNative: make(map[uint64]int32),
		classSpans:       make([][]int32, len(classes)),
	}
	r.Seek(headerEnd)
	if err := decoder.Decode(r, objSink); err != nil {
		return nil, err
	}

	for _, c := range classes {
		c.InstanceCount = int64(len(objSink.classSpans[c.ClassID32]))
	}

	ix := &Index{
		idSize:           r.IDSize(),
		mode:             mode,
		classes:          classes,
		classByNative:    classByNative,
		objects:          objSink.objects,
		objIndexByNative: objSink.objIndexByNative,
		classSpans:       objSink.classSpans,
		gcRoots:          objSink.gcRoots,
	}

	opts.Progress.Tick(0.9, "finalizing index")

	if mode == ModeIndexed {
		if opts.DataDir == "" {
			return nil, apperrors.New(apperrors.CodeInvalidInput, "INDEXED mode requires a data directory")
		}
		if err := ix.persist(opts.DataDir); err != nil {
			return nil, err
		}
		ix.dataDir = opts.DataDir
	}

	opts.Progress.Tick(1.0, "index ready")
	return ix, nil
}

// persist writes every index file for ix atomically under dataDir, so a
// second open() of the same dump can reuse them after a magic/version check
// (R2, §4.3).
func (ix *Index) persist(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, "create index directory", err)
	}
	objectsPath, spanOffsetsPath, spanDataPath, _ := indexPaths(dataDir)

	objBody := make([]byte, objectEntrySize*len(ix.objects))
	for i, o := range ix.objects {
		objectEntry{
			ID32:        o.ID32,
			NativeID:    o.NativeID,
			ClassID32:   o.ClassID32,
			ShallowSize: o.ShallowSize,
			ArrayLen:    o.ArrayLen,
			BodyOffset:  o.BodyOffset,
		}.encode(objBody[i*objectEntrySize : (i+1)*objectEntrySize])
	}
	if err := writeIndexFileAtomic(objectsPath, indexHeader{Magic: indexMagicObjects, Version: indexFormatVersion, EntryCount: uint64(len(ix.objects))}, objBody); err != nil {
		return err
	}

	var allIDs []int32
	spanBody := make([]byte, classSpanEntrySize*len(ix.classSpans))
	offset := int64(0)
	for classID32, span := range ix.classSpans {
		classSpanEntry{
			ClassID32:     int32(classID32),
			DataOffset:    offset,
			InstanceCount: int64(len(span)),
		}.encode(spanBody[classID32*classSpanEntrySize : (classID32+1)*classSpanEntrySize])
		allIDs = append(allIDs, span...)
		offset += int64(len(span))
	}
	if err := writeIndexFileAtomic(spanOffsetsPath, indexHeader{Magic: indexMagicSpans, Version: indexFormatVersion, EntryCount: uint64(len(ix.classSpans))}, spanBody); err != nil {
		return err
	}
	if err := writeIndexFileAtomic(spanDataPath, indexHeader{Magic: indexMagicData, Version: indexFormatVersion, EntryCount: uint64(len(allIDs))}, encodeID32Slice(allIDs)); err != nil {
		return err
	}
	return nil
}

// OpenIndex reads back a previously persisted index for dataDir, validating
// every file's magic/version header. Any mismatch is reported as a
// CodeIndexVersion error so the caller can fall back to rebuilding (§7).
func OpenIndex(dataDir string, idSize int) (*Index, error) {
	objectsPath, spanOffsetsPath, spanDataPath, _ := indexPaths(dataDir)

	_, objBody, err := readIndexFile(objectsPath, indexMagicObjects)
	if err != nil {
		return nil, err
	}
	_, spanBody, err := readIndexFile(spanOffsetsPath, indexMagicSpans)
	if err != nil {
		return nil, err
	}
	_, dataBody, err := readIndexFile(spanDataPath, indexMagicData)
	if err != nil {
		return nil, err
	}

	objCount := len(objBody) / objectEntrySize
	objects := make([]HeapObject, objCount)
	objIndexByNative := make(map[uint64]int32, objCount)
	for i := 0; i < objCount; i++ {
		e := decodeObjectEntry(objBody[i*objectEntrySize : (i+1)*objectEntrySize])
		objects[i] = HeapObject{
			ID32:         e.ID32,
			NativeID:     e.NativeID,
			ClassID32:    e.ClassID32,
			ShallowSize:  e.ShallowSize,
			ArrayLen:     e.ArrayLen,
			BodyOffset:   e.BodyOffset,
			IdomID32:     UndefID32,
			RetainedSize: e.ShallowSize,
		}
		objIndexByNative[e.NativeID] = e.ID32
	}

	spanCount := len(spanBody) / classSpanEntrySize
	classSpans := make([][]int32, spanCount)
	for i := 0; i < spanCount; i++ {
		e := decodeClassSpanEntry(spanBody[i*classSpanEntrySize : (i+1)*classSpanEntrySize])
		span := make([]int32, e.InstanceCount)
		for j := int64(0); j < e.InstanceCount; j++ {
			span[j] = decodeID32At(dataBody, e.DataOffset+j)
		}
		classSpans[e.ClassID32] = span
	}

	return &Index{
		idSize:           idSize,
		mode:             ModeIndexed,
		objects:          objects,
		objIndexByNative: objIndexByNative,
		classSpans:       classSpans,
		dataDir:          dataDir,
	}, nil
}

// EnsureInboundIndex lazily builds the inbound-reference count table
// (inbound.idx) from the current object graph on first request (§4.3).
// Requires the caller to supply a function that yields an object's outbound
// references (HeapDump.outboundRefs), since the index itself stores no
// reference data.
func (ix *Index) EnsureInboundIndex(outbound func(id32 int32) ([]int32, error)) error {
	if ix.inboundCount != nil {
		return nil
	}
	counts := make([]int32, len(ix.objects))
	for i := range ix.objects {
		refs, err := outbound(int32(i))
		if err != nil {
			return err
		}
		for _, target := range refs {
			if target >= 0 && int(target) < len(counts) {
				counts[target]++
			}
		}
	}
	ix.inboundCount = counts

	if ix.dataDir != "" {
		_, _, _, inboundPath := indexPaths(ix.dataDir)
		body := make([]byte, inboundEntrySize*len(counts))
		for i, c := range counts {
			inboundEntry{ID32: int32(i), InboundCount: c}.encode(body[i*inboundEntrySize : (i+1)*inboundEntrySize])
		}
		if err := writeIndexFileAtomic(inboundPath, indexHeader{Magic: indexMagicInbound, Version: indexFormatVersion, EntryCount: uint64(len(counts))}, body); err != nil {
			return err
		}
	}
	return nil
}

// InboundCount returns the number of known inbound references to id32, or
// false if the inbound index hasn't been built yet (CodeFeatureNotEnabled,
// absorbed by callers into an empty result).
func (ix *Index) InboundCount(id32 int32) (int32, bool) {
	if ix.inboundCount == nil || id32 < 0 || int(id32) >= len(ix.inboundCount) {
		return 0, false
	}
	return ix.inboundCount[id32], true
}

