package heap

import (
	"encoding/binary"
	"strings"

	apperrors "github.com/heapdump-analysis/pkg/errors"
)

// DefaultOptions returns sensible defaults: AUTO parsing mode, no eager
// dominator computation, no string pre-indexing, no inbound-ref tracking.
func DefaultOptions() HeapDumpOptions {
	return HeapDumpOptions{ParsingMode: ModeAuto}
}

// HeapDumpOptions configures Open (§6 "API consumed by query layer").
type HeapDumpOptions struct {
	ComputeDominators bool
	IndexStrings      bool
	TrackInboundRefs  bool
	ParsingMode       ParsingMode
	DataDir           string
	MmapSegmentSize   int64
	Progress          Progress
	Cancel            CancelPredicate
}

// HeapDump is the caller-facing handle over one loaded HPROF file. It owns
// the mapped reader and the built index; every other accessor is a thin,
// cheap view over those two (§9 "lazy materialization"). Not safe for
// concurrent use — external synchronization is the caller's responsibility
// (§5).
type HeapDump struct {
	path    string
	header  *Header
	reader  *MappedReader
	index   *Index
	opts    HeapDumpOptions

	classesByName map[string][]int32 // simple name -> classId32 (may have duplicates across loaders)
	dominators    *DominatorResult
}

// Open parses path, builds (or reuses) its index, builds the inbound-reference
// index when TrackInboundRefs is set, and optionally computes dominators
// eagerly (§6).
func Open(path string, opts HeapDumpOptions) (*HeapDump, error) {
	reader, err := NewMappedReader(path, opts.MmapSegmentSize)
	if err != nil {
		return nil, err
	}

	header, err := ReadHeader(reader)
	if err != nil {
		reader.Close()
		return nil, err
	}
	headerEnd := reader.Position()

	buildOpts := BuildOptions{
		Mode:                  opts.ParsingMode,
		DataDir:               opts.DataDir,
		TrackInboundRefs:      opts.TrackInboundRefs,
		Progress:              opts.Progress,
		Cancel:                opts.Cancel,
	}

	var index *Index
	if opts.DataDir != "" {
		if idx, openErr := OpenIndex(opts.DataDir, header.IDSize); openErr == nil {
			index = idx
		}
	}
	if index == nil {
		index, err = BuildIndex(reader, headerEnd, reader.Size(), buildOpts)
		if err != nil {
			reader.Close()
			return nil, err
		}
	}

	hd := &HeapDump{
		path:          path,
		header:        header,
		reader:        reader,
		index:         index,
		opts:          opts,
		classesByName: buildClassNameIndex(index),
	}

	if opts.TrackInboundRefs {
		if err := hd.EnableInboundRefs(); err != nil {
			reader.Close()
			return nil, err
		}
	}

	if opts.ComputeDominators {
		if _, err := hd.ComputeDominators(); err != nil {
			reader.Close()
			return nil, err
		}
	}

	return hd, nil
}

func buildClassNameIndex(ix *Index) map[string][]int32 {
	m := make(map[string][]int32, ix.ClassCount())
	for i := 0; i < ix.ClassCount(); i++ {
		c, _ := ix.Class(int32(i))
		simple := simpleClassName(c.Name)
		m[c.Name] = append(m[c.Name], c.ClassID32)
		if simple != c.Name {
			m[simple] = append(m[simple], c.ClassID32)
		}
	}
	return m
}

func simpleClassName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// Path returns the source file path.
func (hd *HeapDump) Path() string { return hd.path }

// Header returns the parsed HPROF header (R1).
func (hd *HeapDump) Header() *Header { return hd.header }

// IDSize returns the dump's identifier width.
func (hd *HeapDump) IDSize() int { return hd.header.IDSize }

// ObjectCount returns the dense object-id space size.
func (hd *HeapDump) ObjectCount() int { return hd.index.ObjectCount() }

// ClassCount returns the dense class-id space size.
func (hd *HeapDump) ClassCount() int { return hd.index.ClassCount() }

// TotalHeapSize sums every live object's shallow size.
func (hd *HeapDump) TotalHeapSize() int64 {
	var total int64
	for i := 0; i < hd.index.ObjectCount(); i++ {
		o, _ := hd.index.Object(int32(i))
		total += o.ShallowSize
	}
	return total
}

// Classes returns every loaded class, ordered by classId32.
func (hd *HeapDump) Classes() []*HeapClass {
	out := make([]*HeapClass, hd.index.ClassCount())
	for i := range out {
		out[i], _ = hd.index.Class(int32(i))
	}
	return out
}

// ClassByNativeID looks up a class by its HPROF wire id (LookupMiss → false).
func (hd *HeapDump) ClassByNativeID(nativeID uint64) (*HeapClass, bool) {
	id, ok := hd.index.ClassByNativeID(nativeID)
	if !ok {
		return nil, false
	}
	return hd.index.Class(id)
}

// ClassByName looks up a class by its simple or fully-qualified name. If
// more than one loader defines a class with the same name, the
// first-encountered one is returned.
func (hd *HeapDump) ClassByName(name string) (*HeapClass, bool) {
	ids, ok := hd.classesByName[name]
	if !ok || len(ids) == 0 {
		return nil, false
	}
	return hd.index.Class(ids[0])
}

// FilterClasses returns every class for which pred returns true (§6 "filter
// classes / objects by predicate").
func (hd *HeapDump) FilterClasses(pred func(*HeapClass) bool) []*HeapClass {
	var out []*HeapClass
	for i := 0; i < hd.index.ClassCount(); i++ {
		c, _ := hd.index.Class(int32(i))
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// InstanceFieldLayout returns every field an instance of hc carries at
// runtime, ordered from the class itself down to Object — the same order
// HotSpot's heapDumper.cpp concatenates them in an INSTANCE_DUMP body.
func (hd *HeapDump) InstanceFieldLayout(hc *HeapClass) []HeapField {
	var fields []HeapField
	cur := hc
	for cur != nil {
		fields = append(fields, cur.Fields...)
		if cur.SuperClassID == 0 {
			break
		}
		superID32, ok := hd.index.ClassByNativeID(cur.SuperClassID)
		if !ok {
			break
		}
		cur, _ = hd.index.Class(superID32)
	}
	return fields
}

// Object wraps the index entry for id32 into a caller-facing view.
type Object struct {
	hd  *HeapDump
	id  int32
	raw HeapObject
}

// Object returns a view over id32, or false if out of range.
func (hd *HeapDump) Object(id32 int32) (*Object, bool) {
	raw, ok := hd.index.Object(id32)
	if !ok {
		return nil, false
	}
	return &Object{hd: hd, id: id32, raw: *raw}, true
}

// ObjectByNativeID resolves a native id to its Object view.
func (hd *HeapDump) ObjectByNativeID(nativeID uint64) (*Object, bool) {
	id, ok := hd.index.ObjectByNativeID(nativeID)
	if !ok {
		return nil, false
	}
	return hd.Object(id)
}

// FilterObjects returns every object for which pred returns true.
func (hd *HeapDump) FilterObjects(pred func(*Object) bool) []*Object {
	var out []*Object
	for i := 0; i < hd.index.ObjectCount(); i++ {
		obj, _ := hd.Object(int32(i))
		if pred(obj) {
			out = append(out, obj)
		}
	}
	return out
}

// GcRoots returns every GC root, optionally filtered to the given types
// (no filter returns all).
func (hd *HeapDump) GcRoots(types ...GcRootType) []GcRoot {
	all := hd.index.GcRoots()
	if len(types) == 0 {
		return all
	}
	want := make(map[GcRootType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []GcRoot
	for _, r := range all {
		if want[r.Type] {
			out = append(out, r)
		}
	}
	return out
}

// rootID32s resolves every GC root's native id to an id32, dropping
// dangling roots per I1.
func (hd *HeapDump) rootID32s() []int32 {
	roots := hd.index.GcRoots()
	out := make([]int32, 0, len(roots))
	seen := make(map[int32]bool, len(roots))
	for _, r := range roots {
		id, ok := hd.index.ObjectByNativeID(r.NativeID)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	// Every loaded class object is an implicit GC root (it's reachable for
	// the lifetime of its class loader); matches how static analysis tools
	// treat class metadata, and keeps static-field-only chains reachable.
	for i := 0; i < hd.index.ClassCount(); i++ {
		c, _ := hd.index.Class(int32(i))
		id, ok := hd.index.ObjectByNativeID(c.NativeID)
		if ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// ComputeDominators runs the dominator engine (C4) over the full object
// graph, memoizing the result. HasDominators reports whether it has run.
func (hd *HeapDump) ComputeDominators() (*DominatorResult, error) {
	if hd.dominators != nil {
		return hd.dominators, nil
	}
	shallow := func(id32 int32) int64 {
		o, ok := hd.index.Object(id32)
		if !ok {
			return 0
		}
		return o.ShallowSize
	}
	result, err := ComputeDominators(hd.index.ObjectCount(), shallow, hd.rootID32s(), hd.outboundRefs, DominatorOptions{
		Progress: hd.opts.Progress,
		Cancel:   hd.opts.Cancel,
	})
	if err != nil {
		return nil, err
	}
	hd.dominators = result
	for i := range hd.index.objects {
		hd.index.objects[i].IdomID32 = result.Idom[i]
		hd.index.objects[i].RetainedSize = result.RetainedSize[i]
	}
	return result, nil
}

// HasDominators reports whether ComputeDominators has run.
func (hd *HeapDump) HasDominators() bool { return hd.dominators != nil }

// FindPathToGcRoot returns the shortest reference chain to o.id, per §4.5.
func (hd *HeapDump) FindPathToGcRoot(o *Object) ([]int32, error) {
	return FindPathToGcRoot(hd.index.ObjectCount(), o.id, hd.rootID32s(), hd.outboundRefs)
}

// FindAllPaths returns every distinct path to o.id up to maxDepth edges.
func (hd *HeapDump) FindAllPaths(o *Object, maxDepth int) ([][]int32, error) {
	return FindAllPaths(hd.index.ObjectCount(), o.id, hd.rootID32s(), hd.outboundRefs, maxDepth)
}

// EnableInboundRefs builds the inbound-reference index on demand. Calling
// InboundRefs before this returns CodeFeatureNotEnabled semantics (empty
// result) per §7.
func (hd *HeapDump) EnableInboundRefs() error {
	return hd.index.EnsureInboundIndex(hd.outboundRefs)
}

// Close releases the mapped segments and file handle. Any Object handle
// obtained before Close becomes invalid to use afterward (§5).
func (hd *HeapDump) Close() error {
	return hd.reader.Close()
}

// outboundRefs re-extracts id32 references from o's serialized body using
// its class's field layout (instances) or element stride (object arrays).
// Primitive arrays and objects whose class is unresolved carry no outbound
// references. A null reference (native id 0) is dropped rather than
// resolved, matching how the decoder treats dangling references (I1, P2).
func (hd *HeapDump) outboundRefs(id32 int32) ([]int32, error) {
	o, ok := hd.index.Object(id32)
	if !ok {
		return nil, nil
	}

	if o.ClassID32 < 0 {
		return nil, nil
	}
	class, ok := hd.index.Class(o.ClassID32)
	if !ok {
		return nil, nil
	}

	idSize := hd.header.IDSize

	if o.ArrayLen >= 0 {
		if class.IsPrimitiveArray {
			return nil, nil
		}
		return hd.objectArrayRefs(o, idSize)
	}

	return hd.instanceRefs(o, class, idSize)
}

func (hd *HeapDump) objectArrayRefs(o *HeapObject, idSize int) ([]int32, error) {
	if o.ArrayLen <= 0 {
		return nil, nil
	}
	data, err := hd.reader.ReadAt(o.BodyOffset, int(o.ArrayLen)*idSize)
	if err != nil {
		return nil, err
	}
	refs := make([]int32, 0, o.ArrayLen)
	for i := 0; i < int(o.ArrayLen); i++ {
		native := readIDFromBuf(data[i*idSize:], idSize)
		if native == 0 {
			continue
		}
		if target, ok := hd.index.ObjectByNativeID(native); ok {
			refs = append(refs, target)
		}
	}
	return refs, nil
}

func (hd *HeapDump) instanceRefs(o *HeapObject, class *HeapClass, idSize int) ([]int32, error) {
	fields := hd.InstanceFieldLayout(class)
	var refs []int32
	offset := o.BodyOffset
	for _, f := range fields {
		size := BasicTypeSize(f.Type, idSize)
		if f.Type == TypeObject {
			data, err := hd.reader.ReadAt(offset, size)
			if err != nil {
				return nil, err
			}
			native := readIDFromBuf(data, idSize)
			if native != 0 {
				if target, ok := hd.index.ObjectByNativeID(native); ok {
					refs = append(refs, target)
				}
			}
		}
		offset += int64(size)
	}
	return refs, nil
}

func readIDFromBuf(buf []byte, idSize int) uint64 {
	if idSize == 4 {
		return uint64(binary.BigEndian.Uint32(buf))
	}
	return binary.BigEndian.Uint64(buf)
}

// ID32 is the object's dense internal identifier.
func (o *Object) ID32() int32 { return o.id }

// NativeID is the object's HPROF wire identifier.
func (o *Object) NativeID() uint64 { return o.raw.NativeID }

// Class returns the object's class, or false if unresolved.
func (o *Object) Class() (*HeapClass, bool) { return o.hd.index.Class(o.raw.ClassID32) }

// ShallowSize returns the object's own byte footprint.
func (o *Object) ShallowSize() int64 { return o.raw.ShallowSize }

// RetainedSize returns the object's retained size, or -1 if dominators
// haven't been computed yet (§6 HeapObject contract).
func (o *Object) RetainedSize() int64 {
	if !o.hd.HasDominators() {
		return -1
	}
	live, ok := o.hd.index.Object(o.id)
	if !ok {
		return -1
	}
	return live.RetainedSize
}

// IsArray reports whether this object is an array.
func (o *Object) IsArray() bool { return o.raw.ArrayLen >= 0 }

// ArrayLength returns the array's element count, or -1 if not an array.
func (o *Object) ArrayLength() int32 { return o.raw.ArrayLen }

// OutboundRefs returns every live object this object directly references.
func (o *Object) OutboundRefs() ([]*Object, error) {
	ids, err := o.hd.outboundRefs(o.id)
	if err != nil {
		return nil, err
	}
	out := make([]*Object, 0, len(ids))
	for _, id := range ids {
		obj, ok := o.hd.Object(id)
		if ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

// InboundRefs returns how many other live objects reference this one.
// Returns (0, ErrFeatureNotEnabled) if EnableInboundRefs was never called,
// per §7's FeatureNotEnabled disposition (non-fatal, callers absorb into
// an empty/zero result).
func (o *Object) InboundRefs() (int32, error) {
	count, ok := o.hd.index.InboundCount(o.id)
	if !ok {
		return 0, apperrors.ErrFeatureNotEnabled
	}
	return count, nil
}

// Field looks up a field by name among this object's declared and
// inherited instance fields, returning its raw big-endian bytes and basic
// type. Returns LookupMiss semantics (false) if no such field exists.
func (o *Object) Field(name string) ([]byte, BasicType, bool) {
	class, ok := o.Class()
	if !ok {
		return nil, 0, false
	}
	idSize := o.hd.header.IDSize
	offset := o.raw.BodyOffset
	for _, f := range o.hd.InstanceFieldLayout(class) {
		size := BasicTypeSize(f.Type, idSize)
		if f.Name == name {
			data, err := o.hd.reader.ReadAt(offset, size)
			if err != nil {
				return nil, 0, false
			}
			return data, f.Type, true
		}
		offset += int64(size)
	}
	return nil, 0, false
}

// StringValue returns the Java string content of this object if it is (or
// wraps, via its "value" char/byte array field) a java.lang.String,
// otherwise ("", false).
func (o *Object) StringValue() (string, bool) {
	class, ok := o.Class()
	if !ok || simpleClassName(class.Name) != "String" {
		return "", false
	}
	data, _, ok := o.Field("value")
	if !ok {
		return "", false
	}
	native := readIDFromBuf(data, o.hd.header.IDSize)
	valueObj, ok := o.hd.ObjectByNativeID(native)
	if !ok || !valueObj.IsArray() {
		return "", false
	}
	body, err := o.hd.reader.ReadAt(valueObj.raw.BodyOffset, int(valueObj.raw.ShallowSize))
	if err != nil {
		return "", false
	}
	// Modern HotSpot strings back "value" with a byte[] in Latin-1/UTF-16
	// compact form; older dumps use a char[]. Either way the raw bytes
	// round-trip adequately as UTF-8 for diagnostic display purposes.
	if valueObj.ArrayLength()*2 == int32(len(body)) {
		runes := make([]rune, valueObj.ArrayLength())
		for i := range runes {
			runes[i] = rune(binary.BigEndian.Uint16(body[i*2:]))
		}
		return string(runes), true
	}
	return string(body), true
}
