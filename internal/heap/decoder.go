package heap

import (
	"fmt"
	"io"
	"time"

	apperrors "github.com/heapdump-analysis/pkg/errors"
)

// magicPrefix is the expected HPROF format string. Some dumps append a
// point-release suffix; only the documented prefix is required to match.
const magicPrefix = "JAVA PROFILE 1.0."

// DecodedClass is what the decoder hands the sink for a CLASS_DUMP record:
// metadata plus declared field descriptors, before class-id32 assignment
// (that is index_store's job).
type DecodedClass struct {
	NativeID     uint64
	NameID       uint64 // native id of the class-name string; resolved against the string table by the caller
	SuperClassID uint64
	LoaderID     uint64
	InstanceSize int
	Fields       []HeapField
	StaticFields []HeapField
}

// DecodedInstance is the lazy record the decoder emits for an
// INSTANCE_DUMP: everything needed to re-parse field data later, without
// the field data itself (§4.3).
type DecodedInstance struct {
	NativeID    uint64
	ClassID     uint64
	BodyOffset  int64
	DataLength  int
}

// DecodedArray is the lazy record emitted for OBJ_ARRAY_DUMP / PRIM_ARRAY_DUMP.
type DecodedArray struct {
	NativeID uint64
	IsObject bool

	// ArrayClassID is the native id of the array's own class object (e.g.
	// the class object for "java.lang.String[]"), present only on object
	// arrays: OBJECT_ARRAY_DUMP carries it, PRIM_ARRAY_DUMP does not — a
	// primitive array's type is fully described by ElemType instead.
	ArrayClassID uint64
	ElemType     BasicType // valid when !IsObject

	Length     int
	BodyOffset int64 // offset of the first element
	DataLength int    // total bytes of element data
}

// Sink receives decoded records as the decoder walks the file. Callback
// order is deterministic, derived from file byte order (§5).
type Sink interface {
	OnString(nativeID uint64, value string)
	OnLoadClass(classObjectID, classNameStringID uint64)
	OnClass(c *DecodedClass)
	OnInstance(i *DecodedInstance)
	OnObjectArray(a *DecodedArray)
	OnPrimitiveArray(a *DecodedArray)
	OnGcRoot(root GcRoot)
}

// Decoder walks an HPROF record stream and dispatches decoded records to a
// Sink. The only long-term state it carries across the whole decode is the
// UTF-8 string table, keyed by native id (§4.3) — everything else is
// streamed straight through to the sink.
type Decoder struct {
	strings map[uint64]string
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{strings: make(map[uint64]string)}
}

// StringByID resolves a previously-seen UTF8 record by native id. Absent
// entries return ("", false) — a dangling string reference is not an error
// (I1: dangling references are silently dropped).
func (d *Decoder) StringByID(id uint64) (string, bool) {
	s, ok := d.strings[id]
	return s, ok
}

// ReadHeader parses the fixed HPROF preamble and configures r's identifier
// width. A malformed magic string or an idSize outside {4, 8} is fatal
// (§4.2, §4.3).
func ReadHeader(r *MappedReader) (*Header, error) {
	r.Seek(0)
	format, err := r.ReadNullTerminatedString()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFormatInvalid, "reading HPROF magic", err)
	}
	if len(format) < len(magicPrefix) || format[:len(magicPrefix)] != magicPrefix {
		return nil, apperrors.New(apperrors.CodeFormatInvalid, fmt.Sprintf("not an HPROF file: unrecognized magic %q", format))
	}

	idSize, err := r.ReadU4()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFormatInvalid, "reading id size", err)
	}
	if idSize != 4 && idSize != 8 {
		return nil, apperrors.New(apperrors.CodeFormatInvalid, "unsupported identifier size")
	}
	r.SetIDSize(int(idSize))

	tsMillis, err := r.ReadU8()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeFormatInvalid, "reading timestamp", err)
	}

	return &Header{
		Format:    format,
		IDSize:    int(idSize),
		Timestamp: time.UnixMilli(int64(tsMillis)),
	}, nil
}

// Decode walks every top-level record from the current cursor position
// (immediately after the header) to EOF, dispatching to sink.
func (d *Decoder) Decode(r *MappedReader, sink Sink) error {
	for r.Remaining() > 0 {
		if r.Remaining() < 9 {
			return apperrors.Wrap(apperrors.CodeFormatInvalid, "truncated record header", io.ErrUnexpectedEOF)
		}
		tagByte, err := r.ReadU1()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading record tag", err)
		}
		if _, err := r.ReadU4(); err != nil { // microseconds-since-header, unused
			return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading record timestamp delta", err)
		}
		bodyLength, err := r.ReadU4()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading record body length", err)
		}
		if int64(bodyLength) > r.Remaining() {
			return apperrors.Wrap(apperrors.CodeFormatInvalid, "record body exceeds file length", io.ErrUnexpectedEOF)
		}

		tag := RecordTag(tagByte)
		bodyStart := r.Position()
		bodyEnd := bodyStart + int64(bodyLength)

		switch tag {
		case TagUTF8:
			if err := d.decodeUTF8(r, bodyEnd, sink); err != nil {
				return err
			}
		case TagLoadClass:
			if err := d.decodeLoadClass(r, sink); err != nil {
				return err
			}
		case TagHeapDump, TagHeapDumpSegment:
			if err := d.decodeHeapDumpBody(r, bodyEnd, sink); err != nil {
				return err
			}
		case TagHeapDumpEnd:
			// zero-length marker, nothing to do
		default:
			// Unknown top-level tag with a valid length: skip for forward
			// compatibility (§4.3 failure semantics).
		}

		r.Seek(bodyEnd)
	}
	return nil
}

func (d *Decoder) decodeUTF8(r *MappedReader, bodyEnd int64, sink Sink) error {
	id, err := r.ReadID()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading string record id", err)
	}
	n := int(bodyEnd - r.Position())
	if n < 0 {
		return apperrors.New(apperrors.CodeFormatInvalid, "string record shorter than its id")
	}
	raw, err := r.ReadBytes(n)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading string record bytes", err)
	}
	s := string(raw)
	// A duplicate native id simply overwrites; HPROF writers never reuse a
	// string id, but silently taking the latest value is harmless either way.
	d.strings[id] = s
	sink.OnString(id, s)
	return nil
}

func (d *Decoder) decodeLoadClass(r *MappedReader, sink Sink) error {
	if _, err := r.ReadU4(); err != nil { // class serial number, unused
		return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading class serial", err)
	}
	classObjID, err := r.ReadID()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading class object id", err)
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial, unused
		return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading class stack trace serial", err)
	}
	nameID, err := r.ReadID()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading class name string id", err)
	}
	sink.OnLoadClass(classObjID, nameID)
	return nil
}

func (d *Decoder) decodeHeapDumpBody(r *MappedReader, bodyEnd int64, sink Sink) error {
	idSize := r.IDSize()
	for r.Position() < bodyEnd {
		subTagByte, err := r.ReadU1()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeFormatInvalid, "reading heap dump sub-record tag", err)
		}
		subTag := HeapDumpTag(subTagByte)

		switch subTag {
		case HeapTagRootUnknown:
			id, err := r.ReadID()
			if err != nil {
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootUnknown, NativeID: id, FrameNumber: -1})

		case HeapTagRootJNIGlobal:
			id, err := r.ReadID()
			if err != nil {
				return err
			}
			if _, err := r.ReadID(); err != nil { // JNI global ref id, unused
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootJNIGlobal, NativeID: id, FrameNumber: -1})

		case HeapTagRootJNILocal:
			id, thread, frame, err := readIDThreadFrame(r)
			if err != nil {
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootJNILocal, NativeID: id, ThreadSerial: thread, FrameNumber: frame})

		case HeapTagRootJavaFrame:
			id, thread, frame, err := readIDThreadFrame(r)
			if err != nil {
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootJavaFrame, NativeID: id, ThreadSerial: thread, FrameNumber: frame})

		case HeapTagRootNativeStack:
			id, thread, err := readIDThread(r)
			if err != nil {
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootNativeStack, NativeID: id, ThreadSerial: thread, FrameNumber: -1})

		case HeapTagRootStickyClass:
			id, err := r.ReadID()
			if err != nil {
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootStickyClass, NativeID: id, FrameNumber: -1})

		case HeapTagRootThreadBlock:
			id, thread, err := readIDThread(r)
			if err != nil {
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootThreadBlock, NativeID: id, ThreadSerial: thread, FrameNumber: -1})

		case HeapTagRootMonitorUsed:
			id, err := r.ReadID()
			if err != nil {
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootMonitorUsed, NativeID: id, FrameNumber: -1})

		case HeapTagRootThreadObject:
			id, err := r.ReadID()
			if err != nil {
				return err
			}
			thread, err := r.ReadU4()
			if err != nil {
				return err
			}
			if _, err := r.ReadU4(); err != nil { // stack trace serial, unused
				return err
			}
			sink.OnGcRoot(GcRoot{Type: GcRootThreadObject, NativeID: id, ThreadSerial: thread, FrameNumber: -1})

		case HeapTagClassDump:
			c, err := d.decodeClassDump(r, idSize)
			if err != nil {
				return err
			}
			sink.OnClass(c)

		case HeapTagInstanceDump:
			inst, err := d.decodeInstanceDump(r, idSize)
			if err != nil {
				return err
			}
			sink.OnInstance(inst)

		case HeapTagObjArrayDump:
			arr, err := d.decodeObjectArrayDump(r, idSize)
			if err != nil {
				return err
			}
			sink.OnObjectArray(arr)

		case HeapTagPrimArrayDump:
			arr, err := d.decodePrimitiveArrayDump(r, idSize)
			if err != nil {
				return err
			}
			sink.OnPrimitiveArray(arr)

		default:
			// A heap-dump sub-record carries no self-describing length, so
			// an unrecognized sub-tag cannot be safely skipped; treat it as
			// a truncated/malformed record per §4.3.
			return apperrors.New(apperrors.CodeFormatInvalid, "unknown heap dump sub-record tag")
		}
	}
	return nil
}

func readIDThread(r *MappedReader) (id uint64, thread uint32, err error) {
	id, err = r.ReadID()
	if err != nil {
		return 0, 0, err
	}
	thread, err = r.ReadU4()
	return id, thread, err
}

func readIDThreadFrame(r *MappedReader) (id uint64, thread uint32, frame int32, err error) {
	id, err = r.ReadID()
	if err != nil {
		return 0, 0, 0, err
	}
	thread, err = r.ReadU4()
	if err != nil {
		return 0, 0, 0, err
	}
	frame, err = r.ReadI4()
	return id, thread, frame, err
}

func (d *Decoder) decodeClassDump(r *MappedReader, idSize int) (*DecodedClass, error) {
	classID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial, unused
		return nil, err
	}
	superID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	loaderID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadID(); err != nil { // signers id, unused
		return nil, err
	}
	if _, err := r.ReadID(); err != nil { // protection domain id, unused
		return nil, err
	}
	if _, err := r.ReadID(); err != nil { // reserved1
		return nil, err
	}
	if _, err := r.ReadID(); err != nil { // reserved2
		return nil, err
	}
	instSize, err := r.ReadU4()
	if err != nil {
		return nil, err
	}

	constPoolCount, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(constPoolCount); i++ {
		if _, err := r.ReadU2(); err != nil { // constant pool index
			return nil, err
		}
		t, err := r.ReadU1()
		if err != nil {
			return nil, err
		}
		if err := r.Skip(int64(BasicTypeSize(BasicType(t), idSize))); err != nil {
			return nil, err
		}
	}

	staticCount, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	staticFields := make([]HeapField, 0, staticCount)
	for i := 0; i < int(staticCount); i++ {
		nameID, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		t, err := r.ReadU1()
		if err != nil {
			return nil, err
		}
		if err := r.Skip(int64(BasicTypeSize(BasicType(t), idSize))); err != nil {
			return nil, err
		}
		name, _ := d.StringByID(nameID)
		staticFields = append(staticFields, HeapField{Name: name, NameID: nameID, Type: BasicType(t), Static: true})
	}

	fieldCount, err := r.ReadU2()
	if err != nil {
		return nil, err
	}
	fields := make([]HeapField, 0, fieldCount)
	for i := 0; i < int(fieldCount); i++ {
		nameID, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		t, err := r.ReadU1()
		if err != nil {
			return nil, err
		}
		name, _ := d.StringByID(nameID)
		fields = append(fields, HeapField{Name: name, NameID: nameID, Type: BasicType(t)})
	}

	return &DecodedClass{
		NativeID:     classID,
		SuperClassID: superID,
		LoaderID:     loaderID,
		InstanceSize: int(instSize),
		Fields:       fields,
		StaticFields: staticFields,
	}, nil
}

func (d *Decoder) decodeInstanceDump(r *MappedReader, idSize int) (*DecodedInstance, error) {
	objID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial, unused
		return nil, err
	}
	classID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	dataLength, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	bodyOffset := r.Position()
	if err := r.Skip(int64(dataLength)); err != nil {
		return nil, err
	}
	return &DecodedInstance{
		NativeID:   objID,
		ClassID:    classID,
		BodyOffset: bodyOffset,
		DataLength: int(dataLength),
	}, nil
}

func (d *Decoder) decodeObjectArrayDump(r *MappedReader, idSize int) (*DecodedArray, error) {
	objID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial, unused
		return nil, err
	}
	length, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	elemClassID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	bodyOffset := r.Position()
	dataLen := int(length) * idSize
	if err := r.Skip(int64(dataLen)); err != nil {
		return nil, err
	}
	return &DecodedArray{
		NativeID:     objID,
		IsObject:     true,
		ArrayClassID: elemClassID,
		Length:       int(length),
		BodyOffset:   bodyOffset,
		DataLength:   dataLen,
	}, nil
}

func (d *Decoder) decodePrimitiveArrayDump(r *MappedReader, idSize int) (*DecodedArray, error) {
	objID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial, unused
		return nil, err
	}
	length, err := r.ReadU4()
	if err != nil {
		return nil, err
	}
	elemTypeByte, err := r.ReadU1()
	if err != nil {
		return nil, err
	}
	elemType := BasicType(elemTypeByte)
	bodyOffset := r.Position()
	dataLen := int(length) * BasicTypeSize(elemType, idSize)
	if err := r.Skip(int64(dataLen)); err != nil {
		return nil, err
	}
	return &DecodedArray{
		NativeID:   objID,
		IsObject:   false,
		ElemType:   elemType,
		Length:     int(length),
		BodyOffset: bodyOffset,
		DataLength: dataLen,
	}, nil
}
