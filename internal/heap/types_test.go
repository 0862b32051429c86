package heap

import "testing"

func TestBasicTypeSize(t *testing.T) {
	cases := []struct {
		typ    BasicType
		idSize int
		want   int
	}{
		{TypeObject, 4, 4},
		{TypeObject, 8, 8},
		{TypeBoolean, 8, 1},
		{TypeByte, 8, 1},
		{TypeChar, 8, 2},
		{TypeShort, 8, 2},
		{TypeFloat, 8, 4},
		{TypeInt, 8, 4},
		{TypeDouble, 8, 8},
		{TypeLong, 8, 8},
	}
	for _, c := range cases {
		if got := BasicTypeSize(c.typ, c.idSize); got != c.want {
			t.Errorf("BasicTypeSize(%v, %d) = %d, want %d", c.typ, c.idSize, got, c.want)
		}
	}
}

func TestGcRootTypeString(t *testing.T) {
	if GcRootJNIGlobal.String() != "JNI_GLOBAL" {
		t.Errorf("unexpected String() for GcRootJNIGlobal: %s", GcRootJNIGlobal.String())
	}
	if GcRootType(255).String() != "UNKNOWN" {
		t.Errorf("unrecognized GcRootType should stringify to UNKNOWN")
	}
}

func TestHeapDumpTagToGcRootType(t *testing.T) {
	cases := []struct {
		tag  HeapDumpTag
		want GcRootType
	}{
		{HeapTagRootJNIGlobal, GcRootJNIGlobal},
		{HeapTagRootStickyClass, GcRootStickyClass},
		{HeapTagRootThreadObject, GcRootThreadObject},
		{HeapTagRootUnknown, GcRootUnknown},
	}
	for _, c := range cases {
		if got := heapDumpTagToGcRootType(c.tag); got != c.want {
			t.Errorf("heapDumpTagToGcRootType(%v) = %v, want %v", c.tag, got, c.want)
		}
	}
}

func TestParsingModeString(t *testing.T) {
	if ModeAuto.String() != "AUTO" {
		t.Errorf("ModeAuto.String() = %q", ModeAuto.String())
	}
	if ModeInMemory.String() != "IN_MEMORY" {
		t.Errorf("ModeInMemory.String() = %q", ModeInMemory.String())
	}
	if ModeIndexed.String() != "INDEXED" {
		t.Errorf("ModeIndexed.String() = %q", ModeIndexed.String())
	}
}

func TestNeverCancelAndNullProgress(t *testing.T) {
	var c CancelPredicate = NeverCancel{}
	if c.Cancelled() {
		t.Errorf("NeverCancel reported cancellation")
	}
	// Tick must not panic; there's nothing else to assert against a no-op sink.
	var p Progress = NullProgress{}
	p.Tick(0.5, "halfway")
}
