package toolkit

import "testing"

func TestTypeTag_ParseStringRoundTrip(t *testing.T) {
	tags := []TypeTag{
		I8, U8, I16, U16, I32, U32, I64, U64, F32, F64,
		Bool, Ptr, Uptr, Char, String, TagVec3, TagVec4,
	}
	for _, tag := range tags {
		got, err := ParseTypeTag(tag.String())
		if err != nil {
			t.Fatalf("ParseTypeTag(%q): %v", tag.String(), err)
		}
		if got != tag {
			t.Errorf("ParseTypeTag(%q) = %v, want %v", tag.String(), got, tag)
		}
	}
}

func TestParseTypeTag_caseInsensitive(t *testing.T) {
	got, err := ParseTypeTag("I32")
	if err != nil {
		t.Fatal(err)
	}
	if got != I32 {
		t.Errorf("got %v, want I32", got)
	}
}

func TestParseTypeTag_unknown(t *testing.T) {
	if _, err := ParseTypeTag("nonsense"); err == nil {
		t.Fatal("expected an error for an unrecognized type name")
	}
}

func TestCheckPrecisionLoss_detectsIntegerOverflow(t *testing.T) {
	cases := []struct {
		name string
		tag  TypeTag
		v    Value
	}{
		{"I8 overflow", I8, Value{I64: 200}},
		{"U8 overflow", U8, Value{U64: 300}},
		{"I16 overflow", I16, Value{I64: 70000}},
		{"U16 overflow", U16, Value{U64: 70000}},
		{"I32 overflow", I32, Value{I64: 1 << 40}},
		{"U32 overflow", U32, Value{U64: 1 << 40}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := CheckPrecisionLoss(c.tag, c.v)
			if _, ok := err.(*PrecisionLossError); !ok {
				t.Fatalf("expected *PrecisionLossError, got %T (%v)", err, err)
			}
		})
	}
}

func TestCheckPrecisionLoss_acceptsInRangeValues(t *testing.T) {
	cases := []struct {
		name string
		tag  TypeTag
		v    Value
	}{
		{"I8 in range", I8, Value{I64: -100}},
		{"U8 in range", U8, Value{U64: 250}},
		{"I32 in range", I32, Value{I64: 123456}},
		{"F32 round trips", F32, Value{F32: 1.5, F64: 1.5}},
		{"I64 always wide enough", I64, Value{I64: 1 << 62}},
		{"U64 always wide enough", U64, Value{U64: 1 << 63}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := CheckPrecisionLoss(c.tag, c.v); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckPrecisionLoss_detectsFloatNarrowing(t *testing.T) {
	f64 := 1.0000000000000002 // not exactly representable as float32
	v := Value{F32: float32(f64), F64: f64}
	err := CheckPrecisionLoss(F32, v)
	if _, ok := err.(*PrecisionLossError); !ok {
		t.Fatalf("expected *PrecisionLossError, got %T (%v)", err, err)
	}
}

func TestTypeTag_Size(t *testing.T) {
	cases := map[TypeTag]int{
		I8: 1, U8: 1, Bool: 1, Char: 1,
		I16: 2, U16: 2,
		I32: 4, U32: 4, F32: 4,
		I64: 8, U64: 8, F64: 8, Ptr: 8, Uptr: 8,
		TagVec3: 12,
		TagVec4: 16,
		String:  0,
	}
	for tag, want := range cases {
		if got := tag.Size(); got != want {
			t.Errorf("%v.Size() = %d, want %d", tag, got, want)
		}
	}
}
