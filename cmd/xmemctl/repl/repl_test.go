package repl

import (
	"testing"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func TestParseAddr(t *testing.T) {
	cases := map[string]uintptr{
		"0x1000": 0x1000,
		"1000":   0x1000,
		"0X2A":   0x2a,
		"ff":     0xff,
	}
	for in, want := range cases {
		got, err := parseAddr(in)
		if err != nil {
			t.Fatalf("parseAddr(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parseAddr(%q) = 0x%x, want 0x%x", in, got, want)
		}
	}
}

func TestParseAddr_rejectsGarbage(t *testing.T) {
	if _, err := parseAddr("not-hex"); err == nil {
		t.Fatal("expected an error for non-hex input")
	}
}

func TestParseValue_roundTrip(t *testing.T) {
	v, err := parseValue(toolkit.I32, "42")
	if err != nil {
		t.Fatal(err)
	}
	if v.I64 != 42 {
		t.Errorf("I64 = %d, want 42", v.I64)
	}
	if formatValue(v) != "42" {
		t.Errorf("formatValue = %q, want %q", formatValue(v), "42")
	}
}

func TestParseValue_bool(t *testing.T) {
	v, err := parseValue(toolkit.Bool, "true")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Bool {
		t.Error("expected Bool to be true")
	}
	if formatValue(v) != "true" {
		t.Errorf("formatValue = %q, want %q", formatValue(v), "true")
	}
}

func TestParseValue_float(t *testing.T) {
	v, err := parseValue(toolkit.F64, "3.5")
	if err != nil {
		t.Fatal(err)
	}
	if v.F64 != 3.5 {
		t.Errorf("F64 = %v, want 3.5", v.F64)
	}
}

func TestParseValue_string(t *testing.T) {
	v, err := parseValue(toolkit.String, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if formatValue(v) != "hello" {
		t.Errorf("formatValue = %q, want %q", formatValue(v), "hello")
	}
}

func TestSplitArgs_quoting(t *testing.T) {
	fields, err := splitArgs(`write string 0x1000 "hello world"`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"write", "string", "0x1000", "hello world"}
	if len(fields) != len(want) {
		t.Fatalf("splitArgs returned %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestTerm_requireHandle(t *testing.T) {
	term := &Term{}
	if err := term.requireHandle(); err == nil {
		t.Fatal("expected an error with no handle open")
	}
}
