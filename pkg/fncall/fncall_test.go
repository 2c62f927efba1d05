package fncall

import (
	"testing"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func TestArgCellSize_scalarUsesTagWidth(t *testing.T) {
	a := toolkit.Arg{Tag: toolkit.I32, Val: toolkit.Value{I64: 5}}
	if got := argCellSize(a); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}

func TestArgCellSize_stringIncludesNulTerminator(t *testing.T) {
	a := toolkit.Arg{Tag: toolkit.String, Val: toolkit.Value{Str: "hello"}}
	if got := argCellSize(a); got != 6 {
		t.Fatalf("expected 6 (len+NUL), got %d", got)
	}
}

func TestArgCellSize_emptyString(t *testing.T) {
	a := toolkit.Arg{Tag: toolkit.String, Val: toolkit.Value{Str: ""}}
	if got := argCellSize(a); got != 1 {
		t.Fatalf("expected 1 (just the NUL), got %d", got)
	}
}

func TestAppendUint64LE(t *testing.T) {
	buf := appendUint64LE(nil, 0x0102030405060708)
	want := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if len(buf) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(buf))
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, buf[i], want[i])
		}
	}
}
