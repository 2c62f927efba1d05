package filemap

import (
	"testing"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func TestOpenFileMapping_rejectsEmptyName(t *testing.T) {
	_, err := OpenFileMapping("  ")
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestMapViewOfFile_rejectsInvalidHandles(t *testing.T) {
	if _, err := MapViewOfFile(0, windows.Handle(1), 0, 0, 0); err == nil {
		t.Fatalf("expected error for zero targetHandle")
	}
	if _, err := MapViewOfFile(windows.Handle(1), 0, 0, 0, 0); err == nil {
		t.Fatalf("expected error for zero sectionHandle")
	}
}

func TestUnmapViewOfFile_rejectsZeroBase(t *testing.T) {
	err := UnmapViewOfFile(windows.Handle(1), 0)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}
