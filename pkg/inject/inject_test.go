package inject

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func TestInject_rejectsInvalidHandle(t *testing.T) {
	_, err := Inject(0, "whatever.dll")
	if _, ok := err.(*toolkit.InvalidHandleError); !ok {
		t.Fatalf("expected InvalidHandleError, got %T (%v)", err, err)
	}
}

func TestInject_rejectsEmptyPath(t *testing.T) {
	_, err := Inject(windows.Handle(1), "")
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestInject_rejectsNonDllExtension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "payload.exe")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	_, err := Inject(windows.Handle(1), p)
	ia, ok := err.(*toolkit.InvalidArgumentError)
	if !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
	if ia.Field != "dllPath" {
		t.Fatalf("expected dllPath field, got %q", ia.Field)
	}
}

func TestInject_rejectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "does-not-exist.dll")
	_, err := Inject(windows.Handle(1), p)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestUnloadByName_rejectsEmptyName(t *testing.T) {
	err := UnloadByName(windows.Handle(1), 1234, "  ")
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestUnloadByBase_rejectsZero(t *testing.T) {
	err := UnloadByBase(windows.Handle(1), 0)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}
