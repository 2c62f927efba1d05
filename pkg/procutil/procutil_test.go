package procutil

import (
	"testing"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func TestOpenProcessByPID_rejectsZero(t *testing.T) {
	_, err := OpenProcessByPID(0)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestOpenProcessByName_rejectsEmpty(t *testing.T) {
	_, err := OpenProcessByName("")
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestListModules_rejectsZeroPID(t *testing.T) {
	_, err := ListModules(0)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestFindModule_rejectsEmptyName(t *testing.T) {
	_, err := FindModule("", 1234)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestListThreads_rejectsZeroPID(t *testing.T) {
	_, err := ListThreads(0)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestListRegions_rejectsInvalidHandle(t *testing.T) {
	if _, err := ListRegions(0); err == nil {
		t.Fatal("expected an error for a zero handle")
	}
	if _, err := ListRegions(windows.InvalidHandle); err == nil {
		t.Fatal("expected an error for windows.InvalidHandle")
	}
}

func TestVirtualQueryEx_rejectsInvalidHandle(t *testing.T) {
	if _, err := VirtualQueryEx(0, 0x1000); err == nil {
		t.Fatal("expected an error for a zero handle")
	}
}

func TestCloseHandle_rejectsInvalidHandle(t *testing.T) {
	if err := CloseHandle(0); err == nil {
		t.Fatal("expected an error for a zero handle")
	}
}
