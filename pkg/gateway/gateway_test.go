package gateway

import (
	"testing"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func TestWithCallback_invokesCallbackWithResultAndError(t *testing.T) {
	var gotErr error
	var gotVal int
	called := false
	var cb Callback[int] = func(err error, v int) {
		called = true
		gotErr = err
		gotVal = v
	}
	v, err := withCallback(cb, func() (int, error) { return 42, nil })
	if !called || err != nil || v != 42 || gotErr != nil || gotVal != 42 {
		t.Fatalf("callback not invoked correctly: called=%v v=%v err=%v gotVal=%v gotErr=%v", called, v, err, gotVal, gotErr)
	}
}

func TestWithCallback_nilCallbackIsNoop(t *testing.T) {
	v, err := withCallback[int](nil, func() (int, error) { return 7, nil })
	if v != 7 || err != nil {
		t.Fatalf("unexpected result: v=%v err=%v", v, err)
	}
}

func TestGateway_OpenProcessByPID_rejectsZero(t *testing.T) {
	g := New()
	_, err := g.OpenProcessByPID(0, nil)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestGateway_FindModule_rejectsEmptyName(t *testing.T) {
	g := New()
	_, err := g.FindModule("", 1234, nil)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestGateway_ReadMemory_rejectsInvalidHandle(t *testing.T) {
	g := New()
	_, err := g.ReadMemory(0, 0x1000, toolkit.I32, nil)
	if _, ok := err.(*toolkit.InvalidHandleError); !ok {
		t.Fatalf("expected InvalidHandleError, got %T (%v)", err, err)
	}
}

func TestGateway_FindPattern_rejectsEmptyPattern(t *testing.T) {
	g := New()
	_, err := g.FindPattern(windows.Handle(1), 1234, "  ", 0, 0, nil)
	ia, ok := err.(*toolkit.InvalidArgumentError)
	if !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
	if ia.Field != "pattern" {
		t.Fatalf("expected pattern field, got %q", ia.Field)
	}
}

func TestGateway_WriteMemory_rejectsPrecisionLoss(t *testing.T) {
	g := New()
	_, err := g.WriteMemory(windows.Handle(1), 0x1000, toolkit.I16, toolkit.Value{I64: 70000}, nil)
	if _, ok := err.(*toolkit.PrecisionLossError); !ok {
		t.Fatalf("expected *PrecisionLossError, got %T (%v)", err, err)
	}
}

func TestGateway_FindPatternSkipInstruction_rejectsEmptyModuleName(t *testing.T) {
	g := New()
	_, err := g.FindPatternSkipInstruction(windows.Handle(1), 1234, "  ", "48 8B 05", 0, nil)
	ia, ok := err.(*toolkit.InvalidArgumentError)
	if !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
	if ia.Field != "moduleName" {
		t.Fatalf("expected moduleName field, got %q", ia.Field)
	}
}

func TestGateway_UnloadDll_rejectsMissingModuleRef(t *testing.T) {
	g := New()
	_, err := g.UnloadDll(windows.Handle(1), 1234, toolkit.ModuleRef{}, nil)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestGateway_AttachDebugger_rejectsNonPositivePid(t *testing.T) {
	g := New()
	_, err := g.AttachDebugger(0, false, nil)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}

func TestGateway_VirtualAllocEx_rejectsZeroSize(t *testing.T) {
	g := New()
	_, err := g.VirtualAllocEx(windows.Handle(1), 0, 0, 0, 0, nil)
	if _, ok := err.(*toolkit.InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T (%v)", err, err)
	}
}
