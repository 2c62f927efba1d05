// Package gateway implements spec.md §4.7: the request gateway sitting
// above every other component. One synchronous core function per
// operation, upfront argument validation before any OS state is touched,
// and a generic callback/sync duality so every method can be called either
// way without two implementations.
//
// Grounded on original_source/src/memoryprocess.ts's exhaustive argument
// checks (non-negative handle/address/pid, non-empty name/pattern,
// positive size, enum-membership checks), translated from its runtime
// typeof-based guards into Go's static typing plus the explicit
// range/emptiness checks Go's type system doesn't already rule out.
package gateway

import (
	"strings"
	"time"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/filemap"
	"github.com/xmemkit/xmemkit/pkg/fncall"
	"github.com/xmemkit/xmemkit/pkg/hwdebug"
	"github.com/xmemkit/xmemkit/pkg/inject"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/memio"
	"github.com/xmemkit/xmemkit/pkg/procutil"
	"github.com/xmemkit/xmemkit/pkg/scanner"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.GatewayLogger()

// Callback mirrors spec.md §4.7's optional completion-callback shape:
// errors delivered first, results second. The sync and callback forms are
// semantically identical — the callback form never implies asynchrony
// beyond the wrapped operation itself.
type Callback[T any] func(error, T)

// withCallback is the single place every gateway method funnels through,
// so there is never a second implementation of the same operation for the
// callback-bearing call shape.
func withCallback[T any](cb Callback[T], fn func() (T, error)) (T, error) {
	v, err := fn()
	if cb != nil {
		cb(err, v)
	}
	return v, err
}

func validHandle(h windows.Handle) error {
	if h == 0 || h == windows.InvalidHandle {
		return &toolkit.InvalidHandleError{}
	}
	return nil
}

// Gateway holds nothing but dispatches to the packages below; it exists so
// method call sites read the same way the teacher's RPCServer methods do
// and so service/rpc2 has a single receiver to wrap.
type Gateway struct{}

func New() *Gateway { return &Gateway{} }

func (g *Gateway) OpenProcessByPID(pid uint32, cb Callback[toolkit.ProcessRef]) (toolkit.ProcessRef, error) {
	return withCallback(cb, func() (toolkit.ProcessRef, error) {
		if pid == 0 {
			return toolkit.ProcessRef{}, &toolkit.InvalidArgumentError{Field: "pid", Reason: "cannot be zero"}
		}
		return procutil.OpenProcessByPID(pid)
	})
}

func (g *Gateway) OpenProcessByName(name string, cb Callback[toolkit.ProcessRef]) (toolkit.ProcessRef, error) {
	return withCallback(cb, func() (toolkit.ProcessRef, error) {
		if strings.TrimSpace(name) == "" {
			return toolkit.ProcessRef{}, &toolkit.InvalidArgumentError{Field: "name", Reason: "cannot be empty"}
		}
		return procutil.OpenProcessByName(name)
	})
}

func (g *Gateway) CloseHandle(h windows.Handle, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if err := validHandle(h); err != nil {
			return false, err
		}
		if err := procutil.CloseHandle(h); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (g *Gateway) GetProcesses(cb Callback[[]toolkit.ProcessRef]) ([]toolkit.ProcessRef, error) {
	return withCallback(cb, func() ([]toolkit.ProcessRef, error) { return procutil.ListProcesses() })
}

func (g *Gateway) GetModules(pid uint32, cb Callback[[]toolkit.ModuleDescriptor]) ([]toolkit.ModuleDescriptor, error) {
	return withCallback(cb, func() ([]toolkit.ModuleDescriptor, error) {
		if pid == 0 {
			return nil, &toolkit.InvalidArgumentError{Field: "pid", Reason: "cannot be zero"}
		}
		return procutil.ListModules(pid)
	})
}

func (g *Gateway) FindModule(name string, pid uint32, cb Callback[toolkit.ModuleDescriptor]) (toolkit.ModuleDescriptor, error) {
	return withCallback(cb, func() (toolkit.ModuleDescriptor, error) {
		if strings.TrimSpace(name) == "" {
			return toolkit.ModuleDescriptor{}, &toolkit.InvalidArgumentError{Field: "name", Reason: "cannot be empty"}
		}
		if pid == 0 {
			return toolkit.ModuleDescriptor{}, &toolkit.InvalidArgumentError{Field: "pid", Reason: "cannot be zero"}
		}
		return procutil.FindModule(name, pid)
	})
}

func (g *Gateway) GetThreads(pid uint32, cb Callback[[]toolkit.ThreadDescriptor]) ([]toolkit.ThreadDescriptor, error) {
	return withCallback(cb, func() ([]toolkit.ThreadDescriptor, error) {
		if pid == 0 {
			return nil, &toolkit.InvalidArgumentError{Field: "pid", Reason: "cannot be zero"}
		}
		return procutil.ListThreads(pid)
	})
}

func (g *Gateway) GetRegions(h windows.Handle, cb Callback[[]toolkit.Region]) ([]toolkit.Region, error) {
	return withCallback(cb, func() ([]toolkit.Region, error) {
		if err := validHandle(h); err != nil {
			return nil, err
		}
		return procutil.ListRegions(h)
	})
}

func (g *Gateway) VirtualQueryEx(h windows.Handle, addr uintptr, cb Callback[toolkit.Region]) (toolkit.Region, error) {
	return withCallback(cb, func() (toolkit.Region, error) {
		if err := validHandle(h); err != nil {
			return toolkit.Region{}, err
		}
		return procutil.VirtualQueryEx(h, addr)
	})
}

func (g *Gateway) ReadMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag, cb Callback[toolkit.Value]) (toolkit.Value, error) {
	return withCallback(cb, func() (toolkit.Value, error) {
		if err := validHandle(h); err != nil {
			return toolkit.Value{}, err
		}
		return memio.Read(h, addr, tag)
	})
}

func (g *Gateway) WriteMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag, val toolkit.Value, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if err := validHandle(h); err != nil {
			return false, err
		}
		if err := toolkit.CheckPrecisionLoss(tag, val); err != nil {
			return false, err
		}
		if err := memio.Write(h, addr, tag, val); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (g *Gateway) ReadBuffer(h windows.Handle, addr uintptr, n int, cb Callback[[]byte]) ([]byte, error) {
	return withCallback(cb, func() ([]byte, error) {
		if err := validHandle(h); err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, &toolkit.InvalidArgumentError{Field: "n", Reason: "must be positive"}
		}
		return memio.ReadBuffer(h, addr, n)
	})
}

func (g *Gateway) WriteBuffer(h windows.Handle, addr uintptr, data []byte, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if err := validHandle(h); err != nil {
			return false, err
		}
		if len(data) == 0 {
			return false, &toolkit.InvalidArgumentError{Field: "data", Reason: "cannot be empty"}
		}
		if err := memio.WriteBuffer(h, addr, data); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (g *Gateway) FindPattern(h windows.Handle, pid uint32, pattern string, flags toolkit.ScanFlags, offset int, cb Callback[uintptr]) (uintptr, error) {
	return withCallback(cb, func() (uintptr, error) {
		if err := validatePatternArgs(h, pattern); err != nil {
			return 0, err
		}
		return scanner.FindPattern(h, pid, pattern, flags, offset)
	})
}

func (g *Gateway) FindPatternByModule(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags, offset int, cb Callback[uintptr]) (uintptr, error) {
	return withCallback(cb, func() (uintptr, error) {
		if err := validatePatternArgs(h, pattern); err != nil {
			return 0, err
		}
		if strings.TrimSpace(moduleName) == "" {
			return 0, &toolkit.InvalidArgumentError{Field: "moduleName", Reason: "cannot be empty"}
		}
		return scanner.FindPatternByModule(h, pid, moduleName, pattern, flags, offset)
	})
}

// FindPatternSkipInstruction implements the opt-in instruction-length-aware
// enrichment over a single module's address range: the hit lands past the
// matched instruction rather than at a caller-picked fixed offset.
func (g *Gateway) FindPatternSkipInstruction(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags, cb Callback[uintptr]) (uintptr, error) {
	return withCallback(cb, func() (uintptr, error) {
		if err := validatePatternArgs(h, pattern); err != nil {
			return 0, err
		}
		if strings.TrimSpace(moduleName) == "" {
			return 0, &toolkit.InvalidArgumentError{Field: "moduleName", Reason: "cannot be empty"}
		}
		mod, err := procutil.FindModule(moduleName, pid)
		if err != nil {
			return 0, err
		}
		return scanner.FindPatternSkipInstruction(h, mod.ModBaseAddr, int(mod.ModBaseSize), pattern, flags)
	})
}

func (g *Gateway) FindPatternByAddress(h windows.Handle, pid uint32, base uintptr, pattern string, flags toolkit.ScanFlags, offset int, cb Callback[uintptr]) (uintptr, error) {
	return withCallback(cb, func() (uintptr, error) {
		if err := validatePatternArgs(h, pattern); err != nil {
			return 0, err
		}
		return scanner.FindPatternByAddress(h, pid, base, pattern, flags, offset)
	})
}

func (g *Gateway) FindPatternInRegion(h windows.Handle, base uintptr, size int, pattern string, flags toolkit.ScanFlags, offset int, cb Callback[uintptr]) (uintptr, error) {
	return withCallback(cb, func() (uintptr, error) {
		if err := validatePatternArgs(h, pattern); err != nil {
			return 0, err
		}
		if size <= 0 {
			return 0, &toolkit.InvalidArgumentError{Field: "size", Reason: "must be positive"}
		}
		return scanner.FindPatternInRegion(h, base, size, pattern, flags, offset)
	})
}

func validatePatternArgs(h windows.Handle, pattern string) error {
	if err := validHandle(h); err != nil {
		return err
	}
	if strings.TrimSpace(pattern) == "" {
		return &toolkit.InvalidArgumentError{Field: "pattern", Reason: "cannot be empty"}
	}
	return nil
}

func (g *Gateway) CallFunction(h windows.Handle, args []toolkit.Arg, retType toolkit.TypeTag, target uintptr, timeout time.Duration, cb Callback[toolkit.CallResult]) (toolkit.CallResult, error) {
	return withCallback(cb, func() (toolkit.CallResult, error) {
		if err := validHandle(h); err != nil {
			return toolkit.CallResult{}, err
		}
		if target == 0 {
			return toolkit.CallResult{}, &toolkit.InvalidArgumentError{Field: "target", Reason: "cannot be zero"}
		}
		for _, a := range args {
			if err := toolkit.CheckPrecisionLoss(a.Tag, a.Val); err != nil {
				return toolkit.CallResult{}, err
			}
		}
		return fncall.Call(h, args, retType, target, timeout)
	})
}

func (g *Gateway) InjectDll(h windows.Handle, dllPath string, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if err := validHandle(h); err != nil {
			return false, err
		}
		if _, err := inject.Inject(h, dllPath); err != nil {
			return false, err
		}
		return true, nil
	})
}

// UnloadDll accepts either a module name or a non-zero base address,
// mirroring memoryprocess.ts's module: string | number union.
func (g *Gateway) UnloadDll(h windows.Handle, pid uint32, module toolkit.ModuleRef, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if err := validHandle(h); err != nil {
			return false, err
		}
		var err error
		if module.BaseAddr != 0 {
			err = inject.UnloadByBase(h, module.BaseAddr)
		} else if strings.TrimSpace(module.Name) != "" {
			err = inject.UnloadByName(h, pid, module.Name)
		} else {
			return false, &toolkit.InvalidArgumentError{Field: "module", Reason: "must name a module or a non-zero base address"}
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

func (g *Gateway) AttachDebugger(pid int, killOnExit bool, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if pid <= 0 {
			return false, &toolkit.InvalidArgumentError{Field: "pid", Reason: "must be positive"}
		}
		if err := hwdebug.Attach(pid, killOnExit); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (g *Gateway) DetachDebugger(pid int, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if pid <= 0 {
			return false, &toolkit.InvalidArgumentError{Field: "pid", Reason: "must be positive"}
		}
		if err := hwdebug.Detach(pid); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (g *Gateway) SetHardwareBreakpoint(pid int, addr uintptr, slot uint8, trigger toolkit.BreakpointTrigger, length int, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if pid <= 0 {
			return false, &toolkit.InvalidArgumentError{Field: "pid", Reason: "must be positive"}
		}
		return hwdebug.SetHardwareBreakpoint(pid, addr, slot, trigger, length)
	})
}

func (g *Gateway) RemoveHardwareBreakpoint(pid int, slot uint8, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if pid <= 0 {
			return false, &toolkit.InvalidArgumentError{Field: "pid", Reason: "must be positive"}
		}
		return hwdebug.RemoveHardwareBreakpoint(pid, slot)
	})
}

func (g *Gateway) AwaitDebugEvent(pid int, expectedSlot int8, timeoutMs uint32, cb Callback[*toolkit.DebugEvent]) (*toolkit.DebugEvent, error) {
	return withCallback(cb, func() (*toolkit.DebugEvent, error) {
		if pid <= 0 {
			return nil, &toolkit.InvalidArgumentError{Field: "pid", Reason: "must be positive"}
		}
		return hwdebug.AwaitDebugEvent(pid, expectedSlot, timeoutMs)
	})
}

func (g *Gateway) HandleDebugEvent(pid, tid int, cb Callback[bool]) (bool, error) {
	return withCallback(cb, func() (bool, error) {
		if pid <= 0 || tid <= 0 {
			return false, &toolkit.InvalidArgumentError{Field: "pid/tid", Reason: "must be positive"}
		}
		if err := hwdebug.HandleDebugEvent(pid, tid); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (g *Gateway) OpenFileMapping(name string, cb Callback[windows.Handle]) (windows.Handle, error) {
	return withCallback(cb, func() (windows.Handle, error) {
		if strings.TrimSpace(name) == "" {
			return 0, &toolkit.InvalidArgumentError{Field: "name", Reason: "cannot be empty"}
		}
		return filemap.OpenFileMapping(name)
	})
}

func (g *Gateway) MapViewOfFile(targetHandle, sectionHandle windows.Handle, offset uint64, viewSize uintptr, protect uint32, cb Callback[uintptr]) (uintptr, error) {
	return withCallback(cb, func() (uintptr, error) {
		if err := validHandle(targetHandle); err != nil {
			return 0, err
		}
		if err := validHandle(sectionHandle); err != nil {
			return 0, err
		}
		return filemap.MapViewOfFile(targetHandle, sectionHandle, offset, viewSize, protect)
	})
}

// VirtualAllocEx and VirtualProtectEx are exposed directly since they have
// no richer home package of their own — they are thin, validated
// passthroughs to pkg/memio's VirtualAllocEx/VirtualProtectEx.
func (g *Gateway) VirtualAllocEx(h windows.Handle, addr, size uintptr, allocType, protect uint32, cb Callback[uintptr]) (uintptr, error) {
	return withCallback(cb, func() (uintptr, error) {
		if err := validHandle(h); err != nil {
			return 0, err
		}
		if size == 0 {
			return 0, &toolkit.InvalidArgumentError{Field: "size", Reason: "must be positive"}
		}
		return memio.VirtualAllocEx(h, addr, size, allocType, protect)
	})
}

func (g *Gateway) VirtualProtectEx(h windows.Handle, addr, size uintptr, protect uint32, cb Callback[uint32]) (uint32, error) {
	return withCallback(cb, func() (uint32, error) {
		if err := validHandle(h); err != nil {
			return 0, err
		}
		if size == 0 {
			return 0, &toolkit.InvalidArgumentError{Field: "size", Reason: "must be positive"}
		}
		return memio.VirtualProtectEx(h, addr, size, protect)
	})
}
