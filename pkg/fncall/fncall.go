// Package fncall implements spec.md §4.3's remote function invocation: a
// trampoline-based call into the target process's address space.
//
// Grounded on original_source/native/functions.cc's reserveString
// (allocate, write, free-on-any-failure) generalized across every argument
// type rather than strings alone, and on
// _examples/disparu86-koolo/d2go_local/pkg/memory/process.go's
// CreateRemoteThread + WaitForSingleObject + GetExitCodeThread shellcode
// mechanics for the actual remote-thread plumbing. delve's pkg/proc/fncall.go
// is conceptual grounding only for the argument/return bookkeeping shape
// (functionCallState tracking pending cells to free) — its actual mechanism
// injects a call into an already-running Go runtime via debugCallV1, which
// does not apply to calling an arbitrary function in a foreign process.
package fncall

import (
	"time"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/memio"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.FnCallLogger()

const (
	memCommit            = 0x1000
	memReserve           = 0x2000
	pageExecuteReadWrite = 0x40
	memRelease           = 0x8000
)

// pendingCell is one allocation made in the target for the duration of a
// call; every cell, argument or scratch, is freed on every exit path.
type pendingCell struct {
	addr uintptr
	size uintptr
}

// allocator tracks cells allocated in the target so Call can free all of
// them on any exit, success or failure — the generalization of
// reserveString's free-on-failure discipline to the whole argument list.
type allocator struct {
	h     windows.Handle
	cells []pendingCell
}

func (a *allocator) alloc(size uintptr) (uintptr, error) {
	addr, err := winapi.VirtualAllocEx(a.h, 0, size, memCommit|memReserve, pageExecuteReadWrite)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsAlloc, Err: err}
	}
	a.cells = append(a.cells, pendingCell{addr: addr, size: size})
	return addr, nil
}

func (a *allocator) freeAll() {
	for _, c := range a.cells {
		if err := winapi.VirtualFreeEx(a.h, c.addr); err != nil {
			log.WithError(err).WithField("addr", c.addr).Debug("VirtualFreeEx failed during cleanup")
		}
	}
	a.cells = nil
}

// argCellSize returns the byte size to allocate for one argument, which for
// strings is len+1 for the NUL terminator (spec.md §4.1's write contract)
// and otherwise the tag's fixed width.
func argCellSize(a toolkit.Arg) uintptr {
	if a.Tag == toolkit.String {
		return uintptr(len(a.Val.Str) + 1)
	}
	return uintptr(a.Tag.Size())
}

// Call implements spec.md §4.3's five-step protocol: stage argument cells
// in the target, build the parameter block, spawn a remote thread at
// target, wait with a bounded timeout, decode the return value, and free
// every allocation on every exit path.
func Call(h windows.Handle, args []toolkit.Arg, retType toolkit.TypeTag, target uintptr, timeout time.Duration) (toolkit.CallResult, error) {
	if h == 0 || h == windows.InvalidHandle {
		return toolkit.CallResult{}, &toolkit.InvalidHandleError{}
	}
	if target == 0 {
		return toolkit.CallResult{}, &toolkit.InvalidArgumentError{Field: "target", Reason: "cannot be zero"}
	}

	a := &allocator{h: h}
	defer a.freeAll()

	// Step 1+2: stage each argument in target memory; for strings this is
	// a NUL-terminated copy, for scalars it is the raw encoded value. Each
	// cell's target address becomes one slot of the parameter block.
	slots := make([]uintptr, len(args))
	for i, arg := range args {
		size := argCellSize(arg)
		addr, err := a.alloc(size)
		if err != nil {
			return toolkit.CallResult{}, err
		}
		if err := writeArgCell(h, addr, arg); err != nil {
			return toolkit.CallResult{}, err
		}
		slots[i] = addr
	}

	paramBlock, err := buildParamBlock(a, slots)
	if err != nil {
		return toolkit.CallResult{}, err
	}

	// A scratch cell the trampoline writes its captured return value into.
	scratch, err := a.alloc(8)
	if err != nil {
		return toolkit.CallResult{}, err
	}

	trampoline, err := a.alloc(trampolineSize)
	if err != nil {
		return toolkit.CallResult{}, err
	}
	if err := writeTrampoline(h, trampoline, target, paramBlock, scratch, len(args)); err != nil {
		return toolkit.CallResult{}, err
	}

	// Step 3: spawn the remote thread at the trampoline.
	threadHandle, err := winapi.CreateRemoteThread(h, trampoline, 0)
	if err != nil {
		return toolkit.CallResult{}, &toolkit.OsFailureError{Kind: toolkit.OsThreadCreate, Err: err}
	}
	defer windows.CloseHandle(threadHandle)

	// Step 4: wait with a bounded timeout.
	waitMs := uint32(timeout.Milliseconds())
	if waitMs == 0 {
		waitMs = 5000
	}
	res, err := windows.WaitForSingleObject(threadHandle, waitMs)
	if err != nil {
		return toolkit.CallResult{}, &toolkit.OsFailureError{Kind: toolkit.OsWait, Err: err}
	}
	if res == uint32(windows.WAIT_TIMEOUT) {
		return toolkit.CallResult{}, &toolkit.TimeoutError{Op: "remote thread call"}
	}

	exitCode, err := winapi.GetExitCodeThread(threadHandle)
	if err != nil {
		return toolkit.CallResult{}, &toolkit.OsFailureError{Kind: toolkit.OsWait, Err: err}
	}

	retVal, err := decodeReturn(h, scratch, retType)
	if err != nil {
		return toolkit.CallResult{}, err
	}

	return toolkit.CallResult{ReturnValue: retVal, ExitCode: exitCode}, nil
}

func writeArgCell(h windows.Handle, addr uintptr, arg toolkit.Arg) error {
	return memio.Write(h, addr, arg.Tag, arg.Val)
}

// buildParamBlock writes the slot-pointer array (one pointer-sized cell per
// argument) into freshly-allocated target memory, encoding the argument
// list the trampoline unpacks.
func buildParamBlock(a *allocator, slots []uintptr) (uintptr, error) {
	size := uintptr(len(slots)*8) + 8 // +8 so a zero-arg call still gets a valid, non-empty cell
	addr, err := a.alloc(size)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	for i, s := range slots {
		putUintptrLE(buf[i*8:], uint64(s))
	}
	if err := memio.WriteBuffer(a.h, addr, buf); err != nil {
		return 0, err
	}
	return addr, nil
}

func putUintptrLE(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

// decodeReturn reads the trampoline's scratch cell and decodes it according
// to retType. string-return follows the §4.1.1 protocol on the pointer
// captured in scratch.
func decodeReturn(h windows.Handle, scratch uintptr, retType toolkit.TypeTag) (toolkit.Value, error) {
	switch retType {
	case toolkit.VoidReturn:
		return toolkit.Value{Tag: retType}, nil
	case toolkit.StringReturn:
		ptrVal, err := memio.Read(h, scratch, toolkit.Uptr)
		if err != nil {
			return toolkit.Value{}, err
		}
		s, err := memio.ReadString(h, uintptr(ptrVal.U64))
		if err != nil {
			return toolkit.Value{}, err
		}
		return toolkit.Value{Tag: retType, Str: s}, nil
	default:
		return memio.Read(h, scratch, retType)
	}
}
