// Package hwdebug implements spec.md §4.5's hardware-breakpoint debugger: a
// process-wide singleton session set keyed by target pid, DR0-DR3 breakpoint
// programming across every thread of a target, and the attach/detach/await
// event loop.
//
// Grounded on pkg/proc/native/proc_windows.go's waitForDebugEvent dispatch
// loop (continue-vs-break decision per exception code) for AwaitDebugEvent,
// and on pkg/proc/amd64util/debugregs.go's bit math (adapted in
// debugregs.go) for breakpoint programming. DebugActiveProcess/Stop and
// WaitForDebugEvent/ContinueDebugEvent come from internal/winapi, already
// grounded there on syscall_windows.go's DEBUG_EVENT layout.
package hwdebug

import (
	"sync"
	"time"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/procutil"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.HwDebugLogger()

// sessions is the one process-wide mutable resource spec.md §5 calls out:
// attach/detach/breakpoint/await for the same pid are mutually exclusive,
// enforced here with a single mutex rather than one per session, since
// cross-session operations never interleave meaningfully on the same lock.
var (
	sessionsMu sync.Mutex
	sessions   = map[int]*toolkit.DebugSession{}
)

const threadAccess = windows.THREAD_GET_CONTEXT | windows.THREAD_SET_CONTEXT |
	windows.THREAD_SUSPEND_RESUME | windows.THREAD_QUERY_INFORMATION

// Attach registers the caller as pid's debugger. Fails if a session for pid
// is already Attached.
func Attach(pid int, killOnExit bool) error {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	if s, ok := sessions[pid]; ok && s.State == toolkit.Attached {
		return &toolkit.DebugStateError{Pid: pid, State: s.State, Wanted: "Detached"}
	}

	session := &toolkit.DebugSession{Pid: pid, State: toolkit.Attaching, KillOnExit: killOnExit}
	sessions[pid] = session

	if err := winapi.DebugActiveProcess(uint32(pid)); err != nil {
		session.State = toolkit.Detached
		return &toolkit.OsFailureError{Kind: toolkit.OsDebug, Err: err}
	}

	session.State = toolkit.Attached
	return nil
}

// Detach clears every armed breakpoint across every thread of pid, then
// stops debugging it.
func Detach(pid int) error {
	sessionsMu.Lock()
	session, ok := sessions[pid]
	if !ok || session.State != toolkit.Attached {
		sessionsMu.Unlock()
		state := toolkit.Detached
		if ok {
			state = session.State
		}
		return &toolkit.DebugStateError{Pid: pid, State: state, Wanted: "Attached"}
	}
	session.State = toolkit.Detaching
	sessionsMu.Unlock()

	for slot := uint8(0); slot < 4; slot++ {
		if session.Breakpoints[slot] != nil {
			if _, err := removeBreakpointAllThreads(pid, slot); err != nil {
				log.WithError(err).WithField("slot", slot).Debug("failed clearing breakpoint slot during detach")
			}
		}
	}

	err := winapi.DebugActiveProcessStop(uint32(pid))

	sessionsMu.Lock()
	session.State = toolkit.Detached
	sessionsMu.Unlock()

	if err != nil {
		return &toolkit.OsFailureError{Kind: toolkit.OsDebug, Err: err}
	}
	return nil
}

// SetHardwareBreakpoint programs DR{slot} to address with the given trigger
// and length across every running thread of pid. An address of zero is
// removal, per spec.md §4.5.2. Reports true iff at least one thread was
// updated.
func SetHardwareBreakpoint(pid int, address uintptr, slot uint8, trigger toolkit.BreakpointTrigger, length int) (bool, error) {
	if slot > 3 {
		return false, &toolkit.InvalidArgumentError{Field: "slot", Reason: "must be 0..3 (DR0..DR3)"}
	}
	session, err := requireAttached(pid)
	if err != nil {
		return false, err
	}

	if address == 0 {
		return removeBreakpointAllThreads(pid, slot)
	}

	if _, err := lengthBits(length); err != nil {
		return false, err
	}
	if _, err := triggerBits(trigger); err != nil {
		return false, err
	}

	ok, err := forEachThreadContext(pid, func(ctx *winapi.Context64) error {
		return armContext(ctx, slot, uint64(address), trigger, length)
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &toolkit.NotFoundError{Subject: "runnable thread in target process"}
	}

	sessionsMu.Lock()
	session.Breakpoints[slot] = &toolkit.Breakpoint{Slot: slot, Address: address, Trigger: trigger, Length: length}
	sessionsMu.Unlock()
	return true, nil
}

// RemoveHardwareBreakpoint clears DR{slot} across every thread of pid.
func RemoveHardwareBreakpoint(pid int, slot uint8) (bool, error) {
	if slot > 3 {
		return false, &toolkit.InvalidArgumentError{Field: "slot", Reason: "must be 0..3 (DR0..DR3)"}
	}
	if _, err := requireAttached(pid); err != nil {
		return false, err
	}
	return removeBreakpointAllThreads(pid, slot)
}

func removeBreakpointAllThreads(pid int, slot uint8) (bool, error) {
	ok, err := forEachThreadContext(pid, func(ctx *winapi.Context64) error {
		disarmContext(ctx, slot)
		return nil
	})
	if err != nil {
		return false, err
	}
	sessionsMu.Lock()
	if s, found := sessions[pid]; found {
		s.Breakpoints[slot] = nil
	}
	sessionsMu.Unlock()
	return ok, nil
}

// forEachThreadContext applies fn to the debug-register context of every
// running thread of pid, committing the mutated context back. Per spec.md
// §4.5.2's step 5, failure on any single thread is logged and skipped, not
// fatal; the return reports whether at least one thread succeeded.
func forEachThreadContext(pid int, fn func(ctx *winapi.Context64) error) (bool, error) {
	threads, err := procutil.ListThreads(uint32(pid))
	if err != nil {
		return false, err
	}

	anyUpdated := false
	for _, t := range threads {
		h, oerr := windows.OpenThread(threadAccess, false, t.Th32ThreadID)
		if oerr != nil {
			log.WithError(oerr).WithField("tid", t.Th32ThreadID).Debug("OpenThread failed, skipping")
			continue
		}

		if _, serr := winapi.SuspendThread(h); serr != nil {
			log.WithError(serr).WithField("tid", t.Th32ThreadID).Debug("SuspendThread failed, skipping")
			windows.CloseHandle(h)
			continue
		}

		var ctx winapi.Context64
		if gerr := winapi.GetThreadContext(h, &ctx); gerr != nil {
			log.WithError(gerr).WithField("tid", t.Th32ThreadID).Debug("GetThreadContext failed, skipping")
			winapi.ResumeThread(h)
			windows.CloseHandle(h)
			continue
		}

		if ferr := fn(&ctx); ferr != nil {
			log.WithError(ferr).WithField("tid", t.Th32ThreadID).Debug("context mutation rejected, skipping")
			winapi.ResumeThread(h)
			windows.CloseHandle(h)
			continue
		}

		if serr := winapi.SetThreadContext(h, &ctx); serr != nil {
			log.WithError(serr).WithField("tid", t.Th32ThreadID).Debug("SetThreadContext failed, skipping")
			winapi.ResumeThread(h)
			windows.CloseHandle(h)
			continue
		}

		winapi.ResumeThread(h)
		windows.CloseHandle(h)
		anyUpdated = true
	}
	return anyUpdated, nil
}

// AwaitDebugEvent blocks up to timeoutMs for an OS debug event targeting
// pid. Events not attributable to expectedSlot are silently continued
// (continue-unhandled) and the wait resumes until timeoutMs elapses.
func AwaitDebugEvent(pid int, expectedSlot int8, timeoutMs uint32) (*toolkit.DebugEvent, error) {
	session, err := requireAttached(pid)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for first := true; ; first = false {
		wait := timeoutMs
		if !first {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, nil
			}
			wait = uint32(remaining / time.Millisecond)
		}
		raw, ok := winapi.WaitForDebugEvent(wait)
		if !ok {
			return nil, nil
		}
		if int(raw.ProcessID) != pid {
			winapi.ContinueDebugEvent(raw.ProcessID, raw.ThreadID, winapi.DbgContinue)
			continue
		}

		const exceptionDebugEvent = 1
		if raw.Code != exceptionDebugEvent {
			winapi.ContinueDebugEvent(raw.ProcessID, raw.ThreadID, winapi.DbgContinue)
			continue
		}

		sessionsMu.Lock()
		hw := matchSlot(session.Breakpoints, raw.ExceptionAddr)
		sessionsMu.Unlock()

		ev := &toolkit.DebugEvent{
			Pid:              pid,
			Tid:              int(raw.ThreadID),
			ExceptionCode:    raw.ExceptionCode,
			ExceptionFlags:   raw.ExceptionFlags,
			FaultingAddress:  raw.ExceptionAddr,
			HardwareRegister: hw,
		}

		if hw >= 0 && int8(hw) == expectedSlot {
			return ev, nil
		}

		if cerr := winapi.ContinueDebugEvent(raw.ProcessID, raw.ThreadID, winapi.DbgExceptionNotHandled); cerr != nil {
			return nil, &toolkit.OsFailureError{Kind: toolkit.OsDebug, Err: cerr}
		}
	}
}

// HandleDebugEvent continues the thread tid of pid following a DebugEvent
// returned by AwaitDebugEvent, completing the pair the caller is obliged to
// issue together per spec.md §4.5.3.
func HandleDebugEvent(pid, tid int) error {
	if _, err := requireAttached(pid); err != nil {
		return err
	}
	if err := winapi.ContinueDebugEvent(uint32(pid), uint32(tid), winapi.DbgContinue); err != nil {
		return &toolkit.OsFailureError{Kind: toolkit.OsDebug, Err: err}
	}
	return nil
}

func requireAttached(pid int) (*toolkit.DebugSession, error) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	s, ok := sessions[pid]
	if !ok || s.State != toolkit.Attached {
		state := toolkit.Detached
		if ok {
			state = s.State
		}
		return nil, &toolkit.DebugStateError{Pid: pid, State: state, Wanted: "Attached"}
	}
	return s, nil
}
