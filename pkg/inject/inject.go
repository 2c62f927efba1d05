// Package inject implements spec.md §4.4's DLL injection and unload: a
// classic LoadLibraryW/FreeLibrary remote-thread injector, generalizing the
// procutil/fncall remote-thread machinery already built for function calls.
//
// Grounded on original_source/src/memoryprocess.ts's injectDll/unloadDll
// pre-validation (extension check, existence check, non-empty module name)
// — see SPEC_FULL.md §D.1 — and on the CreateRemoteThread + WriteProcessMemory
// + VirtualAllocEx shape already used by pkg/fncall, itself grounded on
// _examples/disparu86-koolo/d2go_local/pkg/memory/process.go.
package inject

import (
	"os"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/procutil"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.InjectLogger()

const (
	memCommit            = 0x1000
	memReserve           = 0x2000
	pageReadWrite        = 0x04
	defaultWaitTimeoutMS = 5000
)

// kernel32 is resolved lazily, matching internal/winapi's dll-loading
// discipline; LoadLibraryW and FreeLibrary live at the same address in
// every process on the system, so their host-process addresses are valid
// to hand to CreateRemoteThread in the target.
var (
	modkernel32      = windows.NewLazySystemDLL("kernel32.dll")
	procLoadLibraryW = modkernel32.NewProc("LoadLibraryW")
	procFreeLibrary  = modkernel32.NewProc("FreeLibrary")
)

// Inject loads dllPath into the target process h via the classic
// CreateRemoteThread(LoadLibraryW) technique, and returns the module's base
// address (HMODULE) on success.
//
// Pre-validation mirrors injectDll in original_source/src/memoryprocess.ts:
// the path must end in ".dll" and exist on the host's filesystem before any
// target-process interaction happens.
func Inject(h windows.Handle, dllPath string) (uintptr, error) {
	if h == 0 || h == windows.InvalidHandle {
		return 0, &toolkit.InvalidHandleError{}
	}
	if dllPath == "" {
		return 0, &toolkit.InvalidArgumentError{Field: "dllPath", Reason: "cannot be empty"}
	}
	if !strings.HasSuffix(strings.ToLower(dllPath), ".dll") {
		return 0, &toolkit.InvalidArgumentError{Field: "dllPath", Reason: "must end in .dll"}
	}
	if _, err := os.Stat(dllPath); err != nil {
		return 0, &toolkit.InvalidArgumentError{Field: "dllPath", Reason: "file does not exist on host: " + dllPath}
	}

	pathUTF16, err := windows.UTF16FromString(dllPath)
	if err != nil {
		return 0, &toolkit.InvalidArgumentError{Field: "dllPath", Reason: "not representable as UTF-16"}
	}
	buf := make([]byte, len(pathUTF16)*2)
	for i, c := range pathUTF16 {
		buf[i*2] = byte(c)
		buf[i*2+1] = byte(c >> 8)
	}

	remotePath, err := winapi.VirtualAllocEx(h, 0, uintptr(len(buf)), memCommit|memReserve, pageReadWrite)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsAlloc, Err: err}
	}
	defer func() {
		if ferr := winapi.VirtualFreeEx(h, remotePath); ferr != nil {
			log.WithError(ferr).WithField("addr", remotePath).Debug("VirtualFreeEx failed freeing staged dll path")
		}
	}()

	if _, err := winapi.WriteProcessMemory(h, remotePath, buf); err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsWrite, Err: err}
	}

	threadHandle, err := winapi.CreateRemoteThread(h, procLoadLibraryW.Addr(), remotePath)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsThreadCreate, Err: err}
	}
	defer windows.CloseHandle(threadHandle)

	res, err := windows.WaitForSingleObject(threadHandle, defaultWaitTimeoutMS)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsWait, Err: err}
	}
	if res == uint32(windows.WAIT_TIMEOUT) {
		return 0, &toolkit.TimeoutError{Op: "dll injection"}
	}

	moduleBase, err := winapi.GetExitCodeThread(threadHandle)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsWait, Err: err}
	}
	if moduleBase == 0 {
		return 0, &toolkit.NotFoundError{Subject: "LoadLibraryW result for " + dllPath}
	}
	return uintptr(moduleBase), nil
}

// UnloadByBase frees a module already loaded at moduleBase (an HMODULE, as
// returned by Inject) via CreateRemoteThread(FreeLibrary).
func UnloadByBase(h windows.Handle, moduleBase uintptr) error {
	if h == 0 || h == windows.InvalidHandle {
		return &toolkit.InvalidHandleError{}
	}
	if moduleBase == 0 {
		return &toolkit.InvalidArgumentError{Field: "moduleBase", Reason: "cannot be zero"}
	}
	return freeLibraryRemote(h, moduleBase)
}

// UnloadByName resolves moduleName to its base address in pid via
// procutil.FindModule, then frees it the same way UnloadByBase does —
// the Go-idiomatic split of memoryprocess.ts's unloadDll(handle, module)
// where module may be either a name or a base address.
func UnloadByName(h windows.Handle, pid uint32, moduleName string) error {
	if h == 0 || h == windows.InvalidHandle {
		return &toolkit.InvalidHandleError{}
	}
	if strings.TrimSpace(moduleName) == "" {
		return &toolkit.InvalidArgumentError{Field: "moduleName", Reason: "cannot be empty"}
	}
	mod, err := procutil.FindModule(moduleName, pid)
	if err != nil {
		return err
	}
	return freeLibraryRemote(h, mod.ModBaseAddr)
}

func freeLibraryRemote(h windows.Handle, moduleBase uintptr) error {
	threadHandle, err := winapi.CreateRemoteThread(h, procFreeLibrary.Addr(), moduleBase)
	if err != nil {
		return &toolkit.OsFailureError{Kind: toolkit.OsThreadCreate, Err: err}
	}
	defer windows.CloseHandle(threadHandle)

	res, err := windows.WaitForSingleObject(threadHandle, defaultWaitTimeoutMS)
	if err != nil {
		return &toolkit.OsFailureError{Kind: toolkit.OsWait, Err: err}
	}
	if res == uint32(windows.WAIT_TIMEOUT) {
		return &toolkit.TimeoutError{Op: "dll unload"}
	}

	exitCode, err := winapi.GetExitCodeThread(threadHandle)
	if err != nil {
		return &toolkit.OsFailureError{Kind: toolkit.OsWait, Err: err}
	}
	if exitCode == 0 {
		return &toolkit.OsFailureError{Kind: toolkit.OsThreadCreate, Err: windows.ERROR_MOD_NOT_FOUND}
	}
	return nil
}
