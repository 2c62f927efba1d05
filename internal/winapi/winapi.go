// Package winapi is the thin OS-primitives facade: one function per Windows
// API used by the rest of this module, most returning (value, error) with
// the error wrapping windows.GetLastError() where the underlying call
// doesn't already do so; the toolhelp iterators (Process32First/Next,
// Module32First/Next, Thread32First/Next) and WaitForDebugEvent report
// success as a bool instead. It owns no policy. Grounded on
// pkg/proc/native/syscall_windows.go's struct/constant layout, translated
// from that file's code-generated //sys declarations into hand-written
// NewLazySystemDLL/NewProc wrappers since this module does not regenerate
// syscall stubs via the Go toolchain.
package winapi

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modntdll    = windows.NewLazySystemDLL("ntdll.dll")
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")

	procReadProcessMemory         = modkernel32.NewProc("ReadProcessMemory")
	procWriteProcessMemory        = modkernel32.NewProc("WriteProcessMemory")
	procVirtualAllocEx            = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx             = modkernel32.NewProc("VirtualFreeEx")
	procVirtualProtectEx          = modkernel32.NewProc("VirtualProtectEx")
	procVirtualQueryEx            = modkernel32.NewProc("VirtualQueryEx")
	procCreateRemoteThread        = modkernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread         = modkernel32.NewProc("GetExitCodeThread")
	procCreateToolhelp32Snapshot  = modkernel32.NewProc("CreateToolhelp32Snapshot")
	procProcess32First            = modkernel32.NewProc("Process32FirstW")
	procProcess32Next             = modkernel32.NewProc("Process32NextW")
	procModule32First             = modkernel32.NewProc("Module32FirstW")
	procModule32Next              = modkernel32.NewProc("Module32NextW")
	procThread32First             = modkernel32.NewProc("Thread32First")
	procThread32Next              = modkernel32.NewProc("Thread32Next")
	procDebugActiveProcess        = modkernel32.NewProc("DebugActiveProcess")
	procDebugActiveProcessStop    = modkernel32.NewProc("DebugActiveProcessStop")
	procWaitForDebugEvent         = modkernel32.NewProc("WaitForDebugEvent")
	procContinueDebugEvent        = modkernel32.NewProc("ContinueDebugEvent")
	procSuspendThread             = modkernel32.NewProc("SuspendThread")
	procResumeThread              = modkernel32.NewProc("ResumeThread")
	procGetThreadContext          = modkernel32.NewProc("GetThreadContext")
	procSetThreadContext          = modkernel32.NewProc("SetThreadContext")
	procCreateFileMappingW        = modkernel32.NewProc("CreateFileMappingW")
	procOpenFileMappingW          = modkernel32.NewProc("OpenFileMappingW")
	procMapViewOfFileEx           = modkernel32.NewProc("MapViewOfFileEx")
	procUnmapViewOfFile           = modkernel32.NewProc("UnmapViewOfFile")
	procNtMapViewOfSection        = modntdll.NewProc("NtMapViewOfSection")
	procNtUnmapViewOfSection      = modntdll.NewProc("NtUnmapViewOfSection")

	procLookupPrivilegeValueW    = modadvapi32.NewProc("LookupPrivilegeValueW")
	procAdjustTokenPrivileges    = modadvapi32.NewProc("AdjustTokenPrivileges")
)

// ErrShortRead/ErrShortWrite signal a transfer-count mismatch on an
// otherwise successful call, mirroring threads_windows.go's ErrShortRead.
var (
	ErrShortRead  = syscall.Errno(0xE0000001)
	ErrShortWrite = syscall.Errno(0xE0000002)
)

// ReadProcessMemory reads len(buf) bytes from addr in the target process.
// Returns the number of bytes actually transferred and ErrShortRead if that
// count is less than len(buf), matching _ReadProcessMemory's short-read
// discipline in threads_windows.go.
func ReadProcessMemory(h windows.Handle, addr uintptr, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var n uintptr
	r, _, e := procReadProcessMemory.Call(
		uintptr(h), addr, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), uintptr(unsafe.Pointer(&n)))
	if r == 0 {
		return int(n), e
	}
	if int(n) != len(buf) {
		return int(n), ErrShortRead
	}
	return int(n), nil
}

// WriteProcessMemory writes buf to addr in the target process.
func WriteProcessMemory(h windows.Handle, addr uintptr, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var n uintptr
	r, _, e := procWriteProcessMemory.Call(
		uintptr(h), addr, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), uintptr(unsafe.Pointer(&n)))
	if r == 0 {
		return int(n), e
	}
	if int(n) != len(buf) {
		return int(n), ErrShortWrite
	}
	return int(n), nil
}

// VirtualAllocEx allocates memory in the target process.
func VirtualAllocEx(h windows.Handle, addr uintptr, size uintptr, allocType, protect uint32) (uintptr, error) {
	r, _, e := procVirtualAllocEx.Call(uintptr(h), addr, size, uintptr(allocType), uintptr(protect))
	if r == 0 {
		return 0, e
	}
	return r, nil
}

// VirtualFreeEx releases memory previously allocated in the target process.
// Always MEM_RELEASE semantics (size must be 0 per Windows' own contract).
func VirtualFreeEx(h windows.Handle, addr uintptr) error {
	r, _, e := procVirtualFreeEx.Call(uintptr(h), addr, 0, 0x8000 /* MEM_RELEASE */)
	if r == 0 {
		return e
	}
	return nil
}

// VirtualProtectEx changes protection on a range in the target process and
// returns the previous protection value.
func VirtualProtectEx(h windows.Handle, addr, size uintptr, newProtect uint32) (uint32, error) {
	var old uint32
	r, _, e := procVirtualProtectEx.Call(uintptr(h), addr, size, uintptr(newProtect), uintptr(unsafe.Pointer(&old)))
	if r == 0 {
		return 0, e
	}
	return old, nil
}

// MemoryBasicInformation mirrors MEMORY_BASIC_INFORMATION exactly (64-bit
// layout), grounded on syscall_windows.go's _MEMORY_BASIC_INFORMATION.
type MemoryBasicInformation struct {
	BaseAddress       uintptr
	AllocationBase    uintptr
	AllocationProtect uint32
	_                 uint32 // alignment padding on amd64
	RegionSize        uintptr
	State             uint32
	Protect           uint32
	Type              uint32
	_                 uint32
}

// VirtualQueryEx queries the region containing addr in the target process.
func VirtualQueryEx(h windows.Handle, addr uintptr) (MemoryBasicInformation, error) {
	var mbi MemoryBasicInformation
	r, _, e := procVirtualQueryEx.Call(uintptr(h), addr, uintptr(unsafe.Pointer(&mbi)), unsafe.Sizeof(mbi))
	if r == 0 {
		return mbi, e
	}
	return mbi, nil
}

// CreateRemoteThread creates a thread running in the target process at
// startAddr with the given parameter, returning its handle.
func CreateRemoteThread(h windows.Handle, startAddr, parameter uintptr) (windows.Handle, error) {
	r, _, e := procCreateRemoteThread.Call(uintptr(h), 0, 0, startAddr, parameter, 0, 0)
	if r == 0 {
		return 0, e
	}
	return windows.Handle(r), nil
}

// GetExitCodeThread retrieves a finished thread's exit code.
func GetExitCodeThread(h windows.Handle) (uint32, error) {
	var code uint32
	r, _, e := procGetExitCodeThread.Call(uintptr(h), uintptr(unsafe.Pointer(&code)))
	if r == 0 {
		return 0, e
	}
	return code, nil
}

const (
	ThSnapProcess = 0x00000002
	ThSnapModule  = 0x00000008
	ThSnapModule32 = 0x00000010
	ThSnapThread  = 0x00000004
)

// CreateToolhelp32Snapshot snapshots processes/modules/threads per flags.
func CreateToolhelp32Snapshot(flags uint32, pid uint32) (windows.Handle, error) {
	r, _, e := procCreateToolhelp32Snapshot.Call(uintptr(flags), uintptr(pid))
	if windows.Handle(r) == windows.InvalidHandle {
		return 0, e
	}
	return windows.Handle(r), nil
}

// ProcessEntry32 mirrors PROCESSENTRY32W.
type ProcessEntry32 struct {
	Size              uint32
	CntUsage          uint32
	ProcessID         uint32
	DefaultHeapID     uintptr
	ModuleID          uint32
	CntThreads        uint32
	ParentProcessID   uint32
	PriClassBase      int32
	Flags             uint32
	ExeFile           [windows.MAX_PATH]uint16
}

func Process32First(snap windows.Handle, pe *ProcessEntry32) bool {
	pe.Size = uint32(unsafe.Sizeof(*pe))
	r, _, _ := procProcess32First.Call(uintptr(snap), uintptr(unsafe.Pointer(pe)))
	return r != 0
}

func Process32Next(snap windows.Handle, pe *ProcessEntry32) bool {
	r, _, _ := procProcess32Next.Call(uintptr(snap), uintptr(unsafe.Pointer(pe)))
	return r != 0
}

// ModuleEntry32 mirrors MODULEENTRY32W.
type ModuleEntry32 struct {
	Size         uint32
	ModuleID     uint32
	ProcessID    uint32
	GlblcntUsage uint32
	ProccntUsage uint32
	ModBaseAddr  uintptr
	ModBaseSize  uint32
	ModuleHandle windows.Handle
	Module       [256]uint16
	ExePath      [windows.MAX_PATH]uint16
}

func Module32First(snap windows.Handle, me *ModuleEntry32) bool {
	me.Size = uint32(unsafe.Sizeof(*me))
	r, _, _ := procModule32First.Call(uintptr(snap), uintptr(unsafe.Pointer(me)))
	return r != 0
}

func Module32Next(snap windows.Handle, me *ModuleEntry32) bool {
	r, _, _ := procModule32Next.Call(uintptr(snap), uintptr(unsafe.Pointer(me)))
	return r != 0
}

// ThreadEntry32 mirrors THREADENTRY32.
type ThreadEntry32 struct {
	Size           uint32
	Usage          uint32
	ThreadID       uint32
	OwnerProcessID uint32
	BasePri        int32
	DeltaPri       int32
	Flags          uint32
}

func Thread32First(snap windows.Handle, te *ThreadEntry32) bool {
	te.Size = uint32(unsafe.Sizeof(*te))
	r, _, _ := procThread32First.Call(uintptr(snap), uintptr(unsafe.Pointer(te)))
	return r != 0
}

func Thread32Next(snap windows.Handle, te *ThreadEntry32) bool {
	r, _, _ := procThread32Next.Call(uintptr(snap), uintptr(unsafe.Pointer(te)))
	return r != 0
}

// DebugActiveProcess/DebugActiveProcessStop register/unregister this process
// as pid's debugger.
func DebugActiveProcess(pid uint32) error {
	r, _, e := procDebugActiveProcess.Call(uintptr(pid))
	if r == 0 {
		return e
	}
	return nil
}

func DebugActiveProcessStop(pid uint32) error {
	r, _, e := procDebugActiveProcessStop.Call(uintptr(pid))
	if r == 0 {
		return e
	}
	return nil
}

// DebugEvent mirrors the fixed-size prefix of DEBUG_EVENT common to every
// event code, plus the faulting-address/exception-code fields decoded out
// of the EXCEPTION_DEBUG_INFO union member when applicable. Grounded on
// syscall_windows.go's _DEBUG_EVENT.
type DebugEvent struct {
	Code            uint32
	ProcessID       uint32
	ThreadID        uint32
	ExceptionCode   uint32
	ExceptionFlags  uint32
	ExceptionAddr   uintptr
	FirstChance     uint32
}

const debugEventRawSize = 8 + 4 + 4 + 168 // header + union padded to its largest member

// WaitForDebugEvent blocks up to timeoutMs for a debug event targeting a
// process this caller is attached to.
func WaitForDebugEvent(timeoutMs uint32) (DebugEvent, bool) {
	var raw [debugEventRawSize]byte
	r, _, _ := procWaitForDebugEvent.Call(uintptr(unsafe.Pointer(&raw[0])), uintptr(timeoutMs))
	if r == 0 {
		return DebugEvent{}, false
	}
	ev := DebugEvent{
		Code:      *(*uint32)(unsafe.Pointer(&raw[0])),
		ProcessID: *(*uint32)(unsafe.Pointer(&raw[4])),
		ThreadID:  *(*uint32)(unsafe.Pointer(&raw[8])),
	}
	const exceptionDebugEvent = 1
	if ev.Code == exceptionDebugEvent {
		// EXCEPTION_DEBUG_INFO starts at offset 16 (the 12-byte header
		// padded to the union's 8-byte alignment): ExceptionRecord first,
		// whose own first members are ExceptionCode, ExceptionFlags,
		// ExceptionRecord(ptr), ExceptionAddress.
		base := 16
		ev.ExceptionCode = *(*uint32)(unsafe.Pointer(&raw[base]))
		ev.ExceptionFlags = *(*uint32)(unsafe.Pointer(&raw[base+4]))
		ev.ExceptionAddr = *(*uintptr)(unsafe.Pointer(&raw[uintptr(base)+8+unsafe.Sizeof(uintptr(0))]))
		ev.FirstChance = 1
	}
	return ev, true
}

const (
	DbgContinue            = 0x00010002
	DbgExceptionNotHandled = 0x80010001
)

func ContinueDebugEvent(pid, tid uint32, continueStatus uint32) error {
	r, _, e := procContinueDebugEvent.Call(uintptr(pid), uintptr(tid), uintptr(continueStatus))
	if r == 0 {
		return e
	}
	return nil
}

func SuspendThread(h windows.Handle) (uint32, error) {
	r, _, e := procSuspendThread.Call(uintptr(h))
	if int32(r) == -1 {
		return 0, e
	}
	return uint32(r), nil
}

func ResumeThread(h windows.Handle) (uint32, error) {
	r, _, e := procResumeThread.Call(uintptr(h))
	if int32(r) == -1 {
		return 0, e
	}
	return uint32(r), nil
}

const ContextAll = 0x10010B

// Context64 mirrors the amd64 CONTEXT structure's debug-register and
// instruction/stack-pointer fields used by this toolkit. Grounded on
// pkg/proc/winutil's CONTEXT layout; only the fields this module reads or
// writes are named, the rest is reserved padding to keep offsets correct.
type Context64 struct {
	P1Home, P2Home, P3Home, P4Home, P5Home, P6Home uint64
	ContextFlags, MxCsr                            uint32
	SegCs, SegDs, SegEs, SegFs, SegGs, SegSs        uint16
	EFlags                                          uint32
	Dr0, Dr1, Dr2, Dr3, Dr6, Dr7                    uint64
	Rax, Rcx, Rdx, Rbx, Rsp, Rbp, Rsi, Rdi           uint64
	R8, R9, R10, R11, R12, R13, R14, R15             uint64
	Rip                                              uint64
	_                                                [512]byte // FltSave/XMM area, unused here
}

func GetThreadContext(h windows.Handle, ctx *Context64) error {
	ctx.ContextFlags = ContextAll
	r, _, e := procGetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(ctx)))
	if r == 0 {
		return e
	}
	return nil
}

func SetThreadContext(h windows.Handle, ctx *Context64) error {
	r, _, e := procSetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(ctx)))
	if r == 0 {
		return e
	}
	return nil
}

// CreateFileMappingW / OpenFileMappingW / MapViewOfFileEx / UnmapViewOfFile
// back pkg/filemap.
func CreateFileMappingW(file windows.Handle, name string, protect uint32, maxSizeHigh, maxSizeLow uint32) (windows.Handle, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	r, _, e := procCreateFileMappingW.Call(uintptr(file), 0, uintptr(protect), uintptr(maxSizeHigh), uintptr(maxSizeLow), uintptr(unsafe.Pointer(namePtr)))
	if r == 0 {
		return 0, e
	}
	return windows.Handle(r), nil
}

func OpenFileMappingW(access uint32, inherit bool, name string) (windows.Handle, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	var inh uintptr
	if inherit {
		inh = 1
	}
	r, _, e := procOpenFileMappingW.Call(uintptr(access), inh, uintptr(unsafe.Pointer(namePtr)))
	if r == 0 {
		return 0, e
	}
	return windows.Handle(r), nil
}

func MapViewOfFileEx(section windows.Handle, access uint32, offsetHigh, offsetLow uint32, size uintptr) (uintptr, error) {
	r, _, e := procMapViewOfFileEx.Call(uintptr(section), uintptr(access), uintptr(offsetHigh), uintptr(offsetLow), size, 0)
	if r == 0 {
		return 0, e
	}
	return r, nil
}

func UnmapViewOfFile(addr uintptr) error {
	r, _, e := procUnmapViewOfFile.Call(addr)
	if r == 0 {
		return e
	}
	return nil
}

// NtMapViewOfSection maps section into targetProcess's address space (not
// the caller's), which is what spec.md §4.6's mapViewOfFile actually needs:
// MapViewOfFileEx only ever maps into the calling process, so reaching a
// foreign target requires the native ntdll entry point. baseAddr/viewSize
// are in/out: zero baseAddr lets the OS choose, and the chosen base and
// committed size are returned.
func NtMapViewOfSection(section, targetProcess windows.Handle, offset uint64, viewSize uintptr, protect uint32) (uintptr, uintptr, error) {
	var baseAddr uintptr
	size := viewSize
	off := offset
	r, _, _ := procNtMapViewOfSection.Call(
		uintptr(section), uintptr(targetProcess),
		uintptr(unsafe.Pointer(&baseAddr)),
		0, 0,
		uintptr(unsafe.Pointer(&off)),
		uintptr(unsafe.Pointer(&size)),
		2, // ViewUnmap (inherit disposition: don't inherit into child processes)
		0,
		uintptr(protect),
	)
	if r != 0 {
		return 0, 0, syscall.Errno(r)
	}
	return baseAddr, size, nil
}

// NtUnmapViewOfSection unmaps a view previously mapped into targetProcess
// by NtMapViewOfSection.
func NtUnmapViewOfSection(targetProcess windows.Handle, baseAddr uintptr) error {
	r, _, _ := procNtUnmapViewOfSection.Call(uintptr(targetProcess), baseAddr)
	if r != 0 {
		return syscall.Errno(r)
	}
	return nil
}

// EnableDebugPrivilege elevates this process's token with SeDebugPrivilege,
// grounded on koolo's enableDebugPrivilege and H3nr1X-ReadWriteMemory's
// setDebugPrivilege.
func EnableDebugPrivilege() error {
	var tok windows.Token
	proc, err := windows.GetCurrentProcess()
	if err != nil {
		return err
	}
	if err := windows.OpenProcessToken(proc, windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &tok); err != nil {
		return err
	}
	defer tok.Close()

	namePtr, err := windows.UTF16PtrFromString("SeDebugPrivilege")
	if err != nil {
		return err
	}
	var luid windows.LUID
	r, _, e := procLookupPrivilegeValueW.Call(0, uintptr(unsafe.Pointer(namePtr)), uintptr(unsafe.Pointer(&luid)))
	if r == 0 {
		return e
	}

	tp := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED},
		},
	}
	r, _, e = procAdjustTokenPrivileges.Call(uintptr(tok), 0, uintptr(unsafe.Pointer(&tp)), 0, 0, 0)
	if r == 0 {
		return e
	}
	return nil
}
