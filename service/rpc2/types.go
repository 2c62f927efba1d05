// Package rpc2 is the wire transport for pkg/gateway: one In/Out struct
// pair per operation, served over net/rpc/jsonrpc. Grounded on
// go-delve/delve's service/rpc2/client.go convention (ProcessPidIn/Out,
// StateIn/Out, etc.) — every RPC method here takes exactly one In struct
// and fills exactly one Out struct, the shape net/rpc requires and the one
// the teacher already uses throughout.
package rpc2

import (
	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

type OpenProcessByPIDIn struct{ Pid uint32 }
type OpenProcessByPIDOut struct{ Process toolkit.ProcessRef }

type OpenProcessByNameIn struct{ Name string }
type OpenProcessByNameOut struct{ Process toolkit.ProcessRef }

type CloseHandleIn struct{ Handle windows.Handle }
type CloseHandleOut struct{ Ok bool }

type GetProcessesIn struct{}
type GetProcessesOut struct{ Processes []toolkit.ProcessRef }

type GetModulesIn struct{ Pid uint32 }
type GetModulesOut struct{ Modules []toolkit.ModuleDescriptor }

type FindModuleIn struct {
	Name string
	Pid  uint32
}
type FindModuleOut struct{ Module toolkit.ModuleDescriptor }

type GetThreadsIn struct{ Pid uint32 }
type GetThreadsOut struct{ Threads []toolkit.ThreadDescriptor }

type GetRegionsIn struct{ Handle windows.Handle }
type GetRegionsOut struct{ Regions []toolkit.Region }

type VirtualQueryExIn struct {
	Handle windows.Handle
	Addr   uintptr
}
type VirtualQueryExOut struct{ Region toolkit.Region }

type VirtualAllocExIn struct {
	Handle              windows.Handle
	Addr, Size          uintptr
	AllocType, Protect  uint32
}
type VirtualAllocExOut struct{ Address uintptr }

type VirtualProtectExIn struct {
	Handle     windows.Handle
	Addr, Size uintptr
	Protect    uint32
}
type VirtualProtectExOut struct{ OldProtect uint32 }

type ReadMemoryIn struct {
	Handle windows.Handle
	Addr   uintptr
	Type   toolkit.TypeTag
}
type ReadMemoryOut struct{ Value toolkit.Value }

type WriteMemoryIn struct {
	Handle windows.Handle
	Addr   uintptr
	Type   toolkit.TypeTag
	Value  toolkit.Value
}
type WriteMemoryOut struct{ Ok bool }

type ReadBufferIn struct {
	Handle windows.Handle
	Addr   uintptr
	N      int
}
type ReadBufferOut struct{ Data []byte }

type WriteBufferIn struct {
	Handle windows.Handle
	Addr   uintptr
	Data   []byte
}
type WriteBufferOut struct{ Ok bool }

type FindPatternIn struct {
	Handle  windows.Handle
	Pid     uint32
	Pattern string
	Flags   toolkit.ScanFlags
	Offset  int
}
type FindPatternOut struct{ Address uintptr }

type FindPatternByModuleIn struct {
	Handle     windows.Handle
	Pid        uint32
	ModuleName string
	Pattern    string
	Flags      toolkit.ScanFlags
	Offset     int
}
type FindPatternByModuleOut struct{ Address uintptr }

type FindPatternSkipInstructionIn struct {
	Handle     windows.Handle
	Pid        uint32
	ModuleName string
	Pattern    string
	Flags      toolkit.ScanFlags
}
type FindPatternSkipInstructionOut struct{ Address uintptr }

type FindPatternByAddressIn struct {
	Handle  windows.Handle
	Pid     uint32
	Base    uintptr
	Pattern string
	Flags   toolkit.ScanFlags
	Offset  int
}
type FindPatternByAddressOut struct{ Address uintptr }

type FindPatternInRegionIn struct {
	Handle  windows.Handle
	Base    uintptr
	Size    int
	Pattern string
	Flags   toolkit.ScanFlags
	Offset  int
}
type FindPatternInRegionOut struct{ Address uintptr }

type CallFunctionIn struct {
	Handle     windows.Handle
	Args       []toolkit.Arg
	ReturnType toolkit.TypeTag
	Target     uintptr
	TimeoutMS  int
}
type CallFunctionOut struct{ Result toolkit.CallResult }

type InjectDllIn struct {
	Handle  windows.Handle
	DllPath string
}
type InjectDllOut struct{ Ok bool }

type UnloadDllIn struct {
	Handle windows.Handle
	Pid    uint32
	Module toolkit.ModuleRef
}
type UnloadDllOut struct{ Ok bool }

type AttachDebuggerIn struct {
	Pid        int
	KillOnExit bool
}
type AttachDebuggerOut struct{ Ok bool }

type DetachDebuggerIn struct{ Pid int }
type DetachDebuggerOut struct{ Ok bool }

type SetHardwareBreakpointIn struct {
	Pid     int
	Addr    uintptr
	Slot    uint8
	Trigger toolkit.BreakpointTrigger
	Length  int
}
type SetHardwareBreakpointOut struct{ Ok bool }

type RemoveHardwareBreakpointIn struct {
	Pid  int
	Slot uint8
}
type RemoveHardwareBreakpointOut struct{ Ok bool }

type AwaitDebugEventIn struct {
	Pid          int
	ExpectedSlot int8
	TimeoutMS    uint32
}
type AwaitDebugEventOut struct{ Event *toolkit.DebugEvent }

type HandleDebugEventIn struct{ Pid, Tid int }
type HandleDebugEventOut struct{ Ok bool }

type OpenFileMappingIn struct{ Name string }
type OpenFileMappingOut struct{ Handle windows.Handle }

type MapViewOfFileIn struct {
	TargetHandle, SectionHandle windows.Handle
	Offset                      uint64
	ViewSize                    uintptr
	Protect                     uint32
}
type MapViewOfFileOut struct{ Address uintptr }
