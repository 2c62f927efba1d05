package rpc2

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
	xmemtls "github.com/xmemkit/xmemkit/pkg/tls"
)

// RPCClient is the counterpart to RPCServer: one method per operation,
// each building an In struct, calling through, and unpacking the Out
// struct. Grounded on go-delve/delve's service/rpc2/client.go shape
// (NewClient via jsonrpc.Dial, a private call helper, one public method
// per wire call) with the debugger-session methods replaced by this
// toolkit's process/memory/pattern/inject/breakpoint/file-mapping set.
type RPCClient struct {
	client *rpc.Client
}

// NewClient dials addr and returns a ready RPCClient.
func NewClient(addr string) (*RPCClient, error) {
	client, err := jsonrpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &RPCClient{client: client}, nil
}

// NewClientTLS dials addr over mutual TLS using the given certificate
// material, the counterpart to NewServerTLS.
func NewClientTLS(addr string, tlsCfg TLSConfig) (*RPCClient, error) {
	conn, err := xmemtls.DialWithMtls("tcp", addr, tlsCfg.CACertPath, tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		return nil, err
	}
	return NewClientFromConn(conn), nil
}

// NewClientFromConn wraps an already-established connection, mirroring
// the teacher's client.go entry point used by in-process test harnesses.
func NewClientFromConn(conn net.Conn) *RPCClient {
	return &RPCClient{client: jsonrpc.NewClient(conn)}
}

func (c *RPCClient) call(method string, args, reply interface{}) error {
	return c.client.Call("RPCServer."+method, args, reply)
}

func (c *RPCClient) Close() error {
	return c.client.Close()
}

func (c *RPCClient) OpenProcessByPID(pid uint32) (toolkit.ProcessRef, error) {
	var out OpenProcessByPIDOut
	err := c.call("OpenProcessByPID", OpenProcessByPIDIn{Pid: pid}, &out)
	return out.Process, err
}

func (c *RPCClient) OpenProcessByName(name string) (toolkit.ProcessRef, error) {
	var out OpenProcessByNameOut
	err := c.call("OpenProcessByName", OpenProcessByNameIn{Name: name}, &out)
	return out.Process, err
}

func (c *RPCClient) CloseHandle(h windows.Handle) (bool, error) {
	var out CloseHandleOut
	err := c.call("CloseHandle", CloseHandleIn{Handle: h}, &out)
	return out.Ok, err
}

func (c *RPCClient) GetProcesses() ([]toolkit.ProcessRef, error) {
	var out GetProcessesOut
	err := c.call("GetProcesses", GetProcessesIn{}, &out)
	return out.Processes, err
}

func (c *RPCClient) GetModules(pid uint32) ([]toolkit.ModuleDescriptor, error) {
	var out GetModulesOut
	err := c.call("GetModules", GetModulesIn{Pid: pid}, &out)
	return out.Modules, err
}

func (c *RPCClient) FindModule(name string, pid uint32) (toolkit.ModuleDescriptor, error) {
	var out FindModuleOut
	err := c.call("FindModule", FindModuleIn{Name: name, Pid: pid}, &out)
	return out.Module, err
}

func (c *RPCClient) GetThreads(pid uint32) ([]toolkit.ThreadDescriptor, error) {
	var out GetThreadsOut
	err := c.call("GetThreads", GetThreadsIn{Pid: pid}, &out)
	return out.Threads, err
}

func (c *RPCClient) GetRegions(h windows.Handle) ([]toolkit.Region, error) {
	var out GetRegionsOut
	err := c.call("GetRegions", GetRegionsIn{Handle: h}, &out)
	return out.Regions, err
}

func (c *RPCClient) VirtualQueryEx(h windows.Handle, addr uintptr) (toolkit.Region, error) {
	var out VirtualQueryExOut
	err := c.call("VirtualQueryEx", VirtualQueryExIn{Handle: h, Addr: addr}, &out)
	return out.Region, err
}

func (c *RPCClient) VirtualAllocEx(h windows.Handle, addr, size uintptr, allocType, protect uint32) (uintptr, error) {
	var out VirtualAllocExOut
	err := c.call("VirtualAllocEx", VirtualAllocExIn{Handle: h, Addr: addr, Size: size, AllocType: allocType, Protect: protect}, &out)
	return out.Address, err
}

func (c *RPCClient) VirtualProtectEx(h windows.Handle, addr, size uintptr, protect uint32) (uint32, error) {
	var out VirtualProtectExOut
	err := c.call("VirtualProtectEx", VirtualProtectExIn{Handle: h, Addr: addr, Size: size, Protect: protect}, &out)
	return out.OldProtect, err
}

func (c *RPCClient) ReadMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag) (toolkit.Value, error) {
	var out ReadMemoryOut
	err := c.call("ReadMemory", ReadMemoryIn{Handle: h, Addr: addr, Type: tag}, &out)
	return out.Value, err
}

func (c *RPCClient) WriteMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag, val toolkit.Value) (bool, error) {
	var out WriteMemoryOut
	err := c.call("WriteMemory", WriteMemoryIn{Handle: h, Addr: addr, Type: tag, Value: val}, &out)
	return out.Ok, err
}

func (c *RPCClient) ReadBuffer(h windows.Handle, addr uintptr, n int) ([]byte, error) {
	var out ReadBufferOut
	err := c.call("ReadBuffer", ReadBufferIn{Handle: h, Addr: addr, N: n}, &out)
	return out.Data, err
}

func (c *RPCClient) WriteBuffer(h windows.Handle, addr uintptr, data []byte) (bool, error) {
	var out WriteBufferOut
	err := c.call("WriteBuffer", WriteBufferIn{Handle: h, Addr: addr, Data: data}, &out)
	return out.Ok, err
}

func (c *RPCClient) FindPattern(h windows.Handle, pid uint32, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	var out FindPatternOut
	err := c.call("FindPattern", FindPatternIn{Handle: h, Pid: pid, Pattern: pattern, Flags: flags, Offset: offset}, &out)
	return out.Address, err
}

func (c *RPCClient) FindPatternByModule(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	var out FindPatternByModuleOut
	err := c.call("FindPatternByModule", FindPatternByModuleIn{Handle: h, Pid: pid, ModuleName: moduleName, Pattern: pattern, Flags: flags, Offset: offset}, &out)
	return out.Address, err
}

func (c *RPCClient) FindPatternSkipInstruction(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags) (uintptr, error) {
	var out FindPatternSkipInstructionOut
	err := c.call("FindPatternSkipInstruction", FindPatternSkipInstructionIn{Handle: h, Pid: pid, ModuleName: moduleName, Pattern: pattern, Flags: flags}, &out)
	return out.Address, err
}

func (c *RPCClient) FindPatternByAddress(h windows.Handle, pid uint32, base uintptr, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	var out FindPatternByAddressOut
	err := c.call("FindPatternByAddress", FindPatternByAddressIn{Handle: h, Pid: pid, Base: base, Pattern: pattern, Flags: flags, Offset: offset}, &out)
	return out.Address, err
}

func (c *RPCClient) FindPatternInRegion(h windows.Handle, base uintptr, size int, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	var out FindPatternInRegionOut
	err := c.call("FindPatternInRegion", FindPatternInRegionIn{Handle: h, Base: base, Size: size, Pattern: pattern, Flags: flags, Offset: offset}, &out)
	return out.Address, err
}

func (c *RPCClient) CallFunction(h windows.Handle, args []toolkit.Arg, retType toolkit.TypeTag, target uintptr, timeout time.Duration) (toolkit.CallResult, error) {
	var out CallFunctionOut
	err := c.call("CallFunction", CallFunctionIn{Handle: h, Args: args, ReturnType: retType, Target: target, TimeoutMS: int(timeout.Milliseconds())}, &out)
	return out.Result, err
}

func (c *RPCClient) InjectDll(h windows.Handle, dllPath string) (bool, error) {
	var out InjectDllOut
	err := c.call("InjectDll", InjectDllIn{Handle: h, DllPath: dllPath}, &out)
	return out.Ok, err
}

func (c *RPCClient) UnloadDll(h windows.Handle, pid uint32, module toolkit.ModuleRef) (bool, error) {
	var out UnloadDllOut
	err := c.call("UnloadDll", UnloadDllIn{Handle: h, Pid: pid, Module: module}, &out)
	return out.Ok, err
}

func (c *RPCClient) AttachDebugger(pid int, killOnExit bool) (bool, error) {
	var out AttachDebuggerOut
	err := c.call("AttachDebugger", AttachDebuggerIn{Pid: pid, KillOnExit: killOnExit}, &out)
	return out.Ok, err
}

func (c *RPCClient) DetachDebugger(pid int) (bool, error) {
	var out DetachDebuggerOut
	err := c.call("DetachDebugger", DetachDebuggerIn{Pid: pid}, &out)
	return out.Ok, err
}

func (c *RPCClient) SetHardwareBreakpoint(pid int, addr uintptr, slot uint8, trigger toolkit.BreakpointTrigger, length int) (bool, error) {
	var out SetHardwareBreakpointOut
	err := c.call("SetHardwareBreakpoint", SetHardwareBreakpointIn{Pid: pid, Addr: addr, Slot: slot, Trigger: trigger, Length: length}, &out)
	return out.Ok, err
}

func (c *RPCClient) RemoveHardwareBreakpoint(pid int, slot uint8) (bool, error) {
	var out RemoveHardwareBreakpointOut
	err := c.call("RemoveHardwareBreakpoint", RemoveHardwareBreakpointIn{Pid: pid, Slot: slot}, &out)
	return out.Ok, err
}

func (c *RPCClient) AwaitDebugEvent(pid int, expectedSlot int8, timeoutMs uint32) (*toolkit.DebugEvent, error) {
	var out AwaitDebugEventOut
	err := c.call("AwaitDebugEvent", AwaitDebugEventIn{Pid: pid, ExpectedSlot: expectedSlot, TimeoutMS: timeoutMs}, &out)
	return out.Event, err
}

func (c *RPCClient) HandleDebugEvent(pid, tid int) (bool, error) {
	var out HandleDebugEventOut
	err := c.call("HandleDebugEvent", HandleDebugEventIn{Pid: pid, Tid: tid}, &out)
	return out.Ok, err
}

func (c *RPCClient) OpenFileMapping(name string) (windows.Handle, error) {
	var out OpenFileMappingOut
	err := c.call("OpenFileMapping", OpenFileMappingIn{Name: name}, &out)
	return out.Handle, err
}

func (c *RPCClient) MapViewOfFile(targetHandle, sectionHandle windows.Handle, offset uint64, viewSize uintptr, protect uint32) (uintptr, error) {
	var out MapViewOfFileOut
	err := c.call("MapViewOfFile", MapViewOfFileIn{TargetHandle: targetHandle, SectionHandle: sectionHandle, Offset: offset, ViewSize: viewSize, Protect: protect}, &out)
	return out.Address, err
}
