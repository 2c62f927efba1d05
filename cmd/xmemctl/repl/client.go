// Package repl implements xmemctl's interactive session: a liner-driven
// read/parse/dispatch loop over a small command table, grounded on
// pkg/terminal/terminal.go's Term (liner.State, prompt, dispatch table)
// and command.go's argv-based argument splitting. Client abstracts over
// talking to pkg/gateway in-process or to a running server over
// service/rpc2, so the same command table drives both.
package repl

import (
	"time"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/gateway"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
	"github.com/xmemkit/xmemkit/service/rpc2"
)

// Client is the subset of gateway operations the repl drives, with the
// callback parameter dropped since the repl only ever calls synchronously.
type Client interface {
	OpenProcessByPID(pid uint32) (toolkit.ProcessRef, error)
	OpenProcessByName(name string) (toolkit.ProcessRef, error)
	CloseHandle(h windows.Handle) (bool, error)
	GetProcesses() ([]toolkit.ProcessRef, error)
	GetModules(pid uint32) ([]toolkit.ModuleDescriptor, error)
	FindModule(name string, pid uint32) (toolkit.ModuleDescriptor, error)
	GetThreads(pid uint32) ([]toolkit.ThreadDescriptor, error)
	GetRegions(h windows.Handle) ([]toolkit.Region, error)
	VirtualAllocEx(h windows.Handle, addr, size uintptr, allocType, protect uint32) (uintptr, error)
	VirtualProtectEx(h windows.Handle, addr, size uintptr, protect uint32) (uint32, error)
	OpenFileMapping(name string) (windows.Handle, error)
	MapViewOfFile(targetHandle, sectionHandle windows.Handle, offset uint64, viewSize uintptr, protect uint32) (uintptr, error)
	ReadMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag) (toolkit.Value, error)
	WriteMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag, val toolkit.Value) (bool, error)
	ReadBuffer(h windows.Handle, addr uintptr, n int) ([]byte, error)
	WriteBuffer(h windows.Handle, addr uintptr, data []byte) (bool, error)
	FindPattern(h windows.Handle, pid uint32, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error)
	FindPatternByModule(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error)
	FindPatternSkipInstruction(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags) (uintptr, error)
	CallFunction(h windows.Handle, args []toolkit.Arg, retType toolkit.TypeTag, target uintptr, timeout time.Duration) (toolkit.CallResult, error)
	InjectDll(h windows.Handle, dllPath string) (bool, error)
	UnloadDll(h windows.Handle, pid uint32, module toolkit.ModuleRef) (bool, error)
	AttachDebugger(pid int, killOnExit bool) (bool, error)
	DetachDebugger(pid int) (bool, error)
	SetHardwareBreakpoint(pid int, addr uintptr, slot uint8, trigger toolkit.BreakpointTrigger, length int) (bool, error)
	RemoveHardwareBreakpoint(pid int, slot uint8) (bool, error)
	AwaitDebugEvent(pid int, expectedSlot int8, timeoutMs uint32) (*toolkit.DebugEvent, error)
	HandleDebugEvent(pid, tid int) (bool, error)
}

// GatewayAdapter drives an in-process *gateway.Gateway, always passing a
// nil callback since the repl is purely synchronous.
type GatewayAdapter struct {
	Gateway *gateway.Gateway
}

func (a GatewayAdapter) OpenProcessByPID(pid uint32) (toolkit.ProcessRef, error) {
	return a.Gateway.OpenProcessByPID(pid, nil)
}
func (a GatewayAdapter) OpenProcessByName(name string) (toolkit.ProcessRef, error) {
	return a.Gateway.OpenProcessByName(name, nil)
}
func (a GatewayAdapter) CloseHandle(h windows.Handle) (bool, error) { return a.Gateway.CloseHandle(h, nil) }
func (a GatewayAdapter) GetProcesses() ([]toolkit.ProcessRef, error) { return a.Gateway.GetProcesses(nil) }
func (a GatewayAdapter) GetModules(pid uint32) ([]toolkit.ModuleDescriptor, error) {
	return a.Gateway.GetModules(pid, nil)
}
func (a GatewayAdapter) FindModule(name string, pid uint32) (toolkit.ModuleDescriptor, error) {
	return a.Gateway.FindModule(name, pid, nil)
}
func (a GatewayAdapter) GetThreads(pid uint32) ([]toolkit.ThreadDescriptor, error) {
	return a.Gateway.GetThreads(pid, nil)
}
func (a GatewayAdapter) GetRegions(h windows.Handle) ([]toolkit.Region, error) {
	return a.Gateway.GetRegions(h, nil)
}
func (a GatewayAdapter) VirtualAllocEx(h windows.Handle, addr, size uintptr, allocType, protect uint32) (uintptr, error) {
	return a.Gateway.VirtualAllocEx(h, addr, size, allocType, protect, nil)
}
func (a GatewayAdapter) VirtualProtectEx(h windows.Handle, addr, size uintptr, protect uint32) (uint32, error) {
	return a.Gateway.VirtualProtectEx(h, addr, size, protect, nil)
}
func (a GatewayAdapter) OpenFileMapping(name string) (windows.Handle, error) {
	return a.Gateway.OpenFileMapping(name, nil)
}
func (a GatewayAdapter) MapViewOfFile(targetHandle, sectionHandle windows.Handle, offset uint64, viewSize uintptr, protect uint32) (uintptr, error) {
	return a.Gateway.MapViewOfFile(targetHandle, sectionHandle, offset, viewSize, protect, nil)
}
func (a GatewayAdapter) ReadMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag) (toolkit.Value, error) {
	return a.Gateway.ReadMemory(h, addr, tag, nil)
}
func (a GatewayAdapter) WriteMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag, val toolkit.Value) (bool, error) {
	return a.Gateway.WriteMemory(h, addr, tag, val, nil)
}
func (a GatewayAdapter) ReadBuffer(h windows.Handle, addr uintptr, n int) ([]byte, error) {
	return a.Gateway.ReadBuffer(h, addr, n, nil)
}
func (a GatewayAdapter) WriteBuffer(h windows.Handle, addr uintptr, data []byte) (bool, error) {
	return a.Gateway.WriteBuffer(h, addr, data, nil)
}
func (a GatewayAdapter) FindPattern(h windows.Handle, pid uint32, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	return a.Gateway.FindPattern(h, pid, pattern, flags, offset, nil)
}
func (a GatewayAdapter) FindPatternByModule(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	return a.Gateway.FindPatternByModule(h, pid, moduleName, pattern, flags, offset, nil)
}
func (a GatewayAdapter) FindPatternSkipInstruction(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags) (uintptr, error) {
	return a.Gateway.FindPatternSkipInstruction(h, pid, moduleName, pattern, flags, nil)
}
func (a GatewayAdapter) CallFunction(h windows.Handle, args []toolkit.Arg, retType toolkit.TypeTag, target uintptr, timeout time.Duration) (toolkit.CallResult, error) {
	return a.Gateway.CallFunction(h, args, retType, target, timeout, nil)
}
func (a GatewayAdapter) InjectDll(h windows.Handle, dllPath string) (bool, error) {
	return a.Gateway.InjectDll(h, dllPath, nil)
}
func (a GatewayAdapter) UnloadDll(h windows.Handle, pid uint32, module toolkit.ModuleRef) (bool, error) {
	return a.Gateway.UnloadDll(h, pid, module, nil)
}
func (a GatewayAdapter) AttachDebugger(pid int, killOnExit bool) (bool, error) {
	return a.Gateway.AttachDebugger(pid, killOnExit, nil)
}
func (a GatewayAdapter) DetachDebugger(pid int) (bool, error) { return a.Gateway.DetachDebugger(pid, nil) }
func (a GatewayAdapter) SetHardwareBreakpoint(pid int, addr uintptr, slot uint8, trigger toolkit.BreakpointTrigger, length int) (bool, error) {
	return a.Gateway.SetHardwareBreakpoint(pid, addr, slot, trigger, length, nil)
}
func (a GatewayAdapter) RemoveHardwareBreakpoint(pid int, slot uint8) (bool, error) {
	return a.Gateway.RemoveHardwareBreakpoint(pid, slot, nil)
}
func (a GatewayAdapter) AwaitDebugEvent(pid int, expectedSlot int8, timeoutMs uint32) (*toolkit.DebugEvent, error) {
	return a.Gateway.AwaitDebugEvent(pid, expectedSlot, timeoutMs, nil)
}
func (a GatewayAdapter) HandleDebugEvent(pid, tid int) (bool, error) { return a.Gateway.HandleDebugEvent(pid, tid, nil) }

// RPCClientAdapter drives a remote *rpc2.RPCClient, whose methods already
// match Client's shape exactly.
type RPCClientAdapter struct {
	RPCClient *rpc2.RPCClient
}

func (a RPCClientAdapter) OpenProcessByPID(pid uint32) (toolkit.ProcessRef, error) {
	return a.RPCClient.OpenProcessByPID(pid)
}
func (a RPCClientAdapter) OpenProcessByName(name string) (toolkit.ProcessRef, error) {
	return a.RPCClient.OpenProcessByName(name)
}
func (a RPCClientAdapter) CloseHandle(h windows.Handle) (bool, error) { return a.RPCClient.CloseHandle(h) }
func (a RPCClientAdapter) GetProcesses() ([]toolkit.ProcessRef, error) { return a.RPCClient.GetProcesses() }
func (a RPCClientAdapter) GetModules(pid uint32) ([]toolkit.ModuleDescriptor, error) {
	return a.RPCClient.GetModules(pid)
}
func (a RPCClientAdapter) FindModule(name string, pid uint32) (toolkit.ModuleDescriptor, error) {
	return a.RPCClient.FindModule(name, pid)
}
func (a RPCClientAdapter) GetThreads(pid uint32) ([]toolkit.ThreadDescriptor, error) {
	return a.RPCClient.GetThreads(pid)
}
func (a RPCClientAdapter) GetRegions(h windows.Handle) ([]toolkit.Region, error) {
	return a.RPCClient.GetRegions(h)
}
func (a RPCClientAdapter) VirtualAllocEx(h windows.Handle, addr, size uintptr, allocType, protect uint32) (uintptr, error) {
	return a.RPCClient.VirtualAllocEx(h, addr, size, allocType, protect)
}
func (a RPCClientAdapter) VirtualProtectEx(h windows.Handle, addr, size uintptr, protect uint32) (uint32, error) {
	return a.RPCClient.VirtualProtectEx(h, addr, size, protect)
}
func (a RPCClientAdapter) OpenFileMapping(name string) (windows.Handle, error) {
	return a.RPCClient.OpenFileMapping(name)
}
func (a RPCClientAdapter) MapViewOfFile(targetHandle, sectionHandle windows.Handle, offset uint64, viewSize uintptr, protect uint32) (uintptr, error) {
	return a.RPCClient.MapViewOfFile(targetHandle, sectionHandle, offset, viewSize, protect)
}
func (a RPCClientAdapter) ReadMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag) (toolkit.Value, error) {
	return a.RPCClient.ReadMemory(h, addr, tag)
}
func (a RPCClientAdapter) WriteMemory(h windows.Handle, addr uintptr, tag toolkit.TypeTag, val toolkit.Value) (bool, error) {
	return a.RPCClient.WriteMemory(h, addr, tag, val)
}
func (a RPCClientAdapter) ReadBuffer(h windows.Handle, addr uintptr, n int) ([]byte, error) {
	return a.RPCClient.ReadBuffer(h, addr, n)
}
func (a RPCClientAdapter) WriteBuffer(h windows.Handle, addr uintptr, data []byte) (bool, error) {
	return a.RPCClient.WriteBuffer(h, addr, data)
}
func (a RPCClientAdapter) FindPattern(h windows.Handle, pid uint32, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	return a.RPCClient.FindPattern(h, pid, pattern, flags, offset)
}
func (a RPCClientAdapter) FindPatternByModule(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags, offset int) (uintptr, error) {
	return a.RPCClient.FindPatternByModule(h, pid, moduleName, pattern, flags, offset)
}
func (a RPCClientAdapter) FindPatternSkipInstruction(h windows.Handle, pid uint32, moduleName, pattern string, flags toolkit.ScanFlags) (uintptr, error) {
	return a.RPCClient.FindPatternSkipInstruction(h, pid, moduleName, pattern, flags)
}
func (a RPCClientAdapter) CallFunction(h windows.Handle, args []toolkit.Arg, retType toolkit.TypeTag, target uintptr, timeout time.Duration) (toolkit.CallResult, error) {
	return a.RPCClient.CallFunction(h, args, retType, target, timeout)
}
func (a RPCClientAdapter) InjectDll(h windows.Handle, dllPath string) (bool, error) {
	return a.RPCClient.InjectDll(h, dllPath)
}
func (a RPCClientAdapter) UnloadDll(h windows.Handle, pid uint32, module toolkit.ModuleRef) (bool, error) {
	return a.RPCClient.UnloadDll(h, pid, module)
}
func (a RPCClientAdapter) AttachDebugger(pid int, killOnExit bool) (bool, error) {
	return a.RPCClient.AttachDebugger(pid, killOnExit)
}
func (a RPCClientAdapter) DetachDebugger(pid int) (bool, error) { return a.RPCClient.DetachDebugger(pid) }
func (a RPCClientAdapter) SetHardwareBreakpoint(pid int, addr uintptr, slot uint8, trigger toolkit.BreakpointTrigger, length int) (bool, error) {
	return a.RPCClient.SetHardwareBreakpoint(pid, addr, slot, trigger, length)
}
func (a RPCClientAdapter) RemoveHardwareBreakpoint(pid int, slot uint8) (bool, error) {
	return a.RPCClient.RemoveHardwareBreakpoint(pid, slot)
}
func (a RPCClientAdapter) AwaitDebugEvent(pid int, expectedSlot int8, timeoutMs uint32) (*toolkit.DebugEvent, error) {
	return a.RPCClient.AwaitDebugEvent(pid, expectedSlot, timeoutMs)
}
func (a RPCClientAdapter) HandleDebugEvent(pid, tid int) (bool, error) { return a.RPCClient.HandleDebugEvent(pid, tid) }
