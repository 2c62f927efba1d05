package rpc2

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/xmemkit/xmemkit/pkg/gateway"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	xmemtls "github.com/xmemkit/xmemkit/pkg/tls"
)

// TLSConfig names the certificate material for a mutually-authenticated
// listener. A zero value means plaintext.
type TLSConfig struct {
	CertPath   string
	KeyPath    string
	CACertPath string
}

func (c TLSConfig) enabled() bool { return c.CertPath != "" && c.KeyPath != "" }

var log = logflags.GatewayLogger()

// RPCServer exposes pkg/gateway's operations as net/rpc methods, one per
// row of spec.md §6's external interface table. Every method here is a
// thin (In, *Out) error passthrough to the corresponding *gateway.Gateway
// call with cb=nil — the callback duality lives entirely in pkg/gateway,
// not duplicated at the wire layer.
type RPCServer struct {
	gw *gateway.Gateway
}

// NewServer registers an RPCServer on addr and serves net/rpc/jsonrpc
// connections until the listener is closed, mirroring the teacher's
// rpccommon.ServerImpl.Run shape generalized to this toolkit's single API
// version (there is no v1/v2 split to preserve here).
func NewServer(addr string) (net.Listener, error) {
	return NewServerTLS(addr, TLSConfig{})
}

// NewServerTLS is NewServer with the listener wrapped in mutual TLS when
// tlsCfg names certificate material; remote xmemctl clients hold process
// handles and can inject DLLs into the target, so an unauthenticated
// listener is only appropriate on loopback.
func NewServerTLS(addr string, tlsCfg TLSConfig) (net.Listener, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("RPCServer", &RPCServer{gw: gateway.New()}); err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg.enabled() {
		l, err = xmemtls.WrapListenerWithMtls(l, tlsCfg.CACertPath, tlsCfg.CertPath, tlsCfg.KeyPath)
		if err != nil {
			return nil, err
		}
	}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				log.WithError(err).Debug("listener closed")
				return
			}
			go server.ServeCodec(jsonrpc.NewServerCodec(conn))
		}
	}()
	return l, nil
}

func (s *RPCServer) OpenProcessByPID(in OpenProcessByPIDIn, out *OpenProcessByPIDOut) error {
	p, err := s.gw.OpenProcessByPID(in.Pid, nil)
	out.Process = p
	return err
}

func (s *RPCServer) OpenProcessByName(in OpenProcessByNameIn, out *OpenProcessByNameOut) error {
	p, err := s.gw.OpenProcessByName(in.Name, nil)
	out.Process = p
	return err
}

func (s *RPCServer) CloseHandle(in CloseHandleIn, out *CloseHandleOut) error {
	ok, err := s.gw.CloseHandle(in.Handle, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) GetProcesses(in GetProcessesIn, out *GetProcessesOut) error {
	procs, err := s.gw.GetProcesses(nil)
	out.Processes = procs
	return err
}

func (s *RPCServer) GetModules(in GetModulesIn, out *GetModulesOut) error {
	mods, err := s.gw.GetModules(in.Pid, nil)
	out.Modules = mods
	return err
}

func (s *RPCServer) FindModule(in FindModuleIn, out *FindModuleOut) error {
	m, err := s.gw.FindModule(in.Name, in.Pid, nil)
	out.Module = m
	return err
}

func (s *RPCServer) GetThreads(in GetThreadsIn, out *GetThreadsOut) error {
	threads, err := s.gw.GetThreads(in.Pid, nil)
	out.Threads = threads
	return err
}

func (s *RPCServer) GetRegions(in GetRegionsIn, out *GetRegionsOut) error {
	regions, err := s.gw.GetRegions(in.Handle, nil)
	out.Regions = regions
	return err
}

func (s *RPCServer) VirtualQueryEx(in VirtualQueryExIn, out *VirtualQueryExOut) error {
	r, err := s.gw.VirtualQueryEx(in.Handle, in.Addr, nil)
	out.Region = r
	return err
}

func (s *RPCServer) VirtualAllocEx(in VirtualAllocExIn, out *VirtualAllocExOut) error {
	addr, err := s.gw.VirtualAllocEx(in.Handle, in.Addr, in.Size, in.AllocType, in.Protect, nil)
	out.Address = addr
	return err
}

func (s *RPCServer) VirtualProtectEx(in VirtualProtectExIn, out *VirtualProtectExOut) error {
	old, err := s.gw.VirtualProtectEx(in.Handle, in.Addr, in.Size, in.Protect, nil)
	out.OldProtect = old
	return err
}

func (s *RPCServer) ReadMemory(in ReadMemoryIn, out *ReadMemoryOut) error {
	v, err := s.gw.ReadMemory(in.Handle, in.Addr, in.Type, nil)
	out.Value = v
	return err
}

func (s *RPCServer) WriteMemory(in WriteMemoryIn, out *WriteMemoryOut) error {
	ok, err := s.gw.WriteMemory(in.Handle, in.Addr, in.Type, in.Value, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) ReadBuffer(in ReadBufferIn, out *ReadBufferOut) error {
	data, err := s.gw.ReadBuffer(in.Handle, in.Addr, in.N, nil)
	out.Data = data
	return err
}

func (s *RPCServer) WriteBuffer(in WriteBufferIn, out *WriteBufferOut) error {
	ok, err := s.gw.WriteBuffer(in.Handle, in.Addr, in.Data, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) FindPattern(in FindPatternIn, out *FindPatternOut) error {
	addr, err := s.gw.FindPattern(in.Handle, in.Pid, in.Pattern, in.Flags, in.Offset, nil)
	out.Address = addr
	return err
}

func (s *RPCServer) FindPatternByModule(in FindPatternByModuleIn, out *FindPatternByModuleOut) error {
	addr, err := s.gw.FindPatternByModule(in.Handle, in.Pid, in.ModuleName, in.Pattern, in.Flags, in.Offset, nil)
	out.Address = addr
	return err
}

func (s *RPCServer) FindPatternSkipInstruction(in FindPatternSkipInstructionIn, out *FindPatternSkipInstructionOut) error {
	addr, err := s.gw.FindPatternSkipInstruction(in.Handle, in.Pid, in.ModuleName, in.Pattern, in.Flags, nil)
	out.Address = addr
	return err
}

func (s *RPCServer) FindPatternByAddress(in FindPatternByAddressIn, out *FindPatternByAddressOut) error {
	addr, err := s.gw.FindPatternByAddress(in.Handle, in.Pid, in.Base, in.Pattern, in.Flags, in.Offset, nil)
	out.Address = addr
	return err
}

func (s *RPCServer) FindPatternInRegion(in FindPatternInRegionIn, out *FindPatternInRegionOut) error {
	addr, err := s.gw.FindPatternInRegion(in.Handle, in.Base, in.Size, in.Pattern, in.Flags, in.Offset, nil)
	out.Address = addr
	return err
}

func (s *RPCServer) CallFunction(in CallFunctionIn, out *CallFunctionOut) error {
	res, err := s.gw.CallFunction(in.Handle, in.Args, in.ReturnType, in.Target, time.Duration(in.TimeoutMS)*time.Millisecond, nil)
	out.Result = res
	return err
}

func (s *RPCServer) InjectDll(in InjectDllIn, out *InjectDllOut) error {
	ok, err := s.gw.InjectDll(in.Handle, in.DllPath, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) UnloadDll(in UnloadDllIn, out *UnloadDllOut) error {
	ok, err := s.gw.UnloadDll(in.Handle, in.Pid, in.Module, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) AttachDebugger(in AttachDebuggerIn, out *AttachDebuggerOut) error {
	ok, err := s.gw.AttachDebugger(in.Pid, in.KillOnExit, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) DetachDebugger(in DetachDebuggerIn, out *DetachDebuggerOut) error {
	ok, err := s.gw.DetachDebugger(in.Pid, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) SetHardwareBreakpoint(in SetHardwareBreakpointIn, out *SetHardwareBreakpointOut) error {
	ok, err := s.gw.SetHardwareBreakpoint(in.Pid, in.Addr, in.Slot, in.Trigger, in.Length, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) RemoveHardwareBreakpoint(in RemoveHardwareBreakpointIn, out *RemoveHardwareBreakpointOut) error {
	ok, err := s.gw.RemoveHardwareBreakpoint(in.Pid, in.Slot, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) AwaitDebugEvent(in AwaitDebugEventIn, out *AwaitDebugEventOut) error {
	ev, err := s.gw.AwaitDebugEvent(in.Pid, in.ExpectedSlot, in.TimeoutMS, nil)
	out.Event = ev
	return err
}

func (s *RPCServer) HandleDebugEvent(in HandleDebugEventIn, out *HandleDebugEventOut) error {
	ok, err := s.gw.HandleDebugEvent(in.Pid, in.Tid, nil)
	out.Ok = ok
	return err
}

func (s *RPCServer) OpenFileMapping(in OpenFileMappingIn, out *OpenFileMappingOut) error {
	h, err := s.gw.OpenFileMapping(in.Name, nil)
	out.Handle = h
	return err
}

func (s *RPCServer) MapViewOfFile(in MapViewOfFileIn, out *MapViewOfFileOut) error {
	addr, err := s.gw.MapViewOfFile(in.TargetHandle, in.SectionHandle, in.Offset, in.ViewSize, in.Protect, nil)
	out.Address = addr
	return err
}
