// Package procutil implements the enumerator and process-open operations of
// spec.md §6: getProcesses, getModules, findModule, getThreads, getRegions,
// openProcess. Grounded on original_source/native/process.cc and
// native/module.cc for the error-message-carrying retry semantics, and on
// the teacher's toolhelp-snapshot idiom (pkg/proc/native/proc_windows.go)
// for the close-before-return discipline.
package procutil

import (
	"strings"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.ProcUtilLogger()

// ListProcesses snapshots every running process via
// CreateToolhelp32Snapshot(TH32CS_SNAPPROCESS). The snapshot handle is
// always closed before returning, on every path, mirroring
// native/process.cc's getProcesses.
func ListProcesses() ([]toolkit.ProcessRef, error) {
	snap, err := winapi.CreateToolhelp32Snapshot(winapi.ThSnapProcess, 0)
	if err != nil {
		return nil, &toolkit.OsFailureError{Kind: toolkit.OsSnapshot, Err: err}
	}
	defer windows.CloseHandle(snap)

	var pe winapi.ProcessEntry32
	if !winapi.Process32First(snap, &pe) {
		return nil, &toolkit.OsFailureError{Kind: toolkit.OsSnapshot, Err: syscall.Errno(0)}
	}

	var out []toolkit.ProcessRef
	for {
		out = append(out, toolkit.ProcessRef{
			DwSize:              pe.Size,
			Th32ProcessID:       pe.ProcessID,
			CntThreads:          pe.CntThreads,
			Th32ParentProcessID: pe.ParentProcessID,
			PcPriClassBase:      pe.PriClassBase,
			SzExeFile:           windows.UTF16ToString(pe.ExeFile[:]),
		})
		if !winapi.Process32Next(snap, &pe) {
			break
		}
	}
	return out, nil
}

// ListModules snapshots every module loaded in pid.
func ListModules(pid uint32) ([]toolkit.ModuleDescriptor, error) {
	if pid == 0 {
		return nil, &toolkit.InvalidArgumentError{Field: "pid", Reason: "cannot be zero"}
	}
	snap, err := winapi.CreateToolhelp32Snapshot(winapi.ThSnapModule|winapi.ThSnapModule32, pid)
	if err != nil {
		return nil, &toolkit.OsFailureError{Kind: toolkit.OsSnapshot, Err: err}
	}
	defer windows.CloseHandle(snap)

	var me winapi.ModuleEntry32
	if !winapi.Module32First(snap, &me) {
		return nil, &toolkit.OsFailureError{Kind: toolkit.OsSnapshot, Err: syscall.Errno(0)}
	}

	var out []toolkit.ModuleDescriptor
	for {
		out = append(out, toolkit.ModuleDescriptor{
			ModBaseAddr:   me.ModBaseAddr,
			ModBaseSize:   me.ModBaseSize,
			SzExePath:     windows.UTF16ToString(me.ExePath[:]),
			SzModule:      windows.UTF16ToString(me.Module[:]),
			Th32ProcessID: me.ProcessID,
			GlblcntUsage:  me.GlblcntUsage,
		})
		if !winapi.Module32Next(snap, &me) {
			break
		}
	}
	return out, nil
}

// FindModule searches ListModules(pid) for a case-sensitive szModule match,
// mirroring native/module.cc's findModule linear search.
func FindModule(name string, pid uint32) (toolkit.ModuleDescriptor, error) {
	if name == "" {
		return toolkit.ModuleDescriptor{}, &toolkit.InvalidArgumentError{Field: "name", Reason: "cannot be empty"}
	}
	mods, err := ListModules(pid)
	if err != nil {
		return toolkit.ModuleDescriptor{}, err
	}
	for _, m := range mods {
		if m.SzModule == name {
			return m, nil
		}
	}
	return toolkit.ModuleDescriptor{}, &toolkit.NotFoundError{Subject: "module " + name}
}

// ListThreads snapshots every thread owned by pid.
func ListThreads(pid uint32) ([]toolkit.ThreadDescriptor, error) {
	if pid == 0 {
		return nil, &toolkit.InvalidArgumentError{Field: "pid", Reason: "cannot be zero"}
	}
	snap, err := winapi.CreateToolhelp32Snapshot(winapi.ThSnapThread, 0)
	if err != nil {
		return nil, &toolkit.OsFailureError{Kind: toolkit.OsSnapshot, Err: err}
	}
	defer windows.CloseHandle(snap)

	var te winapi.ThreadEntry32
	if !winapi.Thread32First(snap, &te) {
		return nil, &toolkit.OsFailureError{Kind: toolkit.OsSnapshot, Err: syscall.Errno(0)}
	}

	var out []toolkit.ThreadDescriptor
	for {
		if te.OwnerProcessID == pid {
			out = append(out, toolkit.ThreadDescriptor{
				Th32ThreadID: te.ThreadID,
				Th32OwnerPID: te.OwnerProcessID,
				TpBasePri:    te.BasePri,
			})
		}
		if !winapi.Thread32Next(snap, &te) {
			break
		}
	}
	return out, nil
}

// ListRegions walks VirtualQueryEx from address 0 to the top of the address
// space, returning every region in ascending order.
func ListRegions(handle windows.Handle) ([]toolkit.Region, error) {
	if handle == 0 || handle == windows.InvalidHandle {
		return nil, &toolkit.InvalidHandleError{}
	}
	var out []toolkit.Region
	var addr uintptr
	for {
		mbi, err := winapi.VirtualQueryEx(handle, addr)
		if err != nil {
			break
		}
		if mbi.RegionSize == 0 {
			break
		}
		out = append(out, toolkit.Region{
			BaseAddress:       mbi.BaseAddress,
			AllocationBase:    mbi.AllocationBase,
			AllocationProtect: mbi.AllocationProtect,
			RegionSize:        mbi.RegionSize,
			State:             toolkit.RegionState(mbi.State),
			Protect:           mbi.Protect,
			Type:              toolkit.RegionType(mbi.Type),
		})
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}
	return out, nil
}

// VirtualQueryEx queries the single region containing addr.
func VirtualQueryEx(handle windows.Handle, addr uintptr) (toolkit.Region, error) {
	if handle == 0 || handle == windows.InvalidHandle {
		return toolkit.Region{}, &toolkit.InvalidHandleError{}
	}
	mbi, err := winapi.VirtualQueryEx(handle, addr)
	if err != nil {
		return toolkit.Region{}, &toolkit.OsFailureError{Kind: toolkit.OsQuery, Err: err}
	}
	return toolkit.Region{
		BaseAddress:       mbi.BaseAddress,
		AllocationBase:    mbi.AllocationBase,
		AllocationProtect: mbi.AllocationProtect,
		RegionSize:        mbi.RegionSize,
		State:             toolkit.RegionState(mbi.State),
		Protect:           mbi.Protect,
		Type:              toolkit.RegionType(mbi.Type),
	}, nil
}

const processAllAccess = 0x1F0FFF

// OpenProcessByPID opens a process by id. PIDs are unique, so any
// OpenProcess failure is reported directly rather than retried, matching
// native/process.cc's "breaking immediately for search-by-id" behavior.
func OpenProcessByPID(pid uint32) (toolkit.ProcessRef, error) {
	if pid == 0 {
		return toolkit.ProcessRef{}, &toolkit.InvalidArgumentError{Field: "pid", Reason: "cannot be zero"}
	}
	procs, err := ListProcesses()
	if err != nil {
		return toolkit.ProcessRef{}, err
	}
	for _, p := range procs {
		if p.Th32ProcessID != pid {
			continue
		}
		h, oerr := windows.OpenProcess(processAllAccess, false, pid)
		if oerr != nil {
			return toolkit.ProcessRef{}, &toolkit.OsFailureError{Kind: toolkit.OsOpen, Err: oerr}
		}
		p.Handle = h
		p.ModBaseAddr = moduleBaseOrZero(p.SzExeFile, pid)
		return p, nil
	}
	return toolkit.ProcessRef{}, &toolkit.NotFoundError{Subject: "process id"}
}

// OpenProcessByName searches ListProcesses() for a case-insensitive
// szExeFile match and keeps searching past an OpenProcess failure, since
// another process sharing the same executable name may still be
// accessible — reproducing native/process.cc's per-name retry loop.
func OpenProcessByName(name string) (toolkit.ProcessRef, error) {
	if name == "" {
		return toolkit.ProcessRef{}, &toolkit.InvalidArgumentError{Field: "name", Reason: "cannot be empty"}
	}
	procs, err := ListProcesses()
	if err != nil {
		return toolkit.ProcessRef{}, err
	}
	var lastErr error
	found := false
	for _, p := range procs {
		if !strings.EqualFold(p.SzExeFile, name) {
			continue
		}
		found = true
		h, oerr := windows.OpenProcess(processAllAccess, false, p.Th32ProcessID)
		if oerr != nil {
			log.WithError(oerr).Debug("OpenProcess failed for a same-named process, continuing search")
			lastErr = &toolkit.OsFailureError{Kind: toolkit.OsOpen, Err: oerr}
			continue
		}
		p.Handle = h
		p.ModBaseAddr = moduleBaseOrZero(p.SzExeFile, p.Th32ProcessID)
		return p, nil
	}
	if !found {
		return toolkit.ProcessRef{}, &toolkit.NotFoundError{Subject: "process " + name}
	}
	return toolkit.ProcessRef{}, lastErr
}

func moduleBaseOrZero(exeName string, pid uint32) uintptr {
	m, err := FindModule(exeName, pid)
	if err != nil {
		return 0
	}
	return m.ModBaseAddr
}

// CloseHandle releases a process handle obtained from OpenProcessByPID /
// OpenProcessByName.
func CloseHandle(handle windows.Handle) error {
	if handle == 0 || handle == windows.InvalidHandle {
		return &toolkit.InvalidHandleError{}
	}
	return windows.CloseHandle(handle)
}
