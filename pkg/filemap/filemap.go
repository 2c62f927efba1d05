// Package filemap implements spec.md §4.6: opening a named file-mapping
// section and mapping it into an arbitrary target process's address space.
//
// Grounded on the original_source/src/memoryprocess.ts openFileMapping /
// mapViewOfFile signatures for the argument shape, and on
// internal/winapi.NtMapViewOfSection for the actual remote-mapping
// mechanism — MapViewOfFileEx only maps into the calling process, so
// mapping into a foreign target process requires ntdll's native entry
// point rather than the kernel32 convenience wrapper.
package filemap

import (
	"strings"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.MemIOLogger()

const fileMapAllAccess = 0xF001F

// OpenFileMapping opens a handle to an existing named section object.
func OpenFileMapping(name string) (windows.Handle, error) {
	if strings.TrimSpace(name) == "" {
		return 0, &toolkit.InvalidArgumentError{Field: "name", Reason: "cannot be empty"}
	}
	h, err := winapi.OpenFileMappingW(fileMapAllAccess, false, name)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsOpen, Err: err}
	}
	return h, nil
}

// MapViewOfFile maps sectionHandle into targetHandle's address space at an
// OS-chosen base, from offset to offset+viewSize (or to the section's end
// when viewSize is zero), and returns that base. No host-side record of the
// mapping is kept, per spec.md §4.6's "no mirror is retained" note —
// unmapping later requires the caller to have kept the returned base.
func MapViewOfFile(targetHandle, sectionHandle windows.Handle, offset uint64, viewSize uintptr, pageProtection uint32) (uintptr, error) {
	if targetHandle == 0 || targetHandle == windows.InvalidHandle {
		return 0, &toolkit.InvalidHandleError{}
	}
	if sectionHandle == 0 || sectionHandle == windows.InvalidHandle {
		return 0, &toolkit.InvalidHandleError{}
	}
	base, _, err := winapi.NtMapViewOfSection(sectionHandle, targetHandle, offset, viewSize, pageProtection)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsAlloc, Err: err}
	}
	return base, nil
}

// UnmapViewOfFile unmaps a view previously returned by MapViewOfFile from
// targetHandle's address space.
func UnmapViewOfFile(targetHandle windows.Handle, base uintptr) error {
	if targetHandle == 0 || targetHandle == windows.InvalidHandle {
		return &toolkit.InvalidHandleError{}
	}
	if base == 0 {
		return &toolkit.InvalidArgumentError{Field: "base", Reason: "cannot be zero"}
	}
	if err := winapi.NtUnmapViewOfSection(targetHandle, base); err != nil {
		log.WithError(err).WithField("base", base).Debug("NtUnmapViewOfSection failed")
		return &toolkit.OsFailureError{Kind: toolkit.OsProtect, Err: err}
	}
	return nil
}
