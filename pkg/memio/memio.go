// Package memio implements spec.md §4.1's typed cross-process memory I/O:
// Read, Write, ReadBuffer, WriteBuffer, and the §4.1.1 string-read
// protocol. Grounded on pkg/proc/native/threads_windows.go's
// ReadMemory/WriteMemory short-transfer detection and on
// original_source/native/memory.h's readString batching.
package memio

import (
	"encoding/binary"
	"math"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.MemIOLogger()

const (
	stringBatchSize = 256
	stringBatchCap  = 4096 // ~1 MiB, per spec.md §4.1.1
)

func validHandle(h windows.Handle) error {
	if h == 0 || h == windows.InvalidHandle {
		return &toolkit.InvalidHandleError{}
	}
	return nil
}

// ReadBuffer reads exactly n bytes from addr. A short read is a failure;
// no partial result is ever surfaced.
func ReadBuffer(h windows.Handle, addr uintptr, n int) ([]byte, error) {
	if err := validHandle(h); err != nil {
		return nil, err
	}
	if addr == 0 {
		return nil, &toolkit.InvalidArgumentError{Field: "addr", Reason: "cannot be zero"}
	}
	if n <= 0 {
		return nil, &toolkit.InvalidArgumentError{Field: "n", Reason: "must be positive"}
	}
	buf := make([]byte, n)
	got, err := winapi.ReadProcessMemory(h, addr, buf)
	if err == winapi.ErrShortRead {
		return nil, &toolkit.PartialTransferError{Requested: n, Transferred: got}
	}
	if err != nil {
		return nil, &toolkit.OsFailureError{Kind: toolkit.OsRead, Err: err}
	}
	return buf, nil
}

// WriteBuffer writes bytes to addr. A short write is a failure.
func WriteBuffer(h windows.Handle, addr uintptr, data []byte) error {
	if err := validHandle(h); err != nil {
		return err
	}
	if addr == 0 {
		return &toolkit.InvalidArgumentError{Field: "addr", Reason: "cannot be zero"}
	}
	got, err := winapi.WriteProcessMemory(h, addr, data)
	if err == winapi.ErrShortWrite {
		return &toolkit.PartialTransferError{Requested: len(data), Transferred: got}
	}
	if err != nil {
		return &toolkit.OsFailureError{Kind: toolkit.OsWrite, Err: err}
	}
	return nil
}

// Read dispatches on tag and reads exactly sizeof(tag) bytes at addr,
// except for String which follows the §4.1.1 protocol.
func Read(h windows.Handle, addr uintptr, tag toolkit.TypeTag) (toolkit.Value, error) {
	if tag == toolkit.String {
		s, err := ReadString(h, addr)
		if err != nil {
			return toolkit.Value{}, err
		}
		return toolkit.Value{Tag: tag, Str: s}, nil
	}

	sz := tag.Size()
	if sz == 0 {
		return toolkit.Value{}, &toolkit.UnknownTypeError{Tag: tag}
	}
	buf, err := ReadBuffer(h, addr, sz)
	if err != nil {
		return toolkit.Value{}, err
	}

	v := toolkit.Value{Tag: tag}
	switch tag {
	case toolkit.I8:
		v.I64 = int64(int8(buf[0]))
	case toolkit.U8:
		v.U64 = uint64(buf[0])
	case toolkit.I16:
		v.I64 = int64(int16(binary.LittleEndian.Uint16(buf)))
	case toolkit.U16:
		v.U64 = uint64(binary.LittleEndian.Uint16(buf))
	case toolkit.I32:
		v.I64 = int64(int32(binary.LittleEndian.Uint32(buf)))
	case toolkit.U32:
		v.U64 = uint64(binary.LittleEndian.Uint32(buf))
	case toolkit.I64:
		v.I64 = int64(binary.LittleEndian.Uint64(buf))
	case toolkit.U64:
		v.U64 = binary.LittleEndian.Uint64(buf)
	case toolkit.Ptr, toolkit.Uptr:
		v.U64 = binary.LittleEndian.Uint64(buf)
	case toolkit.Char:
		v.I64 = int64(int8(buf[0]))
	case toolkit.Bool:
		v.Bool = buf[0] != 0
	case toolkit.F32:
		v.F32 = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	case toolkit.F64:
		v.F64 = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	case toolkit.TagVec3:
		v.Vec3 = toolkit.Vec3{
			X: math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
		}
	case toolkit.TagVec4:
		// wxyz wire order — see toolkit.Vec4 and native/memoryprocess.cc's
		// struct Vector4 { float w, x, y, z; }.
		v.Vec4 = toolkit.Vec4{
			W: math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
			X: math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
		}
	default:
		return toolkit.Value{}, &toolkit.UnknownTypeError{Tag: tag}
	}
	return v, nil
}

// Write dispatches on tag and writes exactly sizeof(tag) bytes at addr.
// For String, writes val.Str's bytes followed by one NUL byte.
func Write(h windows.Handle, addr uintptr, tag toolkit.TypeTag, val toolkit.Value) error {
	if tag == toolkit.String {
		return WriteString(h, addr, val.Str)
	}

	sz := tag.Size()
	if sz == 0 {
		return &toolkit.UnknownTypeError{Tag: tag}
	}
	buf := make([]byte, sz)
	switch tag {
	case toolkit.I8, toolkit.Char:
		buf[0] = byte(int8(val.I64))
	case toolkit.U8:
		buf[0] = byte(val.U64)
	case toolkit.I16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(val.I64)))
	case toolkit.U16:
		binary.LittleEndian.PutUint16(buf, uint16(val.U64))
	case toolkit.I32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(val.I64)))
	case toolkit.U32:
		binary.LittleEndian.PutUint32(buf, uint32(val.U64))
	case toolkit.I64:
		// signed path for the signed tag — see SPEC_FULL.md §E.2: the
		// unsigned tag never routes through this branch.
		binary.LittleEndian.PutUint64(buf, uint64(val.I64))
	case toolkit.U64:
		binary.LittleEndian.PutUint64(buf, val.U64)
	case toolkit.Ptr, toolkit.Uptr:
		binary.LittleEndian.PutUint64(buf, val.U64)
	case toolkit.Bool:
		if val.Bool {
			buf[0] = 1
		}
	case toolkit.F32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(val.F32))
	case toolkit.F64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(val.F64))
	case toolkit.TagVec3:
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(val.Vec3.X))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(val.Vec3.Y))
		binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(val.Vec3.Z))
	case toolkit.TagVec4:
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(val.Vec4.W))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(val.Vec4.X))
		binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(val.Vec4.Y))
		binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(val.Vec4.Z))
	default:
		return &toolkit.UnknownTypeError{Tag: tag}
	}
	return WriteBuffer(h, addr, buf)
}

// ReadString implements spec.md §4.1.1 exactly: 256-byte batches, a NUL
// terminator (excluded from the result) stops the scan successfully, a
// failed or zero-byte read with no prior content fails, a zero-byte read
// with prior content succeeds on what was collected, a short (<256, >0)
// batch is end-of-readable-range (succeed if non-empty), and 4096 batches
// with no NUL fails. Grounded on original_source/native/memory.h's
// readString.
func ReadString(h windows.Handle, addr uintptr) (string, error) {
	if err := validHandle(h); err != nil {
		return "", err
	}
	if addr == 0 {
		return "", &toolkit.InvalidArgumentError{Field: "addr", Reason: "cannot be zero"}
	}

	var acc []byte
	cur := addr
	for batch := 0; batch < stringBatchCap; batch++ {
		buf := make([]byte, stringBatchSize)
		n, err := winapi.ReadProcessMemory(h, cur, buf)
		if err != nil && err != winapi.ErrShortRead {
			if len(acc) > 0 {
				return string(acc), nil
			}
			return "", &toolkit.OsFailureError{Kind: toolkit.OsRead, Err: err}
		}
		if n == 0 {
			if len(acc) > 0 {
				return string(acc), nil
			}
			return "", &toolkit.PartialTransferError{Requested: stringBatchSize, Transferred: 0}
		}
		chunk := buf[:n]
		if idx := indexZero(chunk); idx >= 0 {
			acc = append(acc, chunk[:idx]...)
			return string(acc), nil
		}
		acc = append(acc, chunk...)
		if n < stringBatchSize {
			if len(acc) > 0 {
				return string(acc), nil
			}
			return "", &toolkit.PartialTransferError{Requested: stringBatchSize, Transferred: n}
		}
		cur += uintptr(stringBatchSize)
	}
	return "", &toolkit.TimeoutError{Op: "readString batch cap"}
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// WriteString writes s's bytes followed by one NUL byte, per spec.md §4.1.
func WriteString(h windows.Handle, addr uintptr, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return WriteBuffer(h, addr, buf)
}

// VirtualAllocEx allocates size bytes of memory in the target process at
// addr (0 lets the OS choose), per the external interface table's
// virtualAllocEx entry.
func VirtualAllocEx(h windows.Handle, addr, size uintptr, allocType, protect uint32) (uintptr, error) {
	if err := validHandle(h); err != nil {
		return 0, err
	}
	a, err := winapi.VirtualAllocEx(h, addr, size, allocType, protect)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsAlloc, Err: err}
	}
	return a, nil
}

// VirtualProtectEx changes protection on [addr, addr+size) in the target
// process and returns the previous protection value.
func VirtualProtectEx(h windows.Handle, addr, size uintptr, protect uint32) (uint32, error) {
	if err := validHandle(h); err != nil {
		return 0, err
	}
	old, err := winapi.VirtualProtectEx(h, addr, size, protect)
	if err != nil {
		return 0, &toolkit.OsFailureError{Kind: toolkit.OsProtect, Err: err}
	}
	return old, nil
}
