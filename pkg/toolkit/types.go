// Package toolkit holds the data model shared by every other package in this
// module: process/module/thread/region descriptors, the TypeTag dispatch
// enumeration, pattern/scan types, and the debugger's session and event
// shapes. Nothing here touches the OS; see internal/winapi and the pkg/*
// subsystems for that.
package toolkit

import (
	"strings"

	"golang.org/x/sys/windows"
)

// ProcessRef is a handle to a target process plus its identifying
// descriptor. Created by procutil.OpenProcessByName/OpenProcessByPID;
// released by CloseHandle. The process id stays meaningful for the
// lifetime of the handle; nothing guarantees the target is still alive.
type ProcessRef struct {
	Handle              windows.Handle
	DwSize              uint32
	Th32ProcessID       uint32
	CntThreads          uint32
	Th32ParentProcessID uint32
	PcPriClassBase      int32
	SzExeFile           string
	ModBaseAddr         uintptr
}

// ModuleDescriptor is an immutable snapshot of one loaded module.
type ModuleDescriptor struct {
	ModBaseAddr   uintptr
	ModBaseSize   uint32
	SzExePath     string
	SzModule      string
	Th32ProcessID uint32
	GlblcntUsage  uint32
}

// ModuleRef identifies a module either by base address or by name, the way
// unloadDll's moduleIdentifier is specified in spec.md §4.4.
type ModuleRef struct {
	BaseAddr uintptr
	Name     string
}

// ThreadDescriptor is an immutable snapshot of one thread.
type ThreadDescriptor struct {
	Th32ThreadID   uint32
	Th32OwnerPID   uint32
	TpBasePri      int32
}

// RegionState mirrors MEMORY_BASIC_INFORMATION.State.
type RegionState uint32

const (
	StateFree      RegionState = 0x10000
	StateReserved  RegionState = 0x2000
	StateCommitted RegionState = 0x1000
)

// RegionType mirrors MEMORY_BASIC_INFORMATION.Type.
type RegionType uint32

const (
	TypeImage   RegionType = 0x1000000
	TypeMapped  RegionType = 0x40000
	TypePrivate RegionType = 0x20000
)

// Region describes one maximal contiguous run of pages sharing state,
// protection, and mapping type.
type Region struct {
	BaseAddress       uintptr
	AllocationBase    uintptr
	AllocationProtect uint32
	RegionSize        uintptr
	State             RegionState
	Protect           uint32
	Type              RegionType
	// MappedFile is a field for the executable/image file name backing
	// AllocationBase. procutil's region listing and VirtualQueryEx do not
	// fill it, so it is empty in every Region this module returns.
	MappedFile string
}

// TypeTag is the closed enumeration of payload shapes recognized by the
// typed I/O and remote-call surface. See spec.md §3.
type TypeTag int

const (
	I8 TypeTag = iota
	U8
	I16
	U16
	I32
	U32
	I64
	U64
	F32
	F64
	Bool
	Ptr
	Uptr
	Char
	String
	TagVec3
	TagVec4
	// VoidReturn and StringReturn are only meaningful as callFunction return
	// types.
	VoidReturn
	StringReturn
)

// Size returns sizeof(tag) for every fixed-width tag. String, VoidReturn and
// StringReturn have no fixed size and return 0.
func (t TypeTag) Size() int {
	switch t {
	case I8, U8, Bool, Char:
		return 1
	case I16, U16:
		return 2
	case I32, U32, F32:
		return 4
	case I64, U64, F64, Ptr, Uptr:
		return 8
	case TagVec3:
		return 12
	case TagVec4:
		return 16
	default:
		return 0
	}
}

func (t TypeTag) String() string {
	switch t {
	case I8:
		return "i8"
	case U8:
		return "u8"
	case I16:
		return "i16"
	case U16:
		return "u16"
	case I32:
		return "i32"
	case U32:
		return "u32"
	case I64:
		return "i64"
	case U64:
		return "u64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Bool:
		return "bool"
	case Ptr:
		return "ptr"
	case Uptr:
		return "uptr"
	case Char:
		return "char"
	case String:
		return "string"
	case TagVec3:
		return "vec3"
	case TagVec4:
		return "vec4"
	case VoidReturn:
		return "void-return"
	case StringReturn:
		return "string-return"
	default:
		return "unknown"
	}
}

// Vec3 is three f32 packed in xyz order.
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 is four f32 packed in wxyz order. This is a wire contract: see
// native/memoryprocess.cc's "struct Vector4 { float w, x, y, z; }" in
// original_source, which this field order reproduces exactly.
type Vec4 struct {
	W, X, Y, Z float32
}

// Value is a typed payload carried across the gateway: Read returns one of
// these, Write/callFunction arguments take one.
type Value struct {
	Tag    TypeTag
	I64    int64
	U64    uint64
	F32    float32
	F64    float64
	Bool   bool
	Str    string
	Vec3   Vec3
	Vec4   Vec4
}

// Arg is one (TypeTag, value) pair passed to callFunction.
type Arg struct {
	Tag TypeTag
	Val Value
}

// CallResult is callFunction's result: {returnValue, exitCode}.
type CallResult struct {
	ReturnValue Value
	ExitCode    uint32
}

// ScanFlags is the pattern scanner's post-processing bit field.
type ScanFlags int

const (
	ScanNormal   ScanFlags = 0
	ScanRead     ScanFlags = 1
	ScanSubtract ScanFlags = 2
)

// PatternToken is one compiled token of a PatternSpec: either a concrete
// byte (Wildcard == false) or a wildcard (Wildcard == true, Byte ignored).
type PatternToken struct {
	Byte     byte
	Wildcard bool
}

// PatternSpec is a parsed, reusable signature: a sequence of tokens, each
// matching exactly one byte.
type PatternSpec struct {
	Tokens []PatternToken
	Raw    string
}

func (p *PatternSpec) Len() int { return len(p.Tokens) }

// DebugSessionState is the attach/detach lifecycle state of one target.
type DebugSessionState int

const (
	Detached DebugSessionState = iota
	Attaching
	Attached
	Detaching
)

func (s DebugSessionState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Attaching:
		return "Attaching"
	case Attached:
		return "Attached"
	case Detaching:
		return "Detaching"
	default:
		return "Unknown"
	}
}

// BreakpointTrigger mirrors spec.md §4.5.2's trigger enumeration.
type BreakpointTrigger int

const (
	TriggerExecute  BreakpointTrigger = 0
	TriggerWrite    BreakpointTrigger = 1
	TriggerReadWrite BreakpointTrigger = 3
)

// Breakpoint is one armed hardware breakpoint slot.
type Breakpoint struct {
	Slot    uint8 // DR0..DR3
	Address uintptr
	Trigger BreakpointTrigger
	Length  int // 1, 2, 4, or 8
}

// DebugSession is the per-target-process state owned by pkg/hwdebug,
// keyed by pid in a single guarded map (spec.md §3, §5).
type DebugSession struct {
	Pid         int
	State       DebugSessionState
	Breakpoints [4]*Breakpoint // indexed by DR slot; nil == free
	KillOnExit  bool
}

// DebugEvent is one observed OS debug event, filtered by the hardware
// register that raised it.
type DebugEvent struct {
	Pid             int
	Tid             int
	ExceptionCode   uint32
	ExceptionFlags  uint32
	FaultingAddress uintptr
	HardwareRegister int8 // -1 if not attributable to an armed slot
}

// ParseTypeTag accepts the String() spelling of every data TypeTag (case
// insensitive), for command-line and config-file entry points. The
// return-only tags VoidReturn and StringReturn are not accepted.
func ParseTypeTag(s string) (TypeTag, error) {
	switch strings.ToLower(s) {
	case "i8":
		return I8, nil
	case "u8":
		return U8, nil
	case "i16":
		return I16, nil
	case "u16":
		return U16, nil
	case "i32":
		return I32, nil
	case "u32":
		return U32, nil
	case "i64":
		return I64, nil
	case "u64":
		return U64, nil
	case "f32":
		return F32, nil
	case "f64":
		return F64, nil
	case "bool":
		return Bool, nil
	case "ptr":
		return Ptr, nil
	case "uptr":
		return Uptr, nil
	case "char":
		return Char, nil
	case "string":
		return String, nil
	case "vec3":
		return TagVec3, nil
	case "vec4":
		return TagVec4, nil
	default:
		return 0, &UnknownTypeError{}
	}
}
