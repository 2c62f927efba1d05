package toolkit

import "fmt"

// OsKind names which underlying OS primitive failed, carried by OsFailure.
type OsKind string

const (
	OsOpen         OsKind = "Open"
	OsSnapshot     OsKind = "Snapshot"
	OsRead         OsKind = "Read"
	OsWrite        OsKind = "Write"
	OsAlloc        OsKind = "Alloc"
	OsProtect      OsKind = "Protect"
	OsQuery        OsKind = "Query"
	OsThreadCreate OsKind = "ThreadCreate"
	OsWait         OsKind = "Wait"
	OsDebug        OsKind = "Debug"
)

// InvalidArgumentError reports a type, range, or emptiness violation
// detected at the gateway, before any OS state is touched.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// InvalidHandleError reports a null or sentinel handle.
type InvalidHandleError struct{}

func (e *InvalidHandleError) Error() string { return "invalid handle" }

// NotFoundError reports a process/module/thread lookup miss, or a pattern
// with no match.
type NotFoundError struct {
	Subject string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.Subject) }

// PrecisionLossError reports a high-precision integer -> fixed-width
// conversion that would lose bits.
type PrecisionLossError struct {
	Value interface{}
	Width int
}

func (e *PrecisionLossError) Error() string {
	return fmt.Sprintf("precision loss converting %v to %d-bit width", e.Value, e.Width)
}

// CheckPrecisionLoss reports whether narrowing v to tag's fixed width would
// silently drop bits, per spec.md §4.7's "widen pointer-sized integers ...
// with the precision-loss case made explicit" gateway responsibility.
// Wide or non-narrowing tags (I64, U64, Ptr, Uptr, F64, Bool, String, the
// vector tags) have no narrower backing field to lose bits against and
// always pass.
func CheckPrecisionLoss(tag TypeTag, v Value) error {
	switch tag {
	case I8, Char:
		if int64(int8(v.I64)) != v.I64 {
			return &PrecisionLossError{Value: v.I64, Width: 8}
		}
	case U8:
		if uint64(uint8(v.U64)) != v.U64 {
			return &PrecisionLossError{Value: v.U64, Width: 8}
		}
	case I16:
		if int64(int16(v.I64)) != v.I64 {
			return &PrecisionLossError{Value: v.I64, Width: 16}
		}
	case U16:
		if uint64(uint16(v.U64)) != v.U64 {
			return &PrecisionLossError{Value: v.U64, Width: 16}
		}
	case I32:
		if int64(int32(v.I64)) != v.I64 {
			return &PrecisionLossError{Value: v.I64, Width: 32}
		}
	case U32:
		if uint64(uint32(v.U64)) != v.U64 {
			return &PrecisionLossError{Value: v.U64, Width: 32}
		}
	case F32:
		if float64(v.F32) != v.F64 {
			return &PrecisionLossError{Value: v.F64, Width: 32}
		}
	}
	return nil
}

// OsFailureError wraps an OS primitive failure, carrying its kind and the
// original OS error code.
type OsFailureError struct {
	Kind OsKind
	Code uintptr
	Err  error
}

func (e *OsFailureError) Error() string {
	return fmt.Sprintf("os failure (%s, code %d): %v", e.Kind, e.Code, e.Err)
}

func (e *OsFailureError) Unwrap() error { return e.Err }

// PartialTransferError reports bytes transferred != bytes requested.
type PartialTransferError struct {
	Requested, Transferred int
}

func (e *PartialTransferError) Error() string {
	return fmt.Sprintf("partial transfer: requested %d, transferred %d", e.Requested, e.Transferred)
}

// TimeoutError reports a bounded wait that elapsed without completing.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout waiting for %s", e.Op) }

// UnknownTypeError reports a TypeTag value not recognized by a dispatch
// site.
type UnknownTypeError struct {
	Tag TypeTag
}

func (e *UnknownTypeError) Error() string { return fmt.Sprintf("unknown type tag: %v", e.Tag) }

// PatternSyntaxError reports a signature token that failed to parse.
type PatternSyntaxError struct {
	Token string
	Pos   int
}

func (e *PatternSyntaxError) Error() string {
	return fmt.Sprintf("pattern syntax error at token %d (%q)", e.Pos, e.Token)
}

// DebugStateError reports an operation attempted from the wrong
// DebugSessionState, per spec.md §4.5.4's state machine invariants (e.g.
// attach while already Attached, or any breakpoint op while Detached).
type DebugStateError struct {
	Pid     int
	State   DebugSessionState
	Wanted  string
}

func (e *DebugStateError) Error() string {
	return fmt.Sprintf("pid %d: invalid debug session state %v, expected %s", e.Pid, e.State, e.Wanted)
}
