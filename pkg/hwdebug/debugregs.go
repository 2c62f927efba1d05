package hwdebug

import (
	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

// The DR7 bit layout and length-bit encoding below are adapted from
// pkg/proc/amd64util/debugregs.go's DebugRegisters, generalized from
// operating on pointers into the debugger's own process to operating on a
// winapi.Context64 snapshot fetched from a remote thread via
// GetThreadContext/SetThreadContext.

func lenrwBitsOffset(idx uint8) uint8 { return 16 + idx*4 }
func enableBitOffset(idx uint8) uint8 { return idx * 2 }

func drSlot(ctx *winapi.Context64, idx uint8) *uint64 {
	switch idx {
	case 0:
		return &ctx.Dr0
	case 1:
		return &ctx.Dr1
	case 2:
		return &ctx.Dr2
	default:
		return &ctx.Dr3
	}
}

// lengthBits encodes the byte length per the DR7 layout; note the quirky
// (sic, per the teacher) placement of 8 before 4.
func lengthBits(length int) (uint64, error) {
	switch length {
	case 1:
		return 0x0, nil
	case 2:
		return 0x1, nil
	case 8:
		return 0x2, nil
	case 4:
		return 0x3, nil
	default:
		return 0, &toolkit.InvalidArgumentError{Field: "length", Reason: "must be 1, 2, 4, or 8"}
	}
}

func triggerBits(trigger toolkit.BreakpointTrigger) (uint64, error) {
	switch trigger {
	case toolkit.TriggerExecute:
		return 0x0, nil
	case toolkit.TriggerWrite:
		return 0x1, nil
	case toolkit.TriggerReadWrite:
		return 0x3, nil
	default:
		return 0, &toolkit.InvalidArgumentError{Field: "trigger", Reason: "must be execute(0), write(1), or read-write(3)"}
	}
}

// armContext writes address, trigger and length into DR{idx} and sets its
// enable bit in DR7, following the five-step recipe of spec.md §4.5.2.
func armContext(ctx *winapi.Context64, idx uint8, address uint64, trigger toolkit.BreakpointTrigger, length int) error {
	lenBits, err := lengthBits(length)
	if err != nil {
		return err
	}
	rwBits, err := triggerBits(trigger)
	if err != nil {
		return err
	}

	*drSlot(ctx, idx) = address
	lenrw := rwBits | (lenBits << 2)
	ctx.Dr7 &^= 0xf << lenrwBitsOffset(idx)
	ctx.Dr7 |= lenrw << lenrwBitsOffset(idx)
	ctx.Dr7 |= 1 << enableBitOffset(idx)
	return nil
}

// disarmContext clears DR{idx}'s enable bit and zeroes its address, per
// spec.md §4.5.2's "address of zero is removal" and §4.5.4's detach
// invariant.
func disarmContext(ctx *winapi.Context64, idx uint8) {
	ctx.Dr7 &^= 1 << enableBitOffset(idx)
	*drSlot(ctx, idx) = 0
}

// matchSlot reports which armed breakpoint, if any, the faulting address
// corresponds to, comparing against the session's own bookkeeping rather
// than re-deriving it from DR6 (DR6 only tells us a data/instruction
// breakpoint fired, not which logical slot a caller cares about when two
// slots watch overlapping state).
func matchSlot(breakpoints [4]*toolkit.Breakpoint, faultAddr uintptr) int8 {
	for i, bp := range breakpoints {
		if bp != nil && bp.Address == faultAddr {
			return int8(i)
		}
	}
	return -1
}
