package hwdebug

import (
	"testing"

	"github.com/xmemkit/xmemkit/internal/winapi"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func TestArmContext_setsAddressAndEnableBit(t *testing.T) {
	var ctx winapi.Context64
	if err := armContext(&ctx, 0, 0x7FF6_1234_5678, toolkit.TriggerExecute, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Dr0 != 0x7FF6_1234_5678 {
		t.Fatalf("Dr0 not set: %#x", ctx.Dr0)
	}
	if ctx.Dr7&(1<<enableBitOffset(0)) == 0 {
		t.Fatalf("enable bit for slot 0 not set: %#x", ctx.Dr7)
	}
}

func TestArmContext_rejectsBadLength(t *testing.T) {
	var ctx winapi.Context64
	if err := armContext(&ctx, 1, 0x1000, toolkit.TriggerWrite, 3); err == nil {
		t.Fatalf("expected error for length=3")
	}
}

func TestArmContext_rejectsBadTrigger(t *testing.T) {
	var ctx winapi.Context64
	if err := armContext(&ctx, 1, 0x1000, toolkit.BreakpointTrigger(2), 1); err == nil {
		t.Fatalf("expected error for trigger=2 (read-only, unsupported)")
	}
}

func TestDisarmContext_clearsAddressAndEnableBit(t *testing.T) {
	var ctx winapi.Context64
	if err := armContext(&ctx, 2, 0x2000, toolkit.TriggerReadWrite, 4); err != nil {
		t.Fatalf("setup: %v", err)
	}
	disarmContext(&ctx, 2)
	if ctx.Dr2 != 0 {
		t.Fatalf("Dr2 not cleared: %#x", ctx.Dr2)
	}
	if ctx.Dr7&(1<<enableBitOffset(2)) != 0 {
		t.Fatalf("enable bit for slot 2 still set: %#x", ctx.Dr7)
	}
}

func TestDisarmContext_doesNotDisturbOtherSlots(t *testing.T) {
	var ctx winapi.Context64
	armContext(&ctx, 0, 0x1000, toolkit.TriggerExecute, 1)
	armContext(&ctx, 1, 0x2000, toolkit.TriggerWrite, 4)
	disarmContext(&ctx, 0)
	if ctx.Dr7&(1<<enableBitOffset(1)) == 0 {
		t.Fatalf("slot 1 should remain armed")
	}
	if ctx.Dr1 != 0x2000 {
		t.Fatalf("slot 1 address disturbed: %#x", ctx.Dr1)
	}
}

func TestMatchSlot(t *testing.T) {
	bps := [4]*toolkit.Breakpoint{
		{Slot: 0, Address: 0x1000},
		nil,
		{Slot: 2, Address: 0x3000},
		nil,
	}
	if got := matchSlot(bps, 0x3000); got != 2 {
		t.Fatalf("expected slot 2, got %d", got)
	}
	if got := matchSlot(bps, 0x9999); got != -1 {
		t.Fatalf("expected -1 for unmatched address, got %d", got)
	}
}

func TestLengthBits_quirkyEightBeforeFour(t *testing.T) {
	eight, err := lengthBits(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	four, err := lengthBits(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eight != 0x2 || four != 0x3 {
		t.Fatalf("expected 8->0x2, 4->0x3 (the teacher's documented 'sic' encoding), got 8->%#x 4->%#x", eight, four)
	}
}
