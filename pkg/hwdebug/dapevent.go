package hwdebug

import (
	"fmt"

	"github.com/google/go-dap"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

// ToStoppedEvent reshapes a DebugEvent as a DAP StoppedEvent, reusing the
// debug-adapter-protocol's own "why did execution stop" envelope instead of
// inventing a bespoke notification shape. Reason is always "breakpoint": the
// only way hwdebug stops a thread is an armed DR0-DR3 hit.
func ToStoppedEvent(ev *toolkit.DebugEvent) *dap.StoppedEvent {
	return &dap.StoppedEvent{
		Event: dap.Event{
			Event: "stopped",
		},
		Body: dap.StoppedEventBody{
			Reason:            "breakpoint",
			Description:       fmt.Sprintf("hardware breakpoint slot %d at 0x%x", ev.HardwareRegister, ev.FaultingAddress),
			ThreadId:          ev.Tid,
			AllThreadsStopped: false,
		},
	}
}

// ToExitedEvent reshapes a process exit code as a DAP ExitedEvent, for
// callers that want one notification shape across both "stopped" and
// "exited" states of an attached target.
func ToExitedEvent(exitCode int) *dap.ExitedEvent {
	return &dap.ExitedEvent{
		Event: dap.Event{
			Event: "exited",
		},
		Body: dap.ExitedEventBody{
			ExitCode: exitCode,
		},
	}
}
