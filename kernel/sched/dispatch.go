package sched

import (
	"arcore/kernel/kfmt"
	"arcore/kernel/mm/pmm"
	"arcore/kernel/proc"
	"arcore/kernel/trap"

	"github.com/pkg/errors"
)

// Dispatch handles the trap that returned t to the kernel. Page faults the
// address space cannot resolve and illegal instructions terminate t; timer
// interrupts may preempt it; external interrupts are serviced without
// rescheduling. Any other cause halts the kernel.
func (e *Executor) Dispatch(t *proc.Task, cause trap.Cause, stval uintptr) {
	switch trap.Classify(cause) {
	case trap.KindSyscall:
		t.Frame.AdvancePC()
		e.syscalls.HandleSyscall(t)

	case trap.KindPageFault:
		err := t.Space.HandleFault(stval, cause.Access())
		if err == nil {
			return
		}

		reason := proc.ExitSegmentationFault
		if err == pmm.ErrOutOfMemory {
			reason = proc.ExitOutOfMemory
		}
		kfmt.Debugf("sched", "%s: %s fault at 0x%x (pc 0x%x): %s", t, cause.Access(), stval, t.Frame.SEPC, err.Message)
		e.table.Exit(t, proc.ExitStatus{Reason: reason, FaultAddr: stval})

	case trap.KindIllegalInstruction:
		e.table.Exit(t, proc.ExitStatus{Reason: proc.ExitIllegalInstruction, FaultAddr: uintptr(t.Frame.SEPC)})

	case trap.KindTimerInterrupt:
		e.onTimer(t)

	case trap.KindExternalInterrupt:
		serviceExternalFn(e.hart)

	default:
		w := kfmt.GetOutputSink()
		kfmt.Fprintf(w, "\ntask %s trapped with %s, stval 0x%x\n", t, cause, stval)
		t.Frame.Print(w)
		panicFn(errors.Wrapf(ErrUnknownCause, "%s at pc 0x%x", cause, t.Frame.SEPC))
	}
}

// onTimer rearms the timer and charges the tick to t. A task that used up
// its quota is moved to the tail of the run queue.
func (e *Executor) onTimer(t *proc.Task) {
	e.ArmTimer()
	e.ticks++

	if t == nil {
		return
	}

	t.Ticks++
	if t.Ticks >= e.cfg.Quota {
		t.Ticks = 0
		e.queue.Preempt(t)
	}
}
