package sched

import (
	"arcore/kernel/cpu"
	"arcore/kernel/irq"
	"arcore/kernel/kfmt"
	"arcore/kernel/mm"
	"arcore/kernel/mm/pmm"
	"arcore/kernel/mm/vmm"
	"arcore/kernel/proc"
	"arcore/kernel/trap"
	"testing"

	"github.com/pkg/errors"
)

// program describes what a task does each time it is resumed: it returns
// the trap that ends the time slice.
type program func(f *trap.Frame) (trap.Cause, uintptr)

type fakeHart struct {
	programs map[*trap.Frame]program
	trace    []*trap.Frame

	cause trap.Cause
	stval uintptr

	time, deadline uint64
	sip            uint64
	external       int
	wfi            int
}

func installFakeHart(t *testing.T) *fakeHart {
	h := &fakeHart{programs: make(map[*trap.Frame]program)}

	enterUserFn = func(f *trap.Frame) {
		h.trace = append(h.trace, f)
		h.cause, h.stval = h.programs[f](f)
	}
	readSCauseFn = func() uint64 { return uint64(h.cause) }
	readSTvalFn = func() uint64 { return uint64(h.stval) }
	readTimeFn = func() uint64 { h.time += 10; return h.time }
	setTimerFn = func(deadline uint64) { h.deadline = deadline }
	readSIPFn = func() uint64 { return h.sip }
	waitForInterruptFn = func() { h.wfi++ }
	serviceExternalFn = func(int) int { h.external++; return 1 }
	serviceSoftwareFn = func() int { return 0 }
	activateFn = func(*vmm.AddressSpace) {}

	t.Cleanup(func() {
		enterUserFn = trap.EnterUser
		readSCauseFn = cpu.ReadSCause
		readSTvalFn = cpu.ReadSTval
		readTimeFn = cpu.ReadTime
		setTimerFn = cpu.SetTimer
		readSIPFn = cpu.ReadSIP
		waitForInterruptFn = cpu.WaitForInterrupt
		serviceExternalFn = irq.ServiceExternal
		serviceSoftwareFn = irq.ServiceSoftware
		activateFn = (*vmm.AddressSpace).Activate
		panicFn = kfmt.Panic
	})

	return h
}

// entries returns how many times the task owning f was resumed.
func (h *fakeHart) entries(f *trap.Frame) int {
	var n int
	for _, e := range h.trace {
		if e == f {
			n++
		}
	}
	return n
}

var (
	timerTrap = trap.InterruptCause(trap.CodeTimerInterrupt)
	extTrap   = trap.InterruptCause(trap.CodeExternalInterrupt)
	ecallTrap = trap.ExceptionCause(trap.CodeUserEcall)
)

func busyLoop(*trap.Frame) (trap.Cause, uintptr) { return timerTrap, 0 }

func exitCall(code uint64) program {
	return func(f *trap.Frame) (trap.Cause, uintptr) {
		f.Regs[trap.RegA7] = sysExit
		f.Regs[trap.RegA0] = code
		return ecallTrap, 0
	}
}

const (
	sysExit  = 93
	sysBlock = 1000
)

// fakeSyscalls implements exit and a call that blocks until woken.
type fakeSyscalls struct {
	table   *proc.Table
	calls   []uint64
	wakers  []proc.Waker
	resumed int
}

func (s *fakeSyscalls) HandleSyscall(t *proc.Task) {
	num := t.Frame.SyscallNumber()
	s.calls = append(s.calls, num)

	switch num {
	case sysExit:
		s.table.Exit(t, proc.ExitStatus{Code: int64(t.Frame.Regs[trap.RegA0])})
	case sysBlock:
		w := s.table.Queue().Block(t, proc.BlockIO, func(t *proc.Task, c proc.Completion) {
			s.resumed++
			t.Frame.SetReturn(c.Tag)
		})
		s.wakers = append(s.wakers, w)
	default:
		t.Frame.SetReturn(^uint64(0))
	}
}

func newExecutor(tasks int, quota uint32) (*Executor, *proc.Table, *fakeSyscalls) {
	tb := proc.NewTable(tasks, proc.NewRunQueue(tasks))
	sys := &fakeSyscalls{table: tb}
	return NewExecutor(0, tb, sys, Config{Quota: quota, TickInterval: 1000}), tb, sys
}

func spawn(t *testing.T, tb *proc.Table, h *fakeHart, name string, space *vmm.AddressSpace, prog program) *proc.Task {
	t.Helper()
	task, err := tb.Spawn(name, nil, space, 0x1000, 0x8000)
	if err != nil {
		t.Fatal(err)
	}
	h.programs[&task.Frame] = prog
	return task
}

func TestBusyLoopIsPreempted(t *testing.T) {
	const quota = 4
	h := installFakeHart(t)
	e, tb, _ := newExecutor(2, quota)

	spinner := spawn(t, tb, h, "spinner", nil, busyLoop)
	worker := spawn(t, tb, h, "worker", nil, exitCall(0))

	for i := 0; i < 3 && tb.Live() > 1; i++ {
		if !e.RunOnce() {
			t.Fatal("expected a runnable task")
		}
	}

	if worker.State() != proc.StateTerminated {
		t.Fatal("expected the worker to make progress and exit")
	}

	// the worker ran right after the spinner's first quantum
	firstWorker := -1
	for i, f := range h.trace {
		if f == &worker.Frame {
			firstWorker = i
			break
		}
	}
	if firstWorker == -1 || firstWorker > 2*quota {
		t.Fatalf("expected the worker to run within %d ticks; it first ran after %d entries", 2*quota, firstWorker)
	}
	if got := h.entries(&spinner.Frame); got != quota {
		t.Fatalf("expected the spinner to be preempted after %d ticks; got %d", quota, got)
	}

	if spinner.State() != proc.StateReady || tb.Queue().Len() != 1 {
		t.Fatal("expected the spinner to be back on the run queue")
	}
	if e.Ticks() != quota {
		t.Fatalf("expected %d timer ticks; got %d", quota, e.Ticks())
	}
	if h.deadline != h.time+e.cfg.TickInterval {
		t.Fatalf("expected timer to be rearmed one tick ahead; deadline %d, time %d", h.deadline, h.time)
	}
}

func TestSyscallAdvancesPC(t *testing.T) {
	h := installFakeHart(t)
	e, tb, sys := newExecutor(1, 4)

	var pcs []uint64
	task := spawn(t, tb, h, "calls", nil, func(f *trap.Frame) (trap.Cause, uintptr) {
		pcs = append(pcs, f.SEPC)
		if len(pcs) == 3 {
			return exitCall(0)(f)
		}
		f.Regs[trap.RegA7] = 7
		return ecallTrap, 0
	})

	e.RunOnce()

	if exp := []uint64{0x1000, 0x1004, 0x1008}; len(pcs) != 3 || pcs[0] != exp[0] || pcs[1] != exp[1] || pcs[2] != exp[2] {
		t.Fatalf("expected resume pcs %x; got %x", exp, pcs)
	}
	if len(sys.calls) != 3 {
		t.Fatalf("expected 3 system calls; got %d", len(sys.calls))
	}
	if task.Frame.Regs[trap.RegA0] != 0 || task.State() != proc.StateTerminated {
		t.Fatal("expected task to exit with code 0")
	}
}

func TestExternalInterruptDoesNotReschedule(t *testing.T) {
	h := installFakeHart(t)
	e, tb, _ := newExecutor(2, 4)

	var n int
	first := spawn(t, tb, h, "first", nil, func(f *trap.Frame) (trap.Cause, uintptr) {
		n++
		if n < 3 {
			return extTrap, 0
		}
		return exitCall(0)(f)
	})
	second := spawn(t, tb, h, "second", nil, exitCall(0))

	e.RunOnce()

	if h.external != 2 {
		t.Fatalf("expected 2 serviced external interrupts; got %d", h.external)
	}
	if h.entries(&first.Frame) != 3 || h.entries(&second.Frame) != 0 {
		t.Fatal("expected the interrupted task to be resumed until it exits")
	}
}

func TestBlockingSyscall(t *testing.T) {
	h := installFakeHart(t)
	e, tb, sys := newExecutor(2, 4)

	var n int
	task := spawn(t, tb, h, "io", nil, func(f *trap.Frame) (trap.Cause, uintptr) {
		n++
		if n == 1 {
			f.Regs[trap.RegA7] = sysBlock
			return ecallTrap, 0
		}
		return exitCall(f.Regs[trap.RegA0])(f)
	})

	e.RunOnce()
	if task.State() != proc.StateBlocked || tb.Queue().Len() != 0 {
		t.Fatal("expected the task to be blocked and off the run queue")
	}
	if e.RunOnce() {
		t.Fatal("expected no runnable task while blocked")
	}

	if !sys.wakers[0].Wake(42, nil) {
		t.Fatal("expected wake to succeed")
	}
	e.RunOnce()

	if sys.resumed != 1 {
		t.Fatalf("expected continuation to run once; got %d", sys.resumed)
	}
	if status := task.ExitStatus(); task.State() != proc.StateTerminated || status.Code != 42 {
		t.Fatalf("expected task to exit with the completion tag; got %s (%s)", task.State(), status)
	}
}

func setupMemory(t *testing.T, frames int) {
	t.Helper()

	base := mm.Frame(0x80000)
	mm.SetPhysicalMemory(mm.NewArena(base, frames))

	alloc := &pmm.BitmapAllocator{}
	if err := alloc.Init(base, uint32(frames), 2); err != nil {
		t.Fatal(err)
	}
	mm.SetFrameAllocator(alloc)

	t.Cleanup(func() {
		mm.SetPhysicalMemory(nil)
		mm.SetFrameAllocator(nil)
	})
}

func TestFaultsTerminateOnlyTheOffendingTask(t *testing.T) {
	const (
		stackTop  = uintptr(0x40000)
		stackSize = uintptr(4 * mm.PageSize)
	)

	h := installFakeHart(t)
	setupMemory(t, 32)
	e, tb, _ := newExecutor(4, 4)

	newSpace := func() *vmm.AddressSpace {
		as, err := vmm.NewAddressSpace()
		if err != nil {
			t.Fatal(err)
		}
		if err := as.ReserveStack(stackTop, stackSize); err != nil {
			t.Fatal(err)
		}
		return as
	}

	specs := []struct {
		name      string
		cause     trap.Cause
		stval     uintptr
		expReason proc.ExitReason
	}{
		{"wild store", trap.ExceptionCause(trap.CodeStorePageFault), 0xdead000, proc.ExitSegmentationFault},
		{"jump to stack", trap.ExceptionCause(trap.CodeInstructionPageFault), stackTop - 8, proc.ExitSegmentationFault},
		{"illegal", trap.ExceptionCause(trap.CodeIllegalInstruction), 0, proc.ExitIllegalInstruction},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			spec := spec
			bad := spawn(t, tb, h, "bad", newSpace(), func(*trap.Frame) (trap.Cause, uintptr) {
				return spec.cause, spec.stval
			})

			var n int
			good := spawn(t, tb, h, "good", newSpace(), func(f *trap.Frame) (trap.Cause, uintptr) {
				n++
				if n == 1 {
					// first touch of the stack grows it
					return trap.ExceptionCause(trap.CodeStorePageFault), stackTop - 16
				}
				return exitCall(5)(f)
			})
			goodSpace := good.Space

			e.RunOnce()
			if bad.State() != proc.StateTerminated || bad.ExitStatus().Reason != spec.expReason {
				t.Fatalf("expected bad task to terminate with reason %d; got %s", spec.expReason, bad.ExitStatus())
			}
			if bad.Space != nil {
				t.Fatal("expected the address space of the terminated task to be released")
			}

			e.RunOnce()
			if n != 2 {
				t.Fatalf("expected the good task to resume after its stack fault; got %d entries", n)
			}
			if goodSpace.OwnedFrames() != 0 {
				t.Fatalf("expected the stack page to be released on exit; %d frames still owned", goodSpace.OwnedFrames())
			}
			if status := good.ExitStatus(); status.Reason != proc.ExitNormal || status.Code != 5 {
				t.Fatalf("expected the good task to exit normally; got %s", status)
			}
		})
	}
}

func TestUnknownCauseIsFatal(t *testing.T) {
	installFakeHart(t)
	e, tb, _ := newExecutor(1, 4)
	task, _ := tb.Spawn("bp", nil, nil, 0x2000, 0)

	var fatal error
	panicFn = func(err interface{}) { fatal = err.(error) }

	for _, cause := range []trap.Cause{
		trap.ExceptionCause(trap.CodeBreakpoint),
		trap.ExceptionCause(trap.CodeLoadMisaligned),
		trap.ExceptionCause(trap.CodeSupervisorEcall),
		trap.InterruptCause(trap.CodeSoftwareInterrupt),
	} {
		fatal = nil
		e.Dispatch(task, cause, 0)
		if errors.Cause(fatal) != ErrUnknownCause {
			t.Errorf("expected %s to be fatal; got %v", cause, fatal)
		}
	}
}

func TestIdle(t *testing.T) {
	h := installFakeHart(t)
	e, _, _ := newExecutor(1, 4)

	h.sip = cpu.SIPTimer | cpu.SIPExternal
	e.Idle()

	if h.wfi != 1 || e.Ticks() != 1 || h.external != 1 {
		t.Fatalf("expected idle to wait once and service both interrupts; got wfi=%d ticks=%d external=%d", h.wfi, e.Ticks(), h.external)
	}

	// pending software completions are serviced without waiting
	serviceSoftwareFn = func() int { return 1 }
	e.Idle()
	if h.wfi != 1 {
		t.Fatal("expected idle not to wait while software interrupts are pending")
	}
}
