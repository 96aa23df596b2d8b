// Package sched runs user tasks. Each hart owns an Executor that takes tasks
// from the shared run queue in FIFO order, resumes them in user mode and
// dispatches the trap that brings them back to the kernel.
package sched

import (
	"arcore/kernel"
	"arcore/kernel/cpu"
	"arcore/kernel/irq"
	"arcore/kernel/kfmt"
	"arcore/kernel/mm/vmm"
	"arcore/kernel/proc"
	"arcore/kernel/trap"
)

var (
	// ErrUnknownCause is raised for traps the kernel cannot handle.
	ErrUnknownCause = &kernel.Error{Module: "sched", Message: "unhandled trap cause"}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	enterUserFn        = trap.EnterUser
	readSCauseFn       = cpu.ReadSCause
	readSTvalFn        = cpu.ReadSTval
	readTimeFn         = cpu.ReadTime
	setTimerFn         = cpu.SetTimer
	readSIPFn          = cpu.ReadSIP
	waitForInterruptFn = cpu.WaitForInterrupt
	serviceExternalFn  = irq.ServiceExternal
	serviceSoftwareFn  = irq.ServiceSoftware
	activateFn         = (*vmm.AddressSpace).Activate
	panicFn            = kfmt.Panic
)

// SyscallHandler services the system call a task trapped with. The handler
// writes its result into the task frame or suspends the task.
type SyscallHandler interface {
	HandleSyscall(t *proc.Task)
}

// Config holds the scheduling parameters shared by all harts.
type Config struct {
	// Quota is the number of timer ticks a task may run before it is
	// moved to the tail of the run queue.
	Quota uint32

	// TickInterval is the timer period in timebase cycles.
	TickInterval uint64
}

// Executor runs tasks on one hart.
type Executor struct {
	hart     int
	table    *proc.Table
	queue    *proc.RunQueue
	syscalls SyscallHandler
	cfg      Config

	current *proc.Task
	ticks   uint64
}

// NewExecutor returns the executor for hart.
func NewExecutor(hart int, table *proc.Table, syscalls SyscallHandler, cfg Config) *Executor {
	if cfg.Quota == 0 {
		cfg.Quota = 1
	}

	return &Executor{
		hart:     hart,
		table:    table,
		queue:    table.Queue(),
		syscalls: syscalls,
		cfg:      cfg,
	}
}

// Hart returns the hart the executor runs on.
func (e *Executor) Hart() int { return e.hart }

// Current returns the task running on the hart or nil.
func (e *Executor) Current() *proc.Task { return e.current }

// Ticks returns the number of timer interrupts handled by the executor.
func (e *Executor) Ticks() uint64 { return e.ticks }

// ArmTimer schedules the next timer interrupt one tick from now.
func (e *Executor) ArmTimer() {
	setTimerFn(readTimeFn() + e.cfg.TickInterval)
}

// Run schedules tasks forever. When no task is ready the hart waits for an
// interrupt.
func (e *Executor) Run() {
	kfmt.Infof("sched", "hart %d: executor started (quota %d ticks)", e.hart, e.cfg.Quota)

	e.ArmTimer()
	for {
		if !e.RunOnce() {
			e.Idle()
		}
	}
}

// RunOnce takes the task at the head of the run queue and runs it until it
// blocks, exhausts its quota or terminates. A task woken after blocking
// first completes its pending system call through its continuation. It
// returns false if no task was ready.
func (e *Executor) RunOnce() bool {
	t := e.queue.Dequeue()
	if t == nil {
		return false
	}

	e.current = t
	t.Ticks = 0

	if cont, c := e.queue.TakeContinuation(t); cont != nil {
		cont(t, c)
	}

	for t.State() == proc.StateRunning {
		activateFn(t.Space)
		enterUserFn(&t.Frame)

		e.Dispatch(t, trap.Cause(readSCauseFn()), uintptr(readSTvalFn()))
		serviceSoftwareFn()
	}

	e.current = nil
	if err := e.queue.Park(t); err != nil {
		panicFn(err)
	}
	return true
}

// Idle waits for the next interrupt and services it. Interrupts stay
// masked; wfi still resumes once an enabled source is pending.
func (e *Executor) Idle() {
	if serviceSoftwareFn() > 0 {
		return
	}

	waitForInterruptFn()

	pending := readSIPFn()
	if pending&cpu.SIPTimer != 0 {
		e.onTimer(nil)
	}
	if pending&cpu.SIPExternal != 0 {
		serviceExternalFn(e.hart)
	}
	serviceSoftwareFn()
}
