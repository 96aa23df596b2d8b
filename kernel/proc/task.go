// Package proc implements the schedulable unit of the kernel: tasks, their
// state machine, the run queue shared by all harts and the process table.
package proc

import (
	"arcore/kernel/cpu"
	"arcore/kernel/mm/vmm"
	"arcore/kernel/trap"
	"fmt"
)

// State is the scheduling state of a task.
type State uint8

// The task states. Terminated is absorbing.
const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateTerminated
)

var stateNames = [...]string{"ready", "running", "blocked", "terminated"}

// String implements fmt.Stringer for State.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// BlockReason records what a blocked task is waiting for.
type BlockReason uint8

// The supported block reasons.
const (
	BlockNone BlockReason = iota
	BlockIO
	BlockWaitChild
)

// ExitReason records why a task terminated.
type ExitReason uint8

// The supported exit reasons.
const (
	ExitNormal ExitReason = iota
	ExitSegmentationFault
	ExitIllegalInstruction
	ExitOutOfMemory
)

// Signal numbers reported in wait statuses of tasks terminated by a fault.
const (
	sigIll  = 4
	sigKill = 9
	sigSegv = 11
)

// ExitStatus records how a task terminated.
type ExitStatus struct {
	Reason ExitReason

	// Code is the value passed to exit for ExitNormal.
	Code int64

	// FaultAddr is the faulting address or instruction for fault exits.
	FaultAddr uintptr
}

// WaitStatus encodes the status in the layout returned by the wait system
// call: the exit code in bits 8-15 for normal exits, or the number of the
// signal that describes the fault.
func (s ExitStatus) WaitStatus() int64 {
	switch s.Reason {
	case ExitSegmentationFault:
		return sigSegv
	case ExitIllegalInstruction:
		return sigIll
	case ExitOutOfMemory:
		return sigKill
	default:
		return (s.Code & 0xff) << 8
	}
}

// String implements fmt.Stringer for ExitStatus.
func (s ExitStatus) String() string {
	switch s.Reason {
	case ExitSegmentationFault:
		return fmt.Sprintf("segmentation fault at 0x%x", s.FaultAddr)
	case ExitIllegalInstruction:
		return fmt.Sprintf("illegal instruction at 0x%x", s.FaultAddr)
	case ExitOutOfMemory:
		return "out of memory"
	default:
		return fmt.Sprintf("exit code %d", s.Code)
	}
}

// Completion is delivered to a blocked task when the resource it waits on
// wakes it.
type Completion struct {
	// Tag identifies the completed request (a block request tag or the
	// pid of an exited child).
	Tag uint64
	Err error
}

// Continuation finishes a system call once the task it suspended has been
// woken. It runs on the hart that resumes the task, before the task returns
// to user mode, and may suspend the task again.
type Continuation func(t *Task, c Completion)

// Task is a user process: its register context, its address space and its
// scheduling state. Fields guarded by the run queue lock are only modified
// through RunQueue methods.
type Task struct {
	ID    uint64
	Name  string
	Frame trap.Frame

	// Space is owned by the task and destroyed when it terminates.
	Space *vmm.AddressSpace

	// Ticks counts the timer ticks consumed in the current quantum. It is
	// only touched by the hart running the task.
	Ticks uint32

	// guarded by the run queue lock
	state      State
	reason     BlockReason
	gen        uint32
	onCPU      bool
	queued     bool
	cont       Continuation
	completion Completion

	// pendingTag is the block request the task waits on. It is set by the
	// hart that blocked the task and only used for diagnostics.
	pendingTag uint64

	// guarded by the table lock. exited mirrors state == StateTerminated
	// for readers that only hold the table lock.
	exited    bool
	exit      ExitStatus
	parent    *Task
	children  []*Task
	waitPID   int64
	waitWaker Waker
}

// newTask creates a task that starts executing at entry in user mode with
// its stack pointer set to stackTop.
func newTask(id uint64, name string, space *vmm.AddressSpace, entry, stackTop uintptr) *Task {
	t := &Task{ID: id, Name: name, Space: space, state: StateReady}
	t.Frame.SEPC = uint64(entry)
	t.Frame.Regs[trap.RegSP] = uint64(stackTop)

	// Return to user mode with interrupts enabled once sret executes.
	t.Frame.SStatus = cpu.SStatusSPIE
	return t
}

// State returns the scheduling state of the task.
func (t *Task) State() State { return t.state }

// BlockReason returns what a blocked task waits for.
func (t *Task) BlockReason() BlockReason { return t.reason }

// SetPendingTag records the block request a blocked task waits on.
func (t *Task) SetPendingTag(tag uint64) { t.pendingTag = tag }

// PendingTag returns the block request recorded by SetPendingTag.
func (t *Task) PendingTag() uint64 { return t.pendingTag }

// ExitStatus returns the recorded exit status of a terminated task.
func (t *Task) ExitStatus() ExitStatus { return t.exit }

// Parent returns the parent task or nil for orphans and the first task.
func (t *Task) Parent() *Task { return t.parent }

// String implements fmt.Stringer for Task.
func (t *Task) String() string {
	return fmt.Sprintf("%s[%d]", t.Name, t.ID)
}
