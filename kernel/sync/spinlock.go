// Package sync provides synchronization primitive implementations for
// spinlocks, including a variant that masks interrupts on the current hart
// while it is held.
package sync

import (
	"arcore/kernel/cpu"
	"sync/atomic"
)

const attemptsBeforeYielding = 100

var (
	// yieldFn is invoked while spinning for a held lock. Kernel code runs
	// one task per hart and has nothing to yield to, so it stays nil
	// unless tests substitute runtime.Gosched.
	yieldFn func()

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
	interruptsEnabledFn = cpu.InterruptsEnabled
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for attempt := uint32(1); !atomic.CompareAndSwapUint32(&l.state, 0, 1); attempt++ {
		if attempt%attemptsBeforeYielding == 0 && yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// IRQSpinlock is a Spinlock that is always held with interrupts masked on the
// owning hart. Code that may also run from an interrupt handler must use it
// so that a nested trap can never spin on a lock its own hart already holds.
type IRQSpinlock struct {
	lock Spinlock

	// restoreInterrupts records whether interrupts were enabled before
	// Acquire masked them. Only the holder reads or writes it.
	restoreInterrupts bool
}

// Acquire masks interrupts on the calling hart and then spins until the lock
// is available.
func (l *IRQSpinlock) Acquire() {
	wasEnabled := interruptsEnabledFn()
	disableInterruptsFn()
	l.lock.Acquire()
	l.restoreInterrupts = wasEnabled
}

// Release relinquishes the lock and re-enables interrupts if they were
// enabled when the lock was acquired.
func (l *IRQSpinlock) Release() {
	restore := l.restoreInterrupts
	l.restoreInterrupts = false
	l.lock.Release()
	if restore {
		enableInterruptsFn()
	}
}
