package sync

import (
	"arcore/kernel/cpu"
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	// Substitute the yieldFn with runtime.Gosched to avoid deadlocks while testing
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	wg.Wait()
}

func TestIRQSpinlock(t *testing.T) {
	defer func() {
		disableInterruptsFn = cpu.DisableInterrupts
		enableInterruptsFn = cpu.EnableInterrupts
		interruptsEnabledFn = cpu.InterruptsEnabled
	}()

	var intrEnabled bool
	disableInterruptsFn = func() { intrEnabled = false }
	enableInterruptsFn = func() { intrEnabled = true }
	interruptsEnabledFn = func() bool { return intrEnabled }

	specs := []struct {
		enabledBefore bool
	}{
		{true},
		{false},
	}

	for specIndex, spec := range specs {
		var l IRQSpinlock
		intrEnabled = spec.enabledBefore

		l.Acquire()
		if intrEnabled {
			t.Errorf("[spec %d] expected interrupts to be masked while the lock is held", specIndex)
		}

		if l.lock.TryToAcquire() {
			t.Errorf("[spec %d] expected underlying lock to be held", specIndex)
		}

		l.Release()
		if intrEnabled != spec.enabledBefore {
			t.Errorf("[spec %d] expected interrupt state to be restored to %t; got %t", specIndex, spec.enabledBefore, intrEnabled)
		}

		if !l.lock.TryToAcquire() {
			t.Errorf("[spec %d] expected lock to be free after Release", specIndex)
		}
	}
}
