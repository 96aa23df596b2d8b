package proc

import (
	"arcore/kernel/trap"
	"errors"
	gosync "sync"
	"testing"
)

func running(t *testing.T, q *RunQueue, task *Task) {
	t.Helper()
	if err := q.Enqueue(task); err != nil {
		t.Fatal(err)
	}
	if got := q.Dequeue(); got != task {
		t.Fatalf("expected to dequeue %v; got %v", task, got)
	}
}

func TestNewTaskFrame(t *testing.T) {
	task := newTask(7, "init", nil, 0x1000, 0x3f000)

	if task.Frame.SEPC != 0x1000 {
		t.Errorf("expected sepc 0x1000; got 0x%x", task.Frame.SEPC)
	}
	if sp := task.Frame.Regs[trap.RegSP]; sp != 0x3f000 {
		t.Errorf("expected sp 0x3f000; got 0x%x", sp)
	}
	if task.State() != StateReady {
		t.Errorf("expected new task to be ready; got %s", task.State())
	}
	if exp := "init[7]"; task.String() != exp {
		t.Errorf("expected %q; got %q", exp, task.String())
	}
}

func TestRunQueueFIFO(t *testing.T) {
	q := NewRunQueue(4)
	tasks := []*Task{
		newTask(1, "a", nil, 0, 0),
		newTask(2, "b", nil, 0, 0),
		newTask(3, "c", nil, 0, 0),
	}

	for _, task := range tasks {
		if err := q.Enqueue(task); err != nil {
			t.Fatal(err)
		}
		// enqueueing twice must not create a second entry
		if err := q.Enqueue(task); err != nil {
			t.Fatal(err)
		}
	}

	if got := q.Len(); got != len(tasks) {
		t.Fatalf("expected queue length %d; got %d", len(tasks), got)
	}

	for _, exp := range tasks {
		got := q.Dequeue()
		if got != exp {
			t.Fatalf("expected %v; got %v", exp, got)
		}
		if got.State() != StateRunning {
			t.Fatalf("expected dequeued task to be running; got %s", got.State())
		}
	}

	if got := q.Dequeue(); got != nil {
		t.Fatalf("expected empty queue; got %v", got)
	}
}

func TestRunQueueFull(t *testing.T) {
	q := NewRunQueue(1)
	if err := q.Enqueue(newTask(1, "a", nil, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(newTask(2, "b", nil, 0, 0)); err != ErrRunQueueFull {
		t.Fatalf("expected ErrRunQueueFull; got %v", err)
	}
}

func TestPreemptAndPark(t *testing.T) {
	q := NewRunQueue(2)
	task := newTask(1, "spin", nil, 0, 0)
	running(t, q, task)

	// parking a running task is a no-op
	if err := q.Park(task); err != nil || q.Contains(task) {
		t.Fatal("expected running task not to be queued by Park")
	}

	q.Preempt(task)
	if q.Contains(task) {
		t.Fatal("expected preempted task to stay off the queue until parked")
	}
	if err := q.Park(task); err != nil {
		t.Fatal(err)
	}
	if !q.Contains(task) || task.State() != StateReady {
		t.Fatal("expected parked task to be ready and queued")
	}
}

func TestWakeWhileOnCPU(t *testing.T) {
	q := NewRunQueue(2)
	task := newTask(1, "io", nil, 0, 0)
	running(t, q, task)

	var (
		gotTag uint64
		calls  int
	)
	w := q.Block(task, BlockIO, func(_ *Task, c Completion) {
		calls++
		gotTag = c.Tag
	})

	// completion arrives before the system call returned
	if !w.Wake(5, nil) {
		t.Fatal("expected first wake to succeed")
	}
	if q.Contains(task) {
		t.Fatal("expected a task still on its hart not to be queued by Wake")
	}

	if err := q.Park(task); err != nil {
		t.Fatal(err)
	}
	if got := q.Dequeue(); got != task {
		t.Fatalf("expected woken task to be dequeued; got %v", got)
	}

	cont, c := q.TakeContinuation(task)
	cont(task, c)
	if calls != 1 || gotTag != 5 {
		t.Fatalf("expected continuation to run once with tag 5; got %d calls, tag %d", calls, gotTag)
	}

	if cont, _ = q.TakeContinuation(task); cont != nil {
		t.Fatal("expected continuation to be cleared")
	}
}

func TestWakeAfterPark(t *testing.T) {
	q := NewRunQueue(2)
	task := newTask(1, "io", nil, 0, 0)
	running(t, q, task)

	w := q.Block(task, BlockIO, nil)
	if task.BlockReason() != BlockIO {
		t.Fatalf("expected block reason BlockIO; got %d", task.BlockReason())
	}
	if err := q.Park(task); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Fatal("expected blocked task not to be queued")
	}

	expErr := errors.New("device error")
	if !w.Wake(9, expErr) {
		t.Fatal("expected wake to succeed")
	}
	if !q.Contains(task) {
		t.Fatal("expected woken task to be queued")
	}

	_ = q.Dequeue()
	if _, c := q.TakeContinuation(task); c.Tag != 9 || c.Err != expErr {
		t.Fatalf("unexpected completion %+v", c)
	}
}

func TestStaleWakers(t *testing.T) {
	q := NewRunQueue(2)
	tb := NewTable(2, q)

	task, err := tb.Spawn("victim", nil, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = q.Dequeue()

	t.Run("zero waker", func(t *testing.T) {
		if (Waker{}).Wake(1, nil) {
			t.Fatal("expected zero waker to be a no-op")
		}
	})

	t.Run("woken twice", func(t *testing.T) {
		w := q.Block(task, BlockIO, nil)
		if !w.Wake(1, nil) {
			t.Fatal("expected first wake to succeed")
		}
		if w.Wake(1, nil) {
			t.Fatal("expected second wake to be a no-op")
		}
		_ = q.Park(task)
		_ = q.Dequeue()
	})

	t.Run("cancelled block", func(t *testing.T) {
		w := q.Block(task, BlockIO, nil)
		q.CancelBlock(task)
		if task.State() != StateRunning {
			t.Fatalf("expected cancelled block to resume running; got %s", task.State())
		}
		if w.Wake(1, nil) {
			t.Fatal("expected waker of a cancelled block to be a no-op")
		}
	})

	t.Run("blocked again", func(t *testing.T) {
		old := q.Block(task, BlockIO, nil)
		q.CancelBlock(task)
		cur := q.Block(task, BlockIO, nil)
		if old.Wake(1, nil) {
			t.Fatal("expected waker of an earlier block to be a no-op")
		}
		if task.State() != StateBlocked {
			t.Fatal("expected task to remain blocked")
		}
		q.CancelBlock(task)
		_ = cur
	})

	t.Run("terminated", func(t *testing.T) {
		w := q.Block(task, BlockIO, nil)
		tb.Exit(task, ExitStatus{Reason: ExitSegmentationFault, FaultAddr: 0x10})
		if w.Wake(1, nil) {
			t.Fatal("expected waking a terminated task to be a no-op")
		}
		if err := q.Park(task); err != nil || q.Len() != 0 {
			t.Fatal("expected terminated task never to be queued")
		}
		if task.State() != StateTerminated {
			t.Fatalf("expected terminated state; got %s", task.State())
		}
	})
}

func TestConcurrentWake(t *testing.T) {
	q := NewRunQueue(1)
	task := newTask(1, "io", nil, 0, 0)
	running(t, q, task)
	w := q.Block(task, BlockIO, nil)
	_ = q.Park(task)

	var (
		wg        gosync.WaitGroup
		mu        gosync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(tag uint64) {
			defer wg.Done()
			if w.Wake(tag, nil) {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(uint64(i))
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful wake; got %d", successes)
	}
	if q.Len() != 1 {
		t.Fatalf("expected task to be queued once; got queue length %d", q.Len())
	}
}

func TestExitStatus(t *testing.T) {
	specs := []struct {
		status  ExitStatus
		expWait int64
		expStr  string
	}{
		{ExitStatus{Code: 3}, 3 << 8, "exit code 3"},
		{ExitStatus{Code: 0x1ff}, 0xff << 8, "exit code 511"},
		{ExitStatus{Reason: ExitSegmentationFault, FaultAddr: 0xdead}, 11, "segmentation fault at 0xdead"},
		{ExitStatus{Reason: ExitIllegalInstruction, FaultAddr: 0x100}, 4, "illegal instruction at 0x100"},
		{ExitStatus{Reason: ExitOutOfMemory}, 9, "out of memory"},
	}

	for specIndex, spec := range specs {
		if got := spec.status.WaitStatus(); got != spec.expWait {
			t.Errorf("[spec %d] expected wait status %d; got %d", specIndex, spec.expWait, got)
		}
		if got := spec.status.String(); got != spec.expStr {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.expStr, got)
		}
	}
}
