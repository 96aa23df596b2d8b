package proc

import (
	"arcore/kernel"
	"arcore/kernel/sync"
)

// ErrRunQueueFull is returned when a task cannot be queued because the ring
// is at capacity. The capacity equals the maximum number of tasks, so this
// indicates a bookkeeping bug.
var ErrRunQueueFull = &kernel.Error{Module: "proc", Message: "run queue full"}

// RunQueue is the FIFO of ready tasks shared by all harts. Its storage is a
// fixed ring allocated up front so wakeups from interrupt context never
// allocate. All task state transitions happen under its lock, which is held
// with interrupts masked on the owning hart.
type RunQueue struct {
	lock sync.IRQSpinlock

	ring        []*Task
	head, count int
}

// NewRunQueue returns a queue able to hold capacity tasks.
func NewRunQueue(capacity int) *RunQueue {
	return &RunQueue{ring: make([]*Task, capacity)}
}

// Len returns the number of queued tasks.
func (q *RunQueue) Len() int {
	q.lock.Acquire()
	defer q.lock.Release()
	return q.count
}

// Contains returns true if t is currently queued.
func (q *RunQueue) Contains(t *Task) bool {
	q.lock.Acquire()
	defer q.lock.Release()
	return t.queued
}

// push appends t to the tail of the ring unless it is already queued. The
// caller must hold the lock.
func (q *RunQueue) push(t *Task) *kernel.Error {
	if t.queued {
		return nil
	}

	if q.count == len(q.ring) {
		return ErrRunQueueFull
	}

	q.ring[(q.head+q.count)%len(q.ring)] = t
	q.count++
	t.queued = true
	return nil
}

// Enqueue makes a newly created task runnable.
func (q *RunQueue) Enqueue(t *Task) *kernel.Error {
	q.lock.Acquire()
	defer q.lock.Release()

	if t.state != StateReady {
		return nil
	}
	return q.push(t)
}

// Dequeue removes the task at the head of the queue, marks it as running on
// the calling hart and returns it. It returns nil if the queue is empty.
func (q *RunQueue) Dequeue() *Task {
	q.lock.Acquire()
	defer q.lock.Release()

	for q.count > 0 {
		t := q.ring[q.head]
		q.ring[q.head] = nil
		q.head = (q.head + 1) % len(q.ring)
		q.count--
		t.queued = false

		if t.state != StateReady {
			continue
		}

		t.state = StateRunning
		t.onCPU = true
		return t
	}

	return nil
}

// Preempt moves a running task back to the ready state. The task is queued
// once its hart parks it.
func (q *RunQueue) Preempt(t *Task) {
	q.lock.Acquire()
	if t.state == StateRunning {
		t.state = StateReady
	}
	q.lock.Release()
}

// Park is called by the hart that ran t once t stopped running. A task that
// became ready while still on the hart (preempted, or woken before its
// blocking system call returned) is appended to the queue.
func (q *RunQueue) Park(t *Task) *kernel.Error {
	q.lock.Acquire()
	defer q.lock.Release()

	if t.state == StateRunning {
		return nil
	}

	t.onCPU = false
	if t.state == StateReady {
		return q.push(t)
	}
	return nil
}

// Block suspends a running task for reason. cont is invoked with the wake-up
// completion once the returned waker fires. The task keeps running on its
// hart until the current system call returns, so callers may block the task
// before submitting the request that will wake it.
func (q *RunQueue) Block(t *Task, reason BlockReason, cont Continuation) Waker {
	q.lock.Acquire()
	defer q.lock.Release()

	t.gen++
	t.state = StateBlocked
	t.reason = reason
	t.cont = cont
	t.completion = Completion{}
	return Waker{q: q, t: t, gen: t.gen}
}

// CancelBlock returns a task blocked by the calling hart to the running
// state, typically because submitting its request failed. Wakers handed out
// by the cancelled Block become inert.
func (q *RunQueue) CancelBlock(t *Task) {
	q.lock.Acquire()
	defer q.lock.Release()

	if t.state != StateBlocked {
		return
	}

	t.gen++
	t.state = StateRunning
	t.reason = BlockNone
	t.cont = nil
}

// TakeContinuation returns and clears the continuation and completion of a
// woken task.
func (q *RunQueue) TakeContinuation(t *Task) (Continuation, Completion) {
	q.lock.Acquire()
	defer q.lock.Release()

	cont, c := t.cont, t.completion
	t.cont, t.completion = nil, Completion{}
	return cont, c
}

// terminate moves t to the terminated state. Outstanding wakers become
// inert and the task is never queued again.
func (q *RunQueue) terminate(t *Task) {
	q.lock.Acquire()
	defer q.lock.Release()

	t.gen++
	t.state = StateTerminated
	t.reason = BlockNone
	t.cont = nil
}

// Waker re-enqueues one specific blocked task. A waker is only honoured
// while the task is still blocked in the Block call that created it; waking
// a terminated task, a task that has already been woken, or a task that
// blocked again since is a no-op.
type Waker struct {
	q   *RunQueue
	t   *Task
	gen uint32
}

// Valid returns true if the waker was handed out by Block.
func (w Waker) Valid() bool { return w.t != nil }

// Wake delivers a completion to the task and makes it ready. It never
// blocks or allocates and may be called from interrupt context. It returns
// false if the waker is stale.
func (w Waker) Wake(tag uint64, err error) bool {
	if w.t == nil {
		return false
	}

	w.q.lock.Acquire()
	defer w.q.lock.Release()

	t := w.t
	if t.gen != w.gen || t.state != StateBlocked {
		return false
	}

	t.state = StateReady
	t.reason = BlockNone
	t.completion = Completion{Tag: tag, Err: err}
	if !t.onCPU {
		// The ring holds one slot per task so this cannot fail.
		_ = w.q.push(t)
	}
	return true
}
