package proc

import (
	"arcore/kernel"
	"arcore/kernel/kfmt"
	"arcore/kernel/mm/vmm"
	"arcore/kernel/sync"
)

var (
	// ErrTooManyTasks is returned when the table is full.
	ErrTooManyTasks = &kernel.Error{Module: "proc", Message: "too many tasks"}

	// ErrNoChild is returned by Wait when the caller has no child
	// matching the requested pid.
	ErrNoChild = &kernel.Error{Module: "proc", Message: "no such child"}
)

// AnyChild may be passed to Wait to wait for the first child to exit.
const AnyChild = -1

// Table tracks every live or unreaped task. Terminated tasks are kept until
// their parent collects their exit status with Wait; tasks without a parent
// are removed as soon as they terminate.
type Table struct {
	lock sync.Spinlock

	queue   *RunQueue
	tasks   map[uint64]*Task
	max     int
	nextPID uint64
	live    int
}

// NewTable returns a table holding at most max tasks whose runnable tasks
// are placed on queue.
func NewTable(max int, queue *RunQueue) *Table {
	return &Table{
		queue:   queue,
		tasks:   make(map[uint64]*Task, max),
		max:     max,
		nextPID: 1,
	}
}

// Queue returns the run queue used by the table.
func (tb *Table) Queue() *RunQueue { return tb.queue }

// Spawn creates a task that runs in space starting at entry with its stack
// pointer set to stackTop and makes it runnable. The task takes ownership of
// space. parent may be nil for the first task.
func (tb *Table) Spawn(name string, parent *Task, space *vmm.AddressSpace, entry, stackTop uintptr) (*Task, *kernel.Error) {
	tb.lock.Acquire()
	if len(tb.tasks) >= tb.max {
		tb.lock.Release()
		return nil, ErrTooManyTasks
	}

	t := newTask(tb.nextPID, name, space, entry, stackTop)
	tb.nextPID++
	tb.tasks[t.ID] = t
	tb.live++
	if parent != nil {
		t.parent = parent
		parent.children = append(parent.children, t)
	}
	tb.lock.Release()

	if err := tb.queue.Enqueue(t); err != nil {
		return nil, err
	}

	kfmt.Debugf("proc", "spawned %s (entry 0x%x)", t, entry)
	return t, nil
}

// Lookup returns the task with the given pid or nil.
func (tb *Table) Lookup(pid uint64) *Task {
	tb.lock.Acquire()
	defer tb.lock.Release()
	return tb.tasks[pid]
}

// Len returns the number of tasks in the table including unreaped ones.
func (tb *Table) Len() int {
	tb.lock.Acquire()
	defer tb.lock.Release()
	return len(tb.tasks)
}

// Live returns the number of tasks that have not terminated.
func (tb *Table) Live() int {
	tb.lock.Acquire()
	defer tb.lock.Release()
	return tb.live
}

// Exit terminates t, records its exit status and releases its address
// space. Pending wakers of t become inert so late completions are dropped.
// A parent blocked in Wait is woken; children of t become orphans and are
// removed once they terminate.
func (tb *Table) Exit(t *Task, status ExitStatus) {
	tb.lock.Acquire()
	if t.exited {
		tb.lock.Release()
		return
	}

	tb.queue.terminate(t)
	t.exited = true
	t.exit = status
	tb.live--

	for _, child := range t.children {
		child.parent = nil
		if child.exited {
			delete(tb.tasks, child.ID)
		}
	}
	t.children = nil

	if parent := t.parent; parent == nil {
		delete(tb.tasks, t.ID)
	} else if parent.waitWaker.Valid() && (parent.waitPID == AnyChild || uint64(parent.waitPID) == t.ID) {
		parent.waitWaker.Wake(t.ID, nil)
		parent.waitWaker = Waker{}
	}
	tb.lock.Release()

	if t.Space != nil {
		t.Space.Destroy()
		t.Space = nil
	}

	level := kfmt.LevelInfo
	if status.Reason != ExitNormal {
		level = kfmt.LevelWarn
	}
	kfmt.Logf(level, "proc", "%s terminated: %s", t, status)
}

// Wait collects the exit status of a terminated child of t. pid selects a
// specific child or AnyChild. If a matching child has already terminated it
// is removed from the table and returned with done set. Otherwise t is
// blocked and cont runs with the pid of the child in Completion.Tag once one
// terminates; the continuation should call Wait again to reap it.
func (tb *Table) Wait(t *Task, pid int64, cont Continuation) (child *Task, done bool, err *kernel.Error) {
	tb.lock.Acquire()
	defer tb.lock.Release()

	var found bool
	for i, c := range t.children {
		if pid != AnyChild && c.ID != uint64(pid) {
			continue
		}

		found = true
		if c.exited {
			t.children = append(t.children[:i], t.children[i+1:]...)
			c.parent = nil
			delete(tb.tasks, c.ID)
			return c, true, nil
		}
	}

	if !found {
		return nil, false, ErrNoChild
	}

	t.waitPID = pid
	t.waitWaker = tb.queue.Block(t, BlockWaitChild, cont)
	return nil, false, nil
}
