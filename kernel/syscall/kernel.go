package syscall

import (
	"arcore/kernel"
	"arcore/kernel/blk"
	"arcore/kernel/fs/bundle"
	"arcore/kernel/proc"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// writeChunk is the size of the bounce buffer used by write.
	writeChunk = 256

	// spawnChunk is the number of bytes read per request while loading a
	// program.
	spawnChunk = 8 * blk.SectorSize
)

// Kernel holds the services used by the system call handlers. Each exported
// method is a system call named after the method.
type Kernel struct {
	tasks   *proc.Table
	disk    *blk.Adapter
	bundle  *bundle.Directory
	console io.Writer
}

// NewKernel returns the system call handlers. disk and dir may be nil if no
// storage is attached, in which case the block calls fail with EIO and
// spawn with ENOENT.
func NewKernel(tasks *proc.Table, disk *blk.Adapter, dir *bundle.Directory, console io.Writer) *Kernel {
	return &Kernel{tasks: tasks, disk: disk, bundle: dir, console: console}
}

// Write copies n bytes at buf to the console. Only stdout and stderr are
// supported. A fault or console error after some bytes were written ends the
// call with the partial count.
func (k *Kernel) Write(t *proc.Task, fd Fd, buf Ptr, n Len) (int64, error) {
	if fd != 1 && fd != 2 {
		return 0, ErrBadFd
	}

	var chunk [writeChunk]byte
	for done := Len(0); done < n; {
		size := n - done
		if size > writeChunk {
			size = writeChunk
		}

		if err := t.Space.CopyIn(chunk[:size], uintptr(buf)+uintptr(done)); err != nil {
			if done > 0 {
				return int64(done), nil
			}
			return 0, err
		}

		if k.console != nil {
			written, err := k.console.Write(chunk[:size])
			if err != nil {
				if done+Len(written) > 0 {
					return int64(done) + int64(written), nil
				}
				return 0, errors.Wrap(err, "console write")
			}
		}
		done += size
	}

	return int64(n), nil
}

// Exit terminates the calling task.
func (k *Kernel) Exit(t *proc.Task, code int64) (int64, error) {
	k.tasks.Exit(t, proc.ExitStatus{Reason: proc.ExitNormal, Code: code})
	return 0, nil
}

// SchedYield moves the calling task to the tail of the run queue.
func (k *Kernel) SchedYield(t *proc.Task) (int64, error) {
	k.tasks.Queue().Preempt(t)
	return 0, nil
}

// Getpid returns the pid of the calling task.
func (k *Kernel) Getpid(t *proc.Task) (int64, error) {
	return int64(t.ID), nil
}

// Getppid returns the pid of the parent of the calling task or 0.
func (k *Kernel) Getppid(t *proc.Task) (int64, error) {
	if parent := t.Parent(); parent != nil {
		return int64(parent.ID), nil
	}
	return 0, nil
}

// Brk moves the program break and returns the new break. A zero addr
// returns the current break.
func (k *Kernel) Brk(t *proc.Task, addr Ptr) (int64, error) {
	brk, err := t.Space.Brk(uintptr(addr))
	if err != nil {
		return 0, err
	}
	return int64(brk), nil
}

// ReadBlock reads one sector into the user buffer at buf. The calling task
// blocks until the device completes the request.
func (k *Kernel) ReadBlock(t *proc.Task, sector Sector, buf Ptr) (int64, error) {
	if k.disk == nil {
		return 0, blk.ErrDeviceError
	}

	data := make([]byte, blk.SectorSize)
	return k.submit(t, func(w blk.Waker) (blk.Tag, *kernel.Error) {
		return k.disk.SubmitRead(uint64(sector), data, w)
	}, func(t *proc.Task, c proc.Completion) {
		if c.Err != nil {
			setResult(t, 0, c.Err)
			return
		}
		if err := t.Space.CopyOut(uintptr(buf), data); err != nil {
			setResult(t, 0, err)
			return
		}
		setResult(t, 0, nil)
	})
}

// WriteBlock writes one sector from the user buffer at buf. The calling
// task blocks until the device completes the request.
func (k *Kernel) WriteBlock(t *proc.Task, sector Sector, buf Ptr) (int64, error) {
	if k.disk == nil {
		return 0, blk.ErrDeviceError
	}

	data := make([]byte, blk.SectorSize)
	if err := t.Space.CopyIn(data, uintptr(buf)); err != nil {
		return 0, err
	}

	return k.submit(t, func(w blk.Waker) (blk.Tag, *kernel.Error) {
		return k.disk.SubmitWrite(uint64(sector), data, w)
	}, completeWithStatus)
}

func completeWithStatus(t *proc.Task, c proc.Completion) {
	setResult(t, 0, c.Err)
}

// submit blocks t before issuing a request so a completion can never arrive
// before the waker is armed. If the request cannot be submitted t resumes
// running and the error is returned.
func (k *Kernel) submit(t *proc.Task, issue func(blk.Waker) (blk.Tag, *kernel.Error), cont proc.Continuation) (int64, error) {
	q := k.tasks.Queue()
	w := q.Block(t, proc.BlockIO, cont)

	tag, err := issue(w)
	if err != nil {
		q.CancelBlock(t)
		return 0, err
	}

	t.SetPendingTag(uint64(tag))
	return 0, nil
}

// Spawn starts the program called name from the storage bundle as a child
// of the calling task and returns its pid. The image is read with
// asynchronous block requests; the calling task is blocked until the load
// completes.
func (k *Kernel) Spawn(t *proc.Task, name Ptr, nameLen Len) (int64, error) {
	if nameLen == 0 {
		return 0, ErrInvalidArgument
	}
	if nameLen > bundle.MaxNameLen {
		return 0, ErrNameTooLong
	}

	rawName := make([]byte, nameLen)
	if err := t.Space.CopyIn(rawName, uintptr(name)); err != nil {
		return 0, err
	}

	if k.bundle == nil || k.disk == nil {
		return 0, bundle.ErrNotFound
	}

	entry, err := k.bundle.Lookup(string(rawName))
	if err != nil {
		return 0, err
	}
	if entry.Size == 0 {
		return 0, bundle.ErrCorrupt
	}

	load := &spawnLoad{
		kernel: k,
		entry:  entry,
		image:  make([]byte, entry.SectorCount()*blk.SectorSize),
	}
	return load.next(t)
}

// spawnLoad tracks a program image being read from the bundle.
type spawnLoad struct {
	kernel *Kernel
	entry  bundle.Entry
	image  []byte
	offset int
}

// next submits the read of the next chunk of the image.
func (l *spawnLoad) next(t *proc.Task) (int64, error) {
	end := l.offset + spawnChunk
	if end > len(l.image) {
		end = len(l.image)
	}

	sector := uint64(l.entry.Sector) + uint64(l.offset/blk.SectorSize)
	chunk := l.image[l.offset:end]
	return l.kernel.submit(t, func(w blk.Waker) (blk.Tag, *kernel.Error) {
		return l.kernel.disk.SubmitRead(sector, chunk, w)
	}, func(t *proc.Task, c proc.Completion) {
		l.onChunk(t, c, end)
	})
}

func (l *spawnLoad) onChunk(t *proc.Task, c proc.Completion, end int) {
	if c.Err != nil {
		setResult(t, 0, c.Err)
		return
	}

	l.offset = end
	if l.offset < len(l.image) {
		if _, err := l.next(t); err != nil {
			setResult(t, 0, err)
		}
		return
	}

	as, entry, stackTop, err := NewImageSpace(l.image[:l.entry.Size])
	if err != nil {
		setResult(t, 0, err)
		return
	}

	child, err := l.kernel.tasks.Spawn(l.entry.Name(), t, as, entry, stackTop)
	if err != nil {
		as.Destroy()
		setResult(t, 0, err)
		return
	}
	setResult(t, int64(child.ID), nil)
}

// Wait blocks until the child selected by pid terminates, stores its wait
// status at status unless it is zero and returns the pid of the child.
func (k *Kernel) Wait(t *proc.Task, pid Pid, status Ptr) (int64, error) {
	if pid < 0 {
		pid = proc.AnyChild
	}

	var cont proc.Continuation
	cont = func(t *proc.Task, c proc.Completion) {
		child, done, err := k.tasks.Wait(t, int64(c.Tag), cont)
		switch {
		case err != nil:
			setResult(t, 0, err)
		case done:
			pid, err := k.reap(t, child, status)
			setResult(t, pid, err)
		}
	}

	child, done, err := k.tasks.Wait(t, int64(pid), cont)
	if err != nil {
		return 0, err
	}
	if !done {
		return 0, nil
	}

	return k.reap(t, child, status)
}

// reap stores the wait status of child at status and returns its pid.
func (k *Kernel) reap(t *proc.Task, child *proc.Task, status Ptr) (int64, error) {
	if status != 0 {
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], uint64(child.ExitStatus().WaitStatus()))
		if err := t.Space.CopyOut(uintptr(status), raw[:]); err != nil {
			return 0, err
		}
	}
	return int64(child.ID), nil
}

// setResult stores the result of a system call completed by a
// continuation.
func setResult(t *proc.Task, v int64, err error) {
	if err != nil {
		t.Frame.SetReturn(ErrnoFor(err).Result())
		return
	}
	t.Frame.SetReturn(uint64(v))
}
