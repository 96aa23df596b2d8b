// Package blk bridges an interrupt-driven block transport to blocked tasks.
// Requests are recorded in a slot table sized to the transport's queue
// depth; the completion interrupt resolves each completed tag exactly once
// and wakes the task that issued it.
package blk

import (
	"arcore/kernel"
	"arcore/kernel/kfmt"
	"arcore/kernel/sync"

	"github.com/pkg/errors"
)

var (
	// ErrBusy is returned when every slot of the adapter is in flight.
	ErrBusy = &kernel.Error{Module: "blk", Message: "device busy"}

	// ErrInvalidBuffer is returned when a transfer buffer is empty or not
	// a multiple of SectorSize.
	ErrInvalidBuffer = &kernel.Error{Module: "blk", Message: "buffer is not a whole number of sectors"}

	// ErrDeviceError is delivered to a waiting task when the device
	// reports an I/O error.
	ErrDeviceError = &kernel.Error{Module: "blk", Message: "device I/O error"}

	// ErrUnsupported is delivered to a waiting task when the device
	// rejects the request type.
	ErrUnsupported = &kernel.Error{Module: "blk", Message: "unsupported request"}

	// ErrSubmitFailed is returned when the transport refused a request.
	ErrSubmitFailed = &kernel.Error{Module: "blk", Message: "transport rejected request"}

	// ErrUnknownTag is raised when the device completes a tag that is
	// not in flight.
	ErrUnknownTag = &kernel.Error{Module: "blk", Message: "completion for unknown tag"}

	panicFn = kfmt.Panic
)

// Tag identifies an in-flight request.
type Tag uint16

// Transport is implemented by block device drivers. Submit queues a request
// and must not block; for reads data is filled in by the device before the
// request completes. PollCompletion returns completed requests in the order
// the device finished them.
type Transport interface {
	QueueDepth() int
	Submit(tag Tag, header []byte, data []byte) error
	PollCompletion() (tag Tag, status Status, ok bool)
}

// Waker is notified when a request completes. Wake is called from interrupt
// context with the request tag and nil or the device error.
type Waker interface {
	Wake(tag uint64, err error) bool
}

type pendingRequest struct {
	inUse    bool
	write    bool
	sector   uint64
	buf      []byte
	waker    Waker
	header   [HeaderSize]byte
	nextFree int
}

// Adapter tracks the requests in flight on one transport.
type Adapter struct {
	lock sync.IRQSpinlock

	transport Transport
	slots     []pendingRequest
	freeHead  int
	inFlight  int
}

// NewAdapter returns an adapter for t with one slot per request the
// transport can keep in flight.
func NewAdapter(t Transport) *Adapter {
	a := &Adapter{
		transport: t,
		slots:     make([]pendingRequest, t.QueueDepth()),
	}

	for i := range a.slots {
		a.slots[i].nextFree = i + 1
	}
	if n := len(a.slots); n > 0 {
		a.slots[n-1].nextFree = -1
	} else {
		a.freeHead = -1
	}
	return a
}

// QueueDepth returns the number of slots.
func (a *Adapter) QueueDepth() int { return len(a.slots) }

// InFlight returns the number of requests awaiting completion.
func (a *Adapter) InFlight() int {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.inFlight
}

// SubmitRead queues a read of len(buf)/SectorSize sectors starting at
// sector. w is woken with the returned tag once buf holds the data.
func (a *Adapter) SubmitRead(sector uint64, buf []byte, w Waker) (Tag, *kernel.Error) {
	return a.submit(RequestRead, sector, buf, w)
}

// SubmitWrite queues a write of buf starting at sector. buf must not be
// modified until w is woken.
func (a *Adapter) SubmitWrite(sector uint64, buf []byte, w Waker) (Tag, *kernel.Error) {
	return a.submit(RequestWrite, sector, buf, w)
}

func (a *Adapter) submit(typ RequestType, sector uint64, buf []byte, w Waker) (Tag, *kernel.Error) {
	if len(buf) == 0 || len(buf)%SectorSize != 0 {
		return 0, ErrInvalidBuffer
	}

	var header [HeaderSize]byte
	if err := EncodeHeader(header[:], typ, sector); err != nil {
		kfmt.Errorf("blk", "%v", err)
		return 0, ErrSubmitFailed
	}

	a.lock.Acquire()
	defer a.lock.Release()

	if a.freeHead == -1 {
		return 0, ErrBusy
	}

	index := a.freeHead
	slot := &a.slots[index]
	a.freeHead = slot.nextFree

	*slot = pendingRequest{
		inUse:    true,
		write:    typ == RequestWrite,
		sector:   sector,
		buf:      buf,
		waker:    w,
		header:   header,
		nextFree: -1,
	}
	a.inFlight++

	// The slot is registered before the transport sees the request so a
	// completion can never observe a missing tag.
	if err := a.transport.Submit(Tag(index), slot.header[:], buf); err != nil {
		kfmt.Warnf("blk", "submit of sector %d failed: %v", sector, err)
		a.release(index)
		return 0, ErrSubmitFailed
	}

	return Tag(index), nil
}

// release returns a slot to the free list. The caller must hold the lock.
func (a *Adapter) release(index int) {
	a.slots[index] = pendingRequest{nextFree: a.freeHead}
	a.freeHead = index
	a.inFlight--
}

// OnCompletionInterrupt drains every completed request from the transport
// in the order the device reports them and wakes the issuing tasks. A
// completion for a tag that is not in flight is a protocol violation and
// halts the kernel. It returns the number of resolved requests.
func (a *Adapter) OnCompletionInterrupt() int {
	var resolved int

	for {
		a.lock.Acquire()
		tag, status, ok := a.transport.PollCompletion()
		if !ok {
			a.lock.Release()
			return resolved
		}

		if int(tag) >= len(a.slots) || !a.slots[tag].inUse {
			a.lock.Release()
			panicFn(errors.Wrapf(ErrUnknownTag, "tag %d", tag))
			return resolved
		}

		w := a.slots[tag].waker
		a.release(int(tag))
		a.lock.Release()

		resolved++
		if w != nil {
			// Stale wakers of terminated tasks ignore the completion.
			w.Wake(uint64(tag), statusError(status))
		}
	}
}

func statusError(status Status) error {
	switch status {
	case StatusOK:
		return nil
	case StatusUnsupported:
		return ErrUnsupported
	default:
		return ErrDeviceError
	}
}
