package pmm

import (
	"arcore/kernel"
	"arcore/kernel/kfmt"
	"arcore/kernel/mm"
	"arcore/kernel/sync"
	"math/bits"

	"github.com/pkg/errors"
)

var (
	// ErrOutOfMemory is returned when no frame can be allocated without
	// consuming the emergency reserve.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	// ErrDoubleFree is reported when a frame that is not allocated is
	// released. It indicates a lost ownership invariant and is fatal.
	ErrDoubleFree = &kernel.Error{Module: "pmm", Message: "frame freed twice"}

	// ErrFrameOutOfRange is reported when a frame outside the managed
	// range is released.
	ErrFrameOutOfRange = &kernel.Error{Module: "pmm", Message: "frame not managed by allocator"}

	errNoRAM = &kernel.Error{Module: "pmm", Message: "no usable RAM"}

	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic
)

// BitmapAllocator tracks a contiguous range of physical frames with one bit
// per frame. A set bit marks an allocated frame.
type BitmapAllocator struct {
	lock sync.IRQSpinlock

	base    mm.Frame
	count   uint32
	free    uint32
	reserve uint32

	// hint is the index of the bitmap word where the next search starts.
	hint   int
	bitmap []uint64
}

// Init prepares the allocator to manage count frames starting at base.
// reserve frames are only handed out by AllocReservedFrame.
func (a *BitmapAllocator) Init(base mm.Frame, count, reserve uint32) *kernel.Error {
	if count == 0 || reserve >= count {
		return errNoRAM
	}

	a.base = base
	a.count = count
	a.free = count
	a.reserve = reserve
	a.hint = 0
	a.bitmap = make([]uint64, (count+63)/64)

	// Bits past the end of the range are permanently allocated.
	if tail := count % 64; tail != 0 {
		a.bitmap[len(a.bitmap)-1] = ^uint64(0) << tail
	}

	return nil
}

// MarkReserved flags count frames starting at first as allocated so they are
// never handed out. Frames outside the managed range are ignored.
func (a *BitmapAllocator) MarkReserved(first mm.Frame, count uint32) {
	a.lock.Acquire()
	defer a.lock.Release()

	for f := first; f < first+mm.Frame(count); f++ {
		if f < a.base || f >= a.base+mm.Frame(a.count) {
			continue
		}

		index := uint32(f - a.base)
		word, bit := index/64, index%64
		if a.bitmap[word]&(1<<bit) == 0 {
			a.bitmap[word] |= 1 << bit
			a.free--
		}
	}
}

// AllocFrame reserves a free frame. It fails with ErrOutOfMemory once only
// the emergency reserve is left.
func (a *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	return a.alloc(a.reserve)
}

// AllocReservedFrame reserves a free frame, consuming the emergency reserve
// if required.
func (a *BitmapAllocator) AllocReservedFrame() (mm.Frame, *kernel.Error) {
	return a.alloc(0)
}

func (a *BitmapAllocator) alloc(keep uint32) (mm.Frame, *kernel.Error) {
	a.lock.Acquire()
	defer a.lock.Release()

	if a.free <= keep {
		return mm.InvalidFrame, ErrOutOfMemory
	}

	words := len(a.bitmap)
	for i := 0; i < words; i++ {
		word := (a.hint + i) % words
		if a.bitmap[word] == ^uint64(0) {
			continue
		}

		bit := bits.TrailingZeros64(^a.bitmap[word])
		a.bitmap[word] |= 1 << uint(bit)
		a.free--
		a.hint = word
		return a.base + mm.Frame(word*64+bit), nil
	}

	// free > 0 guarantees a clear bit exists.
	return mm.InvalidFrame, ErrOutOfMemory
}

// FreeFrame releases an allocated frame. Releasing a frame that is already
// free or that the allocator does not manage is fatal.
func (a *BitmapAllocator) FreeFrame(f mm.Frame) {
	a.lock.Acquire()

	if f < a.base || f >= a.base+mm.Frame(a.count) {
		a.lock.Release()
		panicFn(errors.Wrapf(ErrFrameOutOfRange, "frame 0x%x", uintptr(f)))
		return
	}

	index := uint32(f - a.base)
	word, bit := index/64, index%64
	if a.bitmap[word]&(1<<bit) == 0 {
		a.lock.Release()
		panicFn(errors.Wrapf(ErrDoubleFree, "frame 0x%x", uintptr(f)))
		return
	}

	a.bitmap[word] &^= 1 << bit
	a.free++
	a.lock.Release()
}

// FreeCount returns the number of unallocated frames, including the
// emergency reserve.
func (a *BitmapAllocator) FreeCount() uint32 {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.free
}

// FrameCount returns the number of frames managed by the allocator.
func (a *BitmapAllocator) FrameCount() uint32 { return a.count }
