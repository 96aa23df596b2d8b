// Package mm contains the physical and virtual page primitives shared by the
// frame allocator and the virtual memory manager.
package mm

import (
	"arcore/kernel"
	"math"
)

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// FrameAllocator is implemented by physical frame allocators.
type FrameAllocator interface {
	// AllocFrame reserves a free frame, refusing to dip into the
	// emergency reserve.
	AllocFrame() (Frame, *kernel.Error)

	// AllocReservedFrame reserves a free frame and may consume frames from
	// the emergency reserve. It is meant for kernel bookkeeping that must
	// not fail on an allocation error path.
	AllocReservedFrame() (Frame, *kernel.Error)

	// FreeFrame releases a frame previously returned by one of the
	// allocation methods.
	FreeFrame(Frame)
}

var (
	// frameAllocator points to the allocator registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocator
)

// SetFrameAllocator registers the frame allocator that will be used by the vmm
// code when new physical frames need to be allocated or released.
func SetFrameAllocator(a FrameAllocator) { frameAllocator = a }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) { return frameAllocator.AllocFrame() }

// AllocReservedFrame allocates a new physical frame, falling back to the
// emergency reserve if needed.
func AllocReservedFrame() (Frame, *kernel.Error) { return frameAllocator.AllocReservedFrame() }

// FreeFrame returns a frame to the currently active physical frame allocator.
func FreeFrame(f Frame) { frameAllocator.FreeFrame(f) }

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (f Page) Address() uintptr {
	return uintptr(f << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// PageAlignUp rounds addr up to the next page boundary.
func PageAlignUp(addr uintptr) uintptr {
	return (addr + PageSize - 1) &^ (PageSize - 1)
}
