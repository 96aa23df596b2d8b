// Package pmm implements the physical frame allocator.
package pmm

import (
	"arcore/kernel"
	"arcore/kernel/kfmt"
	"arcore/kernel/mm"
)

var (
	// bitmapAllocator is the standard allocator used by the kernel.
	bitmapAllocator BitmapAllocator
)

// Init sets up the kernel physical memory allocation sub-system. Frames in
// the range [ramStart, ramEnd) become available for allocation except for
// the ones overlapping the loaded kernel image [kernelStart, kernelEnd).
// reserve frames are held back for allocations that must not fail.
func Init(ramStart, ramEnd, kernelStart, kernelEnd uintptr, reserve uint32) *kernel.Error {
	startFrame := mm.FrameFromAddress(mm.PageAlignUp(ramStart))
	endFrame := mm.FrameFromAddress(ramEnd)
	if endFrame <= startFrame {
		return errNoRAM
	}

	if err := bitmapAllocator.Init(startFrame, uint32(endFrame-startFrame), reserve); err != nil {
		return err
	}

	if kernelEnd > kernelStart {
		first := mm.FrameFromAddress(kernelStart)
		last := mm.FrameFromAddress(mm.PageAlignUp(kernelEnd))
		bitmapAllocator.MarkReserved(first, uint32(last-first))
	}

	mm.SetFrameAllocator(&bitmapAllocator)
	kfmt.Infof("pmm", "%d/%d frames free, %d held in reserve", bitmapAllocator.FreeCount(), bitmapAllocator.FrameCount(), reserve)
	return nil
}

// MarkReserved removes the physical range [start, end) from the pool of
// allocatable frames. It is used for boot payloads placed in RAM by the
// firmware.
func MarkReserved(start, end uintptr) {
	first := mm.FrameFromAddress(start)
	last := mm.FrameFromAddress(mm.PageAlignUp(end))
	bitmapAllocator.MarkReserved(first, uint32(last-first))
}
