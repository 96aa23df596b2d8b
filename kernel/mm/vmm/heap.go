package vmm

import (
	"arcore/kernel"
	"arcore/kernel/mm"
)

// SetHeap places the initial program break at start, rounded up to the next
// page boundary. It is invoked once after the program image has been mapped.
func (as *AddressSpace) SetHeap(start uintptr) {
	as.heapStart = mm.PageAlignUp(start)
	as.brk = as.heapStart
}

// Brk moves the program break to newBrk and returns the resulting break. A
// zero newBrk queries the current break. Growing the heap maps zeroed
// read/write user pages eagerly; shrinking it releases whole pages above the
// new break.
func (as *AddressSpace) Brk(newBrk uintptr) (uintptr, *kernel.Error) {
	if newBrk == 0 {
		return as.brk, nil
	}

	if newBrk < as.heapStart || newBrk >= UserLimit || (as.stackHigh != 0 && mm.PageAlignUp(newBrk) > as.stackLow) {
		return as.brk, ErrInvalidBreak
	}

	curEnd, newEnd := mm.PageAlignUp(as.brk), mm.PageAlignUp(newBrk)
	switch {
	case newEnd > curEnd:
		if err := as.Map(curEnd, newEnd-curEnd, FlagRW|FlagUser); err != nil {
			return as.brk, err
		}
	case newEnd < curEnd:
		as.Unmap(newEnd, curEnd-newEnd)
	}

	as.brk = newBrk
	return as.brk, nil
}
