package vmm

import (
	"arcore/kernel"
	"arcore/kernel/mm"
)

// AccessKind describes the memory access that triggered a page fault.
type AccessKind uint8

// The supported access kinds.
const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessExecute
)

// String implements fmt.Stringer for AccessKind.
func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// requiredFlag returns the permission a leaf needs to allow the access.
func (k AccessKind) requiredFlag() PageTableEntryFlag {
	switch k {
	case AccessWrite:
		return FlagWrite
	case AccessExecute:
		return FlagExec
	default:
		return FlagRead
	}
}

// ReserveStack designates [top-size, top) as the stack growth region of the
// address space. Pages inside the region are allocated on first access by
// HandleFault.
func (as *AddressSpace) ReserveStack(top, size uintptr) *kernel.Error {
	if top&(mm.PageSize-1) != 0 || size&(mm.PageSize-1) != 0 || size == 0 || size > top || top > UserLimit {
		return ErrInvalidRange
	}

	as.stackLow, as.stackHigh = top-size, top
	return nil
}

// StackRegion returns the bounds of the stack growth region.
func (as *AddressSpace) StackRegion() (low, high uintptr) {
	return as.stackLow, as.stackHigh
}

// HandleFault attempts to resolve a user page fault at virtAddr. Faults on
// unmapped pages inside the stack growth region are resolved by mapping a
// zeroed read/write page. Faults on a page whose mapping already permits the
// access are treated as stale TLB entries and resolved by flushing the page.
// Every other fault is reported as ErrSegmentationFault. ErrOutOfMemory style
// errors from the frame allocator are passed through unchanged.
func (as *AddressSpace) HandleFault(virtAddr uintptr, access AccessKind) *kernel.Error {
	page := mm.PageFromAddress(virtAddr)

	if leaf, _ := lookup(as.root, virtAddr); leaf != nil {
		if leaf.HasFlags(FlagUser | access.requiredFlag()) {
			flushTLBEntryFn(page.Address())
			return nil
		}
		return ErrSegmentationFault
	}

	if access == AccessExecute || virtAddr < as.stackLow || virtAddr >= as.stackHigh {
		return ErrSegmentationFault
	}

	return as.mapPage(page, FlagRW|FlagUser)
}
