package vmm

import (
	"arcore/kernel"
	"arcore/kernel/mm"
)

// leafFlags are set on every leaf so the hart never has to fault in order to
// update the accessed and dirty bits.
const leafFlags = FlagValid | FlagAccessed | FlagDirty

// pageRange returns the first and last page covering [virtAddr, virtAddr+size).
func pageRange(virtAddr, size uintptr) (mm.Page, mm.Page, *kernel.Error) {
	if size == 0 || virtAddr+size < virtAddr {
		return 0, 0, ErrInvalidRange
	}

	return mm.PageFromAddress(virtAddr), mm.PageFromAddress(virtAddr + size - 1), nil
}

// checkLeafFlags rejects permission sets that do not describe a leaf. An
// entry without R, W and X points to the next table level and W without R
// is reserved.
func checkLeafFlags(flags PageTableEntryFlag) *kernel.Error {
	if flags&FlagRWX == 0 || flags&FlagRW == FlagWrite {
		return ErrInvalidFlags
	}
	return nil
}

// Map backs the virtual range [virtAddr, virtAddr+size) with freshly
// allocated, zeroed frames using the supplied flags. Partially covered pages
// at either end are mapped in full.
//
// If any page in the range is already mapped, Map returns ErrAlreadyMapped
// without modifying the table. If an allocation fails, every page mapped by
// this call is released again before the error is returned; page tables
// created along the way stay in place but are empty.
func (as *AddressSpace) Map(virtAddr, size uintptr, flags PageTableEntryFlag) *kernel.Error {
	first, last, err := pageRange(virtAddr, size)
	if err != nil {
		return err
	}

	if !as.kernel && last.Address() >= UserLimit {
		return ErrInvalidRange
	}

	if err = checkLeafFlags(flags); err != nil {
		return err
	}

	for page := first; page <= last; page++ {
		if leaf, _ := lookup(as.root, page.Address()); leaf != nil {
			return ErrAlreadyMapped
		}
	}

	for page := first; page <= last; page++ {
		if err = as.mapPage(page, flags); err != nil {
			if page > first {
				as.Unmap(first.Address(), uintptr(page-first)<<mm.PageShift)
			}
			return err
		}
	}

	return nil
}

func (as *AddressSpace) mapPage(page mm.Page, flags PageTableEntryFlag) *kernel.Error {
	frame, err := mm.AllocFrame()
	if err != nil {
		return err
	}

	kernel.Memset(mm.FrameBytes(frame), 0)
	if err = as.installLeaf(page.Address(), frame, pageLevels-1, flags); err != nil {
		mm.FreeFrame(frame)
		return err
	}

	as.pages[page] = as.frames.insert(frame, page)
	return nil
}

// MapPhysical maps [virtAddr, virtAddr+size) to the physical range starting
// at physAddr. The frames are not owned by the address space and are left
// untouched by Unmap and Destroy. The largest leaf size allowed by the
// alignment of both addresses is used for each chunk of the range.
func (as *AddressSpace) MapPhysical(virtAddr, physAddr, size uintptr, flags PageTableEntryFlag) *kernel.Error {
	if size == 0 || virtAddr&(mm.PageSize-1) != 0 || physAddr&(mm.PageSize-1) != 0 {
		return ErrInvalidRange
	}

	if err := checkLeafFlags(flags); err != nil {
		return err
	}

	size = mm.PageAlignUp(size)
	for size > 0 {
		level := uint8(pageLevels - 1)
		for l := uint8(0); l < pageLevels-1; l++ {
			span := levelPageSize[l]
			if virtAddr&(span-1) == 0 && physAddr&(span-1) == 0 && size >= span {
				level = l
				break
			}
		}

		if err := as.installLeaf(virtAddr, mm.FrameFromAddress(physAddr), level, flags); err != nil {
			return err
		}

		span := levelPageSize[level]
		virtAddr, physAddr, size = virtAddr+span, physAddr+span, size-span
	}

	return nil
}

// installLeaf walks the table for virtAddr, creating missing intermediate
// tables, and installs a leaf for frame at leafLevel. New tables are cleared
// before they are linked so a failed allocation never leaves a half
// initialized entry behind.
func (as *AddressSpace) installLeaf(virtAddr uintptr, frame mm.Frame, leafLevel uint8, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	walk(as.root, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == leafLevel {
			if pte.HasFlags(FlagValid) {
				err = ErrAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags | leafFlags)
			flushTLBEntryFn(virtAddr)
			return false
		}

		// A superpage already covers this address.
		if pte.IsLeaf() {
			err = ErrAlreadyMapped
			return false
		}

		if !pte.HasFlags(FlagValid) {
			var tableFrame mm.Frame
			if tableFrame, err = as.allocTable(); err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(tableFrame)
			pte.SetFlags(FlagValid)
		}

		return true
	})

	return err
}

func (as *AddressSpace) allocTable() (mm.Frame, *kernel.Error) {
	var (
		frame mm.Frame
		err   *kernel.Error
	)

	if as.kernel {
		frame, err = mm.AllocReservedFrame()
	} else {
		frame, err = mm.AllocFrame()
	}

	if err != nil {
		return mm.InvalidFrame, err
	}

	kernel.Memset(mm.FrameBytes(frame), 0)
	as.tables = append(as.tables, frame)
	return frame, nil
}

// Unmap removes any mappings in [virtAddr, virtAddr+size). Frames owned by
// the address space are returned to the frame allocator. Unmapping a page
// that is not mapped is not an error. A superpage leaf covering any address
// in the range is removed in full. A user space never unmaps addresses at or
// above UserLimit since those tables are shared with the kernel space.
func (as *AddressSpace) Unmap(virtAddr, size uintptr) {
	first, last, err := pageRange(virtAddr, size)
	if err != nil {
		return
	}

	if !as.kernel && last.Address() >= UserLimit {
		return
	}

	for page := first; page <= last; page++ {
		leaf, _ := lookup(as.root, page.Address())
		if leaf == nil {
			continue
		}

		*leaf = 0
		flushTLBEntryFn(page.Address())

		if h, owned := as.pages[page]; owned {
			delete(as.pages, page)
			mm.FreeFrame(as.frames.release(h))
		}
	}
}

// IsMapped returns true if virtAddr is covered by a leaf mapping.
func (as *AddressSpace) IsMapped(virtAddr uintptr) bool {
	leaf, _ := lookup(as.root, virtAddr)
	return leaf != nil
}
