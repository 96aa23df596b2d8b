package vmm

import (
	"arcore/kernel/mm"
	"unsafe"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// pageTableEntry describes a Sv39 page table entry. These entries encode a
// physical page number in bits 10-53 and a set of flags in bits 0-7.
type pageTableEntry uint64

// pageTable is the in-memory layout of a table at any level.
type pageTable [entriesPerTable]pageTableEntry

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) &^ uint64(flags))
}

// Flags returns the flag bits of the entry.
func (pte pageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint64(pte) & 0xff)
}

// IsLeaf returns true if the entry maps memory rather than pointing to the
// next table level.
func (pte pageTableEntry) IsLeaf() bool {
	return pte.HasFlags(FlagValid) && pte.HasAnyFlag(FlagRWX)
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame((uint64(pte) & ptePPNMask) >> ptePPNShift)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uint64(*pte) &^ ptePPNMask) | (uint64(frame)<<ptePPNShift)&ptePPNMask)
}

var (
	// tableFn returns the table stored in the supplied frame. When
	// compiling the kernel this function will be automatically inlined.
	tableFn = func(f mm.Frame) *pageTable {
		b := mm.FrameBytes(f)
		if b == nil {
			return nil
		}
		return (*pageTable)(unsafe.Pointer(&b[0]))
	}
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the table stored in root. It calls the supplied walkFn with the page table
// entry that corresponds to each page table level. The walk ends when walkFn
// returns false, or when the visited entry is a leaf or is not valid once
// walkFn returns.
func walk(root mm.Frame, virtAddr uintptr, walkFn pageTableWalker) {
	table := root
	for level := uint8(0); level < pageLevels; level++ {
		entries := tableFn(table)
		if entries == nil {
			return
		}

		pte := &entries[(virtAddr>>pageLevelShifts[level])&(entriesPerTable-1)]
		if !walkFn(level, pte) {
			return
		}

		if !pte.HasFlags(FlagValid) || pte.IsLeaf() {
			return
		}
		table = pte.Frame()
	}
}

// lookup returns the leaf entry that maps virtAddr together with the level
// it was found at. It returns nil if the address is not mapped.
func lookup(root mm.Frame, virtAddr uintptr) (*pageTableEntry, uint8) {
	var (
		leaf      *pageTableEntry
		leafLevel uint8
	)

	walk(root, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if pte.IsLeaf() {
			leaf, leafLevel = pte, pteLevel
		}
		return true
	})

	return leaf, leafLevel
}
