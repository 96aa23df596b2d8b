package vmm

import "arcore/kernel/mm"

const (
	// pageLevels indicates the number of page levels used by Sv39.
	pageLevels = 3

	// entriesPerTable is the number of entries in each page table.
	entriesPerTable = 512

	// ptePPNShift is the bit offset of the physical page number inside a
	// page table entry.
	ptePPNShift = 10

	// ptePPNMask extracts the 44-bit physical page number of an entry.
	ptePPNMask = uint64((1<<44)-1) << ptePPNShift

	// KernelOffset is the distance between a physical address and its
	// high-half alias.
	KernelOffset = uintptr(0xffffffc000000000)

	// UserLimit is the first virtual address outside the user half of the
	// address space. Root table entries at or above userRootEntries are
	// shared with the kernel space.
	UserLimit = uintptr(1) << 38

	userRootEntries = entriesPerTable / 2

	// GigaPageSize and MegaPageSize are the sizes mapped by leaves at the
	// first and second level of the table.
	GigaPageSize = uintptr(1) << 30
	MegaPageSize = uintptr(1) << 21
)

var (
	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		30,
		21,
		12,
	}

	// levelPageSize is the amount of memory mapped by a leaf at each level.
	levelPageSize = [pageLevels]uintptr{
		GigaPageSize,
		MegaPageSize,
		mm.PageSize,
	}
)

const (
	// FlagValid marks the entry as in use.
	FlagValid PageTableEntryFlag = 1 << iota

	// FlagRead is set if the page can be read.
	FlagRead

	// FlagWrite is set if the page can be written to.
	FlagWrite

	// FlagExec is set if code can be fetched from the page.
	FlagExec

	// FlagUser is set if user-mode code can access this page. If not set
	// only kernel code can access this page.
	FlagUser

	// FlagGlobal marks mappings present in every address space.
	FlagGlobal

	// FlagAccessed is set when this page is accessed.
	FlagAccessed

	// FlagDirty is set when this page is modified.
	FlagDirty

	// FlagRW is a shorthand for read/write data pages.
	FlagRW = FlagRead | FlagWrite

	// FlagRWX grants every access kind. An entry with none of these bits
	// points to the next table level.
	FlagRWX = FlagRead | FlagWrite | FlagExec
)
