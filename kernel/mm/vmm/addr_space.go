package vmm

import (
	"arcore/kernel"
	"arcore/kernel/cpu"
	"arcore/kernel/mm"
)

// noHandle terminates the free list of a frameTable.
const noHandle = ^frameHandle(0)

// frameHandle is a stable index into an address space's frame table.
type frameHandle uint32

type ownedFrame struct {
	frame mm.Frame
	page  mm.Page

	// next links unused entries into the free list.
	next frameHandle
}

// frameTable records the frames exclusively owned by an address space.
// Released entries are recycled through an index-linked free list so handles
// never alias a frame that has been given back to the allocator.
type frameTable struct {
	entries  []ownedFrame
	freeHead frameHandle
	live     int
}

func (ft *frameTable) insert(frame mm.Frame, page mm.Page) frameHandle {
	ft.live++
	if ft.freeHead != noHandle {
		h := ft.freeHead
		ft.freeHead = ft.entries[h].next
		ft.entries[h] = ownedFrame{frame: frame, page: page, next: noHandle}
		return h
	}

	ft.entries = append(ft.entries, ownedFrame{frame: frame, page: page, next: noHandle})
	return frameHandle(len(ft.entries) - 1)
}

func (ft *frameTable) release(h frameHandle) mm.Frame {
	frame := ft.entries[h].frame
	ft.entries[h] = ownedFrame{frame: mm.InvalidFrame, next: ft.freeHead}
	ft.freeHead = h
	ft.live--
	return frame
}

// AddressSpace is a Sv39 page table hierarchy together with the physical
// frames mapped through it. An AddressSpace exclusively owns every frame it
// allocated; they are returned to the frame allocator exactly once, either
// by Unmap or by Destroy.
type AddressSpace struct {
	root mm.Frame

	// kernel marks the kernel space whose table frames come from the
	// emergency reserve.
	kernel bool

	// tables lists the intermediate table frames allocated for this
	// space. Tables shared from the kernel space are not included.
	tables []mm.Frame

	frames frameTable
	pages  map[mm.Page]frameHandle

	stackLow, stackHigh uintptr
	heapStart, brk      uintptr
}

// NewAddressSpace allocates an empty user address space. The upper half of
// the kernel space root table is shared so kernel code and data remain
// mapped while the user space is active.
func NewAddressSpace() (*AddressSpace, *kernel.Error) {
	root, err := mm.AllocFrame()
	if err != nil {
		return nil, err
	}

	as := newAddressSpace(root, false)
	if kernelSpace != nil {
		copy(tableFn(root)[userRootEntries:], tableFn(kernelSpace.root)[userRootEntries:])
	}

	return as, nil
}

func newAddressSpace(root mm.Frame, kernelSpace bool) *AddressSpace {
	kernel.Memset(mm.FrameBytes(root), 0)
	return &AddressSpace{
		root:   root,
		kernel: kernelSpace,
		frames: frameTable{freeHead: noHandle},
		pages:  make(map[mm.Page]frameHandle),
	}
}

// Root returns the frame holding the top-level page table.
func (as *AddressSpace) Root() mm.Frame { return as.root }

// SATP returns the satp value that activates this address space.
func (as *AddressSpace) SATP() uint64 {
	return cpu.MakeSATP(cpu.SATPModeSv39, 0, uint64(as.root))
}

// Activate installs this address space on the calling hart and flushes the
// TLB.
func (as *AddressSpace) Activate() {
	switchSATPFn(as.SATP())
	flushTLBFn()
}

// OwnedFrames returns the number of data frames owned by the address space.
func (as *AddressSpace) OwnedFrames() int { return as.frames.live }

// Destroy releases every frame owned by the address space including its page
// tables. Calling Destroy more than once has no effect.
func (as *AddressSpace) Destroy() {
	if !as.root.Valid() {
		return
	}

	for page, h := range as.pages {
		mm.FreeFrame(as.frames.release(h))
		delete(as.pages, page)
	}

	for _, table := range as.tables {
		mm.FreeFrame(table)
	}
	as.tables = nil

	mm.FreeFrame(as.root)
	as.root = mm.InvalidFrame
}

// Translate returns the physical address that virtAddr maps to or
// ErrUnmapped if no mapping exists.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	return translate(as.root, virtAddr)
}

func translate(root mm.Frame, virtAddr uintptr) (uintptr, *kernel.Error) {
	leaf, level := lookup(root, virtAddr)
	if leaf == nil {
		return 0, ErrUnmapped
	}

	return leaf.Frame().Address() + virtAddr&(levelPageSize[level]-1), nil
}
