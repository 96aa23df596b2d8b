package mm

import "unsafe"

// PhysicalMemory provides the kernel's view of physical memory.
type PhysicalMemory interface {
	// FrameBytes returns a PageSize-long slice aliasing the contents of
	// frame f or nil if f is not backed by RAM.
	FrameBytes(f Frame) []byte
}

var physMem PhysicalMemory

// SetPhysicalMemory installs the accessor used by FrameBytes.
func SetPhysicalMemory(pm PhysicalMemory) { physMem = pm }

// FrameBytes returns the contents of frame f through the active physical
// memory accessor.
func FrameBytes(f Frame) []byte { return physMem.FrameBytes(f) }

// DirectMap accesses physical memory through the kernel's high-half linear
// mapping of RAM.
type DirectMap struct {
	// Offset is added to a physical address to obtain its kernel virtual
	// address.
	Offset uintptr

	// Start and End delimit the physical RAM range covered by the mapping.
	Start, End uintptr
}

// FrameBytes implements PhysicalMemory.
func (m DirectMap) FrameBytes(f Frame) []byte {
	addr := f.Address()
	if addr < m.Start || addr >= m.End {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr+m.Offset)), PageSize)
}

// Arena is a PhysicalMemory implementation backed by a Go-allocated buffer.
// It emulates count frames of RAM starting at frame base.
type Arena struct {
	base  Frame
	count uintptr
	mem   []byte
}

// NewArena allocates an arena emulating count frames starting at base.
func NewArena(base Frame, count int) *Arena {
	// Over-allocate so the first frame can be page-aligned; page table
	// code overlays [512]uint64 arrays on frame contents.
	raw := make([]byte, (uintptr(count)+1)*PageSize)
	off := PageAlignUp(uintptr(unsafe.Pointer(&raw[0]))) - uintptr(unsafe.Pointer(&raw[0]))

	return &Arena{
		base:  base,
		count: uintptr(count),
		mem:   raw[off : off+uintptr(count)*PageSize],
	}
}

// Base returns the first frame emulated by the arena.
func (a *Arena) Base() Frame { return a.base }

// Count returns the number of frames emulated by the arena.
func (a *Arena) Count() int { return int(a.count) }

// FrameBytes implements PhysicalMemory.
func (a *Arena) FrameBytes(f Frame) []byte {
	if f < a.base || uintptr(f-a.base) >= a.count {
		return nil
	}

	start := uintptr(f-a.base) * PageSize
	return a.mem[start : start+PageSize : start+PageSize]
}
