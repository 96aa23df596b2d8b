package irq

import (
	"sync/atomic"
	"unsafe"
)

// Register offsets of a RISC-V platform-level interrupt controller.
const (
	plicPriorityBase  = 0x0
	plicEnableBase    = 0x2000
	plicEnableStride  = 0x80
	plicContextBase   = 0x200000
	plicContextStride = 0x1000
	plicClaimOffset   = 0x4
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	mmioRead32Fn  = mmioRead32
	mmioWrite32Fn = mmioWrite32
)

func mmioRead32(addr uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(addr)))
}

func mmioWrite32(addr uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(addr)), v)
}

// PLIC drives a platform-level interrupt controller whose registers are
// mapped at Base.
type PLIC struct {
	Base uintptr
}

// supervisorContext returns the PLIC context that delivers interrupts to the
// supervisor mode of the supplied hart.
func supervisorContext(hart int) uintptr {
	return uintptr(2*hart + 1)
}

// SetPriority sets the priority of an interrupt source. Sources with a zero
// priority never interrupt.
func (p PLIC) SetPriority(source, priority uint32) {
	mmioWrite32Fn(p.Base+plicPriorityBase+4*uintptr(source), priority)
}

// Enable routes source to the supervisor context of hart.
func (p PLIC) Enable(hart int, source uint32) {
	addr := p.Base + plicEnableBase + plicEnableStride*supervisorContext(hart) + 4*uintptr(source/32)
	mmioWrite32Fn(addr, mmioRead32Fn(addr)|1<<(source%32))
}

// SetThreshold masks sources with a priority less than or equal to
// threshold on hart.
func (p PLIC) SetThreshold(hart int, threshold uint32) {
	mmioWrite32Fn(p.Base+plicContextBase+plicContextStride*supervisorContext(hart), threshold)
}

// Claim returns the highest priority pending source for hart or 0 if none is
// pending.
func (p PLIC) Claim(hart int) uint32 {
	return mmioRead32Fn(p.Base + plicContextBase + plicContextStride*supervisorContext(hart) + plicClaimOffset)
}

// Complete signals that the handler for a claimed source has finished.
func (p PLIC) Complete(hart int, source uint32) {
	mmioWrite32Fn(p.Base+plicContextBase+plicContextStride*supervisorContext(hart)+plicClaimOffset, source)
}
