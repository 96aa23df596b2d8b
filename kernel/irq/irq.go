// Package irq routes external interrupt sources to the drivers that own
// them. Sources are either delivered by the platform interrupt controller or
// raised in software by memory-backed devices that have no interrupt line.
package irq

import (
	"arcore/kernel"
	"arcore/kernel/kfmt"
	"arcore/kernel/sync"
	"sync/atomic"
)

// MaxSources is the number of interrupt sources that can be routed.
const MaxSources = 64

// Handler services an interrupt source. Handlers run with interrupts masked
// and must neither block nor allocate from an exhausted allocator.
type Handler func()

var (
	// ErrInvalidSource is returned for source numbers outside [1, MaxSources).
	ErrInvalidSource = &kernel.Error{Module: "irq", Message: "invalid interrupt source"}

	// ErrSourceInUse is returned when a handler is already registered for a source.
	ErrSourceInUse = &kernel.Error{Module: "irq", Message: "interrupt source already has a handler"}

	regLock  sync.Spinlock
	handlers [MaxSources]Handler

	// softPending holds one bit per software-raised source.
	softPending uint64

	controller *PLIC
)

// SetController installs the interrupt controller used by ServiceExternal.
// Passing nil leaves only software-raised sources.
func SetController(p *PLIC) { controller = p }

// HandleIRQ registers h as the handler for source. If a controller is
// installed the source is also given a non-zero priority and routed to each
// of the first harts harts.
func HandleIRQ(source uint32, harts int, h Handler) *kernel.Error {
	if source == 0 || source >= MaxSources {
		return ErrInvalidSource
	}

	regLock.Acquire()
	defer regLock.Release()

	if handlers[source] != nil {
		return ErrSourceInUse
	}
	handlers[source] = h

	if controller != nil {
		controller.SetPriority(source, 1)
		for hart := 0; hart < harts; hart++ {
			controller.Enable(hart, source)
		}
	}

	return nil
}

// InitHart lets every enabled source with a non-zero priority interrupt the
// supplied hart.
func InitHart(hart int) {
	if controller != nil {
		controller.SetThreshold(hart, 0)
	}
}

// Raise marks a software-raised source as pending. It is safe to call from
// any context.
func Raise(source uint32) {
	if source == 0 || source >= MaxSources {
		return
	}

	for {
		old := atomic.LoadUint64(&softPending)
		if atomic.CompareAndSwapUint64(&softPending, old, old|1<<source) {
			return
		}
	}
}

// SoftPending returns true if any software-raised source awaits service.
func SoftPending() bool { return atomic.LoadUint64(&softPending) != 0 }

// ServiceExternal claims and dispatches every source the controller reports
// as pending for hart, then services software-raised sources. It returns the
// number of handlers invoked.
func ServiceExternal(hart int) int {
	var serviced int

	if controller != nil {
		for source := controller.Claim(hart); source != 0; source = controller.Claim(hart) {
			serviced += dispatch(source)
			controller.Complete(hart, source)
		}
	}

	return serviced + ServiceSoftware()
}

// ServiceSoftware dispatches every pending software-raised source and
// returns the number of handlers invoked.
func ServiceSoftware() int {
	pending := atomic.SwapUint64(&softPending, 0)

	var serviced int
	for source := uint32(1); pending != 0 && source < MaxSources; source++ {
		if pending&(1<<source) != 0 {
			pending &^= 1 << source
			serviced += dispatch(source)
		}
	}

	return serviced
}

func dispatch(source uint32) int {
	if source >= MaxSources || handlers[source] == nil {
		kfmt.Warnf("irq", "spurious interrupt from source %d", source)
		return 0
	}

	handlers[source]()
	return 1
}

