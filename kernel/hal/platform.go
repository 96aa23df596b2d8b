package hal

import (
	"arcore/kernel"
	"arcore/kernel/hal/fdt"
)

var (
	// ErrNoMemory is returned when the device tree lists no RAM.
	ErrNoMemory = &kernel.Error{Module: "hal", Message: "device tree lists no memory"}

	// ErrNoInterruptController is returned when the device tree has no
	// PLIC node.
	ErrNoInterruptController = &kernel.Error{Module: "hal", Message: "no platform interrupt controller"}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	visitMemRegionsFn = fdt.VisitMemRegions
	plicRegionFn      = plicRegion
	countHartsFn      = fdt.CountHarts
	initrdRangeFn     = fdt.InitrdRange
)

// Platform describes the machine the kernel runs on.
type Platform struct {
	// RAMStart and RAMEnd delimit the first RAM region.
	RAMStart, RAMEnd uintptr

	// PLICBase and PLICSize locate the interrupt controller registers.
	PLICBase, PLICSize uintptr

	// Harts is the number of cpu nodes.
	Harts int

	// InitrdStart and InitrdEnd delimit the image loaded by the firmware
	// next to the kernel. Both are zero if there is none.
	InitrdStart, InitrdEnd uintptr
}

// DiscoverPlatform queries the device tree installed with fdt.SetBlob.
func DiscoverPlatform() (Platform, *kernel.Error) {
	var p Platform

	visitMemRegionsFn(func(base, size uint64) bool {
		p.RAMStart, p.RAMEnd = uintptr(base), uintptr(base+size)
		return false
	})
	if p.RAMEnd <= p.RAMStart {
		return p, ErrNoMemory
	}

	base, size := plicRegionFn()
	if size == 0 {
		return p, ErrNoInterruptController
	}
	p.PLICBase, p.PLICSize = uintptr(base), uintptr(size)

	if p.Harts = countHartsFn(); p.Harts == 0 {
		p.Harts = 1
	}

	if start, end, ok := initrdRangeFn(); ok {
		p.InitrdStart, p.InitrdEnd = uintptr(start), uintptr(end)
	}

	return p, nil
}

// plicRegion returns the register window of the first PLIC node.
func plicRegion() (base, size uint64) {
	plic := fdt.FindCompatible("riscv,plic0", "sifive,plic-1.0.0")
	if plic == nil {
		return 0, 0
	}

	if reg := plic.Reg(2, 2); len(reg) > 0 {
		return reg[0][0], reg[0][1]
	}
	return 0, 0
}
