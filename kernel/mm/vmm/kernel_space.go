package vmm

import (
	"arcore/kernel"
	"arcore/kernel/kfmt"
	"arcore/kernel/mm"

	"github.com/pkg/errors"
)

// Region describes a physical address range.
type Region struct {
	Start, Size uintptr
}

// KernelLayout describes the physical memory map the kernel space is built
// from.
type KernelLayout struct {
	// RAMStart and RAMEnd delimit physical RAM. RAM is mapped both at its
	// identity address and at its high-half alias.
	RAMStart, RAMEnd uintptr

	// MMIO lists device register windows. They are mapped read/write at
	// their high-half alias only so they stay reachable while a user
	// address space is active.
	MMIO []Region
}

var kernelSpace *AddressSpace

// KernelSpace returns the kernel address space set up by InitKernelSpace.
func KernelSpace() *AddressSpace { return kernelSpace }

// InitKernelSpace builds the permanent kernel page table described by layout
// and activates it. RAM is mapped with gigapage leaves; page tables are
// allocated from the frame allocator's emergency reserve.
func InitKernelSpace(layout KernelLayout) *kernel.Error {
	root, err := mm.AllocReservedFrame()
	if err != nil {
		return err
	}

	ks := newAddressSpace(root, true)

	ramStart := layout.RAMStart &^ (GigaPageSize - 1)
	ramSize := (layout.RAMEnd - ramStart + GigaPageSize - 1) &^ (GigaPageSize - 1)
	kernelFlags := FlagRWX | FlagGlobal

	if err = ks.MapPhysical(ramStart, ramStart, ramSize, kernelFlags); err != nil {
		return err
	}

	if err = ks.MapPhysical(ramStart+KernelOffset, ramStart, ramSize, kernelFlags); err != nil {
		return err
	}

	for _, r := range layout.MMIO {
		if err = ks.MapPhysical(r.Start+KernelOffset, r.Start, r.Size, FlagRW|FlagGlobal); err != nil {
			return err
		}
	}

	kernelSpace = ks
	kernelSpace.Activate()
	kfmt.Infof("vmm", "kernel space active, root table at 0x%x", root.Address())
	return nil
}

// VerifyBootMapping checks the mapping installed by the boot code under the
// table at root. Every page of the kernel image [kernelStart, kernelEnd) must
// be reachable through both its identity alias and its high-half alias via
// valid leaves granting read, write, execute, accessed and dirty, and both
// aliases must translate to the same physical address.
func VerifyBootMapping(root mm.Frame, kernelStart, kernelEnd uintptr) error {
	const required = leafFlags | FlagRWX

	for physAddr := kernelStart &^ (mm.PageSize - 1); physAddr < kernelEnd; physAddr += mm.PageSize {
		for _, virtAddr := range [2]uintptr{physAddr, physAddr + KernelOffset} {
			leaf, _ := lookup(root, virtAddr)
			if leaf == nil {
				return errors.Wrapf(ErrBootInvariantViolation, "0x%x is not mapped", virtAddr)
			}

			if !leaf.HasFlags(required) {
				return errors.Wrapf(ErrBootInvariantViolation, "0x%x mapped with flags 0x%x", virtAddr, uint64(leaf.Flags()))
			}

			got, _ := translate(root, virtAddr)
			if got != physAddr {
				return errors.Wrapf(ErrBootInvariantViolation, "0x%x translates to 0x%x instead of 0x%x", virtAddr, got, physAddr)
			}
		}
	}

	return nil
}
