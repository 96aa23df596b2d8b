// Package vmm implements Sv39 address spaces: page table construction,
// translation, fault resolution and the kernel's permanent mappings.
package vmm

import (
	"arcore/kernel"
	"arcore/kernel/cpu"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	flushTLBEntryFn = cpu.FlushTLBEntry
	flushTLBFn      = cpu.FlushTLB
	switchSATPFn    = cpu.SwitchSATP

	// ErrUnmapped is returned when looking up a virtual address that is not mapped.
	ErrUnmapped = &kernel.Error{Module: "vmm", Message: "virtual address is not mapped"}

	// ErrAlreadyMapped is returned when a mapping request overlaps an existing mapping.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped"}

	// ErrSegmentationFault is returned by HandleFault for accesses that
	// cannot be resolved.
	ErrSegmentationFault = &kernel.Error{Module: "vmm", Message: "segmentation fault"}

	// ErrBadAddress is returned when copying to or from user memory that is
	// not mapped with the required permissions.
	ErrBadAddress = &kernel.Error{Module: "vmm", Message: "bad user address"}

	// ErrInvalidBreak is returned when the program break cannot be moved to
	// the requested address.
	ErrInvalidBreak = &kernel.Error{Module: "vmm", Message: "invalid program break"}

	// ErrInvalidRange is returned for empty, misaligned or out-of-bounds ranges.
	ErrInvalidRange = &kernel.Error{Module: "vmm", Message: "invalid virtual address range"}

	// ErrInvalidFlags is returned for leaf permissions that grant no access
	// or request the reserved write-only encoding.
	ErrInvalidFlags = &kernel.Error{Module: "vmm", Message: "invalid page permissions"}

	// ErrBootInvariantViolation is returned when the mapping established by
	// the boot code does not have the expected shape.
	ErrBootInvariantViolation = &kernel.Error{Module: "vmm", Message: "boot mapping invariant violated"}
)
