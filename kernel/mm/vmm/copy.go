package vmm

import (
	"arcore/kernel"
	"arcore/kernel/mm"
)

// userBytes returns the bytes of the user page containing virtAddr starting
// at virtAddr. The page must be a user leaf granting the required access.
func (as *AddressSpace) userBytes(virtAddr uintptr, access AccessKind) ([]byte, *kernel.Error) {
	if virtAddr >= UserLimit {
		return nil, ErrBadAddress
	}

	leaf, level := lookup(as.root, virtAddr)
	if leaf == nil || !leaf.HasFlags(FlagUser|access.requiredFlag()) {
		return nil, ErrBadAddress
	}

	physAddr := leaf.Frame().Address() + virtAddr&(levelPageSize[level]-1)
	b := mm.FrameBytes(mm.FrameFromAddress(physAddr))
	if b == nil {
		return nil, ErrBadAddress
	}

	return b[physAddr&(mm.PageSize-1):], nil
}

// CopyIn copies len(dst) bytes starting at user address virtAddr into dst.
// Every page touched must be mapped readable for user mode.
func (as *AddressSpace) CopyIn(dst []byte, virtAddr uintptr) *kernel.Error {
	for len(dst) > 0 {
		src, err := as.userBytes(virtAddr, AccessRead)
		if err != nil {
			return err
		}

		n := kernel.Memcopy(src, dst)
		dst, virtAddr = dst[n:], virtAddr+uintptr(n)
	}

	return nil
}

// CopyOut copies src to user address virtAddr. Every page touched must be
// mapped writable for user mode.
func (as *AddressSpace) CopyOut(virtAddr uintptr, src []byte) *kernel.Error {
	for len(src) > 0 {
		dst, err := as.userBytes(virtAddr, AccessWrite)
		if err != nil {
			return err
		}

		n := kernel.Memcopy(src, dst)
		src, virtAddr = src[n:], virtAddr+uintptr(n)
	}

	return nil
}

// LoadImage copies a flat program image into pages mapped at virtAddr. Pages
// are mapped with the supplied flags plus FlagUser; the image is written
// through the kernel view so read-only and execute-only pages can be filled.
func (as *AddressSpace) LoadImage(virtAddr uintptr, image []byte, flags PageTableEntryFlag) *kernel.Error {
	if len(image) == 0 {
		return ErrInvalidRange
	}

	if err := as.Map(virtAddr, uintptr(len(image)), flags|FlagUser); err != nil {
		return err
	}

	for len(image) > 0 {
		physAddr, err := as.Translate(virtAddr)
		if err != nil {
			return err
		}

		frameBytes := mm.FrameBytes(mm.FrameFromAddress(physAddr))
		n := kernel.Memcopy(image, frameBytes[physAddr&(mm.PageSize-1):])
		image, virtAddr = image[n:], virtAddr+uintptr(n)
	}

	return nil
}
