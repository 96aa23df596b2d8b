package syscall

import (
	"arcore/kernel"
	"arcore/kernel/mm"
	"arcore/kernel/mm/vmm"
)

// Layout of a user address space.
const (
	// ImageBase is the address flat program images are loaded at and
	// their entry point.
	ImageBase = uintptr(0x10000)

	// StackTop is the initial stack pointer of a task.
	StackTop = uintptr(0x80000000)

	// StackSize is the size of the stack growth region below StackTop.
	StackSize = uintptr(1 << 20)
)

// NewImageSpace creates an address space holding the flat program image,
// a stack growth region and an empty heap that starts after the image.
func NewImageSpace(image []byte) (as *vmm.AddressSpace, entry, stackTop uintptr, err *kernel.Error) {
	if len(image) == 0 {
		return nil, 0, 0, ErrInvalidArgument
	}

	if as, err = vmm.NewAddressSpace(); err != nil {
		return nil, 0, 0, err
	}

	if err = as.LoadImage(ImageBase, image, vmm.FlagRWX); err != nil {
		as.Destroy()
		return nil, 0, 0, err
	}

	if err = as.ReserveStack(StackTop, StackSize); err != nil {
		as.Destroy()
		return nil, 0, 0, err
	}

	as.SetHeap(mm.PageAlignUp(ImageBase + uintptr(len(image))))
	return as, ImageBase, StackTop, nil
}
