// Package kmain contains the kernel initialisation sequence and the entry
// points the boot code jumps to on each hart.
package kmain

import (
	"arcore/device/ramdisk"
	"arcore/kernel"
	"arcore/kernel/blk"
	"arcore/kernel/cpu"
	"arcore/kernel/fs/bundle"
	"arcore/kernel/hal"
	"arcore/kernel/hal/fdt"
	"arcore/kernel/irq"
	"arcore/kernel/kfmt"
	"arcore/kernel/mm"
	"arcore/kernel/mm/pmm"
	"arcore/kernel/mm/vmm"
	"arcore/kernel/proc"
	"arcore/kernel/sched"
	"arcore/kernel/syscall"
	"arcore/kernel/trap"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// MaxTasks bounds the number of live tasks and the run queue capacity.
const MaxTasks = 64

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoBlockDevice = &kernel.Error{Module: "kmain", Message: "no block device holds the boot bundle"}

	// released is set once the boot hart has finished initialisation and
	// the secondary harts may start their executors.
	released uint32

	// the following values are shared by all harts once released is set.
	tasks      *proc.Table
	dispatcher *syscall.Dispatcher
	cfg        hal.Config

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	panicFn                  = kfmt.Panic
	activeSATPFn             = cpu.ActiveSATP
	enableInterruptSourcesFn = cpu.EnableInterruptSources
	haltFn                   = cpu.Halt
	runExecutorFn            = (*sched.Executor).Run
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked on the boot hart with the MMU enabled
// by the boot page table, which maps the kernel image at both its physical
// address and its high-half alias.
//
// The rt0 code passes the hart id, the physical address of the device tree
// blob supplied by the firmware and the physical addresses for the kernel
// start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// hart.
//
//go:noinline
func Kmain(hart, dtbAddr, kernelStart, kernelEnd uintptr) {
	blob := fdt.BlobAt(dtbAddr + vmm.KernelOffset)
	if err := fdt.SetBlob(blob); err != nil {
		panicFn(err)
		return
	}

	platform, err := hal.DiscoverPlatform()
	if err != nil {
		panicFn(err)
		return
	}

	cfg = configure(platform, fdt.GetBootCmdLine())

	reserved := []vmm.Region{{Start: dtbAddr, Size: uintptr(len(blob))}}
	if platform.InitrdEnd > platform.InitrdStart {
		reserved = append(reserved, vmm.Region{Start: platform.InitrdStart, Size: platform.InitrdEnd - platform.InitrdStart})
	}

	if err := initMemory(platform, kernelStart, kernelEnd, reserved); err != nil {
		panicFn(err)
		return
	}

	trap.Init()
	irq.SetController(&irq.PLIC{Base: platform.PLICBase + vmm.KernelOffset})
	irq.InitHart(int(hart))

	if platform.InitrdEnd > platform.InitrdStart {
		ramdisk.SetBootImage(physSlice(platform.InitrdStart, platform.InitrdEnd))
	}
	hal.DetectHardware(cfg.Harts)

	var initErr error
	if tasks, dispatcher, initErr = startInit(hal.BlockAdapter(), cfg.Init); initErr != nil {
		panicFn(initErr)
		return
	}

	kfmt.Infof("kmain", "starting %d hart(s)", cfg.Harts)
	atomic.StoreUint32(&released, 1)
	runHart(int(hart))

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// KmainSecondary is invoked by the rt0 code on every other hart. The hart
// waits until the boot hart has completed initialisation and then runs its
// own executor. Harts beyond the configured count are parked.
//
//go:noinline
func KmainSecondary(hart uintptr) {
	trap.Init()
	for atomic.LoadUint32(&released) == 0 {
	}

	if int(hart) >= cfg.Harts {
		haltFn()
		return
	}

	vmm.KernelSpace().Activate()
	irq.InitHart(int(hart))
	runHart(int(hart))

	panicFn(errKmainReturned)
}

// configure parses the boot command line and applies the logging settings.
// The hart count is clamped to the harts present on the platform.
func configure(platform hal.Platform, cmdLine map[string]string) hal.Config {
	c, err := hal.ParseBootArgs(cmdLine)
	if err != nil {
		kfmt.Warnf("kmain", "boot arguments: %v", err)
	}

	kfmt.SetLevel(c.LogLevel)
	kfmt.SetColor(c.LogColor)

	if c.Harts == 0 || c.Harts > platform.Harts {
		c.Harts = platform.Harts
	}
	if c.Harts > hal.MaxHarts {
		c.Harts = hal.MaxHarts
	}

	kfmt.Debugf("kmain", "config: %+v", c)
	return c
}

// initMemory checks the boot mapping, hands RAM to the frame allocator and
// replaces the boot page table with the kernel space. The reserved ranges
// hold firmware payloads that stay in place and are never allocated.
func initMemory(platform hal.Platform, kernelStart, kernelEnd uintptr, reserved []vmm.Region) error {
	mm.SetPhysicalMemory(mm.DirectMap{
		Offset: vmm.KernelOffset,
		Start:  platform.RAMStart,
		End:    platform.RAMEnd,
	})

	_, _, rootPPN := cpu.DecodeSATP(activeSATPFn())
	bootRoot := mm.Frame(rootPPN)
	if err := vmm.VerifyBootMapping(bootRoot, kernelStart, kernelEnd); err != nil {
		return err
	}

	if err := pmm.Init(platform.RAMStart, platform.RAMEnd, kernelStart, kernelEnd, cfg.Reserve); err != nil {
		return err
	}

	for _, r := range reserved {
		pmm.MarkReserved(r.Start, r.Start+r.Size)
	}

	layout := vmm.KernelLayout{
		RAMStart: platform.RAMStart,
		RAMEnd:   platform.RAMEnd,
		MMIO:     []vmm.Region{{Start: platform.PLICBase, Size: platform.PLICSize}},
	}
	if err := vmm.InitKernelSpace(layout); err != nil {
		return err
	}

	return nil
}

// startInit reads the bundle directory from disk, loads the named entry into
// a fresh address space and makes it the first runnable task.
func startInit(disk *blk.Adapter, name string) (*proc.Table, *syscall.Dispatcher, error) {
	if disk == nil {
		return nil, nil, errNoBlockDevice
	}

	dir, err := bundle.Open(disk)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading bundle directory")
	}

	entry, err := dir.Lookup(name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "looking up %q", name)
	}

	image, err := bundle.ReadFile(disk, entry)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "loading %q", name)
	}

	space, pc, sp, kerr := syscall.NewImageSpace(image)
	if kerr != nil {
		return nil, nil, errors.Wrapf(kerr, "mapping %q", name)
	}

	table := proc.NewTable(MaxTasks, proc.NewRunQueue(MaxTasks))
	task, kerr := table.Spawn(name, nil, space, pc, sp)
	if kerr != nil {
		space.Destroy()
		return nil, nil, kerr
	}

	disp, err := syscall.NewDispatcher(syscall.NewKernel(table, disk, dir, hal.ActiveTTY()))
	if err != nil {
		return nil, nil, err
	}

	kfmt.Infof("kmain", "loaded %s (%d bytes) as %s", name, len(image), task)
	return table, disp, nil
}

// runHart enables the timer and external interrupt sources and runs the
// executor of hart.
func runHart(hart int) {
	e := sched.NewExecutor(hart, tasks, dispatcher, sched.Config{
		Quota:        cfg.Quota,
		TickInterval: cfg.TickInterval,
	})

	enableInterruptSourcesFn(cpu.SIETimer | cpu.SIEExternal)
	runExecutorFn(e)
}

// physSlice returns the high-half view of the physical range [start, end).
func physSlice(start, end uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(start+vmm.KernelOffset)), end-start)
}
