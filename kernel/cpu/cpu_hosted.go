//go:build !riscv64

package cpu

import "sync/atomic"

// When the kernel packages are built for a non-RISC-V host (e.g. to run
// their tests) the control registers are backed by plain variables. None of
// these functions touch real hardware.
var hostRegs struct {
	sstatus, sie, satp, stvec, sscratch uint64
	scause, stval, sepc, time, timecmp  uint64
	sip                                 uint64
}

// EnableInterrupts sets sstatus.SIE.
func EnableInterrupts() { atomicOr(&hostRegs.sstatus, SStatusSIE) }

// DisableInterrupts clears sstatus.SIE.
func DisableInterrupts() { atomicAndNot(&hostRegs.sstatus, SStatusSIE) }

// ReadSStatus returns the value stored in the sstatus register.
func ReadSStatus() uint64 { return atomic.LoadUint64(&hostRegs.sstatus) }

// InterruptsEnabled returns true if sstatus.SIE is set on this hart.
func InterruptsEnabled() bool { return ReadSStatus()&SStatusSIE != 0 }

// EnableInterruptSources sets the supplied bits in the sie register.
func EnableInterruptSources(mask uint64) { atomicOr(&hostRegs.sie, mask) }

// Halt parks the calling goroutine; there is no hart to stop on a host.
func Halt() { panic("cpu: hart halted") }

// WaitForInterrupt is a no-op on a host.
func WaitForInterrupt() {}

// FlushTLBEntry is a no-op on a host.
func FlushTLBEntry(_ uintptr) {}

// FlushTLB is a no-op on a host.
func FlushTLB() {}

// SwitchSATP loads the supplied satp value.
func SwitchSATP(satp uint64) { atomic.StoreUint64(&hostRegs.satp, satp) }

// ActiveSATP returns the value stored in the satp register.
func ActiveSATP() uint64 { return atomic.LoadUint64(&hostRegs.satp) }

// ReadSCause returns the value stored in the scause register.
func ReadSCause() uint64 { return atomic.LoadUint64(&hostRegs.scause) }

// ReadSTval returns the value stored in the stval register.
func ReadSTval() uint64 { return atomic.LoadUint64(&hostRegs.stval) }

// ReadSEPC returns the value stored in the sepc register.
func ReadSEPC() uint64 { return atomic.LoadUint64(&hostRegs.sepc) }

// WriteSTVec installs the supplied address as the trap vector.
func WriteSTVec(addr uintptr) { atomic.StoreUint64(&hostRegs.stvec, uint64(addr)) }

// WriteSScratch stores v in the sscratch register.
func WriteSScratch(v uintptr) { atomic.StoreUint64(&hostRegs.sscratch, uint64(v)) }

// ReadTime returns a monotonically increasing counter.
func ReadTime() uint64 { return atomic.AddUint64(&hostRegs.time, 1) }

// SetTimer records the next timer deadline.
func SetTimer(deadline uint64) { atomic.StoreUint64(&hostRegs.timecmp, deadline) }

// ReadSIP returns the pending supervisor interrupt bits.
func ReadSIP() uint64 { return atomic.LoadUint64(&hostRegs.sip) }

// ConsolePutchar discards its input; hosted builds attach their own sinks.
func ConsolePutchar(_ byte) {}

func atomicOr(addr *uint64, mask uint64) {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old|mask) {
			return
		}
	}
}

func atomicAndNot(addr *uint64, mask uint64) {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old&^mask) {
			return
		}
	}
}
