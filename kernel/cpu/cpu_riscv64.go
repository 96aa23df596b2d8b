package cpu

// EnableInterrupts sets sstatus.SIE.
func EnableInterrupts()

// DisableInterrupts clears sstatus.SIE.
func DisableInterrupts()

// ReadSStatus returns the value stored in the sstatus register.
func ReadSStatus() uint64

// InterruptsEnabled returns true if sstatus.SIE is set on this hart.
func InterruptsEnabled() bool {
	return ReadSStatus()&SStatusSIE != 0
}

// EnableInterruptSources sets the supplied bits in the sie register.
func EnableInterruptSources(mask uint64)

// Halt masks interrupts and parks the hart forever.
func Halt()

// WaitForInterrupt stalls the hart until an interrupt becomes pending.
func WaitForInterrupt()

// FlushTLBEntry flushes the TLB entries for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLB flushes all TLB entries on this hart.
func FlushTLB()

// SwitchSATP loads the supplied satp value and flushes the TLB.
func SwitchSATP(satp uint64)

// ActiveSATP returns the value stored in the satp register.
func ActiveSATP() uint64

// ReadSCause returns the value stored in the scause register.
func ReadSCause() uint64

// ReadSTval returns the value stored in the stval register.
func ReadSTval() uint64

// ReadSEPC returns the value stored in the sepc register.
func ReadSEPC() uint64

// WriteSTVec installs the supplied address as the trap vector (direct mode).
func WriteSTVec(addr uintptr)

// WriteSScratch stores v in the sscratch register.
func WriteSScratch(v uintptr)

// ReadTime returns the current value of the time CSR.
func ReadTime() uint64

// SetTimer programs the next supervisor timer interrupt through the SBI
// TIME extension.
func SetTimer(deadline uint64)

// ReadSIP returns the pending supervisor interrupt bits.
func ReadSIP() uint64

// ConsolePutchar writes one byte to the firmware console.
func ConsolePutchar(ch byte)
