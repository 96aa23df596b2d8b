package trap

import (
	"arcore/kernel/mm/vmm"
	"fmt"
)

// Cause is the raw value of the scause register.
type Cause uint64

const causeInterruptBit = Cause(1) << 63

// Exception and interrupt codes reported in scause.
const (
	CodeSoftwareInterrupt = 1
	CodeTimerInterrupt    = 5
	CodeExternalInterrupt = 9

	CodeInstructionMisaligned = 0
	CodeInstructionAccess     = 1
	CodeIllegalInstruction    = 2
	CodeBreakpoint            = 3
	CodeLoadMisaligned        = 4
	CodeLoadAccess            = 5
	CodeStoreMisaligned       = 6
	CodeStoreAccess           = 7
	CodeUserEcall             = 8
	CodeSupervisorEcall       = 9
	CodeInstructionPageFault  = 12
	CodeLoadPageFault         = 13
	CodeStorePageFault        = 15
)

// Interrupt returns true if the trap was caused by an interrupt.
func (c Cause) Interrupt() bool { return c&causeInterruptBit != 0 }

// Code returns the exception or interrupt code.
func (c Cause) Code() uint64 { return uint64(c &^ causeInterruptBit) }

// String implements fmt.Stringer for Cause.
func (c Cause) String() string {
	if c.Interrupt() {
		return fmt.Sprintf("interrupt %d", c.Code())
	}
	return fmt.Sprintf("exception %d", c.Code())
}

// Kind is the dispatch class of a trap.
type Kind uint8

// The supported trap kinds.
const (
	KindOther Kind = iota
	KindSyscall
	KindPageFault
	KindIllegalInstruction
	KindTimerInterrupt
	KindExternalInterrupt
)

var kindNames = [...]string{"other", "syscall", "page fault", "illegal instruction", "timer interrupt", "external interrupt"}

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Classify maps a trap cause to its dispatch class. Access faults are
// grouped with page faults; misaligned accesses, breakpoints and software
// interrupts are reported as KindOther.
func Classify(c Cause) Kind {
	if c.Interrupt() {
		switch c.Code() {
		case CodeTimerInterrupt:
			return KindTimerInterrupt
		case CodeExternalInterrupt:
			return KindExternalInterrupt
		default:
			return KindOther
		}
	}

	switch c.Code() {
	case CodeUserEcall:
		return KindSyscall
	case CodeInstructionPageFault, CodeLoadPageFault, CodeStorePageFault,
		CodeInstructionAccess, CodeLoadAccess, CodeStoreAccess:
		return KindPageFault
	case CodeIllegalInstruction:
		return KindIllegalInstruction
	default:
		return KindOther
	}
}

// Access returns the kind of memory access that caused a page or access
// fault.
func (c Cause) Access() vmm.AccessKind {
	switch c.Code() {
	case CodeInstructionPageFault, CodeInstructionAccess:
		return vmm.AccessExecute
	case CodeStorePageFault, CodeStoreAccess:
		return vmm.AccessWrite
	default:
		return vmm.AccessRead
	}
}

// InterruptCause returns the scause value reported for interrupt code.
func InterruptCause(code uint64) Cause { return causeInterruptBit | Cause(code) }

// ExceptionCause returns the scause value reported for exception code.
func ExceptionCause(code uint64) Cause { return Cause(code) }
