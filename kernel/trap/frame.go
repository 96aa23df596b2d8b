// Package trap defines the register snapshot captured when a hart leaves
// user mode, decodes trap causes and provides the user-mode entry path.
package trap

import (
	"arcore/kernel/kfmt"
	"io"
)

// Indices of the registers in Frame.Regs that have a fixed role in the
// calling and system call conventions.
const (
	RegRA = 1
	RegSP = 2
	RegGP = 3
	RegTP = 4
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA3 = 13
	RegA4 = 14
	RegA5 = 15
	RegA6 = 16
	RegA7 = 17
)

// The byte offsets below are used by the entry trampoline and must match the
// layout of Frame.
const (
	frameOffsetSStatus  = 256
	frameOffsetSEPC     = 264
	frameOffsetKernelSP = 272
	frameSize           = 400
)

// Frame is the register snapshot of a user task. It is filled by the trap
// entry code when the task traps and restored verbatim when the task is
// resumed, so handlers only need to modify the fields they want changed.
type Frame struct {
	// Regs holds x0-x31. Regs[0] is always zero.
	Regs [32]uint64

	// SStatus and SEPC are the supervisor status and exception program
	// counter at the time of the trap.
	SStatus uint64
	SEPC    uint64

	// The kernel's stack pointer, return address, global and thread
	// pointers and the callee-saved registers s0-s11, stored by the entry
	// trampoline before switching to user mode and reloaded on the next
	// trap.
	KernelSP uint64
	KernelRA uint64
	KernelGP uint64
	KernelTP uint64
	KernelS  [12]uint64
}

// SyscallNumber returns the system call number passed in a7.
func (f *Frame) SyscallNumber() uint64 { return f.Regs[RegA7] }

// SyscallArgs returns the six system call arguments passed in a0-a5.
func (f *Frame) SyscallArgs() [6]uint64 {
	var args [6]uint64
	copy(args[:], f.Regs[RegA0:RegA5+1])
	return args
}

// SetReturn stores a system call result in a0.
func (f *Frame) SetReturn(v uint64) { f.Regs[RegA0] = v }

// AdvancePC moves SEPC past the trapping instruction. ecall is always four
// bytes long.
func (f *Frame) AdvancePC() { f.SEPC += 4 }

// Print outputs a dump of the user registers to w.
func (f *Frame) Print(w io.Writer) {
	kfmt.Fprintf(w, "sepc    = %16x sstatus = %16x\n", f.SEPC, f.SStatus)
	// x0 is hardwired to zero and left out; x31 gets a row of its own.
	for i := 1; i < len(f.Regs); i += 2 {
		if i+1 == len(f.Regs) {
			kfmt.Fprintf(w, "%-7s = %16x\n", regNames[i], f.Regs[i])
			break
		}
		kfmt.Fprintf(w, "%-7s = %16x %-7s = %16x\n", regNames[i], f.Regs[i], regNames[i+1], f.Regs[i+1])
	}
}

var regNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}
