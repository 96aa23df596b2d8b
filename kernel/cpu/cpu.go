// Package cpu exposes the RISC-V supervisor-level control registers and
// privileged instructions used by the kernel.
package cpu

const (
	// SStatusSIE enables supervisor interrupts when set in sstatus.
	SStatusSIE = uint64(1 << 1)

	// SStatusSPIE holds the value of SIE prior to taking a trap.
	SStatusSPIE = uint64(1 << 5)

	// SStatusSPP records the privilege level a trap was taken from
	// (0 = user, 1 = supervisor).
	SStatusSPP = uint64(1 << 8)

	// SStatusSUM permits supervisor-mode access to user pages.
	SStatusSUM = uint64(1 << 18)

	// SIESoftware, SIETimer and SIEExternal select the supervisor
	// interrupt sources enabled through the sie register.
	SIESoftware = uint64(1 << 1)
	SIETimer    = uint64(1 << 5)
	SIEExternal = uint64(1 << 9)

	// SIPTimer and SIPExternal report pending timer and external
	// interrupts in the sip register.
	SIPTimer    = uint64(1 << 5)
	SIPExternal = uint64(1 << 9)
)

// SATPModeSv39 selects the three-level Sv39 translation scheme.
const SATPModeSv39 = uint64(8)

const (
	satpModeShift = 60
	satpASIDShift = 44
	satpASIDMask  = uint64(0xffff)
	satpPPNMask   = uint64(1<<44) - 1
)

// MakeSATP encodes a satp value that activates the root page table at the
// supplied physical page number.
func MakeSATP(mode uint64, asid uint16, rootPPN uint64) uint64 {
	return mode<<satpModeShift | uint64(asid)<<satpASIDShift | rootPPN&satpPPNMask
}

// DecodeSATP splits a satp value into its mode, address-space id and root
// page table physical page number.
func DecodeSATP(satp uint64) (mode uint64, asid uint16, rootPPN uint64) {
	return satp >> satpModeShift, uint16((satp >> satpASIDShift) & satpASIDMask), satp & satpPPNMask
}
