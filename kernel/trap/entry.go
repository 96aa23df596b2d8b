package trap

import "arcore/kernel/cpu"

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	writeSTVecFn = cpu.WriteSTVec

	// EnterUser resumes the task whose registers are stored in frame in
	// user mode and returns once the task traps back into the kernel. On
	// return frame holds the user registers at the time of the trap while
	// scause, stval and sepc describe the trap itself.
	EnterUser = enterUser
)

// Init installs the supervisor trap vector on the calling hart. The kernel
// runs with interrupts masked; traps are only expected while a hart is in
// user mode and are then routed through the user entry trampoline, which
// installs its own vector for the duration of the switch.
func Init() {
	writeSTVecFn(kernelVectorAddr())
}
