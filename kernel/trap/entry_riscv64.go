package trap

// enterUser is implemented in assembly.
func enterUser(frame *Frame)

// kernelVectorAddr returns the address of the vector taking traps raised
// while the hart runs kernel code.
func kernelVectorAddr() uintptr

// userVector and kernelVector are trap vectors; they are never called from Go.
func userVector()
func kernelVector()
