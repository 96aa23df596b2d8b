//go:build !riscv64

package trap

func enterUser(_ *Frame) {
	panic("trap: user mode entry requires a riscv64 hart")
}

func kernelVectorAddr() uintptr { return 0 }
