package main

import "arcore/kernel/kmain"

var (
	hartID, dtbAddr uintptr
)

// main makes a dummy call to the actual kernel entrypoint functions. It is
// intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code.
//
// Global variables are passed as arguments to Kmain and KmainSecondary to
// prevent the compiler from inlining the actual calls and removing the entry
// points from the generated .o file.
func main() {
	if hartID != 0 {
		kmain.KmainSecondary(hartID)
		return
	}
	kmain.Kmain(hartID, dtbAddr, 0, 0)
}
