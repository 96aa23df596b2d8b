//go:build !riscv64

package cpu

import "testing"

func TestHostedInterruptMask(t *testing.T) {
	DisableInterrupts()
	if InterruptsEnabled() {
		t.Fatal("expected interrupts to be disabled")
	}

	EnableInterrupts()
	if !InterruptsEnabled() {
		t.Fatal("expected interrupts to be enabled")
	}
	DisableInterrupts()
}
