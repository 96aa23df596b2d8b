package kfmt

import (
	"arcore/kernel"
	"arcore/kernel/cpu"

	"github.com/pkg/errors"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// hart. Calls to Panic never return on hardware; callers that continue after
// it only do so under test.
//
// A wrapped error whose cause is a *kernel.Error is reported under the
// module of its cause with the full wrapped message.
func Panic(e interface{}) {
	var (
		module  string
		message string
	)

	switch t := e.(type) {
	case *kernel.Error:
		module, message = t.Module, t.Message
	case string:
		module, message = errRuntimePanic.Module, t
	case error:
		module, message = errRuntimePanic.Module, t.Error()
		if cause, ok := errors.Cause(t).(*kernel.Error); ok {
			module = cause.Module
		}
	}

	Printf("\n-----------------------------------\n")
	if message != "" {
		Printf("[%s] unrecoverable error: %s\n", module, message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
