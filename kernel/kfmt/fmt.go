// Package kfmt implements the kernel console: formatted output, leveled
// module-prefixed logging and the panic banner. Output written before a
// console sink is attached is retained in a ring buffer and replayed once
// SetOutputSink is called.
package kfmt

import (
	"arcore/kernel/sync"
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before the
	// boot console is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// outputLock serializes console writes across harts. Printf may be
	// called from trap context so interrupts stay masked while it is held.
	outputLock sync.IRQSpinlock
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputLock.Acquire()
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
	outputLock.Release()
}

// GetOutputSink returns the currently attached console sink or nil if output
// is still being buffered.
func GetOutputSink() io.Writer {
	outputLock.Acquire()
	defer outputLock.Release()
	return outputSink
}

// Printf formats according to a format specifier and writes to the active
// console sink. It accepts the same verbs as fmt.Printf. If no sink has been
// attached yet, the output is buffered in a ring-buffer and replayed by the
// next call to SetOutputSink.
func Printf(format string, args ...interface{}) {
	outputLock.Acquire()
	Fprintf(outputSink, format, args...)
	outputLock.Release()
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}

	// Console writes are best-effort; there is nowhere to report a
	// failing console to.
	fmt.Fprintf(w, format, args...)
}
