// Package tty provides the kernel terminal: a line-oriented character device
// that the hal installs as the kfmt output sink.
package tty

import "io"

// DefaultTabWidth defines the number of columns between tab stops.
const DefaultTabWidth = 4

// State defines the supported terminal state values.
type State uint8

const (
	// StateInactive marks the terminal as inactive. Any writes are
	// discarded.
	StateInactive State = iota

	// StateActive marks the terminal as active. Writes are forwarded to
	// the underlying hardware.
	StateActive
)

// Device is implemented by objects that can be used as a terminal device.
type Device interface {
	io.Writer
	io.ByteWriter

	// State returns the TTY's state.
	State() State

	// SetState updates the TTY's state.
	SetState(State)

	// Column returns the 1-based column of the cursor.
	Column() uint32
}
