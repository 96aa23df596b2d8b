package tty

import (
	"arcore/device"
	"arcore/kernel"
	"arcore/kernel/cpu"
	"io"
)

// putcharFn is mocked by tests.
var putcharFn = cpu.ConsolePutchar

// Serial is a terminal backed by the firmware console. It translates line
// feeds to CR-LF pairs, expands tabs to the next tab stop and implements
// destructive backspace.
type Serial struct {
	state    State
	tabWidth uint32
	column   uint32
}

// NewSerial creates a new inactive serial terminal.
func NewSerial(tabWidth uint32) *Serial {
	if tabWidth == 0 {
		tabWidth = DefaultTabWidth
	}
	return &Serial{tabWidth: tabWidth, column: 1}
}

// State returns the terminal state.
func (t *Serial) State() State { return t.state }

// SetState updates the terminal state.
func (t *Serial) SetState(newState State) { t.state = newState }

// Column returns the 1-based column of the cursor.
func (t *Serial) Column() uint32 { return t.column }

// Write implements io.Writer.
func (t *Serial) Write(data []byte) (int, error) {
	for count, b := range data {
		if err := t.WriteByte(b); err != nil {
			return count, err
		}
	}

	return len(data), nil
}

// WriteByte implements io.ByteWriter.
func (t *Serial) WriteByte(b byte) error {
	if t.state != StateActive {
		return io.ErrClosedPipe
	}

	switch b {
	case '\r':
		putcharFn('\r')
		t.column = 1
	case '\n':
		putcharFn('\r')
		putcharFn('\n')
		t.column = 1
	case '\b':
		if t.column > 1 {
			putcharFn('\b')
			putcharFn(' ')
			putcharFn('\b')
			t.column--
		}
	case '\t':
		for next := ((t.column-1)/t.tabWidth+1)*t.tabWidth + 1; t.column < next; t.column++ {
			putcharFn(' ')
		}
	default:
		putcharFn(b)
		t.column++
	}

	return nil
}

// DriverName returns the name of this driver.
func (t *Serial) DriverName() string {
	return "sbi_console"
}

// DriverVersion returns the version of this driver.
func (t *Serial) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (t *Serial) DriverInit(_ io.Writer) *kernel.Error { return nil }

func probeForSerial() device.Driver {
	return NewSerial(DefaultTabWidth)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForSerial,
	})
}
