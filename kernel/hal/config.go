package hal

import (
	"arcore/kernel"
	"arcore/kernel/kfmt"
	"strconv"

	"github.com/pkg/errors"
)

// MaxHarts is the number of harts the kernel brings up.
const MaxHarts = 8

var (
	// ErrInvalidBootArg is returned when a boot argument cannot be parsed.
	ErrInvalidBootArg = &kernel.Error{Module: "hal", Message: "invalid boot argument"}
)

// Config holds the settings read from the boot command line.
type Config struct {
	// Quota is the number of timer ticks a task runs before it is
	// preempted.
	Quota uint32

	// TickInterval is the timer period in timebase cycles.
	TickInterval uint64

	// Reserve is the number of frames held back by the frame allocator
	// for allocations that must not fail.
	Reserve uint32

	// Harts is the number of harts that run tasks. Zero selects every
	// hart listed by the firmware.
	Harts int

	LogLevel kfmt.Level
	LogColor bool

	// Init names the bundle entry started as the first task.
	Init string
}

// DefaultConfig returns the settings used when the command line is empty.
func DefaultConfig() Config {
	return Config{
		Quota:        4,
		TickInterval: 100000,
		Reserve:      8,
		Harts:        1,
		LogLevel:     kfmt.LevelInfo,
		Init:         "init",
	}
}

// ParseBootArgs builds a Config from the key-value pairs of the boot command
// line. Unknown keys are ignored. A value that cannot be parsed leaves the
// default in place; the first such value is reported as an error wrapping
// ErrInvalidBootArg.
func ParseBootArgs(args map[string]string) (Config, error) {
	var (
		cfg      = DefaultConfig()
		firstErr error
	)

	invalid := func(key, value string) {
		err := errors.Wrapf(ErrInvalidBootArg, "%s=%q", key, value)
		kfmt.Warnf("hal", "%v; using default", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	for key, value := range args {
		switch key {
		case "quota":
			if v, err := strconv.ParseUint(value, 10, 32); err == nil && v > 0 {
				cfg.Quota = uint32(v)
			} else {
				invalid(key, value)
			}
		case "tick":
			if v, err := strconv.ParseUint(value, 0, 64); err == nil && v > 0 {
				cfg.TickInterval = v
			} else {
				invalid(key, value)
			}
		case "reserve":
			if v, err := strconv.ParseUint(value, 10, 32); err == nil {
				cfg.Reserve = uint32(v)
			} else {
				invalid(key, value)
			}
		case "harts":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 && v <= MaxHarts {
				cfg.Harts = v
			} else {
				invalid(key, value)
			}
		case "loglevel":
			if l, ok := kfmt.ParseLevel(value); ok {
				cfg.LogLevel = l
			} else {
				invalid(key, value)
			}
		case "logcolor":
			switch value {
			case "on":
				cfg.LogColor = true
			case "off":
				cfg.LogColor = false
			default:
				invalid(key, value)
			}
		case "init":
			if value != "" && value != key {
				cfg.Init = value
			} else {
				invalid(key, value)
			}
		}
	}

	return cfg, firstErr
}
