package kfmt

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

// Level controls which log messages reach the console.
type Level uint8

// The supported log levels in increasing order of severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	levelNames  = [...]string{"debug", "info", "warn", "error"}
	levelColors = [...]string{"black+h", "cyan", "yellow", "red+b"}

	minLevel = LevelInfo
	useColor bool
)

// String implements fmt.Stringer for Level.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// ParseLevel maps a level name (as passed on the kernel command line) to a
// Level.
func ParseLevel(name string) (Level, bool) {
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// SetLevel sets the minimum severity for messages emitted by Logf.
func SetLevel(l Level) { minLevel = l }

// SetColor toggles ANSI coloring of log prefixes. It should only be enabled
// when the console is known to be a terminal.
func SetColor(enabled bool) { useColor = enabled }

// Logf writes a single log line of the form "[module] message" to the
// console if level is at or above the configured minimum. Warnings and
// errors also carry their level name after the module tag.
func Logf(level Level, module, format string, args ...interface{}) {
	if level < minLevel {
		return
	}

	prefix := "[" + module + "] "
	if level >= LevelWarn {
		prefix += level.String() + ": "
	}
	if useColor && int(level) < len(levelColors) {
		prefix = ansi.Color(prefix, levelColors[level])
	}

	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	Printf("%s%s", prefix, msg)
}

// Debugf logs a message at LevelDebug.
func Debugf(module, format string, args ...interface{}) {
	Logf(LevelDebug, module, format, args...)
}

// Infof logs a message at LevelInfo.
func Infof(module, format string, args ...interface{}) {
	Logf(LevelInfo, module, format, args...)
}

// Warnf logs a message at LevelWarn.
func Warnf(module, format string, args ...interface{}) {
	Logf(LevelWarn, module, format, args...)
}

// Errorf logs a message at LevelError.
func Errorf(module, format string, args ...interface{}) {
	Logf(LevelError, module, format, args...)
}
