// Package logging builds the component loggers used across the service.  It
// wraps echo's gommon logger so HTTP middleware and background components
// write in the same format.
package logging

import (
	"io"
	"strings"

	"github.com/labstack/gommon/log"
)

// Logger is the subset of the gommon/echo logger the services depend on.
// Both *log.Logger and echo.Logger satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// New returns a logger prefixed with component, e.g. "payment".
func New(component, level string) *log.Logger {
	l := log.New(component)
	l.SetHeader(`${time_rfc3339} ${level} ${prefix}:`)
	l.SetLevel(ParseLevel(level))
	return l
}

// Discard returns a logger that drops everything.  Used by tests.
func Discard() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}

// ParseLevel maps LOG_LEVEL values onto gommon levels; unknown values fall
// back to INFO.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	}
	return log.INFO
}
