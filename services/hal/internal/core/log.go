package core

import "fmt"

// Logger is the logging surface used by the HAL and its devices.
// *logrus.Logger and *logrus.Entry satisfy it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// PrintLogger writes through the builtin println, for boards without a
// console writer. Debug output is dropped unless Verbose is set.
type PrintLogger struct {
	Prefix  string
	Verbose bool
}

func (l PrintLogger) Debugf(format string, args ...any) {
	if l.Verbose {
		l.out("debug", format, args)
	}
}
func (l PrintLogger) Infof(format string, args ...any)  { l.out("info", format, args) }
func (l PrintLogger) Warnf(format string, args ...any)  { l.out("warn", format, args) }
func (l PrintLogger) Errorf(format string, args ...any) { l.out("error", format, args) }

func (l PrintLogger) out(level, format string, args []any) {
	println(l.Prefix+"["+level+"]", fmt.Sprintf(format, args...))
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

// LogOrNop returns l, or NopLogger when l is nil.
func LogOrNop(l Logger) Logger {
	if l == nil {
		return NopLogger
	}
	return l
}
