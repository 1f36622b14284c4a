package logging

import "github.com/vvka-141/pgetl/pkg/pgetl"

// NullLogger discards all log messages.
type NullLogger struct{}

func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

func (l *NullLogger) Verbose(format string, args ...interface{}) {}

func (l *NullLogger) Info(format string, args ...interface{}) {}

func (l *NullLogger) Error(format string, args ...interface{}) {}

var _ pgetl.Logger = (*NullLogger)(nil)
