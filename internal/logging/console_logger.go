// Package logging provides the pgetl.Logger implementations used by the CLI and tests.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// ConsoleLogger writes human-readable log lines through a tint slog handler.
// Colour is used only when the writer is a terminal.
// Safe for concurrent use by multiple goroutines.
type ConsoleLogger struct {
	handler slog.Handler
	logger  *slog.Logger
	sentry  bool
}

// NewConsoleLogger creates a ConsoleLogger on stderr.
// If verbose is false, Verbose() calls are dropped.
func NewConsoleLogger(verbose bool) *ConsoleLogger {
	return NewConsoleLoggerTo(os.Stderr, verbose)
}

// NewConsoleLoggerTo creates a ConsoleLogger writing to w.
func NewConsoleLoggerTo(w io.Writer, verbose bool) *ConsoleLogger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(w),
	})
	return &ConsoleLogger{handler: handler, logger: slog.New(handler)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// EnableSentry additionally forwards Error() messages to Sentry.
// On failure the logger keeps writing to the console only.
func (l *ConsoleLogger) EnableSentry(dsn string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return fmt.Errorf("failed to enable Sentry output: %w", err)
	}
	l.handler = slogmulti.Fanout(
		l.handler,
		slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
	)
	l.logger = slog.New(l.handler)
	l.sentry = true
	return nil
}

// Flush waits for buffered Sentry events. No-op without Sentry.
func (l *ConsoleLogger) Flush(timeout time.Duration) {
	if l.sentry {
		sentry.Flush(timeout)
	}
}

// Verbose logs detailed diagnostic information if verbose mode is enabled.
func (l *ConsoleLogger) Verbose(format string, args ...interface{}) {
	if !l.handler.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.logger.Debug(sprintf(format, args...))
}

// Info logs informational messages about normal operations.
func (l *ConsoleLogger) Info(format string, args ...interface{}) {
	l.logger.Info(sprintf(format, args...))
}

// Error logs error messages.
func (l *ConsoleLogger) Error(format string, args ...interface{}) {
	l.logger.Error(sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

var _ pgetl.Logger = (*ConsoleLogger)(nil)
