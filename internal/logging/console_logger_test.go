package logging

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLogger_VerboseWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, true)

	logger.Verbose("test message: %s", "value")

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "test message: value")
}

func TestConsoleLogger_VerboseWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, false)

	logger.Verbose("test message: %s", "value")

	assert.Empty(t, buf.String())
}

func TestConsoleLogger_InfoAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, false)

	logger.Info("saved to %s", "/out/2024-01-02/csv/transacoes.csv")
	logger.Error("stage %s failed", "extract_tables")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF")
	assert.Contains(t, lines[0], "saved to /out/2024-01-02/csv/transacoes.csv")
	assert.Contains(t, lines[1], "ERR")
	assert.Contains(t, lines[1], "stage extract_tables failed")
}

func TestConsoleLogger_NoColorForBuffers(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleLoggerTo(&buf, false).Info("plain")

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestConsoleLogger_NoArgsKeepsPercent(t *testing.T) {
	var buf bytes.Buffer
	info := NewConsoleLoggerTo(&buf, false).Info
	info("100% done")

	assert.Contains(t, buf.String(), "100% done")
}

func TestConsoleLogger_EnableSentryEmptyDSN(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, false)

	require.NoError(t, logger.EnableSentry(""))
	assert.False(t, logger.sentry)
}

func TestConsoleLogger_ConcurrentUse(t *testing.T) {
	var buf syncBuffer
	logger := NewConsoleLoggerTo(&buf, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("message %d", n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, strings.Count(buf.String(), "message "))
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()
	logger.Verbose("ignored %d", 1)
	logger.Info("ignored")
	logger.Error("ignored")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func ExampleNewConsoleLoggerTo() {
	var buf bytes.Buffer
	logger := NewConsoleLoggerTo(&buf, false)
	logger.Info("loaded %d tables", 7)

	fmt.Println(strings.Contains(buf.String(), "loaded 7 tables"))
	// Output: true
}
