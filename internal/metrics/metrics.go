// Package metrics emits pipeline counters and timings to a StatsD agent.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

const (
	// DefaultNamespace prefixes every metric name.
	DefaultNamespace = "pgetl."

	DefaultSampleRate = 1
)

// Metric names.
const (
	RowsExtracted  = "rows.extracted"
	RowsLoaded     = "rows.loaded"
	StageDuration  = "stage.duration"
	StageFailed    = "stage.failed"
	StageSucceeded = "stage.succeeded"
)

type Client interface {
	Count(name string, value int64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
	Incr(name string, tags map[string]string)
	Close() error
}

// NewStatsdClient sends metrics to addr (host:port, UDP). globalTags are
// attached to every metric.
func NewStatsdClient(addr string, globalTags map[string]string, opts ...statsd.Option) (Client, error) {
	opts = append([]statsd.Option{
		statsd.WithNamespace(DefaultNamespace),
		statsd.WithTags(toDatadogTags(globalTags)),
	}, opts...)
	client, err := statsd.New(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", addr, err)
	}
	return &statsClient{client: client, rate: DefaultSampleRate}, nil
}

type statsClient struct {
	client *statsd.Client
	rate   float64
}

func (s *statsClient) Count(name string, value int64, tags map[string]string) {
	_ = s.client.Count(name, value, toDatadogTags(tags), s.rate)
}

func (s *statsClient) Timing(name string, value time.Duration, tags map[string]string) {
	_ = s.client.Timing(name, value, toDatadogTags(tags), s.rate)
}

func (s *statsClient) Incr(name string, tags map[string]string) {
	_ = s.client.Incr(name, toDatadogTags(tags), s.rate)
}

func (s *statsClient) Close() error {
	return s.client.Close()
}

func toDatadogTags(tags map[string]string) []string {
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		out = append(out, fmt.Sprintf("%s:%s", k, v))
	}
	sort.Strings(out)
	return out
}

// NullClient discards everything.
type NullClient struct{}

func (NullClient) Count(string, int64, map[string]string)          {}
func (NullClient) Timing(string, time.Duration, map[string]string) {}
func (NullClient) Incr(string, map[string]string)                  {}
func (NullClient) Close() error                                    { return nil }

// Sample is one recorded call on a MemoryClient.
type Sample struct {
	Name  string
	Value int64
	Tags  map[string]string
}

// MemoryClient records counts for assertions in tests. Timings are
// recorded with their value in milliseconds.
type MemoryClient struct {
	mu      sync.Mutex
	samples []Sample
}

func (m *MemoryClient) record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *MemoryClient) Count(name string, value int64, tags map[string]string) {
	m.record(Sample{Name: name, Value: value, Tags: tags})
}

func (m *MemoryClient) Timing(name string, value time.Duration, tags map[string]string) {
	m.record(Sample{Name: name, Value: value.Milliseconds(), Tags: tags})
}

func (m *MemoryClient) Incr(name string, tags map[string]string) {
	m.record(Sample{Name: name, Value: 1, Tags: tags})
}

func (m *MemoryClient) Close() error { return nil }

// Samples returns a copy of the samples named name, in call order.
func (m *MemoryClient) Samples(name string) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sample
	for _, s := range m.samples {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Total sums the values of samples named name.
func (m *MemoryClient) Total(name string) int64 {
	var n int64
	for _, s := range m.Samples(name) {
		n += s.Value
	}
	return n
}
