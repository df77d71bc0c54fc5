package renteasy

import (
	"sync"
	"time"
)

// RequestMetric is one recorded request attempt: timing, outcome and how
// many retries preceded it.
type RequestMetric struct {
	ID         string
	Method     string
	Path       string
	Start      time.Time
	End        time.Time
	Status     int
	RetryCount int
	Err        string
}

// Duration is the wall-clock time the attempt took.
func (m RequestMetric) Duration() time.Duration {
	return m.End.Sub(m.Start)
}

// Monitor keeps a bounded, append-only history of recent request metrics.
// When capacity is reached the oldest entry is dropped. Safe for concurrent
// use.
type Monitor struct {
	mu      sync.Mutex
	entries []RequestMetric
	max     int
	start   int // index of oldest entry once the ring has wrapped
	full    bool
}

const defaultMonitorCapacity = 100

// NewMonitor creates a monitor retaining the max most-recent metrics.
// A non-positive max uses the default capacity.
func NewMonitor(max int) *Monitor {
	if max <= 0 {
		max = defaultMonitorCapacity
	}
	return &Monitor{
		entries: make([]RequestMetric, 0, max),
		max:     max,
	}
}

// Record appends a metric, evicting the oldest when full.
func (m *Monitor) Record(metric RequestMetric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) < m.max {
		m.entries = append(m.entries, metric)
		return
	}

	m.entries[m.start] = metric
	m.start = (m.start + 1) % m.max
	m.full = true
}

// History returns a copy of the recorded metrics, oldest first.
func (m *Monitor) History() []RequestMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RequestMetric, 0, len(m.entries))
	if !m.full {
		return append(out, m.entries...)
	}
	out = append(out, m.entries[m.start:]...)
	out = append(out, m.entries[:m.start]...)
	return out
}

// Len returns the number of retained metrics.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reset discards all recorded metrics.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = m.entries[:0]
	m.start = 0
	m.full = false
}
