package observability

import (
	"sync"
	"time"
)

// Job outcomes as the worker reports them.
const (
	JobDone      = "done"
	JobRetry     = "retry"
	JobFailed    = "failed"    // permanent error, not retried
	JobExhausted = "exhausted" // ran out of attempts
)

// JobCounts is one row of worker counters.
type JobCounts struct {
	Claimed   uint64 `json:"claimed"`
	Done      uint64 `json:"done"`
	Retried   uint64 `json:"retried"`
	Failed    uint64 `json:"failed"`
	Exhausted uint64 `json:"exhausted"`

	Runs            uint64        `json:"runs"`
	AverageDuration time.Duration `json:"avgDurationNs"`
	MaxDuration     time.Duration `json:"maxDurationNs"`

	total time.Duration
}

func (c *JobCounts) finish(result string, d time.Duration) {
	switch result {
	case JobDone:
		c.Done++
	case JobRetry:
		c.Retried++
	case JobFailed:
		c.Failed++
	case JobExhausted:
		c.Exhausted++
	}

	c.Runs++
	c.total += d
	if d > c.MaxDuration {
		c.MaxDuration = d
	}
	c.AverageDuration = c.total / time.Duration(c.Runs)
}

// JobMetrics keeps in-process counters per job type for the worker's
// /stats endpoint. Prometheus carries the same data for scraping.
type JobMetrics struct {
	mu     sync.Mutex
	totals JobCounts
	byType map[string]*JobCounts
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{byType: make(map[string]*JobCounts)}
}

func (m *JobMetrics) row(jobType string) *JobCounts {
	c, ok := m.byType[jobType]
	if !ok {
		c = &JobCounts{}
		m.byType[jobType] = c
	}
	return c
}

func (m *JobMetrics) Claimed(jobType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.Claimed++
	m.row(jobType).Claimed++
}

func (m *JobMetrics) Finished(jobType, result string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.finish(result, d)
	m.row(jobType).finish(result, d)
}

type JobMetricsSnapshot struct {
	Totals JobCounts            `json:"totals"`
	ByType map[string]JobCounts `json:"byType"`
}

func (m *JobMetrics) Snapshot() JobMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := JobMetricsSnapshot{
		Totals: m.totals,
		ByType: make(map[string]JobCounts, len(m.byType)),
	}
	for t, c := range m.byType {
		out.ByType[t] = *c
	}
	return out
}
