package cost

import (
	"context"
	"sync"
	"time"
)

// MemoryAggregator is an in-process [Aggregator]. Suitable for tests and
// single-instance deployments; spend resets on restart.
type MemoryAggregator struct {
	mu    sync.Mutex
	spend map[string]float64 // templateID|month → USD
	calls []CallRecord
}

var _ Aggregator = (*MemoryAggregator)(nil)

// NewMemoryAggregator creates an empty in-memory aggregator.
func NewMemoryAggregator() *MemoryAggregator {
	return &MemoryAggregator{spend: make(map[string]float64)}
}

// CurrentSpend implements [Aggregator].
func (a *MemoryAggregator) CurrentSpend(_ context.Context, templateID, month string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spend[templateID+"|"+month], nil
}

// RecordCall implements [Aggregator].
func (a *MemoryAggregator) RecordCall(_ context.Context, rec CallRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spend[rec.TemplateID+"|"+Month(rec.Timestamp)] += rec.CostUSD
	a.calls = append(a.calls, rec)
	return nil
}

// Calls returns a copy of all recorded calls, for tests and diagnostics.
func (a *MemoryAggregator) Calls() []CallRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]CallRecord, len(a.calls))
	copy(out, a.calls)
	return out
}
