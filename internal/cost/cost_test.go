package cost

import (
	"context"
	"math"
	"testing"
	"time"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMonth_UTC(t *testing.T) {
	// A local timestamp near a month boundary keys by its UTC month.
	loc := time.FixedZone("UTC+11", 11*3600)
	jan1Local := time.Date(2026, 1, 1, 2, 0, 0, 0, loc) // 2025-12-31T15:00Z
	if got := Month(jan1Local); got != "2025-12" {
		t.Fatalf("Month = %q, want 2025-12", got)
	}
	if got := Month(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)); got != "2026-03" {
		t.Fatalf("Month = %q, want 2026-03", got)
	}
}

func TestMemoryAggregator_SpendPerTemplateAndMonth(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAggregator()

	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	records := []CallRecord{
		{TemplateID: "tpl-hvac", CostUSD: 0.02, Timestamp: march},
		{TemplateID: "tpl-hvac", CostUSD: 0.03, Timestamp: march},
		{TemplateID: "tpl-hvac", CostUSD: 0.10, Timestamp: april},
		{TemplateID: "tpl-other", CostUSD: 0.50, Timestamp: march},
	}
	for _, rec := range records {
		if err := a.RecordCall(ctx, rec); err != nil {
			t.Fatalf("RecordCall: %v", err)
		}
	}

	got, err := a.CurrentSpend(ctx, "tpl-hvac", "2026-03")
	if err != nil {
		t.Fatalf("CurrentSpend: %v", err)
	}
	if !near(got, 0.05) {
		t.Fatalf("march spend = %v, want 0.05", got)
	}
	if got, _ := a.CurrentSpend(ctx, "tpl-hvac", "2026-04"); !near(got, 0.10) {
		t.Fatalf("april spend = %v, want 0.10", got)
	}
	if got, _ := a.CurrentSpend(ctx, "tpl-other", "2026-03"); got != 0.50 {
		t.Fatalf("other template spend = %v, want 0.50", got)
	}
	if got, _ := a.CurrentSpend(ctx, "tpl-unknown", "2026-03"); got != 0 {
		t.Fatalf("unknown template spend = %v, want 0", got)
	}
}

func TestMemoryAggregator_ZeroTimestampDefaultsToNow(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAggregator()

	if err := a.RecordCall(ctx, CallRecord{TemplateID: "tpl", CostUSD: 0.01}); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if got, _ := a.CurrentSpend(ctx, "tpl", Month(time.Now())); got != 0.01 {
		t.Fatalf("current month spend = %v, want 0.01", got)
	}

	calls := a.Calls()
	if len(calls) != 1 || calls[0].Timestamp.IsZero() {
		t.Fatalf("calls = %+v, want one record with a filled timestamp", calls)
	}
}
