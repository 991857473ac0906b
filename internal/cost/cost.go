// Package cost tracks Tier-3 LLM spend per template and calendar month. The
// router consults the aggregate before every LLM call: when the month's spend
// has reached the template's budget, the call is denied and the turn falls
// back to the best rule-tier candidate.
package cost

import (
	"context"
	"time"
)

// Month identifies a calendar month as "2006-01" in UTC.
func Month(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CallRecord is one Tier-3 LLM call for accounting.
type CallRecord struct {
	TemplateID string
	CompanyID  string
	CallID     string
	Model      string
	Tokens     int
	CostUSD    float64
	Timestamp  time.Time
}

// Aggregator tracks per-template monthly LLM spend.
// Implementations must be safe for concurrent use.
type Aggregator interface {
	// CurrentSpend returns the accumulated USD spend for a template in the
	// given month ("2006-01").
	CurrentSpend(ctx context.Context, templateID, month string) (float64, error)

	// RecordCall adds one call to the aggregate.
	RecordCall(ctx context.Context, rec CallRecord) error
}
