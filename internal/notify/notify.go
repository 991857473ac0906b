// Package notify delivers operational alerts raised by the router: fatal turn
// failures, budget exhaustion, repeated writeback conflicts. Alerts are
// fire-and-forget; delivery failure must never affect a turn.
package notify

import (
	"context"
	"log/slog"
)

// Severity levels for alerts.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one operational notification.
type Alert struct {
	// Code is a stable machine-readable identifier ("budget_exhausted",
	// "turn_fatal").
	Code     string
	Severity string
	Title    string
	Message  string

	// Details carries structured context (template ID, call ID, spend).
	Details map[string]any
}

// Sink delivers alerts. Implementations must be safe for concurrent use and
// should not block the caller on slow transports.
type Sink interface {
	Alert(ctx context.Context, a Alert)
}

// SlogSink writes alerts to a structured logger.
type SlogSink struct {
	Log *slog.Logger
}

var _ Sink = (*SlogSink)(nil)

// Alert implements [Sink].
func (s *SlogSink) Alert(ctx context.Context, a Alert) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"code", a.Code, "title", a.Title, "message", a.Message}
	for k, v := range a.Details {
		attrs = append(attrs, k, v)
	}
	switch a.Severity {
	case SeverityCritical:
		log.ErrorContext(ctx, "alert", attrs...)
	case SeverityWarning:
		log.WarnContext(ctx, "alert", attrs...)
	default:
		log.InfoContext(ctx, "alert", attrs...)
	}
}

// MultiSink fans out alerts to several sinks.
type MultiSink []Sink

var _ Sink = (MultiSink)(nil)

// Alert implements [Sink].
func (m MultiSink) Alert(ctx context.Context, a Alert) {
	for _, s := range m {
		s.Alert(ctx, a)
	}
}

// NopSink discards alerts.
type NopSink struct{}

var _ Sink = NopSink{}

// Alert implements [Sink].
func (NopSink) Alert(context.Context, Alert) {}
