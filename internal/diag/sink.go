package diag

import (
	"context"
	"log/slog"
)

// Sink receives completed trace envelopes, once per turn.
// Implementations must not block the routing path; slow delivery should be
// buffered or dropped inside the sink.
type Sink interface {
	Emit(ctx context.Context, envelope *Envelope)
}

// SlogSink logs each envelope summary at debug level and every event at the
// configured level. It is the default sink when no diagnostic collaborator is
// attached.
type SlogSink struct {
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

var _ Sink = (*SlogSink)(nil)

// Emit implements [Sink].
func (s *SlogSink) Emit(_ context.Context, envelope *Envelope) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	events := envelope.Events()
	l.Debug("trace envelope",
		"call_id", envelope.CallID,
		"turn", envelope.TurnIndex,
		"events", len(events),
		"dropped", envelope.Dropped(),
	)
	for _, ev := range events {
		l.Debug("trace event",
			"call_id", envelope.CallID,
			"type", ev.Type,
			"stage", ev.Stage,
			"status", ev.Status,
		)
	}
}

// MultiSink fans an envelope out to several sinks in order.
type MultiSink []Sink

var _ Sink = (MultiSink)(nil)

// Emit implements [Sink].
func (m MultiSink) Emit(ctx context.Context, envelope *Envelope) {
	for _, s := range m {
		s.Emit(ctx, envelope)
	}
}

// NopSink discards all envelopes.
type NopSink struct{}

var _ Sink = NopSink{}

// Emit implements [Sink].
func (NopSink) Emit(context.Context, *Envelope) {}
