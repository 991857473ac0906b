// Package diag implements the per-turn diagnostic trace envelope and the sinks
// it is emitted to.
//
// Every pipeline stage appends typed events to an [Envelope] carried alongside
// the turn. Events are append-only, recorded in strict pipeline order, and
// bounded in size: oversized string values are clipped and the event count is
// capped so a pathological turn cannot grow the envelope without limit. The
// envelope is emitted exactly once per turn to a [Sink].
package diag

import (
	"sync"
	"time"
)

// Event type names recorded by the pipeline. Stages may record additional
// ad-hoc types; these constants cover the ones tests and dashboards key on.
const (
	EventStage            = "STAGE"
	EventStageError       = "STAGE_ERROR"
	EventQualityGate      = "QUALITY_GATE"
	EventExactMatchBypass = "EXACT_MATCH_BYPASS"
	EventNegativeTrigger  = "NEGATIVE_TRIGGER_BLOCK"
	EventDualIntent       = "DUAL_INTENT"
	EventTierResult       = "TIER_RESULT"
	EventPrewarm          = "PREWARM"
	EventBudget           = "BUDGET"
	EventOptimization     = "OPTIMIZATION"
	EventLLMCall          = "LLM_CALL"
	EventPatternLearning  = "PATTERN_LEARNING"
	EventBehavior         = "BEHAVIOR"
	EventStyle            = "STYLE"
	EventError            = "ERROR"
)

// Status values for events.
const (
	StatusOK      = "ok"
	StatusMiss    = "miss"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Event is one typed trace record.
type Event struct {
	Type      string         `json:"type"`
	Stage     string         `json:"stage,omitempty"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	// defaultMaxEvents caps the number of events one envelope can hold.
	defaultMaxEvents = 256

	// defaultClipLen is the maximum length of any string value stored in
	// event data; longer strings keep only this prefix.
	defaultClipLen = 200
)

// Envelope is the append-only trace record for one turn.
//
// Appends are safe for concurrent use because the pre-warm branch traces from
// its own goroutine while the main pipeline continues.
type Envelope struct {
	CallID    string `json:"call_id"`
	TurnIndex int    `json:"turn_index"`

	mu        sync.Mutex
	events    []Event
	dropped   int
	maxEvents int
	clipLen   int
}

// NewEnvelope creates an envelope for one turn with default bounds.
func NewEnvelope(callID string, turnIndex int) *Envelope {
	return &Envelope{
		CallID:    callID,
		TurnIndex: turnIndex,
		maxEvents: defaultMaxEvents,
		clipLen:   defaultClipLen,
	}
}

// Append records an event with the current timestamp. String values in data
// longer than the clip length are truncated. Once the event cap is reached
// further events are counted as dropped instead of stored.
func (e *Envelope) Append(eventType, stage, status string, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.events) >= e.maxEvents {
		e.dropped++
		return
	}

	clipped := data
	if len(data) > 0 {
		clipped = make(map[string]any, len(data))
		for k, v := range data {
			if s, ok := v.(string); ok && len(s) > e.clipLen {
				clipped[k] = s[:e.clipLen]
				continue
			}
			clipped[k] = v
		}
	}

	e.events = append(e.events, Event{
		Type:      eventType,
		Stage:     stage,
		Status:    status,
		Data:      clipped,
		Timestamp: time.Now(),
	})
}

// Events returns a copy of the recorded events in append order.
func (e *Envelope) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Dropped returns the number of events discarded after the cap was hit.
func (e *Envelope) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Has reports whether an event of the given type was recorded. Useful in
// tests asserting on pipeline behaviour.
func (e *Envelope) Has(eventType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}
