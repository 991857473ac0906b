// Package learn implements the pattern-learning loop: patterns extracted by
// the LLM tier are folded back into the active template's rule structures so
// the next identical utterance is served by Tier 1 without LLM cost.
//
// Patterns below the confidence floor are not applied; they are enqueued as
// suggestions for human review. Writebacks use optimistic concurrency — a
// stale write is logged and dropped, never retried silently.
package learn

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/template"
)

// DefaultConfidenceFloor is the minimum pattern confidence for direct
// application.
const DefaultConfidenceFloor = 0.75

// Suggestion is a below-floor pattern queued for review instead of applied.
type Suggestion struct {
	TemplateID string
	Pattern    template.Pattern

	// Utterance and ScenarioID record the turn the pattern came from.
	Utterance  string
	ScenarioID string
}

// SuggestionLog receives below-floor patterns. Implementations must be safe
// for concurrent use.
type SuggestionLog interface {
	Enqueue(ctx context.Context, s Suggestion) error
}

// NopSuggestionLog discards suggestions.
type NopSuggestionLog struct{}

var _ SuggestionLog = NopSuggestionLog{}

// Enqueue implements [SuggestionLog].
func (NopSuggestionLog) Enqueue(context.Context, Suggestion) error { return nil }

// Outcome reports one learning pass.
type Outcome struct {
	// Applied and Rejected mirror the store's apply result.
	Applied  []template.Pattern
	Rejected []template.Pattern

	// Suggested lists below-floor patterns routed to the suggestion log.
	Suggested []template.Pattern

	// Conflicted is true when the optimistic write lost and nothing was
	// applied.
	Conflicted bool
}

// Option is a functional option for [Learner].
type Option func(*Learner)

// WithConfidenceFloor overrides the application floor. Default 0.75.
func WithConfidenceFloor(f float64) Option {
	return func(l *Learner) { l.floor = f }
}

// WithSuggestionLog routes below-floor patterns to log. Default: discard.
func WithSuggestionLog(s SuggestionLog) Option {
	return func(l *Learner) { l.suggestions = s }
}

// WithLogger sets the structured logger. Default slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Learner) { l.log = log }
}

// Learner applies LLM-extracted patterns to templates through a [template.Store].
type Learner struct {
	store       template.Store
	floor       float64
	suggestions SuggestionLog
	log         *slog.Logger
}

// New constructs a Learner over the given store.
func New(store template.Store, opts ...Option) *Learner {
	l := &Learner{
		store:       store,
		floor:       DefaultConfidenceFloor,
		suggestions: NopSuggestionLog{},
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Apply splits patterns at the confidence floor, writes the confident ones
// through the store at expectedVersion, and enqueues the rest as suggestions.
// A version conflict is reported in the outcome, logged, and not retried.
func (l *Learner) Apply(ctx context.Context, templateID string, expectedVersion int64, patterns []template.Pattern, utterance, scenarioID string, trace *diag.Envelope) (*Outcome, error) {
	out := &Outcome{}
	if len(patterns) == 0 {
		return out, nil
	}

	var confident []template.Pattern
	for _, p := range patterns {
		if !p.Kind.IsValid() {
			out.Rejected = append(out.Rejected, p)
			continue
		}
		if p.Confidence < l.floor {
			out.Suggested = append(out.Suggested, p)
			if err := l.suggestions.Enqueue(ctx, Suggestion{
				TemplateID: templateID,
				Pattern:    p,
				Utterance:  utterance,
				ScenarioID: scenarioID,
			}); err != nil {
				l.log.Warn("suggestion enqueue failed",
					"template", templateID, "kind", p.Kind, "error", err)
			}
			continue
		}
		confident = append(confident, p)
	}

	if len(confident) > 0 {
		res, err := l.store.ApplyPatterns(ctx, templateID, confident, expectedVersion)
		switch {
		case errors.Is(err, template.ErrVersionConflict):
			out.Conflicted = true
			l.log.Warn("pattern writeback lost optimistic race, dropping patterns",
				"template", templateID, "patterns", len(confident))
		case err != nil:
			appendTrace(trace, diag.StatusError, map[string]any{"error": err.Error()})
			return out, err
		default:
			out.Applied = res.Applied
			out.Rejected = append(out.Rejected, res.Rejected...)
		}
	}

	status := diag.StatusOK
	if out.Conflicted {
		status = diag.StatusError
	}
	appendTrace(trace, status, map[string]any{
		"applied":   len(out.Applied),
		"rejected":  len(out.Rejected),
		"suggested": len(out.Suggested),
		"conflict":  out.Conflicted,
	})
	return out, nil
}

func appendTrace(trace *diag.Envelope, status string, data map[string]any) {
	if trace == nil {
		return
	}
	trace.Append(diag.EventPatternLearning, "learner", status, data)
}
