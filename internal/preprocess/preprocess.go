// Package preprocess implements the deterministic text pipeline that turns a
// raw speech-to-text transcript into a normalized string, two token sets, an
// entity bag, and a quality verdict.
//
// Five ordered stages run per turn:
//
//  1. Filler removal — strip the company name, a leading greeting, and filler
//     phrases, protecting meaning-bearing words.
//  2. Vocabulary normalization — apply ordered from→to corrections.
//  3. Synonym translation — replace spoken aliases with canonical terms.
//  4. Token expansion — tokenize and expand with synonyms and context patterns.
//  5. Entity extraction — names, phone, email, address, custom patterns.
//
// Every stage fails open: an error or panic inside a stage degrades that stage
// to pass-through and records a trace event, never aborting the turn. The raw
// input text is never mutated; each stage works on its own copy.
package preprocess

import (
	"context"
	"fmt"
	"time"

	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// NameDictionary classifies candidate name tokens. Implementations may be
// backed by a dictionary service or a phonetic matcher; nil disables
// validation and extracted names are marked unvalidated.
type NameDictionary interface {
	IsFirstName(s string) bool
	IsLastName(s string) bool
}

// Result is the immutable output of one pipeline run.
type Result struct {
	// RawText is the input exactly as received, never mutated.
	RawText string

	// AfterFillers, AfterVocab, and AfterSynonyms are the intermediate
	// cleaned texts after each rewriting stage, kept for diagnostics.
	AfterFillers  string
	AfterVocab    string
	AfterSynonyms string

	// Normalized is the final normalized text used for matching.
	Normalized string

	// OriginalTokens are the ordered content tokens of the normalized text.
	OriginalTokens []string

	// ExpandedTokens is a de-duplicated superset of OriginalTokens including
	// synonym and context-pattern expansions.
	ExpandedTokens []string

	// ExpansionMap records which source token contributed which additions.
	ExpansionMap map[string][]string

	// Entities holds the structured values extracted from the raw text.
	Entities types.Entities

	// StageTimings records the wall time spent per stage.
	StageTimings map[string]time.Duration

	// Quality is the quality-gate verdict over the normalized text.
	Quality Verdict

	// Disabled is set when a global timeout aborted the pipeline and the
	// result carries only the raw text.
	Disabled bool
}

// Request carries the per-turn inputs of a pipeline run.
type Request struct {
	Turn     types.Turn
	Template *template.Template

	// Company may be nil when no tenant profile applies.
	Company *template.Company

	// Category selects category-level fillers and synonyms. Empty skips the
	// category layers.
	Category string

	// Trace receives stage events. May be nil.
	Trace *diag.Envelope
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithNameDictionary attaches a name dictionary used to validate extracted
// first/last names. Nil (the default) marks all names unvalidated.
func WithNameDictionary(d NameDictionary) Option {
	return func(p *Pipeline) { p.names = d }
}

// WithStageTimeout bounds each individual stage. When a stage's deadline
// passes before it starts, the stage is skipped as pass-through. Default 50ms.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stageTimeout = d }
}

// WithMaxInputLen truncates the raw text to at most n bytes before
// processing. Default 2000. RawText in the result keeps the full input.
func WithMaxInputLen(n int) Option {
	return func(p *Pipeline) { p.maxInputLen = n }
}

// WithMinWordCount overrides the quality gate's minimum word count.
// Default 2.
func WithMinWordCount(n int) Option {
	return func(p *Pipeline) { p.quality.MinWordCount = n }
}

// Pipeline runs the five preprocessing stages. It is stateless per turn and
// safe for concurrent use.
type Pipeline struct {
	names        NameDictionary
	stageTimeout time.Duration
	maxInputLen  int
	quality      GateConfig
}

// New constructs a Pipeline with the supplied options applied over defaults.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		stageTimeout: 50 * time.Millisecond,
		maxInputLen:  2000,
		quality:      defaultGateConfig,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes the pipeline for one turn. It never returns an error: stage
// failures degrade to pass-through, and a ctx deadline that has already
// expired yields a minimal result flagged Disabled.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	res := &Result{
		RawText:      req.Turn.RawText,
		StageTimings: make(map[string]time.Duration, 5),
		ExpansionMap: map[string][]string{},
	}

	if err := ctx.Err(); err != nil {
		res.Disabled = true
		res.Normalized = req.Turn.RawText
		trace(req.Trace, diag.EventStageError, "pipeline", diag.StatusError,
			map[string]any{"error": err.Error()})
		return res
	}

	working := req.Turn.RawText
	if len(working) > p.maxInputLen {
		working = working[:p.maxInputLen]
	}

	// Stage 1: filler removal.
	working = p.runStage(ctx, req.Trace, res, "fillers", working, func(text string) (string, error) {
		return removeFillers(text, fillerInputs(req)), nil
	})
	res.AfterFillers = working

	// Stage 2: vocabulary normalization.
	working = p.runStage(ctx, req.Trace, res, "vocabulary", working, func(text string) (string, error) {
		return applyVocabulary(text, req.Template.VocabCorrections)
	})
	res.AfterVocab = working

	// Stage 3: synonym translation.
	synonyms := mergedSynonyms(req.Template, req.Category)
	working = p.runStage(ctx, req.Trace, res, "synonyms", working, func(text string) (string, error) {
		return translateSynonyms(text, synonyms)
	})
	res.AfterSynonyms = working
	res.Normalized = working

	// Stage 4: token expansion.
	p.timeStage(res, "tokens", func() {
		fillers := fillerSet(fillerInputs(req))
		res.OriginalTokens = tokenize(res.Normalized, fillers)
		res.ExpandedTokens, res.ExpansionMap = expandTokens(
			res.OriginalTokens, synonyms, req.Template.ContextPatterns)
	})
	trace(req.Trace, diag.EventStage, "tokens", diag.StatusOK, map[string]any{
		"original": len(res.OriginalTokens),
		"expanded": len(res.ExpandedTokens),
	})

	// Stage 5: entity extraction runs on the raw text so capitalisation and
	// digits survive for the name and phone patterns.
	p.timeStage(res, "entities", func() {
		res.Entities = extractEntities(req.Turn.RawText, p.names, req.Template.EntityPatterns)
	})
	trace(req.Trace, diag.EventStage, "entities", diag.StatusOK, map[string]any{
		"empty": res.Entities.Empty(),
	})

	// Quality gate over the normalized text. Advisory only: routing continues
	// regardless and consults ShouldReprompt to bias handling.
	res.Quality = p.quality.Evaluate(res.Normalized)
	status := diag.StatusOK
	if !res.Quality.Passed {
		status = diag.StatusMiss
	}
	trace(req.Trace, diag.EventQualityGate, "quality", status, map[string]any{
		"reason":     res.Quality.Reason,
		"confidence": res.Quality.Confidence,
		"reprompt":   res.Quality.ShouldReprompt,
	})

	return res
}

// runStage executes one text-rewriting stage with panic recovery and timing.
// On error or panic the stage degrades to pass-through.
func (p *Pipeline) runStage(ctx context.Context, env *diag.Envelope, res *Result, name, input string, fn func(string) (string, error)) (out string) {
	start := time.Now()
	defer func() {
		res.StageTimings[name] = time.Since(start)
		if r := recover(); r != nil {
			out = input
			trace(env, diag.EventStageError, name, diag.StatusError,
				map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	if err := ctx.Err(); err != nil {
		trace(env, diag.EventStageError, name, diag.StatusSkipped,
			map[string]any{"error": err.Error()})
		return input
	}

	out, err := fn(input)
	if err != nil {
		trace(env, diag.EventStageError, name, diag.StatusError,
			map[string]any{"error": err.Error()})
		return input
	}
	trace(env, diag.EventStage, name, diag.StatusOK, nil)
	return out
}

// timeStage records wall time for non-rewriting stages.
func (p *Pipeline) timeStage(res *Result, name string, fn func()) {
	start := time.Now()
	defer func() {
		res.StageTimings[name] = time.Since(start)
		if r := recover(); r != nil {
			// Leave the stage's outputs at their zero values.
			_ = r
		}
	}()
	fn()
}

// fillerInputs gathers the filler-removal inputs for one request.
func fillerInputs(req Request) fillerConfig {
	cfg := fillerConfig{
		TemplateFillers: req.Template.Fillers,
	}
	if req.Company != nil {
		cfg.CompanyName = req.Company.Name
		cfg.CustomFillers = req.Company.CustomFillers
	}
	if req.Category != "" {
		cfg.CategoryFillers = req.Template.CategoryFillers[req.Category]
	}
	return cfg
}

// mergedSynonyms unions the template-level synonym map with the category's
// map, appending category aliases to existing entries without duplicates.
func mergedSynonyms(t *template.Template, category string) map[string][]string {
	merged := make(map[string][]string, len(t.Synonyms))
	for term, aliases := range t.Synonyms {
		merged[term] = append([]string(nil), aliases...)
	}
	if category == "" {
		return merged
	}
	for term, aliases := range t.CategorySynonyms[category] {
		for _, alias := range aliases {
			if !containsFold(merged[term], alias) {
				merged[term] = append(merged[term], alias)
			}
		}
	}
	return merged
}

func trace(env *diag.Envelope, eventType, stage, status string, data map[string]any) {
	if env == nil {
		return
	}
	env.Append(eventType, stage, status, data)
}
