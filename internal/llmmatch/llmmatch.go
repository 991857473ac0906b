// Package llmmatch implements the Tier-3 fallback analyzer: when the rule
// tiers miss, the utterance and the template's eligible scenarios are
// submitted to an LLM which picks the best scenario, reports its confidence
// and rationale, and may extract learning patterns for the rule tier.
//
// The analyzer is a thin prompt-and-parse layer over [llm.Provider]; failover
// across backends and circuit breaking live in the resilience package, and
// budget enforcement lives in the router.
package llmmatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/provider/llm"
	"github.com/openclerk/switchboard/pkg/types"
)

// Request carries one Tier-3 analysis call.
type Request struct {
	// Utterance is the normalized caller text.
	Utterance string

	// Scenarios are the eligible scenarios the LLM may choose from.
	Scenarios []template.Scenario

	// Company provides tenant context for the prompt. May be nil.
	Company *template.Company

	// Context is the rolling conversation state. May be nil.
	Context *types.Context

	// SystemPrompt overrides the built-in system prompt when non-empty.
	SystemPrompt string

	// Deadline bounds the LLM call. Zero means the caller's ctx governs.
	Deadline time.Duration
}

// Result is the analyzer's verdict.
type Result struct {
	// Success is false when the LLM call itself failed.
	Success bool

	// Matched is true when the LLM chose a scenario.
	Matched    bool
	ScenarioID string
	Confidence float64
	Rationale  string

	// Patterns are learning patterns extracted alongside the verdict.
	Patterns []template.Pattern

	// Tokens, Cost, and Latency feed the cost aggregator.
	Tokens  int
	Cost    float64
	Latency time.Duration
}

// Analyzer is the router's view of the Tier-3 collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// defaultSystemPrompt instructs the model to answer in strict JSON.
const defaultSystemPrompt = `You are the routing brain of a phone receptionist for a home-services company.
Given a caller utterance and a numbered list of response scenarios, pick the single best scenario.

Respond with ONLY a JSON object, no prose, in this shape:
{
  "scenarioId": "<id of the chosen scenario, or empty string if none fits>",
  "confidence": <0.0-1.0>,
  "rationale": "<one short sentence>",
  "patterns": [
    {"kind": "synonym", "term": "<canonical>", "aliases": ["<spoken>"], "confidence": <0.0-1.0>},
    {"kind": "filler", "word": "<word>", "confidence": <0.0-1.0>},
    {"kind": "urgency", "word": "<word>", "weight": <0.0-1.0>, "category": "<category>", "confidence": <0.0-1.0>},
    {"kind": "triggerExpansion", "scenario_id": "<id>", "phrases": ["<phrase>"], "confidence": <0.0-1.0>}
  ]
}
The patterns array may be empty. Only emit patterns you are confident generalize beyond this one call.`

// maxPromptScenarios caps how many scenarios are enumerated in one prompt.
const maxPromptScenarios = 50

// Option is a functional option for [ProviderAnalyzer].
type Option func(*ProviderAnalyzer)

// WithTemperature sets the sampling temperature. Default 0.1.
func WithTemperature(t float64) Option {
	return func(a *ProviderAnalyzer) { a.temperature = t }
}

// WithMaxTokens caps the completion length. Default 600.
func WithMaxTokens(n int) Option {
	return func(a *ProviderAnalyzer) { a.maxTokens = n }
}

// WithPricing sets the per-token USD rates used for cost records.
// Defaults approximate gpt-4o-mini.
func WithPricing(promptPerTok, completionPerTok float64) Option {
	return func(a *ProviderAnalyzer) {
		a.promptRate = promptPerTok
		a.completionRate = completionPerTok
	}
}

// ProviderAnalyzer implements [Analyzer] over an [llm.Provider].
type ProviderAnalyzer struct {
	provider       llm.Provider
	temperature    float64
	maxTokens      int
	promptRate     float64
	completionRate float64
}

var _ Analyzer = (*ProviderAnalyzer)(nil)

// New constructs a ProviderAnalyzer.
func New(provider llm.Provider, opts ...Option) *ProviderAnalyzer {
	a := &ProviderAnalyzer{
		provider:       provider,
		temperature:    0.1,
		maxTokens:      600,
		promptRate:     0.15 / 1_000_000,
		completionRate: 0.60 / 1_000_000,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze submits the utterance and scenario list to the LLM and parses its
// JSON verdict. A transport or parse failure returns an error together with a
// Result carrying Success=false and whatever accounting is known.
func (a *ProviderAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.Utterance == "" {
		return &Result{}, fmt.Errorf("llmmatch: empty utterance")
	}
	if len(req.Scenarios) == 0 {
		return &Result{}, fmt.Errorf("llmmatch: no scenarios")
	}

	if req.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	system := req.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	start := time.Now()
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages: []llm.Message{
			{Role: "user", Content: buildUserPrompt(req)},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	latency := time.Since(start)
	if err != nil {
		return &Result{Latency: latency}, fmt.Errorf("llmmatch: completion: %w", err)
	}

	res := &Result{
		Success: true,
		Tokens:  resp.Usage.TotalTokens,
		Cost: float64(resp.Usage.PromptTokens)*a.promptRate +
			float64(resp.Usage.CompletionTokens)*a.completionRate,
		Latency: latency,
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		res.Success = false
		return res, fmt.Errorf("llmmatch: parse verdict: %w", err)
	}

	res.ScenarioID = verdict.ScenarioID
	res.Confidence = clamp01(verdict.Confidence)
	res.Rationale = verdict.Rationale
	res.Matched = verdict.ScenarioID != ""
	for _, p := range verdict.Patterns {
		if p.Kind.IsValid() {
			res.Patterns = append(res.Patterns, p)
		}
	}
	return res, nil
}

// verdict mirrors the JSON the model is instructed to emit.
type verdict struct {
	ScenarioID string             `json:"scenarioId"`
	Confidence float64            `json:"confidence"`
	Rationale  string             `json:"rationale"`
	Patterns   []template.Pattern `json:"patterns"`
}

// parseVerdict decodes the model output, tolerating markdown code fences and
// leading prose around the JSON object.
func parseVerdict(content string) (*verdict, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "{"); i > 0 {
		content = content[i:]
	}
	if i := strings.LastIndex(content, "}"); i >= 0 {
		content = content[:i+1]
	}
	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("decode %q: %w", truncate(content, 120), err)
	}
	return &v, nil
}

// buildUserPrompt enumerates the scenarios and appends company and
// conversation context.
func buildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Caller said: %q\n\nScenarios:\n", req.Utterance)
	for i, sc := range req.Scenarios {
		if i >= maxPromptScenarios {
			break
		}
		fmt.Fprintf(&b, "%d. id=%s name=%q categories=%s triggers=%s\n",
			i+1, sc.ID, sc.Name,
			strings.Join(sc.Categories, "/"),
			strings.Join(sc.Triggers, "; "))
	}

	if req.Company != nil {
		fmt.Fprintf(&b, "\nCompany: %s (%s)\n", req.Company.Name, req.Company.Trade)
	}
	if req.Context != nil {
		if req.Context.LastIntent != "" {
			fmt.Fprintf(&b, "Previous intent: %s\n", req.Context.LastIntent)
		}
		if req.Context.LastScenarioID != "" {
			fmt.Fprintf(&b, "Previous scenario: %s\n", req.Context.LastScenarioID)
		}
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
