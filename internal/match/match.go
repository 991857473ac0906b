// Package match implements scenario scoring over preprocessed utterances: a
// weighted fusion of keyword overlap, semantic similarity, regex triggers, and
// conversation context, followed by intent and urgency bonuses and a
// dual-intent resolver that arbitrates between "problem" and "action" readings
// of the same utterance.
package match

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/preprocess"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// Weights controls the scoring fusion. The four weights should sum to 1.0.
type Weights struct {
	BM25     float64 `yaml:"bm25"`
	Semantic float64 `yaml:"semantic"`
	Regex    float64 `yaml:"regex"`
	Context  float64 `yaml:"context"`
}

// DefaultWeights is the standard fusion: keyword overlap dominates, semantic
// similarity assists, regex and context refine.
var DefaultWeights = Weights{BM25: 0.40, Semantic: 0.30, Regex: 0.20, Context: 0.10}

// BM25Params are reserved for a future true-BM25 keyword score. The current
// overlap formula does not consult them.
type BM25Params struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// DefaultBM25Params mirror the conventional BM25 defaults.
var DefaultBM25Params = BM25Params{K1: 1.5, B: 0.75}

// Dual-intent resolver thresholds.
const (
	// dualIntentThreshold is the minimum aggregate score for a side to be
	// considered present at all.
	dualIntentThreshold = 0.45

	// emergencyHardThreshold is the problem score above which emergency
	// candidates are boosted outright.
	emergencyHardThreshold = 0.70

	// dualIntentDelta is the minimum separation for a clear winner.
	dualIntentDelta = 0.15

	// emergencyBoost multiplies emergency candidates on a hard emergency read.
	emergencyBoost = 1.5

	// winnerBoost multiplies the winning side's candidates when both readings
	// are present but one clearly dominates.
	winnerBoost = 1.3
)

// urgencyBonusCap bounds the summed urgency-keyword weights per scenario.
const urgencyBonusCap = 0.50

// defaultMaxScenarios bounds how many scenarios one turn will score.
const defaultMaxScenarios = 1000

// defaultMinConfidence is the template-wide acceptance floor applied when
// neither the scenario nor the template overrides it.
const defaultMinConfidence = 0.45

// SemanticScorer produces a similarity score in [0,1] between an utterance and
// a scenario's triggers. The template ID scopes the lookup: scenario IDs are
// only unique within a template, so cross-tenant rows must never be compared.
// Implementations may use embeddings; errors fail open to a zero subscore.
type SemanticScorer interface {
	Score(ctx context.Context, utterance, templateID string, sc *template.Scenario) (float64, error)
}

// Subscores are the per-signal components of a candidate's combined score.
type Subscores struct {
	BM25         float64 `json:"bm25"`
	Semantic     float64 `json:"semantic"`
	Regex        float64 `json:"regex"`
	Context      float64 `json:"context"`
	IntentBonus  float64 `json:"intent_bonus"`
	UrgencyBonus float64 `json:"urgency_bonus"`
}

// Candidate is one scored scenario.
type Candidate struct {
	Scenario  *template.Scenario
	Subscores Subscores

	// Score and Confidence are identical after clamping; both are kept so the
	// router and traces can speak in either vocabulary.
	Score      float64
	Confidence float64

	// Blocked is set when a negative trigger disqualified the scenario.
	Blocked bool

	// ExactMatch is set on the bypass path: the normalized utterance equalled
	// one of the scenario's normalized triggers.
	ExactMatch bool

	// NeedsClarifier is set by the dual-intent resolver when problem and
	// action readings are too close to call.
	NeedsClarifier  bool
	ClarifierPrompt string
}

// Result is the ranked outcome of matching one turn.
type Result struct {
	// Candidates are sorted by score descending, then priority descending.
	// Blocked candidates sort last with score 0.
	Candidates []Candidate

	// Intent is the highest-priority intent detected in the utterance.
	Intent types.Intent

	// ProblemScore and ActionScore are the dual-intent aggregates.
	ProblemScore float64
	ActionScore  float64

	// Bypassed is set when the exact-match fast path fired; Candidates then
	// holds exactly the matched scenario at confidence 1.0.
	Bypassed bool
}

// Top returns the best non-blocked candidate, or nil when none scored.
func (r *Result) Top() *Candidate {
	for i := range r.Candidates {
		if !r.Candidates[i].Blocked {
			return &r.Candidates[i]
		}
	}
	return nil
}

// Request carries the inputs of one matching run.
type Request struct {
	Pre      *preprocess.Result
	Turn     types.Turn
	Template *template.Template

	// Channel and Language filter scenario eligibility. Empty disables the
	// respective filter.
	Channel  string
	Language string

	// Trace receives matcher events. May be nil.
	Trace *diag.Envelope
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithWeights overrides the fusion weights.
func WithWeights(w Weights) Option {
	return func(m *Matcher) { m.weights = w }
}

// WithBM25 overrides the keyword-scoring parameters.
func WithBM25(p BM25Params) Option {
	return func(m *Matcher) { m.bm25 = p }
}

// WithSemanticScorer attaches a semantic similarity backend. Nil (the
// default) leaves the semantic slot at zero.
func WithSemanticScorer(s SemanticScorer) Option {
	return func(m *Matcher) { m.semantic = s }
}

// WithMaxScenarios caps how many eligible scenarios are scored per turn.
// Default 1000.
func WithMaxScenarios(n int) Option {
	return func(m *Matcher) { m.maxScenarios = n }
}

// WithMinConfidenceDefault overrides the fallback acceptance floor used when
// neither the scenario nor the template sets one. Default 0.45.
func WithMinConfidenceDefault(v float64) Option {
	return func(m *Matcher) { m.minConfidence = v }
}

// WithLogger sets the structured logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

// WithClock overrides the time source used for cooldown checks. Tests use
// this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// Matcher scores scenarios for preprocessed turns. It is stateless per turn
// and safe for concurrent use.
type Matcher struct {
	weights       Weights
	bm25          BM25Params
	semantic      SemanticScorer
	maxScenarios  int
	minConfidence float64
	log           *slog.Logger
	now           func() time.Time
}

// New constructs a Matcher with the supplied options applied over defaults.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		weights:       DefaultWeights,
		bm25:          DefaultBM25Params,
		maxScenarios:  defaultMaxScenarios,
		minConfidence: defaultMinConfidence,
		log:           slog.Default(),
		now:           time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match scores the template's eligible scenarios against the preprocessed
// turn and returns them ranked. It never returns an error: scorer failures
// degrade the affected subscore to zero.
func (m *Matcher) Match(ctx context.Context, req Request) *Result {
	res := &Result{}

	eligible := m.eligibleScenarios(req)
	if len(eligible) == 0 {
		return res
	}

	normalized := normalizePhrase(req.Pre.Normalized)

	// Exact-match bypass: a verbatim trigger hit skips scoring entirely.
	for _, sc := range eligible {
		for _, trig := range sc.Triggers {
			if normalizePhrase(trig) == normalized && normalized != "" {
				res.Bypassed = true
				res.Intent = m.detectIntent(req.Template, normalized)
				res.Candidates = []Candidate{{
					Scenario:   sc,
					Score:      1.0,
					Confidence: 1.0,
					ExactMatch: true,
				}}
				traceEvent(req.Trace, diag.EventExactMatchBypass, "matcher", diag.StatusOK,
					map[string]any{"scenario": sc.ID, "trigger": trig})
				return res
			}
		}
	}

	intent := m.detectIntent(req.Template, normalized)
	res.Intent = intent

	res.Candidates = make([]Candidate, 0, len(eligible))
	var blockedIDs []string
	for _, sc := range eligible {
		if neg := firstNegativeTrigger(sc, normalized); neg != "" {
			res.Candidates = append(res.Candidates, Candidate{Scenario: sc, Blocked: true})
			blockedIDs = append(blockedIDs, sc.ID)
			continue
		}

		sub := Subscores{
			BM25:    overlapScore(sc.Triggers, req.Pre.ExpandedTokens),
			Regex:   m.regexScore(sc, req.Pre.Normalized),
			Context: contextScore(sc, req.Turn.Context),
		}
		if m.semantic != nil {
			sem, err := m.semantic.Score(ctx, req.Pre.Normalized, req.Template.ID, sc)
			if err != nil {
				m.log.Debug("semantic scorer failed, subscore zeroed",
					"scenario", sc.ID, "error", err)
			} else {
				sub.Semantic = clamp01(sem)
			}
		}
		sub.IntentBonus = intentBonus(sc, intent)
		sub.UrgencyBonus = m.urgencyBonus(sc, req.Template.Urgency, normalized)

		score := m.weights.BM25*sub.BM25 +
			m.weights.Semantic*sub.Semantic +
			m.weights.Regex*sub.Regex +
			m.weights.Context*sub.Context
		score = clamp01(score + sub.IntentBonus + sub.UrgencyBonus)

		res.Candidates = append(res.Candidates, Candidate{
			Scenario:   sc,
			Subscores:  sub,
			Score:      score,
			Confidence: score,
		})
	}
	if len(blockedIDs) > 0 {
		traceEvent(req.Trace, diag.EventNegativeTrigger, "matcher", diag.StatusOK,
			map[string]any{"blocked": strings.Join(blockedIDs, ","), "count": len(blockedIDs)})
	}

	m.resolveDualIntent(req, res, normalized)

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		a, b := &res.Candidates[i], &res.Candidates[j]
		if a.Blocked != b.Blocked {
			return !a.Blocked
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Scenario.Priority != b.Scenario.Priority {
			return a.Scenario.Priority > b.Scenario.Priority
		}
		return a.Scenario.ID < b.Scenario.ID
	})

	return res
}

// AcceptanceFloor returns the confidence a candidate must reach for its
// scenario: the higher of the scenario's threshold override (else the
// template default, else the configured default) and the scenario's
// min-confidence gate.
func (m *Matcher) AcceptanceFloor(sc *template.Scenario, t *template.Template) float64 {
	floor := sc.ConfidenceThreshold
	if floor <= 0 {
		floor = t.MinConfidenceDefault
	}
	if floor <= 0 {
		floor = m.minConfidence
	}
	if sc.MinConfidence > floor && sc.MinConfidence <= 1 {
		floor = sc.MinConfidence
	}
	return floor
}

// Acceptable reports whether the candidate clears its acceptance floor and
// all scenario preconditions hold over the conversation state. The returned
// reason is empty on acceptance.
func (m *Matcher) Acceptable(c *Candidate, t *template.Template, convCtx *types.Context) (bool, string) {
	if c == nil || c.Scenario == nil {
		return false, "no_candidate"
	}
	if c.Blocked {
		return false, "blocked"
	}
	if floor := m.AcceptanceFloor(c.Scenario, t); c.Confidence < floor {
		return false, "below_min_confidence"
	}
	for key, want := range c.Scenario.Preconditions {
		if convCtx.StateValue(key) != want {
			return false, "precondition_failed"
		}
	}
	return true, ""
}

// eligibleScenarios filters the template's scenarios to those matchable this
// turn: live status, channel and language filters, and elapsed cooldown. The
// result is capped at maxScenarios.
func (m *Matcher) eligibleScenarios(req Request) []*template.Scenario {
	now := m.now()
	out := make([]*template.Scenario, 0, len(req.Template.Scenarios))
	for i := range req.Template.Scenarios {
		sc := &req.Template.Scenarios[i]
		if sc.Status != template.StatusLive {
			continue
		}
		if req.Channel != "" && len(sc.Channels) > 0 && !containsFold(sc.Channels, req.Channel) {
			continue
		}
		if req.Language != "" && sc.Language != "" && !strings.EqualFold(sc.Language, req.Language) {
			continue
		}
		if req.Turn.Context.OnCooldown(sc.ID, sc.Cooldown(), now) {
			continue
		}
		out = append(out, sc)
		if len(out) >= m.maxScenarios {
			break
		}
	}
	return out
}

// regexScore returns 1.0 when any regex trigger matches the normalized text.
// Invalid patterns are logged and skipped.
func (m *Matcher) regexScore(sc *template.Scenario, normalized string) float64 {
	for _, pattern := range sc.RegexTriggers {
		re, err := compileCI(pattern)
		if err != nil {
			m.log.Warn("invalid regex trigger skipped",
				"scenario", sc.ID, "pattern", pattern, "error", err)
			continue
		}
		if re.MatchString(normalized) {
			return 1.0
		}
	}
	return 0
}

// firstNegativeTrigger returns the first negative trigger appearing as a
// substring of the normalized text, or "".
func firstNegativeTrigger(sc *template.Scenario, normalized string) string {
	for _, neg := range sc.NegativeTriggers {
		neg = normalizePhrase(neg)
		if neg != "" && strings.Contains(normalized, neg) {
			return neg
		}
	}
	return ""
}

// contextScore sums the bounded conversation-context boosts.
func contextScore(sc *template.Scenario, convCtx *types.Context) float64 {
	if convCtx == nil {
		return 0
	}
	score := 0.0
	if convCtx.LastIntent != "" {
		last := strings.ToLower(convCtx.LastIntent)
		for _, cat := range sc.Categories {
			if strings.Contains(strings.ToLower(cat), last) {
				score += 0.3
				break
			}
		}
	}
	for _, id := range convCtx.PreferredScenarios {
		if id == sc.ID {
			score += 0.2
			break
		}
	}
	for key, want := range sc.Preconditions {
		if convCtx.StateValue(key) == want {
			score += 0.1
			break
		}
	}
	return clamp01(score)
}

// clamp01 bounds v to [0,1] and maps NaN and infinities to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizePhrase lowercases, trims, and collapses inner whitespace so
// trigger comparison is insensitive to spacing and case.
func normalizePhrase(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// containsFold reports whether list contains s case-insensitively.
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func traceEvent(env *diag.Envelope, eventType, stage, status string, data map[string]any) {
	if env == nil {
		return
	}
	env.Append(eventType, stage, status, data)
}
