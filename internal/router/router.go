// Package router orchestrates the per-turn pipeline: preprocessing, the
// three-tier cascade (rule match, semantic-boosted match, LLM fallback), the
// pre-LLM optimization and budget guards, pattern learning, and the behavior
// and style passes that shape the final reply.
//
// Route never returns an error. Every collaborator failure degrades the turn —
// a subscore zeroes, a guard falls open, the LLM tier falls back to the best
// rule candidate — and the outcome is reported in the [RoutedTurn]'s error
// code. The trace envelope is emitted exactly once per turn regardless of the
// path taken.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclerk/switchboard/internal/behavior"
	"github.com/openclerk/switchboard/internal/cost"
	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/learn"
	"github.com/openclerk/switchboard/internal/llmmatch"
	"github.com/openclerk/switchboard/internal/match"
	"github.com/openclerk/switchboard/internal/notify"
	"github.com/openclerk/switchboard/internal/optimize"
	"github.com/openclerk/switchboard/internal/preprocess"
	"github.com/openclerk/switchboard/internal/router/prewarm"
	"github.com/openclerk/switchboard/internal/style"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// Error codes carried on a [RoutedTurn]. Empty means the turn routed normally.
const (
	ErrCodeTemplateNotFound = "template_not_found"
	ErrCodeBudgetExhausted  = "budget_exhausted"
	ErrCodeLLMUnavailable   = "llm_unavailable"
	ErrCodeNoMatch          = "no_match"
)

// Config holds the cascade thresholds. Zero values take the defaults below.
type Config struct {
	// Tier1Threshold accepts a rule-tier candidate outright. Default 0.80.
	Tier1Threshold float64

	// Tier2Threshold accepts a semantically boosted candidate. Default 0.60.
	Tier2Threshold float64

	// Tier2Boost multiplies the top candidate's confidence on the second
	// pass; PrevScenarioBoost stacks when the conversation carries a prior
	// scenario. The boosted value is capped at Tier2Cap.
	Tier2Boost        float64 // default 1.10
	PrevScenarioBoost float64 // default 1.05
	Tier2Cap          float64 // default 0.95

	// ForcedConfidence and CachedConfidence are the fixed confidences
	// reported for optimization short-circuits. Defaults 0.90 / 0.95.
	ForcedConfidence float64
	CachedConfidence float64

	// PrewarmAdopt is the minimum confidence at which a speculative LLM
	// result is adopted instead of issuing a fresh call. Default 0.90.
	PrewarmAdopt float64

	// DefaultMonthlyBudget caps Tier-3 spend (USD) for templates that set no
	// budget of their own. Default 500.
	DefaultMonthlyBudget float64

	// TotalTimeout bounds one whole turn. Default 5s.
	TotalTimeout time.Duration
}

// DefaultConfig returns the standard cascade configuration.
func DefaultConfig() Config {
	return Config{
		Tier1Threshold:       0.80,
		Tier2Threshold:       0.60,
		Tier2Boost:           1.10,
		PrevScenarioBoost:    1.05,
		Tier2Cap:             0.95,
		ForcedConfidence:     0.90,
		CachedConfidence:     0.95,
		PrewarmAdopt:         0.90,
		DefaultMonthlyBudget: 500,
		TotalTimeout:         5 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Tier1Threshold <= 0 {
		c.Tier1Threshold = d.Tier1Threshold
	}
	if c.Tier2Threshold <= 0 {
		c.Tier2Threshold = d.Tier2Threshold
	}
	if c.Tier2Boost <= 0 {
		c.Tier2Boost = d.Tier2Boost
	}
	if c.PrevScenarioBoost <= 0 {
		c.PrevScenarioBoost = d.PrevScenarioBoost
	}
	if c.Tier2Cap <= 0 {
		c.Tier2Cap = d.Tier2Cap
	}
	if c.ForcedConfidence <= 0 {
		c.ForcedConfidence = d.ForcedConfidence
	}
	if c.CachedConfidence <= 0 {
		c.CachedConfidence = d.CachedConfidence
	}
	if c.PrewarmAdopt <= 0 {
		c.PrewarmAdopt = d.PrewarmAdopt
	}
	if c.DefaultMonthlyBudget <= 0 {
		c.DefaultMonthlyBudget = d.DefaultMonthlyBudget
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = d.TotalTimeout
	}
}

// RoutedTurn is the outcome of routing one caller utterance.
type RoutedTurn struct {
	// Tier records which cascade tier produced the outcome: 0 for the
	// exact-match bypass, 1–3 for the cascade tiers.
	Tier int

	// Scenario is the accepted scenario. Nil on cached responses, clarifiers,
	// and failures.
	Scenario *template.Scenario

	Confidence float64
	Reply      string

	// SelectionReason explains the acceptance in traces and dashboards
	// ("exact_match", "rule", "semantic_boost", "proven_path",
	// "cached_response", "llm", "budget_exhausted", ...).
	SelectionReason string

	Intent   types.Intent
	Entities types.Entities

	// Tone and Style come from the behavior pass.
	Tone  behavior.Tone
	Style behavior.StyleInstructions

	// NeedsClarifier is set when the dual-intent resolver could not pick a
	// side; Reply then carries the clarifying question.
	NeedsClarifier bool

	// ShouldReprompt mirrors the preprocessing quality gate.
	ShouldReprompt bool

	// PatternsLearned counts patterns applied to the template this turn.
	PatternsLearned int

	// Tokens and CostUSD account for every LLM call the turn made,
	// including discarded speculations.
	Tokens  int
	CostUSD float64

	// Timings records wall time per pipeline phase.
	Timings map[string]time.Duration

	// Envelope is the turn's trace record, already emitted to the sink.
	Envelope *diag.Envelope

	// ErrorCode is empty on success.
	ErrorCode string
}

// Option is a functional option for [Router].
type Option func(*Router)

// WithCompanyStore attaches the tenant-profile store.
func WithCompanyStore(s template.CompanyStore) Option {
	return func(r *Router) { r.companies = s }
}

// WithOptimizePolicy sets the pre-LLM short-circuit policy. Default: always
// use the LLM.
func WithOptimizePolicy(p optimize.Policy) Option {
	return func(r *Router) { r.policy = p }
}

// WithBudget attaches the spend aggregator enforcing monthly LLM budgets.
// Nil (the default) disables budget enforcement.
func WithBudget(a cost.Aggregator) Option {
	return func(r *Router) { r.budget = a }
}

// WithAnalyzer attaches the Tier-3 LLM analyzer. Nil (the default) makes
// Tier 3 report llm_unavailable.
func WithAnalyzer(a llmmatch.Analyzer) Option {
	return func(r *Router) { r.analyzer = a }
}

// WithPrewarm enables speculative Tier-3 analysis through the given warmer.
func WithPrewarm(w *prewarm.Warmer) Option {
	return func(r *Router) { r.warmer = w }
}

// WithLearner attaches the pattern-learning loop.
func WithLearner(l *learn.Learner) Option {
	return func(r *Router) { r.learner = l }
}

// WithAlertSink routes operational alerts. Default: structured log.
func WithAlertSink(s notify.Sink) Option {
	return func(r *Router) { r.alerts = s }
}

// WithTraceSink receives the per-turn envelope. Default: structured log.
func WithTraceSink(s diag.Sink) Option {
	return func(r *Router) { r.traces = s }
}

// WithConfig overrides the cascade configuration.
func WithConfig(cfg Config) Option {
	return func(r *Router) { r.cfg = cfg }
}

// WithLogger sets the structured logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithClock overrides the time source. Tests use this to pin budget months.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router routes caller turns through the cascade. Safe for concurrent use.
type Router struct {
	templates template.Store
	companies template.CompanyStore
	pipeline  *preprocess.Pipeline
	matcher   *match.Matcher
	policy    optimize.Policy
	budget    cost.Aggregator
	analyzer  llmmatch.Analyzer
	warmer    *prewarm.Warmer
	learner   *learn.Learner
	behavior  *behavior.Engine
	styler    *style.Renderer
	alerts    notify.Sink
	traces    diag.Sink
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

// New constructs a Router over the required collaborators.
func New(templates template.Store, pipeline *preprocess.Pipeline, matcher *match.Matcher, opts ...Option) *Router {
	r := &Router{
		templates: templates,
		pipeline:  pipeline,
		matcher:   matcher,
		policy:    optimize.AlwaysLLM{},
		behavior:  behavior.New(),
		styler:    style.New(),
		alerts:    &notify.SlogSink{},
		traces:    &diag.SlogSink{},
		cfg:       DefaultConfig(),
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	r.cfg.applyDefaults()
	return r
}

// Route runs one turn through the cascade. It never returns nil and never
// panics the caller; failures are reported through the RoutedTurn's error
// code.
func (r *Router) Route(ctx context.Context, turn types.Turn) *RoutedTurn {
	start := r.now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TotalTimeout)
	defer cancel()

	env := diag.NewEnvelope(turn.CallID, turn.TurnIndex)
	rt := &RoutedTurn{Envelope: env, Timings: make(map[string]time.Duration)}
	defer func() {
		rt.Timings["total"] = time.Since(start)
		r.traces.Emit(context.WithoutCancel(ctx), env)
	}()

	tmpl, err := r.templates.LoadTemplate(ctx, turn.TemplateID)
	if err != nil {
		r.fatal(ctx, rt, turn, ErrCodeTemplateNotFound,
			fmt.Sprintf("template %q could not be loaded", turn.TemplateID), err)
		return rt
	}
	company := r.loadCompany(ctx, turn.CompanyID)

	phase := r.now()
	pre := r.pipeline.Run(ctx, preprocess.Request{
		Turn:     turn,
		Template: tmpl,
		Company:  company,
		Trace:    env,
	})
	rt.Timings["preprocess"] = time.Since(phase)
	rt.Entities = pre.Entities
	rt.ShouldReprompt = pre.Quality.ShouldReprompt

	phase = r.now()
	res := r.matcher.Match(ctx, match.Request{
		Pre:      pre,
		Turn:     turn,
		Template: tmpl,
		Trace:    env,
	})
	rt.Timings["match"] = time.Since(phase)
	rt.Intent = res.Intent

	top := res.Top()

	// Tier 0: exact-match bypass.
	if res.Bypassed && top != nil {
		r.accept(rt, 0, top.Scenario, 1.0, "exact_match", env)
		r.finish(rt, pre, company, env)
		return rt
	}

	// A dual-intent stalemate outranks acceptance: asking one clarifying
	// question beats guessing the wrong side.
	if top != nil && top.NeedsClarifier {
		rt.NeedsClarifier = true
		rt.Confidence = top.Confidence
		rt.SelectionReason = "dual_intent_clarifier"
		rt.Reply = r.styler.Render(style.Request{
			Action:    style.ActionClarify,
			SessionID: turn.CallID,
			Prompt:    top.ClarifierPrompt,
			Company:   company,
			Trace:     env,
		}).Say
		r.finish(rt, pre, company, env)
		return rt
	}

	// Tier 1: rule match at full strictness.
	tier1 := tmpl.Tier1Threshold
	if tier1 <= 0 {
		tier1 = r.cfg.Tier1Threshold
	}
	if top != nil && top.Confidence >= tier1 {
		if ok, _ := r.matcher.Acceptable(top, tmpl, turn.Context); ok {
			r.accept(rt, 1, top.Scenario, top.Confidence, "rule", env)
			r.finish(rt, pre, company, env)
			return rt
		}
	}
	traceTier(env, 1, top, diag.StatusMiss)

	// Start the speculative LLM analysis as soon as Tier 1 misses so Tier-3
	// latency overlaps the remaining guards.
	var warm *prewarm.Handle
	if r.warmer != nil && r.analyzer != nil {
		warm = r.warmer.Start(ctx, prewarmKey(turn.CompanyID, pre.Normalized), llmmatch.Request{
			Utterance: pre.Normalized,
			Scenarios: tmpl.LiveScenarios(),
			Company:   company,
		})
		env.Append(diag.EventPrewarm, "prewarm", diag.StatusOK, map[string]any{"started": true})
	}

	// Tier 2: semantic boost over the same candidate set.
	tier2 := tmpl.Tier2Threshold
	if tier2 <= 0 {
		tier2 = r.cfg.Tier2Threshold
	}
	if top != nil {
		boosted := top.Confidence * r.cfg.Tier2Boost
		if turn.Context != nil && turn.Context.LastScenarioID != "" {
			boosted *= r.cfg.PrevScenarioBoost
		}
		if boosted > r.cfg.Tier2Cap {
			boosted = r.cfg.Tier2Cap
		}
		if boosted >= tier2 {
			c := *top
			c.Confidence = boosted
			if ok, _ := r.matcher.Acceptable(&c, tmpl, turn.Context); ok {
				cancelPrewarm(warm)
				r.accept(rt, 2, top.Scenario, boosted, "semantic_boost", env)
				r.finish(rt, pre, company, env)
				return rt
			}
		}
	}
	traceTier(env, 2, top, diag.StatusMiss)

	// Optimization short-circuit: a proven path or cached response serves the
	// turn without paying for Tier 3.
	if dec := r.decide(ctx, pre.Normalized, turn.Context, env); !dec.UseLLM {
		if dec.ForcedScenarioID != "" {
			if sc := tmpl.Scenario(dec.ForcedScenarioID); sc != nil {
				cancelPrewarm(warm)
				r.accept(rt, 2, sc, r.cfg.ForcedConfidence, dec.Reason, env)
				r.finish(rt, pre, company, env)
				return rt
			}
			r.log.Warn("optimization forced unknown scenario, ignoring",
				"template", tmpl.ID, "scenario", dec.ForcedScenarioID)
		} else if dec.CachedResponse != "" {
			cancelPrewarm(warm)
			rt.Reply = dec.CachedResponse
			r.accept(rt, 2, nil, r.cfg.CachedConfidence, dec.Reason, env)
			r.finish(rt, pre, company, env)
			return rt
		}
	}

	// Budget guard. An unreachable aggregator falls open to the LLM; an
	// exhausted budget falls open to the best rule candidate.
	if exhausted := r.budgetExhausted(ctx, turn, tmpl, env); exhausted {
		cancelPrewarm(warm)
		rt.ErrorCode = ErrCodeBudgetExhausted
		if top != nil {
			if ok, _ := r.matcher.Acceptable(top, tmpl, turn.Context); ok {
				r.accept(rt, 2, top.Scenario, top.Confidence, "budget_exhausted", env)
				r.finish(rt, pre, company, env)
				return rt
			}
		}
		rt.SelectionReason = "budget_exhausted"
		rt.Reply = r.styler.Render(style.Request{
			Action:    style.ActionFallback,
			SessionID: turn.CallID,
			Company:   company,
			Trace:     env,
		}).Say
		r.finish(rt, pre, company, env)
		return rt
	}

	// Tier 3: LLM fallback.
	r.tier3(ctx, rt, turn, tmpl, company, pre, top, warm, env)
	r.finish(rt, pre, company, env)
	return rt
}

// decide consults the optimization policy; a policy failure means "use the
// LLM".
func (r *Router) decide(ctx context.Context, utterance string, convCtx *types.Context, env *diag.Envelope) optimize.Decision {
	dec, err := r.policy.ShouldUseLLM(ctx, utterance, convCtx)
	if err != nil {
		r.log.Warn("optimization policy failed, proceeding to LLM", "error", err)
		return optimize.Decision{UseLLM: true, Reason: "policy_error"}
	}
	env.Append(diag.EventOptimization, "optimize", diag.StatusOK, map[string]any{
		"use_llm": dec.UseLLM,
		"reason":  dec.Reason,
	})
	return dec
}

// budgetExhausted reports whether the template's monthly LLM budget is spent.
// Aggregator failures fall open (allow the call) and are logged.
func (r *Router) budgetExhausted(ctx context.Context, turn types.Turn, tmpl *template.Template, env *diag.Envelope) bool {
	if r.budget == nil {
		return false
	}
	month := cost.Month(r.now())
	spend, err := r.budget.CurrentSpend(ctx, turn.TemplateID, month)
	if err != nil {
		r.log.Warn("budget lookup failed, allowing LLM call",
			"template", turn.TemplateID, "error", err)
		env.Append(diag.EventBudget, "budget", diag.StatusError, map[string]any{"error": err.Error()})
		return false
	}
	limit := tmpl.MonthlyBudget
	if limit <= 0 {
		limit = r.cfg.DefaultMonthlyBudget
	}
	exhausted := spend >= limit
	status := diag.StatusOK
	if exhausted {
		status = diag.StatusMiss
		r.alerts.Alert(ctx, notify.Alert{
			Code:     ErrCodeBudgetExhausted,
			Severity: notify.SeverityWarning,
			Title:    "Monthly LLM budget exhausted",
			Message:  fmt.Sprintf("template %s reached its %s budget", tmpl.ID, month),
			Details:  map[string]any{"template": tmpl.ID, "spend": spend, "limit": limit},
		})
	}
	env.Append(diag.EventBudget, "budget", status, map[string]any{
		"month": month, "spend": spend, "limit": limit,
	})
	return exhausted
}

// tier3 resolves the turn through the LLM: a high-confidence speculative
// result is adopted, otherwise a fresh call carries the full conversation
// context. LLM failure degrades to the best rule candidate.
func (r *Router) tier3(ctx context.Context, rt *RoutedTurn, turn types.Turn, tmpl *template.Template, company *template.Company, pre *preprocess.Result, top *match.Candidate, warm *prewarm.Handle, env *diag.Envelope) {
	phase := r.now()
	defer func() { rt.Timings["tier3"] = time.Since(phase) }()

	if r.analyzer == nil {
		r.llmUnavailable(ctx, rt, turn, tmpl, company, top, env, nil)
		return
	}

	var res *llmmatch.Result
	if warm != nil {
		wres, werr := warm.Wait(ctx)
		if wres != nil {
			r.account(ctx, rt, turn, wres)
		}
		switch {
		case werr == nil && wres != nil && wres.Success && wres.Confidence >= r.cfg.PrewarmAdopt:
			res = wres
			env.Append(diag.EventPrewarm, "prewarm", diag.StatusOK, map[string]any{
				"adopted": true, "confidence": wres.Confidence,
			})
		default:
			warm.Cancel()
			env.Append(diag.EventPrewarm, "prewarm", diag.StatusMiss, map[string]any{"adopted": false})
		}
	}

	if res == nil {
		fresh, err := r.analyzer.Analyze(ctx, llmmatch.Request{
			Utterance: pre.Normalized,
			Scenarios: tmpl.LiveScenarios(),
			Company:   company,
			Context:   turn.Context,
		})
		if fresh != nil {
			r.account(ctx, rt, turn, fresh)
		}
		if err != nil || fresh == nil || !fresh.Success {
			r.llmUnavailable(ctx, rt, turn, tmpl, company, top, env, err)
			return
		}
		res = fresh
	}

	env.Append(diag.EventLLMCall, "tier3", diag.StatusOK, map[string]any{
		"scenario":   res.ScenarioID,
		"confidence": res.Confidence,
		"tokens":     res.Tokens,
		"latency_ms": res.Latency.Milliseconds(),
	})

	var sc *template.Scenario
	if res.Matched && res.ScenarioID != "" {
		sc = tmpl.Scenario(res.ScenarioID)
	}
	if sc != nil {
		c := match.Candidate{Scenario: sc, Score: res.Confidence, Confidence: res.Confidence}
		if ok, reason := r.matcher.Acceptable(&c, tmpl, turn.Context); ok {
			r.accept(rt, 3, sc, res.Confidence, "llm", env)
			r.learn(ctx, rt, tmpl, pre.Normalized, sc.ID, res.Patterns, env)
			r.recordProvenPath(pre.Normalized, sc.ID)
			return
		} else {
			traceTier(env, 3, nil, diag.StatusMiss)
			rt.SelectionReason = "llm_" + reason
		}
	} else {
		traceTier(env, 3, nil, diag.StatusMiss)
		rt.SelectionReason = "llm_no_match"
	}

	rt.Tier = 3
	rt.ErrorCode = ErrCodeNoMatch
	rt.Reply = r.styler.Render(style.Request{
		Action:    style.ActionFallback,
		SessionID: turn.CallID,
		Company:   company,
		Trace:     env,
	}).Say
}

// llmUnavailable serves the best rule candidate when the LLM tier cannot run.
func (r *Router) llmUnavailable(ctx context.Context, rt *RoutedTurn, turn types.Turn, tmpl *template.Template, company *template.Company, top *match.Candidate, env *diag.Envelope, cause error) {
	rt.ErrorCode = ErrCodeLLMUnavailable
	details := map[string]any{"template": tmpl.ID, "call": turn.CallID}
	if cause != nil {
		details["error"] = cause.Error()
	}
	r.alerts.Alert(ctx, notify.Alert{
		Code:     ErrCodeLLMUnavailable,
		Severity: notify.SeverityCritical,
		Title:    "LLM tier unavailable",
		Message:  "all LLM backends failed or none is configured",
		Details:  details,
	})
	env.Append(diag.EventError, "tier3", diag.StatusError, details)

	if top != nil {
		if ok, _ := r.matcher.Acceptable(top, tmpl, turn.Context); ok {
			r.accept(rt, 2, top.Scenario, top.Confidence, ErrCodeLLMUnavailable, env)
			return
		}
	}
	rt.Tier = 3
	rt.SelectionReason = ErrCodeLLMUnavailable
	rt.Reply = r.styler.Render(style.Request{
		Action:    style.ActionFallback,
		SessionID: turn.CallID,
		Company:   company,
		Trace:     env,
	}).Say
}

// learn applies extracted patterns through the learner. Failures are logged;
// the turn's outcome is already decided.
func (r *Router) learn(ctx context.Context, rt *RoutedTurn, tmpl *template.Template, utterance, scenarioID string, patterns []template.Pattern, env *diag.Envelope) {
	if r.learner == nil || len(patterns) == 0 {
		return
	}
	out, err := r.learner.Apply(ctx, tmpl.ID, tmpl.Version, patterns, utterance, scenarioID, env)
	if err != nil {
		r.log.Warn("pattern learning failed", "template", tmpl.ID, "error", err)
		return
	}
	rt.PatternsLearned = len(out.Applied)
}

// recordProvenPath feeds the optimization policy when it learns from
// successful LLM resolutions.
func (r *Router) recordProvenPath(utterance, scenarioID string) {
	if rec, ok := r.policy.(interface{ RecordProvenPath(string, string) }); ok {
		rec.RecordProvenPath(utterance, scenarioID)
	}
}

// account folds one LLM call's spend into the turn and the aggregator.
// Discarded speculations are still paid for and therefore still recorded.
func (r *Router) account(ctx context.Context, rt *RoutedTurn, turn types.Turn, res *llmmatch.Result) {
	if res.Tokens == 0 && res.Cost == 0 {
		return
	}
	rt.Tokens += res.Tokens
	rt.CostUSD += res.Cost
	if r.budget == nil {
		return
	}
	rec := cost.CallRecord{
		TemplateID: turn.TemplateID,
		CompanyID:  turn.CompanyID,
		CallID:     turn.CallID,
		Tokens:     res.Tokens,
		CostUSD:    res.Cost,
		Timestamp:  r.now(),
	}
	if err := r.budget.RecordCall(ctx, rec); err != nil {
		r.log.Warn("cost record failed", "template", turn.TemplateID, "error", err)
	}
}

// accept finalizes the turn at the given tier. Reply resolution happens in
// finish so cached responses set earlier are preserved.
func (r *Router) accept(rt *RoutedTurn, tier int, sc *template.Scenario, confidence float64, reason string, env *diag.Envelope) {
	rt.Tier = tier
	rt.Scenario = sc
	rt.Confidence = confidence
	rt.SelectionReason = reason
	data := map[string]any{"tier": tier, "confidence": confidence, "reason": reason}
	if sc != nil {
		data["scenario"] = sc.ID
	}
	env.Append(diag.EventTierResult, "router", diag.StatusOK, data)
}

// finish runs the behavior and style passes and resolves the reply text.
func (r *Router) finish(rt *RoutedTurn, pre *preprocess.Result, company *template.Company, env *diag.Envelope) {
	d := r.behavior.Decide(behavior.Request{
		Utterance: pre.Normalized,
		Intent:    rt.Intent,
		Scenario:  rt.Scenario,
		Company:   company,
		Trace:     env,
	})
	rt.Tone = d.Tone
	rt.Style = d.Style

	if rt.Reply == "" && rt.Scenario != nil {
		rt.Reply = rt.Scenario.Reply()
	}
	if rt.Reply == "" {
		rt.Reply = r.styler.Render(style.Request{
			Action:  style.ActionFallback,
			Company: company,
			Trace:   env,
		}).Say
	}
}

// fatal records an unroutable turn: a failure RoutedTurn, a critical alert,
// and an error trace event.
func (r *Router) fatal(ctx context.Context, rt *RoutedTurn, turn types.Turn, code, msg string, cause error) {
	rt.ErrorCode = code
	rt.SelectionReason = code
	rt.Reply = r.styler.Render(style.Request{Action: style.ActionError, SessionID: turn.CallID}).Say
	details := map[string]any{"call": turn.CallID, "template": turn.TemplateID}
	if cause != nil {
		details["error"] = cause.Error()
	}
	rt.Envelope.Append(diag.EventError, "router", diag.StatusError, details)
	r.alerts.Alert(ctx, notify.Alert{
		Code:     "turn_fatal",
		Severity: notify.SeverityCritical,
		Title:    "Turn could not be routed",
		Message:  msg,
		Details:  details,
	})
}

// loadCompany fetches the tenant profile; a missing or failing store degrades
// to no profile.
func (r *Router) loadCompany(ctx context.Context, companyID string) *template.Company {
	if r.companies == nil || companyID == "" {
		return nil
	}
	c, err := r.companies.LoadCompany(ctx, companyID)
	if err != nil {
		r.log.Warn("company load failed, routing without profile",
			"company", companyID, "error", err)
		return nil
	}
	return c
}

func cancelPrewarm(h *prewarm.Handle) {
	if h != nil {
		h.Cancel()
	}
}

func prewarmKey(companyID, utterance string) string {
	return companyID + "|" + utterance
}

func traceTier(env *diag.Envelope, tier int, top *match.Candidate, status string) {
	data := map[string]any{"tier": tier}
	if top != nil {
		data["scenario"] = top.Scenario.ID
		data["confidence"] = top.Confidence
	}
	env.Append(diag.EventTierResult, "router", status, data)
}
