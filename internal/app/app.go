// Package app wires all Switchboard subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithTemplateStore, WithAnalyzer, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclerk/switchboard/internal/config"
	"github.com/openclerk/switchboard/internal/cost"
	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/diag/wssink"
	"github.com/openclerk/switchboard/internal/learn"
	"github.com/openclerk/switchboard/internal/llmmatch"
	"github.com/openclerk/switchboard/internal/match"
	"github.com/openclerk/switchboard/internal/match/semantic"
	"github.com/openclerk/switchboard/internal/notify"
	"github.com/openclerk/switchboard/internal/observe"
	"github.com/openclerk/switchboard/internal/optimize"
	"github.com/openclerk/switchboard/internal/preprocess"
	"github.com/openclerk/switchboard/internal/preprocess/names"
	"github.com/openclerk/switchboard/internal/resilience"
	"github.com/openclerk/switchboard/internal/router"
	"github.com/openclerk/switchboard/internal/router/prewarm"
	"github.com/openclerk/switchboard/internal/template"
	tplpostgres "github.com/openclerk/switchboard/internal/template/postgres"
	"github.com/openclerk/switchboard/pkg/provider/embeddings"
	"github.com/openclerk/switchboard/pkg/provider/llm"
)

// NamedLLM pairs an LLM provider with the config name it was created under,
// so the fallback chain can report which backend served a call.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds one value per provider slot. Nil means the provider is not
// configured. Populated by main.go via the config registry.
type Providers struct {
	// LLM is the primary Tier-3 backend.
	LLM NamedLLM

	// Fallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	Fallbacks []NamedLLM

	// Embeddings backs the semantic subscore. Nil disables semantic scoring;
	// Tier 2 then boosts the keyword signal alone.
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the Switchboard routing API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	pool        *pgxpool.Pool
	templates   template.Store
	snapshots   *template.SnapshotCache
	pgTemplates *tplpostgres.Store
	companies   template.CompanyStore
	budget      cost.Aggregator
	analyzer    llmmatch.Analyzer
	alerts      notify.Sink
	traces      diag.Sink
	hub         *wssink.Hub
	router      *router.Router
	metrics     *observe.Metrics

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTemplateStore injects a template store instead of creating one from config.
func WithTemplateStore(s template.Store) Option {
	return func(a *App) { a.templates = s }
}

// WithCompanyStore injects a company store instead of creating one from config.
func WithCompanyStore(s template.CompanyStore) Option {
	return func(a *App) { a.companies = s }
}

// WithBudget injects a spend aggregator instead of creating one from config.
func WithBudget(b cost.Aggregator) Option {
	return func(a *App) { a.budget = b }
}

// WithAnalyzer injects a Tier-3 analyzer instead of building one from the
// configured LLM providers.
func WithAnalyzer(an llmmatch.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// WithAlertSink injects an alert sink instead of building one from config.
func WithAlertSink(s notify.Sink) Option {
	return func(a *App) { a.alerts = s }
}

// WithTraceSink injects a trace sink instead of the log + websocket default.
func WithTraceSink(s diag.Sink) Option {
	return func(a *App) { a.traces = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: storage connection and
// migration, LLM fallback chain assembly, matcher and preprocessing
// construction, and router wiring.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// The router and learner read through a snapshot cache so one turn always
	// sees a single template version; the learner's writeback invalidates it.
	a.snapshots = template.NewSnapshotCache(a.templates)
	a.templates = a.snapshots

	// ── 2. Analyzer (LLM fallback chain) ─────────────────────────────────
	a.initAnalyzer()

	// ── 3. Sinks ─────────────────────────────────────────────────────────
	if err := a.initSinks(); err != nil {
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}

	// ── 4. Router ────────────────────────────────────────────────────────
	if err := a.initRouter(ctx); err != nil {
		return nil, fmt.Errorf("app: init router: %w", err)
	}

	a.metrics = observe.DefaultMetrics()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage connects to PostgreSQL when a DSN is configured and builds the
// template store and cost aggregator on top of it. Without a DSN the server
// runs on in-memory stores, which is fine for development but loses learned
// patterns and spend records on restart.
func (a *App) initStorage(ctx context.Context) error {
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		if a.templates == nil {
			slog.Warn("no postgres_dsn configured — templates and spend records are in-memory only")
			mem := template.NewMemStore()
			a.templates = mem
			a.companies = mem
		}
		if a.budget == nil {
			a.budget = cost.NewMemoryAggregator()
		}
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	if a.templates == nil {
		store := tplpostgres.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.templates = store
		a.pgTemplates = store
		a.companies = store
	}
	if a.budget == nil {
		agg := cost.NewPostgresAggregator(pool)
		if err := agg.Migrate(ctx); err != nil {
			return err
		}
		a.budget = agg
	}
	return nil
}

// initAnalyzer builds the Tier-3 analyzer: the primary LLM wrapped in a
// circuit breaker with the configured fallbacks behind it. Without an LLM
// provider the analyzer stays nil and Tier 3 degrades to llm_unavailable.
func (a *App) initAnalyzer() {
	if a.analyzer != nil || a.providers == nil || a.providers.LLM.Provider == nil {
		return
	}

	chain := resilience.NewLLMFallback(
		a.providers.LLM.Provider,
		a.providers.LLM.Name,
		resilience.BreakerConfig{},
	)
	for _, fb := range a.providers.Fallbacks {
		chain.AddFallback(fb.Name, fb.Provider)
		slog.Info("llm fallback registered", "name", fb.Name)
	}

	a.analyzer = llmmatch.New(chain)
}

// initSinks builds the alert sink (log + optional Discord webhook) and the
// trace sink (log + websocket hub for live dashboards).
func (a *App) initSinks() error {
	if a.alerts == nil {
		sinks := notify.MultiSink{&notify.SlogSink{}}
		if id, token := a.cfg.Alerts.DiscordWebhookID, a.cfg.Alerts.DiscordWebhookToken; id != "" && token != "" {
			ds, err := notify.NewDiscordSink(id, token, slog.Default())
			if err != nil {
				return fmt.Errorf("discord sink: %w", err)
			}
			sinks = append(sinks, ds)
			slog.Info("discord alerts enabled")
		}
		a.alerts = sinks
	}

	if a.traces == nil {
		a.hub = wssink.NewHub(slog.Default())
		a.traces = diag.MultiSink{&diag.SlogSink{}, a.hub}
	}
	return nil
}

// initRouter assembles the matcher, preprocessing pipeline, and cascade
// router from the config and the subsystems built so far.
func (a *App) initRouter(ctx context.Context) error {
	var matchOpts []match.Option
	if w := a.cfg.Matching.Weights; w != (match.Weights{}) {
		matchOpts = append(matchOpts, match.WithWeights(w))
	}
	if p := a.cfg.Matching.BM25; p != (match.BM25Params{}) {
		matchOpts = append(matchOpts, match.WithBM25(p))
	}
	if n := a.cfg.Matching.MaxScenarios; n > 0 {
		matchOpts = append(matchOpts, match.WithMaxScenarios(n))
	}
	if v := a.cfg.Matching.MinConfidenceDefault; v > 0 {
		matchOpts = append(matchOpts, match.WithMinConfidenceDefault(v))
	}

	// Semantic subscore needs both the vector index and an embeddings backend.
	if a.pool != nil && a.providers != nil && a.providers.Embeddings != nil {
		scorer, err := semantic.New(a.pool, a.providers.Embeddings)
		if err != nil {
			return err
		}
		if _, err := a.pool.Exec(ctx, semantic.Schema); err != nil {
			return fmt.Errorf("migrate trigger embeddings: %w", err)
		}
		matchOpts = append(matchOpts, match.WithSemanticScorer(scorer))

		// Keep the embedding index in step with template versions: every
		// snapshot refresh (first load and post-writeback) re-embeds the
		// template off the turn path.
		a.snapshots.OnReplace(func(t *template.Template) {
			go func() {
				idxCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := scorer.IndexTemplate(idxCtx, t); err != nil {
					slog.Warn("trigger embedding update failed", "template", t.ID, "err", err)
				}
			}()
		})

		// Seed the index for templates that already exist and sweep rows left
		// by removed ones.
		if a.pgTemplates != nil {
			go a.reindexTriggers(ctx, scorer)
		}
		slog.Info("semantic scoring enabled")
	}

	matcher := match.New(matchOpts...)

	pipeOpts := []preprocess.Option{
		preprocess.WithNameDictionary(names.New()),
	}
	if d := a.cfg.Routing.StageTimeout(); d > 0 {
		pipeOpts = append(pipeOpts, preprocess.WithStageTimeout(d))
	}
	pipeline := preprocess.New(pipeOpts...)

	routerOpts := []router.Option{
		router.WithCompanyStore(a.companies),
		router.WithOptimizePolicy(optimize.NewMemoryPolicy()),
		router.WithBudget(a.budget),
		router.WithAlertSink(a.alerts),
		router.WithTraceSink(a.traces),
		router.WithConfig(a.routerConfig()),
	}
	if a.analyzer != nil {
		routerOpts = append(routerOpts, router.WithAnalyzer(a.analyzer))
		if a.cfg.Routing.Prewarm {
			routerOpts = append(routerOpts, router.WithPrewarm(prewarm.New(a.analyzer)))
		}
	}

	var learnOpts []learn.Option
	if f := a.cfg.Learning.ConfidenceFloor; f > 0 {
		learnOpts = append(learnOpts, learn.WithConfidenceFloor(f))
	}
	routerOpts = append(routerOpts, router.WithLearner(learn.New(a.templates, learnOpts...)))

	a.router = router.New(a.templates, pipeline, matcher, routerOpts...)
	return nil
}

// reindexTriggers embeds every stored template's triggers and deletes
// embedding rows for templates that no longer exist. It runs in the
// background at startup; failures are logged, never fatal, because the
// matcher degrades the semantic subscore to zero on a cold index.
func (a *App) reindexTriggers(ctx context.Context, scorer *semantic.Scorer) {
	ids, err := a.pgTemplates.ListTemplateIDs(ctx)
	if err != nil {
		slog.Warn("trigger reindex: list templates", "err", err)
		return
	}

	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
		tpl, err := a.pgTemplates.LoadTemplate(ctx, id)
		if err != nil {
			slog.Warn("trigger reindex: load template", "template", id, "err", err)
			continue
		}
		if err := scorer.IndexTemplate(ctx, tpl); err != nil {
			slog.Warn("trigger reindex: index template", "template", id, "err", err)
		}
	}

	indexed, err := scorer.IndexedTemplates(ctx)
	if err != nil {
		slog.Warn("trigger reindex: list indexed", "err", err)
		return
	}
	for _, id := range indexed {
		if keep[id] {
			continue
		}
		if err := scorer.DeleteTemplate(ctx, id); err != nil {
			slog.Warn("trigger reindex: drop stale template", "template", id, "err", err)
		}
	}
	slog.Info("trigger embeddings reindexed", "templates", len(ids))
}

// routerConfig translates the YAML routing/budget sections into the cascade
// configuration. Zero fields fall back to the router's own defaults.
func (a *App) routerConfig() router.Config {
	cfg := router.Config{
		Tier1Threshold:       a.cfg.Routing.Tier1Threshold,
		Tier2Threshold:       a.cfg.Routing.Tier2Threshold,
		DefaultMonthlyBudget: a.cfg.Budget.MonthlyLimitUSD,
	}
	if d := a.cfg.Routing.TotalTimeout(); d > 0 {
		cfg.TotalTimeout = d
	}
	return cfg
}

// Router exposes the cascade router, mainly for tests.
func (a *App) Router() *router.Router { return a.router }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
