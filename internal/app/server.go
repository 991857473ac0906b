package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openclerk/switchboard/internal/health"
	"github.com/openclerk/switchboard/internal/observe"
	"github.com/openclerk/switchboard/pkg/types"
)

// routeRequest is the wire form of one routing call. TemplateID and Text are
// required; everything else is optional conversation state supplied by the
// telephony adapter.
type routeRequest struct {
	Text       string `json:"text"`
	CallID     string `json:"call_id"`
	TurnIndex  int    `json:"turn_index"`
	TemplateID string `json:"template_id"`
	CompanyID  string `json:"company_id"`

	Context *routeContext `json:"context,omitempty"`
}

// routeContext mirrors types.Context on the wire.
type routeContext struct {
	LastIntent         string               `json:"last_intent,omitempty"`
	LastScenarioID     string               `json:"last_scenario_id,omitempty"`
	Slots              map[string]string    `json:"slots,omitempty"`
	State              map[string]string    `json:"state,omitempty"`
	Cooldowns          map[string]time.Time `json:"cooldowns,omitempty"`
	PreferredScenarios []string             `json:"preferred_scenarios,omitempty"`
	ForcedScenarioID   string               `json:"forced_scenario_id,omitempty"`
}

// routeResponse is the wire form of a routed turn.
type routeResponse struct {
	Tier            int     `json:"tier"`
	ScenarioID      string  `json:"scenario_id,omitempty"`
	Confidence      float64 `json:"confidence"`
	Reply           string  `json:"reply"`
	SelectionReason string  `json:"selection_reason"`
	Intent          string  `json:"intent"`
	Tone            string  `json:"tone"`
	NeedsClarifier  bool    `json:"needs_clarifier,omitempty"`
	ShouldReprompt  bool    `json:"should_reprompt,omitempty"`
	PatternsLearned int     `json:"patterns_learned,omitempty"`
	Tokens          int     `json:"tokens,omitempty"`
	CostUSD         float64 `json:"cost_usd,omitempty"`
	ErrorCode       string  `json:"error_code,omitempty"`
}

// Handler builds the HTTP routing surface:
//
//   - GET  /healthz          — liveness
//   - GET  /readyz           — readiness (storage ping)
//   - GET  /metrics          — Prometheus scrape endpoint
//   - POST /v1/route         — route one caller turn
//   - GET  /v1/trace/stream  — live trace envelopes over websocket
//
// All routes run behind the observability middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	checkers := []health.Checker{}
	if a.pool != nil {
		pool := a.pool
		checkers = append(checkers, health.Checker{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/route", a.handleRoute)
	if a.hub != nil {
		mux.Handle("GET /v1/trace/stream", a.hub)
	}

	return observe.Middleware(a.metrics)(mux)
}

// handleRoute decodes one turn, routes it through the cascade, and writes the
// outcome. Routing itself never fails; only malformed requests get a non-200.
func (a *App) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.TemplateID == "" {
		httpError(w, http.StatusBadRequest, "template_id is required")
		return
	}
	if req.Text == "" {
		httpError(w, http.StatusBadRequest, "text is required")
		return
	}

	turn := types.Turn{
		RawText:    req.Text,
		CallID:     req.CallID,
		TurnIndex:  req.TurnIndex,
		Timestamp:  time.Now(),
		TemplateID: req.TemplateID,
		CompanyID:  req.CompanyID,
	}
	if c := req.Context; c != nil {
		turn.Context = &types.Context{
			LastIntent:         c.LastIntent,
			LastScenarioID:     c.LastScenarioID,
			Slots:              c.Slots,
			State:              c.State,
			Cooldowns:          c.Cooldowns,
			PreferredScenarios: c.PreferredScenarios,
			ForcedScenarioID:   c.ForcedScenarioID,
		}
	}

	ctx := r.Context()
	a.metrics.ActiveCalls.Add(ctx, 1)
	defer a.metrics.ActiveCalls.Add(ctx, -1)

	start := time.Now()
	rt := a.router.Route(ctx, turn)
	a.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	a.metrics.RecordTierHit(ctx, fmt.Sprint(rt.Tier), rt.SelectionReason)
	if rt.Tokens > 0 || rt.CostUSD > 0 {
		a.metrics.RecordLLMUsage(ctx, req.TemplateID, rt.Tokens, rt.CostUSD)
	}
	if rt.ErrorCode != "" {
		a.metrics.RecordRoutingError(ctx, rt.ErrorCode)
	}

	resp := routeResponse{
		Tier:            rt.Tier,
		Confidence:      rt.Confidence,
		Reply:           rt.Reply,
		SelectionReason: rt.SelectionReason,
		Intent:          rt.Intent.String(),
		Tone:            string(rt.Tone),
		NeedsClarifier:  rt.NeedsClarifier,
		ShouldReprompt:  rt.ShouldReprompt,
		PatternsLearned: rt.PatternsLearned,
		Tokens:          rt.Tokens,
		CostUSD:         rt.CostUSD,
		ErrorCode:       rt.ErrorCode,
	}
	if rt.Scenario != nil {
		resp.ScenarioID = rt.Scenario.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// Run serves the routing API until ctx is cancelled, then drains in-flight
// requests. It returns context.Canceled on a clean signal-driven stop.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("app: drain: %w", err)
	}
	return ctx.Err()
}

// httpError writes a JSON error body with the given status.
func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode error", "err", err)
	}
}
