// Package health serves the liveness and readiness probes.
//
//   - /healthz answers 200 whenever the process can serve HTTP, and reports
//     how long it has been up.
//   - /readyz runs every registered [Checker] concurrently and answers 200
//     only when all of them pass.
//
// Responses are JSON with a top-level "status" field ("ok" or "fail");
// readiness responses add a per-check map with each check's outcome and
// elapsed time. Routing itself degrades rather than fails, so readiness here
// means the optional dependencies (Postgres, providers) are reachable.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout caps a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is healthy; it must respect context cancellation.
type Checker struct {
	// Name keys the check in the JSON response ("postgres", "providers").
	Name string

	Check func(ctx context.Context) error
}

// checkResult is one check's entry in the readiness response.
type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

type payload struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime,omitempty"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction; the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New creates a [Handler] over the given checkers.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c, started: time.Now()}
}

// Healthz is the liveness probe. A process that reaches this handler is
// alive, so it always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, payload{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz runs every checker concurrently, each under its own [checkTimeout],
// and answers 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make([]checkResult, len(h.checkers))

	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.Check(ctx)
			elapsed := time.Since(start).Round(time.Millisecond).String()

			if err != nil {
				results[i] = checkResult{Status: "fail", Error: err.Error(), Elapsed: elapsed}
				return err
			}
			results[i] = checkResult{Status: "ok", Elapsed: elapsed}
			return nil
		})
	}
	err := g.Wait()

	res := payload{Status: "ok", Checks: make(map[string]checkResult, len(h.checkers))}
	for i, c := range h.checkers {
		res.Checks[c.Name] = results[i]
	}

	status := http.StatusOK
	if err != nil {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
