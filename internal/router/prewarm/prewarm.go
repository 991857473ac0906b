// Package prewarm starts speculative Tier-3 analyses while the rule tiers are
// still scoring. A warm result with high confidence can be adopted the moment
// the rule tiers miss, hiding most of the LLM latency; a Tier-2 accept cancels
// the speculation and a late result is discarded.
//
// Concurrent speculations for the same company and utterance are deduplicated
// with singleflight so a burst of identical turns costs one LLM call.
package prewarm

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openclerk/switchboard/internal/llmmatch"
)

// DefaultTimeout bounds one speculative analysis.
const DefaultTimeout = 4 * time.Second

// ErrCancelled is returned by [Handle.Wait] after [Handle.Cancel].
var ErrCancelled = errors.New("prewarm: cancelled")

// Warmer runs speculative analyses. Safe for concurrent use.
type Warmer struct {
	analyzer llmmatch.Analyzer
	timeout  time.Duration
	flights  singleflight.Group
}

// Option is a functional option for [Warmer].
type Option func(*Warmer)

// WithTimeout bounds each speculative analysis. Default 4s.
func WithTimeout(d time.Duration) Option {
	return func(w *Warmer) { w.timeout = d }
}

// New constructs a Warmer over the given analyzer.
func New(analyzer llmmatch.Analyzer, opts ...Option) *Warmer {
	w := &Warmer{analyzer: analyzer, timeout: DefaultTimeout}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Handle tracks one speculation. Cancel and Wait may be called from different
// goroutines; both are safe to call more than once.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	result *llmmatch.Result
	err    error
}

// Start launches a speculative analysis keyed by key (conventionally
// "<companyID>|<normalized utterance>"). The analysis outlives the caller's
// ctx cancellation scope — only [Handle.Cancel] or the warmer timeout stop it —
// so a turn that finishes fast does not kill a flight another turn shares.
func (w *Warmer) Start(ctx context.Context, key string, req llmmatch.Request) *Handle {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)

	ch := w.flights.DoChan(key, func() (any, error) {
		defer cancel()
		return w.analyzer.Analyze(runCtx, req)
	})

	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		res := <-ch
		if res.Err != nil {
			h.err = res.Err
			if errors.Is(res.Err, context.Canceled) {
				h.err = ErrCancelled
			}
		} else {
			h.result = res.Val.(*llmmatch.Result)
		}
		close(h.done)
	}()
	return h
}

// Cancel abandons the speculation. The flight it initiated is stopped; a
// deduplicated follower sharing the flight observes the cancellation error and
// falls back to a regular Tier-3 call.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the speculation finishes, the handle is cancelled, or ctx
// expires. It may be called repeatedly; the outcome is sticky.
func (h *Handle) Wait(ctx context.Context) (*llmmatch.Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
