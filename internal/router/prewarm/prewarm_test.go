package prewarm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openclerk/switchboard/internal/llmmatch"
	"github.com/openclerk/switchboard/internal/template"
)

// scriptAnalyzer returns canned results and counts calls.
type scriptAnalyzer struct {
	calls  atomic.Int64
	result *llmmatch.Result
	err    error

	// delay simulates LLM latency; the analyzer honors ctx cancellation.
	delay time.Duration
}

func (s *scriptAnalyzer) Analyze(ctx context.Context, _ llmmatch.Request) (*llmmatch.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func warmRequest() llmmatch.Request {
	return llmmatch.Request{
		Utterance: "my heater is broken",
		Scenarios: []template.Scenario{{ID: "sc-heating", Triggers: []string{"no heat"}}},
	}
}

func TestWarmer_DeliversResult(t *testing.T) {
	a := &scriptAnalyzer{result: &llmmatch.Result{Success: true, Matched: true, ScenarioID: "sc-heating", Confidence: 0.95}}
	w := New(a)

	h := w.Start(context.Background(), "co-1|my heater is broken", warmRequest())
	res, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.ScenarioID != "sc-heating" || res.Confidence != 0.95 {
		t.Fatalf("result = %+v", res)
	}
}

func TestWarmer_WaitIsSticky(t *testing.T) {
	a := &scriptAnalyzer{result: &llmmatch.Result{Success: true, ScenarioID: "sc-heating"}}
	w := New(a)

	h := w.Start(context.Background(), "k", warmRequest())
	first, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	second, err := h.Wait(context.Background())
	if err != nil || second != first {
		t.Fatalf("second Wait = %v/%v, want the same outcome", second, err)
	}
	if got := a.calls.Load(); got != 1 {
		t.Fatalf("analyzer calls = %d, want 1", got)
	}
}

func TestWarmer_CancelStopsFlight(t *testing.T) {
	a := &scriptAnalyzer{
		delay:  5 * time.Second,
		result: &llmmatch.Result{Success: true},
	}
	w := New(a)

	h := w.Start(context.Background(), "k", warmRequest())
	h.Cancel()
	h.Cancel() // idempotent

	res, err := h.Wait(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Wait after cancel = %v/%v, want ErrCancelled", res, err)
	}
}

func TestWarmer_TimeoutCancelsAnalysis(t *testing.T) {
	a := &scriptAnalyzer{
		delay:  time.Second,
		result: &llmmatch.Result{Success: true},
	}
	w := New(a, WithTimeout(20*time.Millisecond))

	h := w.Start(context.Background(), "k", warmRequest())
	_, err := h.Wait(context.Background())
	if err == nil {
		t.Fatal("a timed-out speculation must report an error")
	}
}

func TestWarmer_DeduplicatesConcurrentFlights(t *testing.T) {
	a := &scriptAnalyzer{
		delay:  50 * time.Millisecond,
		result: &llmmatch.Result{Success: true, ScenarioID: "sc-heating"},
	}
	w := New(a)

	h1 := w.Start(context.Background(), "co-1|same utterance", warmRequest())
	h2 := w.Start(context.Background(), "co-1|same utterance", warmRequest())

	r1, err1 := h1.Wait(context.Background())
	r2, err2 := h2.Wait(context.Background())
	if err1 != nil || err2 != nil {
		t.Fatalf("Wait: %v / %v", err1, err2)
	}
	if r1.ScenarioID != "sc-heating" || r2.ScenarioID != "sc-heating" {
		t.Fatalf("results = %+v / %+v", r1, r2)
	}
	if got := a.calls.Load(); got != 1 {
		t.Fatalf("analyzer calls = %d, want deduplicated to 1", got)
	}
}

func TestWarmer_OutlivesCallerContext(t *testing.T) {
	a := &scriptAnalyzer{
		delay:  30 * time.Millisecond,
		result: &llmmatch.Result{Success: true, ScenarioID: "sc-heating"},
	}
	w := New(a)

	callerCtx, cancelCaller := context.WithCancel(context.Background())
	h := w.Start(callerCtx, "k", warmRequest())
	cancelCaller()

	res, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v — the flight must not die with the caller's ctx", err)
	}
	if res.ScenarioID != "sc-heating" {
		t.Fatalf("result = %+v", res)
	}
}

func TestHandle_WaitHonorsWaiterContext(t *testing.T) {
	a := &scriptAnalyzer{
		delay:  time.Second,
		result: &llmmatch.Result{Success: true},
	}
	w := New(a)

	h := w.Start(context.Background(), "k", warmRequest())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want the waiter's deadline error", err)
	}
	h.Cancel()
}
