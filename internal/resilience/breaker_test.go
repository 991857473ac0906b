package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failing() error { return errBackend }
func healthy() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Trip: 3})

	for i := 0; i < 2; i++ {
		if err := b.Do(failing); !errors.Is(err, errBackend) {
			t.Fatalf("Do = %v, want backend error", err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", got)
	}

	if err := b.Do(failing); !errors.Is(err, errBackend) {
		t.Fatalf("Do = %v, want backend error", err)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after 3 failures = %v, want open", got)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Do on open breaker = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Fatal("open breaker must not call fn")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Trip: 2})

	_ = b.Do(failing)
	_ = b.Do(healthy)
	_ = b.Do(failing)

	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed (success resets the streak)", got)
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := NewBreaker(BreakerConfig{Trip: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 1})

	_ = b.Do(failing)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(15 * time.Millisecond)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", got)
	}

	if err := b.Do(healthy); err != nil {
		t.Fatalf("probe Do = %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after successful probe = %v, want closed", got)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{Trip: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 1})

	_ = b.Do(failing)
	time.Sleep(15 * time.Millisecond)

	if err := b.Do(failing); !errors.Is(err, errBackend) {
		t.Fatalf("probe Do = %v, want backend error", err)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}
	if err := b.Do(healthy); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Do after reopen = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_CanceledCallsDoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{Trip: 1})

	// Caller hangups surface as context.Canceled and say nothing about the
	// backend, so they never open the breaker.
	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return context.Canceled })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do = %v, want context.Canceled", err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after canceled calls = %v, want closed", got)
	}

	_ = b.Do(failing)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after real failure = %v, want open", got)
	}
}

func TestBreaker_CanceledProbeReturnsSlot(t *testing.T) {
	b := NewBreaker(BreakerConfig{Trip: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 1})

	_ = b.Do(failing)
	time.Sleep(15 * time.Millisecond)

	// The canceled probe neither closes nor reopens, and its slot is handed
	// back so the next call still probes.
	_ = b.Do(func() error { return context.Canceled })
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after canceled probe = %v, want half-open", got)
	}

	if err := b.Do(healthy); err != nil {
		t.Fatalf("follow-up probe Do = %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Trip: 1})

	_ = b.Do(failing)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	b.Reset()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after Reset = %v, want closed", got)
	}
	if err := b.Do(healthy); err != nil {
		t.Fatalf("Do after Reset = %v", err)
	}
}

func TestState_String(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
