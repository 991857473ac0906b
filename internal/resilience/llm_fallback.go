package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openclerk/switchboard/pkg/provider/llm"
)

// ErrAllFailed is returned when every backend in an [LLMFallback] fails or
// has an open breaker.
var ErrAllFailed = errors.New("resilience: all llm backends failed")

// backend pairs an LLM provider with its dedicated breaker.
type backend struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

// LLMFallback implements [llm.Provider] with failover across several
// backends, tried in registration order. Each backend sits behind its own
// [Breaker], so one flaky provider degrades a turn to a slower answer instead
// of a missed one.
type LLMFallback struct {
	backends []backend
	cfg      BreakerConfig
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend. cfg tunes the per-backend breakers; its Name field is ignored.
func NewLLMFallback(primary llm.Provider, name string, cfg BreakerConfig) *LLMFallback {
	f := &LLMFallback{cfg: cfg}
	f.add(name, primary)
	return f
}

// AddFallback appends a backend tried after all previously registered ones.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.add(name, provider)
}

func (f *LLMFallback) add(name string, provider llm.Provider) {
	cfg := f.cfg
	cfg.Name = name
	f.backends = append(f.backends, backend{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(cfg),
	})
}

// attempt walks the chain until fn succeeds against an admitted backend.
// A canceled context stops the walk: the caller hung up, so trying further
// backends would only burn tokens on an answer nobody hears.
func (f *LLMFallback) attempt(fn func(llm.Provider) error) error {
	var lastErr error
	for i := range f.backends {
		be := &f.backends[i]
		err := be.breaker.Do(func() error { return fn(be.provider) })
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping llm backend, breaker open", "backend", be.name)
		} else {
			slog.Warn("llm backend failed, trying next",
				"backend", be.name, "err", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Complete sends the request to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := f.attempt(func(p llm.Provider) error {
		var err error
		resp, err = p.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CountTokens delegates to the first healthy backend's token counter.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	var count int
	err := f.attempt(func(p llm.Provider) error {
		var err error
		count, err = p.CountTokens(messages)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ModelID returns the primary's model identifier. Cost records attribute
// spend to the preferred model even when a fallback served the call.
func (f *LLMFallback) ModelID() string {
	return f.backends[0].provider.ModelID()
}
