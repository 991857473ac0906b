// Package optimize implements the pre-LLM short-circuit policy: before the
// router pays for a Tier-3 call it asks the policy whether a cached response
// or a proven scenario can serve the turn instead.
//
// The contract is the only fixed part. The bundled [MemoryPolicy] keeps a
// proven-path table and a response cache in process; deployments can plug in
// anything that satisfies [Policy]. The router treats an unreachable policy
// as "use the LLM".
package optimize

import (
	"context"
	"strings"
	"sync"

	"github.com/openclerk/switchboard/pkg/types"
)

// Decision is the policy's answer for one turn.
type Decision struct {
	// UseLLM is true when the turn should proceed to Tier 3.
	UseLLM bool

	// Reason explains the decision in traces ("no_cache", "proven_path",
	// "cached_response").
	Reason string

	// ForcedScenarioID, when set with UseLLM=false, routes the turn to a
	// known-good scenario at fixed confidence without an LLM call.
	ForcedScenarioID string

	// CachedResponse, when set with UseLLM=false, is spoken verbatim.
	CachedResponse string
}

// Policy decides whether a Tier-3 LLM call is needed for an utterance.
// Implementations must be safe for concurrent use.
type Policy interface {
	ShouldUseLLM(ctx context.Context, utterance string, convCtx *types.Context) (Decision, error)
}

// AlwaysLLM is a Policy that never short-circuits.
type AlwaysLLM struct{}

var _ Policy = AlwaysLLM{}

// ShouldUseLLM implements [Policy].
func (AlwaysLLM) ShouldUseLLM(context.Context, string, *types.Context) (Decision, error) {
	return Decision{UseLLM: true, Reason: "always"}, nil
}

// MemoryPolicy is an in-process [Policy] with two tables:
//
//   - proven paths: utterance → scenario ID, recorded when Tier 3 repeatedly
//     resolved the same utterance to the same scenario
//   - response cache: utterance → exact reply text
//
// Lookups are keyed by the normalized utterance. A forced-scenario hit wins
// over a cached response.
type MemoryPolicy struct {
	mu     sync.RWMutex
	proven map[string]string
	cached map[string]string
}

var _ Policy = (*MemoryPolicy)(nil)

// NewMemoryPolicy creates an empty policy.
func NewMemoryPolicy() *MemoryPolicy {
	return &MemoryPolicy{
		proven: make(map[string]string),
		cached: make(map[string]string),
	}
}

// ShouldUseLLM implements [Policy].
func (p *MemoryPolicy) ShouldUseLLM(_ context.Context, utterance string, convCtx *types.Context) (Decision, error) {
	// A forced scenario carried in the conversation context wins outright.
	if convCtx != nil && convCtx.ForcedScenarioID != "" {
		return Decision{Reason: "context_forced", ForcedScenarioID: convCtx.ForcedScenarioID}, nil
	}

	key := normalize(utterance)
	p.mu.RLock()
	defer p.mu.RUnlock()

	if id, ok := p.proven[key]; ok {
		return Decision{Reason: "proven_path", ForcedScenarioID: id}, nil
	}
	if reply, ok := p.cached[key]; ok {
		return Decision{Reason: "cached_response", CachedResponse: reply}, nil
	}
	return Decision{UseLLM: true, Reason: "no_cache"}, nil
}

// RecordProvenPath remembers that utterance resolves to scenarioID.
func (p *MemoryPolicy) RecordProvenPath(utterance, scenarioID string) {
	if scenarioID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proven[normalize(utterance)] = scenarioID
}

// CacheResponse remembers the exact reply for utterance.
func (p *MemoryPolicy) CacheResponse(utterance, reply string) {
	if reply == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached[normalize(utterance)] = reply
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
