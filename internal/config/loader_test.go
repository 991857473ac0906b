package config

import (
	"strings"
	"testing"
)

// TestLoadFromReaderValid parses a full configuration and checks a few fields
// survived the round trip.
func TestLoadFromReaderValid(t *testing.T) {
	t.Parallel()

	const doc = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallbacks:
    - name: anthropic
      api_key: sk-ant
      model: claude-haiku
  embeddings:
    name: openai
    api_key: sk-test
    model: text-embedding-3-small
routing:
  tier1_threshold: 0.80
  tier2_threshold: 0.60
  stage_timeout_ms: 50
  total_timeout_ms: 5000
  prewarm: true
matching:
  weights:
    bm25: 0.40
    semantic: 0.30
    regex: 0.20
    context: 0.10
  bm25:
    k1: 1.5
    b: 0.75
  max_scenarios: 1000
  min_confidence_default: 0.45
budget:
  monthly_limit_usd: 500
learning:
  confidence_floor: 0.75
storage:
  postgres_dsn: "postgres://localhost/switchboard"
  embedding_dimensions: 1536
`

	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Routing.Tier1Threshold != 0.80 {
		t.Errorf("tier1_threshold = %v, want 0.80", cfg.Routing.Tier1Threshold)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "anthropic" {
		t.Errorf("llm_fallbacks = %+v, want one anthropic entry", cfg.Providers.LLMFallbacks)
	}
	if got := cfg.Matching.Weights.BM25; got != 0.40 {
		t.Errorf("weights.bm25 = %v, want 0.40", got)
	}
	if cfg.Routing.TotalTimeout().Milliseconds() != 5000 {
		t.Errorf("TotalTimeout = %v, want 5s", cfg.Routing.TotalTimeout())
	}
}

// TestLoadFromReaderUnknownField rejects configs with fields the schema does
// not know, catching typos early.
func TestLoadFromReaderUnknownField(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("server:\n  listne_addr: \":8080\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// TestValidateCollectsAllErrors confirms Validate reports every failure, not
// just the first.
func TestValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Routing.Tier1Threshold = 0.5
	cfg.Routing.Tier2Threshold = 0.7 // exceeds tier 1
	cfg.Matching.Weights.BM25 = 0.9  // sums to 0.9
	cfg.Budget.MonthlyLimitUSD = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{"log_level", "tier2_threshold", "weights", "monthly_limit_usd"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

// TestValidateWebhookHalves rejects a Discord webhook ID without its token.
func TestValidateWebhookHalves(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Alerts.DiscordWebhookID = "123"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for webhook id without token")
	}
}

// TestValidateEmbeddingsRequireDSN requires a Postgres DSN when embeddings
// are configured, since the trigger index lives there.
func TestValidateEmbeddingsRequireDSN(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Providers.Embeddings.Name = "openai"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for embeddings without postgres_dsn")
	}
}

// TestRegistryCreate registers a factory and resolves it by name.
func TestRegistryCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.CreateLLM(ProviderEntry{Name: "openai"}); err == nil {
		t.Fatal("expected ErrProviderNotRegistered for empty registry")
	}
}
