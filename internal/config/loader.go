package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; turns the rule tiers miss will be answered with the escalation fallback")
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm to be configured"))
	}

	// Routing thresholds
	if err := checkUnit("routing.tier1_threshold", cfg.Routing.Tier1Threshold); err != nil {
		errs = append(errs, err)
	}
	if err := checkUnit("routing.tier2_threshold", cfg.Routing.Tier2Threshold); err != nil {
		errs = append(errs, err)
	}
	if cfg.Routing.Tier1Threshold > 0 && cfg.Routing.Tier2Threshold > 0 &&
		cfg.Routing.Tier2Threshold > cfg.Routing.Tier1Threshold {
		errs = append(errs, fmt.Errorf("routing.tier2_threshold %.2f must not exceed routing.tier1_threshold %.2f",
			cfg.Routing.Tier2Threshold, cfg.Routing.Tier1Threshold))
	}
	if cfg.Routing.StageTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("routing.stage_timeout_ms %d must not be negative", cfg.Routing.StageTimeoutMs))
	}
	if cfg.Routing.TotalTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("routing.total_timeout_ms %d must not be negative", cfg.Routing.TotalTimeoutMs))
	}

	// Matching
	w := cfg.Matching.Weights
	if sum := w.BM25 + w.Semantic + w.Regex + w.Context; sum != 0 && math.Abs(sum-1.0) > 0.001 {
		errs = append(errs, fmt.Errorf("matching.weights must sum to 1.0, got %.3f", sum))
	}
	if w.BM25 < 0 || w.Semantic < 0 || w.Regex < 0 || w.Context < 0 {
		errs = append(errs, errors.New("matching.weights must not be negative"))
	}
	if cfg.Matching.MaxScenarios < 0 {
		errs = append(errs, fmt.Errorf("matching.max_scenarios %d must not be negative", cfg.Matching.MaxScenarios))
	}
	if err := checkUnit("matching.min_confidence_default", cfg.Matching.MinConfidenceDefault); err != nil {
		errs = append(errs, err)
	}

	// Budget and learning
	if cfg.Budget.MonthlyLimitUSD < 0 {
		errs = append(errs, fmt.Errorf("budget.monthly_limit_usd %.2f must not be negative", cfg.Budget.MonthlyLimitUSD))
	}
	if err := checkUnit("learning.confidence_floor", cfg.Learning.ConfidenceFloor); err != nil {
		errs = append(errs, err)
	}

	// Storage cross-checks
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("providers.embeddings requires storage.postgres_dsn for the trigger index"))
	}

	// Alerts: both halves of the webhook credential or neither.
	if (cfg.Alerts.DiscordWebhookID == "") != (cfg.Alerts.DiscordWebhookToken == "") {
		errs = append(errs, errors.New("alerts.discord_webhook_id and alerts.discord_webhook_token must be set together"))
	}

	return errors.Join(errs...)
}

// checkUnit validates that v, when set, lies in (0, 1].
func checkUnit(field string, v float64) error {
	if v == 0 {
		return nil
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("%s %.3f is out of range (0, 1]", field, v)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
