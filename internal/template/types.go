// Package template defines the tenant configuration model for Switchboard:
// versioned [Template] bundles of response [Scenario]s and language assets,
// per-tenant [Company] profiles, and the learning [Pattern]s promoted back into
// a template by the LLM tier.
//
// Templates and companies are long-lived, read-mostly values. The router works
// on immutable snapshots for the duration of a turn; all mutation goes through
// a [Store] with optimistic concurrency on the template version.
package template

import "time"

// Status is the lifecycle state of a scenario. Only live scenarios are
// eligible for matching.
type Status string

const (
	StatusLive     Status = "live"
	StatusDraft    Status = "draft"
	StatusDisabled Status = "disabled"
)

// IsValid reports whether s is a recognised scenario status.
func (s Status) IsValid() bool {
	switch s {
	case StatusLive, StatusDraft, StatusDisabled:
		return true
	}
	return false
}

// MatchMode selects how a vocabulary correction is located in the text.
type MatchMode string

const (
	// MatchExact replaces whole-word occurrences only.
	MatchExact MatchMode = "EXACT"

	// MatchContains replaces any substring occurrence.
	MatchContains MatchMode = "CONTAINS"
)

// IsValid reports whether m is a recognised match mode.
func (m MatchMode) IsValid() bool {
	return m == MatchExact || m == MatchContains
}

// Scenario is a single response unit: the phrases that trigger it, the
// phrases that disqualify it, and the replies it produces.
type Scenario struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Categories []string `yaml:"categories" json:"categories"`

	// Triggers are positive trigger phrases. A normalized utterance equal to
	// a normalized trigger bypasses scoring entirely.
	Triggers []string `yaml:"triggers" json:"triggers"`

	// NegativeTriggers disqualify the scenario when any of them appears as a
	// substring of the normalized utterance, regardless of other signals.
	NegativeTriggers []string `yaml:"negative_triggers" json:"negative_triggers"`

	// RegexTriggers are case-insensitive regular expressions; any match
	// yields a full regex subscore. Invalid patterns are logged and skipped.
	RegexTriggers []string `yaml:"regex_triggers" json:"regex_triggers"`

	// Priority breaks score ties; higher wins.
	Priority int `yaml:"priority" json:"priority"`

	// MinConfidence is a per-scenario acceptance floor in (0,1] enforced at
	// every tier. Zero means unset.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// ConfidenceThreshold overrides the template's default acceptance
	// threshold for this scenario. Zero means unset.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`

	Status   Status   `yaml:"status" json:"status"`
	Language string   `yaml:"language" json:"language"`
	Channels []string `yaml:"channels" json:"channels"`

	// CooldownSeconds suppresses re-matching this scenario for the given
	// number of seconds after it fires. Zero means no cooldown.
	CooldownSeconds int `yaml:"cooldown_seconds" json:"cooldown_seconds"`

	QuickReplies []string `yaml:"quick_replies" json:"quick_replies"`
	FullReplies  []string `yaml:"full_replies" json:"full_replies"`

	// Preconditions are key=value requirements over the conversation state.
	// All must hold for the scenario to be accepted.
	Preconditions map[string]string `yaml:"preconditions" json:"preconditions"`
}

// Cooldown returns the scenario cooldown as a duration.
func (s *Scenario) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// HasCategory reports whether the scenario carries category (case-sensitive,
// categories are stored lowercase by convention).
func (s *Scenario) HasCategory(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Reply returns the reply text the router should speak for this scenario:
// the first full reply, else the first quick reply, else "" (no usable reply).
func (s *Scenario) Reply() string {
	if len(s.FullReplies) > 0 {
		return s.FullReplies[0]
	}
	if len(s.QuickReplies) > 0 {
		return s.QuickReplies[0]
	}
	return ""
}

// UrgencyKeyword is one entry of the urgency table: a word, its additive
// weight, and the scenario category it boosts.
type UrgencyKeyword struct {
	Word     string  `yaml:"word" json:"word"`
	Weight   float64 `yaml:"weight" json:"weight"`
	Category string  `yaml:"category" json:"category"`
}

// VocabCorrection is a single vocabulary normalization rule applied by the
// preprocessor. Corrections run in ascending Priority order.
type VocabCorrection struct {
	From     string    `yaml:"from" json:"from"`
	To       string    `yaml:"to" json:"to"`
	Mode     MatchMode `yaml:"mode" json:"mode"`
	Priority int       `yaml:"priority" json:"priority"`
}

// ContextPattern adds component tokens to the expanded token set when all of
// its pattern words are present in the utterance. Higher-priority patterns
// are evaluated first.
type ContextPattern struct {
	Pattern       []string `yaml:"pattern" json:"pattern"`
	Component     string   `yaml:"component" json:"component"`
	ContextTokens []string `yaml:"context_tokens" json:"context_tokens"`
	Priority      int      `yaml:"priority" json:"priority"`
	Confidence    float64  `yaml:"confidence" json:"confidence"`
}

// EntityPattern is a template-configured custom entity extractor.
type EntityPattern struct {
	// Name keys the extracted value in [types.Entities].Custom.
	Name string `yaml:"name" json:"name"`

	// Regex is the extraction pattern; the first capture group (or the whole
	// match when there is none) becomes the entity value.
	Regex string `yaml:"regex" json:"regex"`
}

// Template is a versioned bundle of scenarios and language assets for one
// tenant. Version increments on every write; writers must present the version
// they read (optimistic concurrency).
type Template struct {
	ID      string `yaml:"id" json:"id"`
	Version int64  `yaml:"version" json:"version"`

	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`

	// Fillers are template-level filler words removed during preprocessing.
	Fillers []string `yaml:"fillers" json:"fillers"`

	// CategoryFillers holds additional fillers per scenario category.
	CategoryFillers map[string][]string `yaml:"category_fillers" json:"category_fillers"`

	// Urgency is the urgency-keyword table (word → weight, category).
	Urgency []UrgencyKeyword `yaml:"urgency" json:"urgency"`

	// Synonyms maps a canonical technical term to its spoken aliases.
	Synonyms map[string][]string `yaml:"synonyms" json:"synonyms"`

	// CategorySynonyms holds per-category synonym maps whose aliases are
	// appended to the template-level entries during preprocessing.
	CategorySynonyms map[string]map[string][]string `yaml:"category_synonyms" json:"category_synonyms"`

	// IntentKeywords overrides the built-in keyword sets per intent name
	// (e.g. "BOOK" → ["schedule a visit", "book an appointment"]).
	IntentKeywords map[string][]string `yaml:"intent_keywords" json:"intent_keywords"`

	VocabCorrections []VocabCorrection `yaml:"vocab_corrections" json:"vocab_corrections"`
	ContextPatterns  []ContextPattern  `yaml:"context_patterns" json:"context_patterns"`
	EntityPatterns   []EntityPattern   `yaml:"entity_patterns" json:"entity_patterns"`

	// SlotQuestions maps slot names (name, phone, address, time) to the exact
	// question the style renderer asks for that slot.
	SlotQuestions map[string]string `yaml:"slot_questions" json:"slot_questions"`

	// Tier1Threshold and Tier2Threshold are per-template acceptance gates.
	// Zero means use the configured defaults (0.80 / 0.60).
	Tier1Threshold float64 `yaml:"tier1_threshold" json:"tier1_threshold"`
	Tier2Threshold float64 `yaml:"tier2_threshold" json:"tier2_threshold"`

	// MinConfidenceDefault is the template-wide candidate acceptance floor.
	// Zero means use the configured default (0.45).
	MinConfidenceDefault float64 `yaml:"min_confidence_default" json:"min_confidence_default"`

	// MonthlyBudget caps Tier-3 LLM spend per calendar month (USD). Zero
	// means use the configured default.
	MonthlyBudget float64 `yaml:"monthly_budget" json:"monthly_budget"`
}

// Scenario returns the scenario with the given ID, or nil when absent.
func (t *Template) Scenario(id string) *Scenario {
	for i := range t.Scenarios {
		if t.Scenarios[i].ID == id {
			return &t.Scenarios[i]
		}
	}
	return nil
}

// LiveScenarios returns the scenarios with [StatusLive], preserving order.
func (t *Template) LiveScenarios() []Scenario {
	out := make([]Scenario, 0, len(t.Scenarios))
	for _, s := range t.Scenarios {
		if s.Status == StatusLive {
			out = append(out, s)
		}
	}
	return out
}

// BehaviorMode selects how strictly the behavior engine follows configured
// rules versus adapting tone to detected signals.
type BehaviorMode string

const (
	BehaviorHybrid BehaviorMode = "HYBRID"
	BehaviorStrict BehaviorMode = "STRICT"
)

// IsValid reports whether m is a recognised behavior mode.
func (m BehaviorMode) IsValid() bool {
	return m == BehaviorHybrid || m == BehaviorStrict
}

// TradeKeywords holds trade-specific keyword overrides merged over the global
// lists before signal detection (e.g. plumbing vs HVAC emergencies).
type TradeKeywords struct {
	Emergency       []string `yaml:"emergency" json:"emergency"`
	BillingConflict []string `yaml:"billing_conflict" json:"billing_conflict"`
	Joke            []string `yaml:"joke" json:"joke"`
}

// BehaviorProfile configures the behavior engine for one company.
type BehaviorProfile struct {
	Mode BehaviorMode `yaml:"mode" json:"mode"`

	// HumorLevel, EmpathyLevel, and DirectnessLevel are in [0,1].
	HumorLevel      float64 `yaml:"humor_level" json:"humor_level"`
	EmpathyLevel    float64 `yaml:"empathy_level" json:"empathy_level"`
	DirectnessLevel float64 `yaml:"directness_level" json:"directness_level"`

	EmergencyKeywords       []string `yaml:"emergency_keywords" json:"emergency_keywords"`
	BillingConflictKeywords []string `yaml:"billing_conflict_keywords" json:"billing_conflict_keywords"`
	JokeKeywords            []string `yaml:"joke_keywords" json:"joke_keywords"`

	// TradeOverrides merges trade-specific keywords over the global lists,
	// keyed by trade name (e.g. "plumbing").
	TradeOverrides map[string]TradeKeywords `yaml:"trade_overrides" json:"trade_overrides"`

	// Rules are free-text cheat-sheet behavior rules surfaced in style
	// instructions.
	Rules []string `yaml:"rules" json:"rules"`
}

// Company is the per-tenant profile overlaid on a template.
type Company struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	// Trade identifies the company's trade for keyword overrides.
	Trade string `yaml:"trade" json:"trade"`

	// CustomFillers extends the filler set for this company's calls.
	CustomFillers []string `yaml:"custom_fillers" json:"custom_fillers"`

	// Variables are substitution values available to reply templates.
	Variables map[string]string `yaml:"variables" json:"variables"`

	Behavior BehaviorProfile `yaml:"behavior" json:"behavior"`

	// ConversationStyle selects the acknowledgment register:
	// "confident", "balanced", or "polite".
	ConversationStyle string `yaml:"conversation_style" json:"conversation_style"`

	// AckOverrides replaces the built-in acknowledgment variants per style
	// key when configured through the admin UI.
	AckOverrides map[string][]string `yaml:"ack_overrides" json:"ack_overrides"`
}
