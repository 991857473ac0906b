package template

// PatternKind enumerates the learning pattern types the LLM tier can emit.
type PatternKind string

const (
	// PatternSynonym adds aliases to a canonical term in the synonym map.
	PatternSynonym PatternKind = "synonym"

	// PatternFiller adds a word to the template filler set.
	PatternFiller PatternKind = "filler"

	// PatternUrgency adds an urgency keyword with weight and category.
	PatternUrgency PatternKind = "urgency"

	// PatternTriggerExpansion adds positive triggers to a scenario.
	PatternTriggerExpansion PatternKind = "triggerExpansion"

	// PatternNegativeTrigger adds negative triggers to a scenario.
	PatternNegativeTrigger PatternKind = "negativeTrigger"
)

// IsValid reports whether k is a recognised pattern kind.
func (k PatternKind) IsValid() bool {
	switch k {
	case PatternSynonym, PatternFiller, PatternUrgency,
		PatternTriggerExpansion, PatternNegativeTrigger:
		return true
	}
	return false
}

// Pattern is one unit of learning extracted by the LLM tier. Fields are used
// according to Kind; unused fields are ignored by [Store.ApplyPatterns].
type Pattern struct {
	Kind PatternKind `json:"kind"`

	// Confidence is the LLM's confidence in this pattern, in [0,1]. Patterns
	// below the configured floor are stored as suggestions, not applied.
	Confidence float64 `json:"confidence"`

	// Term is the canonical term for synonym patterns.
	Term string `json:"term,omitempty"`

	// Aliases are the spoken aliases for synonym patterns.
	Aliases []string `json:"aliases,omitempty"`

	// Word is the filler word or urgency keyword.
	Word string `json:"word,omitempty"`

	// Weight is the urgency weight in [0,1]; clamped at application time.
	Weight float64 `json:"weight,omitempty"`

	// Category is the urgency category.
	Category string `json:"category,omitempty"`

	// ScenarioID targets trigger-expansion and negative-trigger patterns.
	ScenarioID string `json:"scenario_id,omitempty"`

	// Phrases are the trigger phrases to add.
	Phrases []string `json:"phrases,omitempty"`
}
