package template

import (
	"errors"
	"fmt"
	"regexp"
)

// Validate checks the template for structural problems and returns a joined
// error listing every failure found, or nil when the template is coherent.
func (t *Template) Validate() error {
	var errs []error

	if t.ID == "" {
		errs = append(errs, errors.New("template id must not be empty"))
	}

	seen := make(map[string]int, len(t.Scenarios))
	for i, s := range t.Scenarios {
		prefix := fmt.Sprintf("scenarios[%d]", i)
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id must not be empty", prefix))
		}
		if prev, dup := seen[s.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate id %q (first at scenarios[%d])", prefix, s.ID, prev))
		}
		seen[s.ID] = i

		if s.Status != "" && !s.Status.IsValid() {
			errs = append(errs, fmt.Errorf("%s: status %q is invalid; valid values: live, draft, disabled", prefix, s.Status))
		}
		if len(s.Triggers) == 0 && len(s.RegexTriggers) == 0 {
			errs = append(errs, fmt.Errorf("%s: scenario needs at least one trigger or regex trigger", prefix))
		}
		if s.MinConfidence < 0 || s.MinConfidence > 1 {
			errs = append(errs, fmt.Errorf("%s: min_confidence %v outside [0,1]", prefix, s.MinConfidence))
		}
		if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
			errs = append(errs, fmt.Errorf("%s: confidence_threshold %v outside [0,1]", prefix, s.ConfidenceThreshold))
		}
		if s.CooldownSeconds < 0 {
			errs = append(errs, fmt.Errorf("%s: cooldown_seconds must not be negative", prefix))
		}
		for j, re := range s.RegexTriggers {
			if _, err := regexp.Compile("(?i)" + re); err != nil {
				errs = append(errs, fmt.Errorf("%s: regex_triggers[%d]: %v", prefix, j, err))
			}
		}
	}

	for i, u := range t.Urgency {
		if u.Word == "" {
			errs = append(errs, fmt.Errorf("urgency[%d]: word must not be empty", i))
		}
		if u.Weight < 0 || u.Weight > 1 {
			errs = append(errs, fmt.Errorf("urgency[%d]: weight %v outside [0,1]", i, u.Weight))
		}
	}

	for i, c := range t.VocabCorrections {
		if c.From == "" {
			errs = append(errs, fmt.Errorf("vocab_corrections[%d]: from must not be empty", i))
		}
		if c.Mode != "" && !c.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("vocab_corrections[%d]: mode %q is invalid; valid values: EXACT, CONTAINS", i, c.Mode))
		}
	}

	for i, p := range t.EntityPatterns {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("entity_patterns[%d]: name must not be empty", i))
		}
		if _, err := regexp.Compile(p.Regex); err != nil {
			errs = append(errs, fmt.Errorf("entity_patterns[%d]: %v", i, err))
		}
	}

	for _, pair := range []struct {
		name string
		v    float64
	}{
		{"tier1_threshold", t.Tier1Threshold},
		{"tier2_threshold", t.Tier2Threshold},
		{"min_confidence_default", t.MinConfidenceDefault},
	} {
		if pair.v < 0 || pair.v > 1 {
			errs = append(errs, fmt.Errorf("%s %v outside [0,1]", pair.name, pair.v))
		}
	}
	if t.MonthlyBudget < 0 {
		errs = append(errs, errors.New("monthly_budget must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the company profile and returns a joined error listing every
// failure found, or nil.
func (c *Company) Validate() error {
	var errs []error

	if c.ID == "" {
		errs = append(errs, errors.New("company id must not be empty"))
	}
	if c.Behavior.Mode != "" && !c.Behavior.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("behavior.mode %q is invalid; valid values: HYBRID, STRICT", c.Behavior.Mode))
	}
	for _, lvl := range []struct {
		name string
		v    float64
	}{
		{"humor_level", c.Behavior.HumorLevel},
		{"empathy_level", c.Behavior.EmpathyLevel},
		{"directness_level", c.Behavior.DirectnessLevel},
	} {
		if lvl.v < 0 || lvl.v > 1 {
			errs = append(errs, fmt.Errorf("behavior.%s %v outside [0,1]", lvl.name, lvl.v))
		}
	}
	switch c.ConversationStyle {
	case "", "confident", "balanced", "polite":
	default:
		errs = append(errs, fmt.Errorf("conversation_style %q is invalid; valid values: confident, balanced, polite", c.ConversationStyle))
	}

	return errors.Join(errs...)
}
