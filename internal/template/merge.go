package template

import "strings"

// Merge folds patterns into t in place, following the application rules shared
// by every [Store] implementation:
//
//   - entries are deduplicated case-insensitively against what already exists
//   - existing entries are never removed or down-weighted
//   - urgency weights are clamped to [0,1]
//   - patterns targeting unknown scenarios are rejected
//
// The template version is NOT advanced here; stores bump it when persisting.
func Merge(t *Template, patterns []Pattern) *ApplyResult {
	res := &ApplyResult{}

	for _, p := range patterns {
		if mergeOne(t, p) {
			res.Applied = append(res.Applied, p)
		} else {
			res.Rejected = append(res.Rejected, p)
		}
	}
	return res
}

// mergeOne applies a single pattern. Returns false when the pattern is
// invalid, targets a missing scenario, or is entirely a duplicate.
func mergeOne(t *Template, p Pattern) bool {
	switch p.Kind {
	case PatternSynonym:
		return mergeSynonym(t, p)
	case PatternFiller:
		return mergeFiller(t, p)
	case PatternUrgency:
		return mergeUrgency(t, p)
	case PatternTriggerExpansion:
		return mergeTriggers(t, p, false)
	case PatternNegativeTrigger:
		return mergeTriggers(t, p, true)
	default:
		return false
	}
}

func mergeSynonym(t *Template, p Pattern) bool {
	if p.Term == "" || len(p.Aliases) == 0 {
		return false
	}
	if t.Synonyms == nil {
		t.Synonyms = make(map[string][]string)
	}

	// Resolve the canonical key case-insensitively so "Thermostat" and
	// "thermostat" share one entry.
	key := p.Term
	for existing := range t.Synonyms {
		if strings.EqualFold(existing, p.Term) {
			key = existing
			break
		}
	}

	added := false
	for _, alias := range p.Aliases {
		if alias == "" || strings.EqualFold(alias, key) {
			continue
		}
		if !containsFold(t.Synonyms[key], alias) {
			t.Synonyms[key] = append(t.Synonyms[key], alias)
			added = true
		}
	}
	return added
}

func mergeFiller(t *Template, p Pattern) bool {
	if p.Word == "" || containsFold(t.Fillers, p.Word) {
		return false
	}
	t.Fillers = append(t.Fillers, p.Word)
	return true
}

func mergeUrgency(t *Template, p Pattern) bool {
	if p.Word == "" {
		return false
	}
	for _, u := range t.Urgency {
		if strings.EqualFold(u.Word, p.Word) {
			// Existing weights are never lowered, and duplicates never raise
			// them either; the pattern is simply dropped.
			return false
		}
	}
	t.Urgency = append(t.Urgency, UrgencyKeyword{
		Word:     p.Word,
		Weight:   clamp01(p.Weight),
		Category: p.Category,
	})
	return true
}

func mergeTriggers(t *Template, p Pattern, negative bool) bool {
	if p.ScenarioID == "" || len(p.Phrases) == 0 {
		return false
	}
	s := t.Scenario(p.ScenarioID)
	if s == nil {
		return false
	}

	target := &s.Triggers
	if negative {
		target = &s.NegativeTriggers
	}

	added := false
	for _, phrase := range p.Phrases {
		if phrase == "" || containsFold(*target, phrase) {
			continue
		}
		*target = append(*target, phrase)
		added = true
	}
	return added
}

// containsFold reports whether list contains s case-insensitively.
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
