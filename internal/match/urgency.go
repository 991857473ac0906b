package match

import (
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// urgencyBonus sums the weights of urgency keywords present in the normalized
// text, capped at urgencyBonusCap. Only scenarios classified as emergency or
// urgent receive the bonus; a keyword scoped to a category applies only when
// the scenario carries that category.
func (m *Matcher) urgencyBonus(sc *template.Scenario, table []template.UrgencyKeyword, normalized string) float64 {
	if len(table) == 0 || !scenarioMatchesIntent(sc, types.IntentEmergency) {
		return 0
	}

	total := 0.0
	for _, kw := range table {
		if kw.Word == "" {
			continue
		}
		if kw.Category != "" && !sc.HasCategory(kw.Category) {
			continue
		}
		if !phraseInText(normalized, kw.Word) {
			continue
		}
		total += clamp01(kw.Weight)
		if total >= urgencyBonusCap {
			return urgencyBonusCap
		}
	}
	return total
}
