package match

import (
	"strings"

	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// defaultIntentKeywords are the built-in phrase sets per intent. Templates
// override a set entirely by naming the intent in their IntentKeywords map.
var defaultIntentKeywords = map[types.Intent][]string{
	types.IntentEmergency: {
		"emergency", "right now", "right away", "asap", "immediately",
		"water leaking", "gas leak", "smell gas", "flooding", "flooded",
		"fire", "sparks", "no heat", "no hot water", "burst pipe",
	},
	types.IntentBook: {
		"schedule a visit", "book an appointment", "make an appointment",
		"set up an appointment", "schedule an appointment", "book a visit",
		"come out", "send someone", "schedule service", "book", "schedule",
	},
	types.IntentReschedule: {
		"reschedule", "move my appointment", "change my appointment",
		"different time", "push back", "cancel and rebook",
	},
	types.IntentStatus: {
		"status", "where is", "when will", "eta", "on the way",
		"still coming", "check on my",
	},
	types.IntentQuestion: {
		"how much", "what does", "do you", "can you tell me", "question",
		"how long", "what is", "what are",
	},
	types.IntentSmalltalk: {
		"how are you", "nice weather", "have a good", "just calling to say",
	},
}

// scenarioIntentWords map an intent to the words its scenarios carry in their
// name or categories. A scenario "matches" an intent when any mapped word
// appears there; the intent's bonus then applies.
var scenarioIntentWords = map[types.Intent][]string{
	types.IntentEmergency:  {"emergency", "urgent"},
	types.IntentBook:       {"book", "booking", "schedule", "scheduling", "appointment"},
	types.IntentReschedule: {"reschedule", "rebooking"},
	types.IntentStatus:     {"status", "followup", "follow-up"},
	types.IntentQuestion:   {"question", "faq", "info", "information"},
	types.IntentSmalltalk:  {"smalltalk", "chitchat", "greeting"},
}

// detectIntent returns the highest-priority intent whose keyword set matches
// the normalized text. Template keyword sets replace the built-in set for the
// intents they name.
func (m *Matcher) detectIntent(t *template.Template, normalized string) types.Intent {
	if normalized == "" {
		return types.IntentNone
	}
	for _, intent := range types.AllIntents {
		for _, kw := range m.intentKeywords(t, intent) {
			if phraseInText(normalized, kw) {
				return intent
			}
		}
	}
	return types.IntentNone
}

// intentKeywords returns the effective keyword set for one intent.
func (m *Matcher) intentKeywords(t *template.Template, intent types.Intent) []string {
	if t != nil {
		if kws, ok := t.IntentKeywords[intent.String()]; ok {
			return kws
		}
	}
	return defaultIntentKeywords[intent]
}

// intentBonus returns the detected intent's additive bonus when the scenario's
// name or categories match the intent's word mapping, else 0.
func intentBonus(sc *template.Scenario, intent types.Intent) float64 {
	if intent == types.IntentNone {
		return 0
	}
	if scenarioMatchesIntent(sc, intent) {
		return intent.Bonus()
	}
	return 0
}

// scenarioMatchesIntent reports whether the scenario's name or any category
// contains one of the intent's mapped words.
func scenarioMatchesIntent(sc *template.Scenario, intent types.Intent) bool {
	words := scenarioIntentWords[intent]
	name := strings.ToLower(sc.Name)
	for _, w := range words {
		if strings.Contains(name, w) {
			return true
		}
		for _, cat := range sc.Categories {
			if strings.Contains(strings.ToLower(cat), w) {
				return true
			}
		}
	}
	return false
}

// phraseInText reports whether phrase appears in text. Multi-word phrases use
// substring containment; single words require word boundaries so "book" does
// not fire on "facebook".
func phraseInText(text, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	if strings.ContainsRune(phrase, ' ') {
		return strings.Contains(text, phrase)
	}
	for _, word := range strings.Fields(text) {
		if strings.Trim(word, ".,!?;:'\"") == phrase {
			return true
		}
	}
	return false
}
