package match

import (
	"regexp"
	"strings"

	"github.com/openclerk/switchboard/internal/rx"
)

// overlapScore is the keyword subscore: for each trigger, the overlap between
// the trigger's token set T and the phrase token set P is
//
//	0.7·|T∩P|/|T| + 0.3·|T∩P|/|P|
//
// and the maximum across triggers wins. The forward direction dominates so a
// short trigger fully contained in a long utterance still scores high.
// BM25Params are reserved for a future true-BM25 upgrade of this formula.
func overlapScore(triggers []string, phraseTokens []string) float64 {
	if len(triggers) == 0 || len(phraseTokens) == 0 {
		return 0
	}

	phraseSet := make(map[string]struct{}, len(phraseTokens))
	for _, t := range phraseTokens {
		phraseSet[strings.ToLower(t)] = struct{}{}
	}

	best := 0.0
	for _, trigger := range triggers {
		triggerTokens := phraseTokenSet(trigger)
		if len(triggerTokens) == 0 {
			continue
		}
		common := 0
		for tok := range triggerTokens {
			if _, ok := phraseSet[tok]; ok {
				common++
			}
		}
		if common == 0 {
			continue
		}
		forward := float64(common) / float64(len(triggerTokens))
		reverse := float64(common) / float64(len(phraseSet))
		if score := 0.7*forward + 0.3*reverse; score > best {
			best = score
		}
	}
	return clamp01(best)
}

// triggerTokenPattern tokenizes trigger phrases the same way the preprocessor
// tokenizes utterances: alphanumeric runs with optional apostrophes, length
// greater than two.
var triggerTokenPattern = rx.MustCompile(`[a-z0-9]+(?:'[a-z0-9]+)*`)

// phraseTokenSet returns the content-token set of one trigger phrase.
func phraseTokenSet(phrase string) map[string]struct{} {
	raw := triggerTokenPattern.FindAllString(strings.ToLower(phrase), -1)
	set := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		if len(t) > 2 {
			set[t] = struct{}{}
		}
	}
	return set
}

// compileCI compiles a case-insensitive regex through the shared cache.
func compileCI(pattern string) (*regexp.Regexp, error) {
	return rx.CompileCI(pattern)
}
