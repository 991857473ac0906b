package preprocess

import "strings"

// Verdict is the quality-gate outcome over the normalized text. A failed
// verdict is advisory: the router consults ShouldReprompt but routing
// continues regardless.
type Verdict struct {
	Passed         bool
	Reason         string
	Confidence     float64
	ShouldReprompt bool
}

// Quality-gate failure reasons.
const (
	ReasonTooShort    = "too_short"
	ReasonLowQuality  = "low_word_ratio"
	ReasonCommonNoise = "common_noise"
	ReasonAcceptable  = "ok"
	ReasonEmpty       = "empty"
)

// commonNoise are exact normalized utterances that pass the gate with low
// confidence instead of failing the word-count check.
var commonNoise = map[string]struct{}{
	"thank you": {}, "goodbye": {}, "bye": {}, "thanks": {},
}

// GateConfig tunes the quality gate.
type GateConfig struct {
	// MinWordCount is the minimum number of words. Default 2.
	MinWordCount int

	// MinValidRatio is the minimum fraction of valid words (length > 1,
	// lowercase letters only). Default 0.5.
	MinValidRatio float64
}

var defaultGateConfig = GateConfig{
	MinWordCount:  2,
	MinValidRatio: 0.5,
}

// Evaluate scores the normalized text against the gate.
func (g GateConfig) Evaluate(normalized string) Verdict {
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return Verdict{Passed: false, Reason: ReasonEmpty, Confidence: 0, ShouldReprompt: true}
	}

	if _, noise := commonNoise[normalized]; noise {
		return Verdict{Passed: true, Reason: ReasonCommonNoise, Confidence: 0.3}
	}

	words := strings.Fields(normalized)
	if len(words) < g.MinWordCount {
		return Verdict{Passed: false, Reason: ReasonTooShort, Confidence: 0.2, ShouldReprompt: true}
	}

	valid := 0
	for _, w := range words {
		if isValidWord(w) {
			valid++
		}
	}
	ratio := float64(valid) / float64(len(words))
	if ratio < g.MinValidRatio {
		return Verdict{Passed: false, Reason: ReasonLowQuality, Confidence: ratio, ShouldReprompt: true}
	}

	return Verdict{Passed: true, Reason: ReasonAcceptable, Confidence: ratio}
}

// isValidWord reports whether w is longer than one character and consists of
// lowercase letters only.
func isValidWord(w string) bool {
	if len(w) <= 1 {
		return false
	}
	for _, r := range w {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
