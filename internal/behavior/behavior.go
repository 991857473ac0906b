// Package behavior decides how the agent should speak, independent of what it
// says: a tone selected by a fixed priority ladder over detected signals, plus
// style instructions carrying the company's humor, empathy, and directness
// levels, its cheat-sheet rules, and a hard constraint floor that applies to
// every tone.
package behavior

import (
	"strings"

	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// Tone is the speaking register for the final response. The ladder in
// [Engine.Decide] is exhaustive over these values.
type Tone string

const (
	ToneEmergencySerious Tone = "EMERGENCY_SERIOUS"
	ToneConflictSerious  Tone = "CONFLICT_SERIOUS"
	ToneLightPlayful     Tone = "LIGHT_PLAYFUL"
	ToneFriendlyDirect   Tone = "FRIENDLY_DIRECT"
	ToneFriendlyCasual   Tone = "FRIENDLY_CASUAL"
	ToneConsultative     Tone = "CONSULTATIVE"
	ToneNeutral          Tone = "NEUTRAL"
)

// constraintFloor applies to every tone, every turn.
var constraintFloor = []string{
	"Never invent policies, prices, or offers.",
	"Never diagnose the problem over the phone.",
	"Never promise arrival times or outcomes.",
	"If unsure, say: \"Let me have one of our specialists follow up with you.\"",
}

// Default signal keyword lists. Company profiles and trade overrides extend
// them; they are never replaced wholesale so a sparse profile keeps baseline
// coverage.
var (
	defaultEmergencyKeywords = []string{
		"emergency", "fire", "flooding", "flooded", "gas leak", "smell gas",
		"sparks", "burst pipe", "no heat", "carbon monoxide",
	}
	defaultBillingKeywords = []string{
		"overcharged", "refund", "dispute", "wrong charge", "billing problem",
		"too expensive", "never authorized",
	}
	defaultJokeKeywords = []string{
		"just kidding", "haha", "funny", "joke",
	}
)

// StyleInstructions accompany the tone into the style renderer and any
// downstream prompt assembly.
type StyleInstructions struct {
	HumorLevel      float64
	EmpathyLevel    float64
	DirectnessLevel float64

	// Rules are the company's cheat-sheet behavior rules.
	Rules []string

	// Constraints is the hard floor; identical for every tone.
	Constraints []string
}

// Decision is the engine's output for one turn.
type Decision struct {
	Tone   Tone
	Style  StyleInstructions
	Signal string // which ladder rung fired, for traces
}

// Request carries the inputs of one tone decision.
type Request struct {
	// Utterance is the normalized caller text.
	Utterance string

	// Intent is the matcher's detected intent.
	Intent types.Intent

	// Scenario is the accepted scenario. May be nil when no scenario matched.
	Scenario *template.Scenario

	// Company provides the behavior profile. May be nil.
	Company *template.Company

	// Trace receives a BEHAVIOR event. May be nil.
	Trace *diag.Envelope
}

// Engine selects tones. It is stateless and safe for concurrent use.
type Engine struct{}

// New constructs an Engine.
func New() *Engine { return &Engine{} }

// Decide walks the tone priority ladder, first match wins:
//
//  1. emergency keywords → EMERGENCY_SERIOUS
//  2. billing-conflict keywords → CONFLICT_SERIOUS
//  3. joke keywords with humorLevel > 0.3 → LIGHT_PLAYFUL (HYBRID mode only)
//  4. scenario-category mapping
//  5. NEUTRAL
func (e *Engine) Decide(req Request) Decision {
	profile := behaviorProfile(req.Company)
	kw := mergedKeywords(req.Company)
	utterance := strings.ToLower(req.Utterance)

	tone, signal := ladder(utterance, req, profile, kw)

	d := Decision{
		Tone:   tone,
		Signal: signal,
		Style: StyleInstructions{
			HumorLevel:      profile.HumorLevel,
			EmpathyLevel:    profile.EmpathyLevel,
			DirectnessLevel: profile.DirectnessLevel,
			Rules:           append([]string(nil), profile.Rules...),
			Constraints:     append([]string(nil), constraintFloor...),
		},
	}
	// Serious tones suppress humor regardless of the configured level.
	if tone == ToneEmergencySerious || tone == ToneConflictSerious {
		d.Style.HumorLevel = 0
	}

	if req.Trace != nil {
		req.Trace.Append(diag.EventBehavior, "behavior", diag.StatusOK, map[string]any{
			"tone":   string(tone),
			"signal": signal,
		})
	}
	return d
}

// ladder returns the first tone whose signal fires.
func ladder(utterance string, req Request, profile template.BehaviorProfile, kw signalKeywords) (Tone, string) {
	if containsAny(utterance, kw.emergency) || req.Intent == types.IntentEmergency {
		return ToneEmergencySerious, "emergency_keywords"
	}
	if containsAny(utterance, kw.billing) {
		return ToneConflictSerious, "billing_keywords"
	}
	if profile.Mode != template.BehaviorStrict &&
		profile.HumorLevel > 0.3 && containsAny(utterance, kw.joke) {
		return ToneLightPlayful, "joke_keywords"
	}
	if req.Scenario != nil {
		if tone, ok := categoryTone(req.Scenario); ok {
			return tone, "category"
		}
	}
	return ToneNeutral, "default"
}

// categoryTone maps the scenario's service category to a tone.
func categoryTone(sc *template.Scenario) (Tone, bool) {
	for _, cat := range sc.Categories {
		switch strings.ToLower(cat) {
		case "emergency", "urgent":
			return ToneEmergencySerious, true
		case "billing":
			return ToneConflictSerious, true
		case "repair":
			return ToneFriendlyDirect, true
		case "maintenance":
			return ToneFriendlyCasual, true
		case "new_sales", "sales", "install", "installation":
			return ToneConsultative, true
		case "scheduling", "booking", "followup", "follow-up":
			return ToneFriendlyDirect, true
		case "general":
			return ToneFriendlyCasual, true
		}
	}
	return ToneNeutral, false
}

// signalKeywords are the merged detection lists for one company.
type signalKeywords struct {
	emergency []string
	billing   []string
	joke      []string
}

// mergedKeywords layers defaults, the company profile, and the company's
// trade overrides.
func mergedKeywords(c *template.Company) signalKeywords {
	kw := signalKeywords{
		emergency: append([]string(nil), defaultEmergencyKeywords...),
		billing:   append([]string(nil), defaultBillingKeywords...),
		joke:      append([]string(nil), defaultJokeKeywords...),
	}
	if c == nil {
		return kw
	}
	kw.emergency = append(kw.emergency, c.Behavior.EmergencyKeywords...)
	kw.billing = append(kw.billing, c.Behavior.BillingConflictKeywords...)
	kw.joke = append(kw.joke, c.Behavior.JokeKeywords...)

	if trade, ok := c.Behavior.TradeOverrides[strings.ToLower(c.Trade)]; ok {
		kw.emergency = append(kw.emergency, trade.Emergency...)
		kw.billing = append(kw.billing, trade.BillingConflict...)
		kw.joke = append(kw.joke, trade.Joke...)
	}
	return kw
}

func behaviorProfile(c *template.Company) template.BehaviorProfile {
	if c == nil {
		return template.BehaviorProfile{Mode: template.BehaviorHybrid}
	}
	return c.Behavior
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
