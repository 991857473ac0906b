package match

import (
	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/pkg/types"
)

// problemKeywords signal that something is broken, as opposed to the caller
// asking for an action. They weigh half as much as emergency keywords in the
// problem aggregate.
var problemKeywords = []string{
	"broken", "not working", "stopped working", "leaking", "leak", "broke",
	"won't turn on", "won't start", "making noise", "smells", "dripping",
	"clogged", "frozen", "died", "dead",
}

// defaultClarifierPrompt is asked when problem and action readings are too
// close to call.
const defaultClarifierPrompt = "I want to make sure I help with the right thing — is this an urgent problem happening right now, or would you like to schedule a visit?"

// resolveDualIntent arbitrates between the "problem" (emergency) and "action"
// (booking/reschedule) readings of the utterance and adjusts candidate scores:
//
//   - hard emergency: problem ≥ 0.70 and leads by ≥ 0.15 → emergency
//     candidates ×1.5
//   - both present, too close: top candidate marked NeedsClarifier
//   - both present, clear winner: winner-side candidates ×1.3
//   - otherwise: no change (the action reading wins by default)
func (m *Matcher) resolveDualIntent(req Request, res *Result, normalized string) {
	problem := m.problemScore(req, res, normalized)
	action := m.actionScore(req, res, normalized)
	res.ProblemScore = problem
	res.ActionScore = action

	outcome := "none"
	switch {
	case problem >= emergencyHardThreshold && problem-action >= dualIntentDelta:
		outcome = "emergency_boost"
		scaleSide(res.Candidates, types.IntentEmergency, emergencyBoost)

	case problem >= dualIntentThreshold && action >= dualIntentThreshold &&
		abs(problem-action) < dualIntentDelta:
		outcome = "clarifier"
		if top := topScored(res.Candidates); top != nil {
			top.NeedsClarifier = true
			top.ClarifierPrompt = defaultClarifierPrompt
		}

	case problem >= dualIntentThreshold && action >= dualIntentThreshold:
		if problem > action {
			outcome = "problem_boost"
			scaleSide(res.Candidates, types.IntentEmergency, winnerBoost)
		} else {
			outcome = "action_boost"
			scaleSide(res.Candidates, types.IntentBook, winnerBoost)
			scaleSide(res.Candidates, types.IntentReschedule, winnerBoost)
		}
	}

	traceEvent(req.Trace, diag.EventDualIntent, "matcher", diag.StatusOK, map[string]any{
		"problem": problem,
		"action":  action,
		"outcome": outcome,
	})
}

// problemScore aggregates emergency-keyword hits (double weight), problem
// keyword hits, and the best emergency candidate's score.
func (m *Matcher) problemScore(req Request, res *Result, normalized string) float64 {
	hits := 0
	for _, kw := range m.intentKeywords(req.Template, types.IntentEmergency) {
		if phraseInText(normalized, kw) {
			hits += 2
		}
	}
	for _, kw := range problemKeywords {
		if phraseInText(normalized, kw) {
			hits++
		}
	}
	keywordSignal := clamp01(0.25 * float64(hits))
	return clamp01(0.6*keywordSignal + 0.4*bestSideScore(res.Candidates, types.IntentEmergency))
}

// actionScore aggregates booking and reschedule keyword hits and the best
// booking-side candidate's score.
func (m *Matcher) actionScore(req Request, res *Result, normalized string) float64 {
	hits := 0
	for _, kw := range m.intentKeywords(req.Template, types.IntentBook) {
		if phraseInText(normalized, kw) {
			hits++
		}
	}
	for _, kw := range m.intentKeywords(req.Template, types.IntentReschedule) {
		if phraseInText(normalized, kw) {
			hits++
		}
	}
	keywordSignal := clamp01(0.25 * float64(hits))
	best := bestSideScore(res.Candidates, types.IntentBook)
	if r := bestSideScore(res.Candidates, types.IntentReschedule); r > best {
		best = r
	}
	return clamp01(0.6*keywordSignal + 0.4*best)
}

// bestSideScore returns the best non-blocked score among candidates whose
// scenario matches the intent.
func bestSideScore(candidates []Candidate, intent types.Intent) float64 {
	best := 0.0
	for i := range candidates {
		c := &candidates[i]
		if c.Blocked || !scenarioMatchesIntent(c.Scenario, intent) {
			continue
		}
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

// scaleSide multiplies the scores of non-blocked candidates on the intent's
// side, re-clamping to [0,1].
func scaleSide(candidates []Candidate, intent types.Intent, factor float64) {
	for i := range candidates {
		c := &candidates[i]
		if c.Blocked || !scenarioMatchesIntent(c.Scenario, intent) {
			continue
		}
		c.Score = clamp01(c.Score * factor)
		c.Confidence = c.Score
	}
}

// topScored returns the highest-scoring non-blocked candidate before sorting.
func topScored(candidates []Candidate) *Candidate {
	var top *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Blocked {
			continue
		}
		if top == nil || c.Score > top.Score {
			top = c
		}
	}
	return top
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
