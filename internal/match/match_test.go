package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclerk/switchboard/internal/preprocess"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// pre builds a preprocessed result directly; matcher tests control the
// normalized text and token expansion instead of running the pipeline.
func pre(normalized string, tokens ...string) *preprocess.Result {
	return &preprocess.Result{Normalized: normalized, ExpandedTokens: tokens}
}

func live(id string, priority int, triggers ...string) template.Scenario {
	return template.Scenario{
		ID:       id,
		Name:     id,
		Priority: priority,
		Triggers: triggers,
		Status:   template.StatusLive,
	}
}

func TestMatcher_ExactMatchBypass(t *testing.T) {
	tpl := &template.Template{
		ID: "tpl",
		Scenarios: []template.Scenario{
			live("sc-heat", 0, "no heat"),
			live("sc-book", 0, "book an appointment"),
		},
	}

	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("No   Heat"),
		Template: tpl,
	})

	if !res.Bypassed {
		t.Fatal("verbatim trigger should bypass scoring")
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want exactly the matched scenario", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.Scenario.ID != "sc-heat" || !c.ExactMatch || c.Confidence != 1.0 {
		t.Fatalf("candidate = %+v", c)
	}
}

func TestMatcher_NegativeTriggerBlocksAndSortsLast(t *testing.T) {
	tpl := &template.Template{
		ID: "tpl",
		Scenarios: []template.Scenario{
			{
				ID:               "sc-neg",
				Name:             "sc-neg",
				Triggers:         []string{"heater broken"},
				NegativeTriggers: []string{"just a question"},
				Status:           template.StatusLive,
			},
			live("sc-ok", 0, "heater broken"),
		},
	}

	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("just a question about my heater broken thing", "heater", "broken"),
		Template: tpl,
	})

	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(res.Candidates))
	}
	last := res.Candidates[len(res.Candidates)-1]
	if last.Scenario.ID != "sc-neg" || !last.Blocked || last.Score != 0 {
		t.Fatalf("blocked candidate should sort last with zero score, got %+v", last)
	}
	if top := res.Top(); top == nil || top.Scenario.ID != "sc-ok" {
		t.Fatalf("Top() = %v, want sc-ok", top)
	}
}

func TestMatcher_SortOrder(t *testing.T) {
	tpl := &template.Template{
		ID: "tpl",
		Scenarios: []template.Scenario{
			live("sc-c", 0, "heater broken"),
			live("sc-b", 5, "heater broken"),
			live("sc-a", 0, "heater broken"),
		},
	}

	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("heater broken today", "heater", "broken", "today"),
		Template: tpl,
	})

	var got []string
	for _, c := range res.Candidates {
		got = append(got, c.Scenario.ID)
	}
	want := []string{"sc-b", "sc-a", "sc-c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestMatcher_OverlapSubscore(t *testing.T) {
	// Trigger fully contained in the utterance: forward overlap 1.0,
	// reverse 2/3, fused 0.7·1.0 + 0.3·(2/3) = 0.9.
	got := overlapScore([]string{"heater broken"}, []string{"heater", "broken", "today"})
	if got < 0.899 || got > 0.901 {
		t.Fatalf("overlapScore = %v, want 0.9", got)
	}

	if overlapScore(nil, []string{"heater"}) != 0 {
		t.Fatal("no triggers should score 0")
	}
	if overlapScore([]string{"heater broken"}, nil) != 0 {
		t.Fatal("no tokens should score 0")
	}
	// Tokens of length <= 2 never participate.
	if overlapScore([]string{"ac on"}, []string{"ac", "on"}) != 0 {
		t.Fatal("short tokens should not contribute")
	}
}

func TestMatcher_RegexSubscore(t *testing.T) {
	tpl := &template.Template{
		ID: "tpl",
		Scenarios: []template.Scenario{
			{
				ID:            "sc-re",
				Name:          "sc-re",
				Triggers:      []string{"placeholder trigger"},
				RegexTriggers: []string{"(", `heat(er)?\s+broken`},
				Status:        template.StatusLive,
			},
		},
	}

	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("my heater broken again"),
		Template: tpl,
	})

	// The invalid pattern is skipped, the valid one fires.
	if sub := res.Candidates[0].Subscores; sub.Regex != 1.0 {
		t.Fatalf("Regex subscore = %v, want 1.0", sub.Regex)
	}
}

// stubScorer is a canned semantic backend that records the template scope it
// was queried with.
type stubScorer struct {
	score float64
	err   error

	templateIDs *[]string
}

func (s stubScorer) Score(_ context.Context, _ string, templateID string, _ *template.Scenario) (float64, error) {
	if s.templateIDs != nil {
		*s.templateIDs = append(*s.templateIDs, templateID)
	}
	return s.score, s.err
}

func TestMatcher_SemanticSubscoreFailsOpen(t *testing.T) {
	tpl := &template.Template{
		ID:        "tpl",
		Scenarios: []template.Scenario{live("sc", 0, "heater broken")},
	}
	req := Request{Pre: pre("something else entirely", "something"), Template: tpl}

	m := New(WithSemanticScorer(stubScorer{score: 0.8}))
	res := m.Match(context.Background(), req)
	if sub := res.Candidates[0].Subscores; sub.Semantic != 0.8 {
		t.Fatalf("Semantic subscore = %v, want 0.8", sub.Semantic)
	}

	failing := New(WithSemanticScorer(stubScorer{err: errors.New("backend down")}))
	res = failing.Match(context.Background(), req)
	if sub := res.Candidates[0].Subscores; sub.Semantic != 0 {
		t.Fatalf("Semantic subscore after error = %v, want 0", sub.Semantic)
	}
}

func TestMatcher_SemanticScorerScopedToTemplate(t *testing.T) {
	tpl := &template.Template{
		ID:        "tpl-hvac",
		Scenarios: []template.Scenario{live("sc", 0, "heater broken")},
	}

	var seen []string
	m := New(WithSemanticScorer(stubScorer{score: 0.5, templateIDs: &seen}))
	m.Match(context.Background(), Request{
		Pre:      pre("something else entirely", "something"),
		Template: tpl,
	})

	if len(seen) == 0 {
		t.Fatal("semantic scorer was not consulted")
	}
	for _, id := range seen {
		if id != "tpl-hvac" {
			t.Fatalf("scorer queried with template %q, want tpl-hvac", id)
		}
	}
}

func TestMatcher_ContextSubscore(t *testing.T) {
	sc := &template.Scenario{
		ID:            "sc-heating",
		Categories:    []string{"heating repair"},
		Preconditions: map[string]string{"callback_offered": "true"},
	}
	convCtx := &types.Context{
		LastIntent:         "heating",
		PreferredScenarios: []string{"sc-heating"},
		State:              map[string]string{"callback_offered": "true"},
	}

	if got := contextScore(sc, convCtx); got != 0.6 {
		t.Fatalf("contextScore = %v, want 0.3+0.2+0.1", got)
	}
	if got := contextScore(sc, nil); got != 0 {
		t.Fatalf("contextScore without context = %v, want 0", got)
	}
}

func TestMatcher_IntentDetectionPriority(t *testing.T) {
	m := New()
	// Emergency outranks booking when both keyword sets fire.
	intent := m.detectIntent(nil, "gas leak please book an appointment")
	if intent != types.IntentEmergency {
		t.Fatalf("intent = %v, want emergency", intent)
	}
	if m.detectIntent(nil, "") != types.IntentNone {
		t.Fatal("empty text should detect no intent")
	}
	// Single-word keywords require word boundaries.
	if m.detectIntent(nil, "i love facebook") == types.IntentBook {
		t.Fatal("book should not fire inside facebook")
	}
}

func TestMatcher_IntentBonusApplies(t *testing.T) {
	tpl := &template.Template{
		ID: "tpl",
		Scenarios: []template.Scenario{
			live("emergency heat out", 0, "no heat at all"),
			live("general info", 0, "no heat at all"),
		},
	}

	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("there is no heat at my house", "heat", "house"),
		Template: tpl,
	})

	var emergency, info *Candidate
	for i := range res.Candidates {
		switch res.Candidates[i].Scenario.ID {
		case "emergency heat out":
			emergency = &res.Candidates[i]
		case "general info":
			info = &res.Candidates[i]
		}
	}
	if emergency.Subscores.IntentBonus != types.IntentEmergency.Bonus() {
		t.Fatalf("emergency IntentBonus = %v", emergency.Subscores.IntentBonus)
	}
	if info.Subscores.IntentBonus != 0 {
		t.Fatalf("info IntentBonus = %v, want 0", info.Subscores.IntentBonus)
	}
	if emergency.Score <= info.Score {
		t.Fatal("intent bonus should rank the emergency scenario first")
	}
}

func TestMatcher_UrgencyBonus(t *testing.T) {
	urgency := []template.UrgencyKeyword{
		{Word: "no heat", Weight: 0.3, Category: "hvac"},
		{Word: "flooding", Weight: 0.4, Category: "plumbing"},
	}
	m := New()

	hvac := &template.Scenario{ID: "sc", Name: "emergency heat", Categories: []string{"hvac"}}
	if got := m.urgencyBonus(hvac, urgency, "there is no heat here"); got != 0.3 {
		t.Fatalf("urgencyBonus = %v, want 0.3", got)
	}

	// Category-scoped keywords skip scenarios without the category.
	bare := &template.Scenario{ID: "sc", Name: "emergency heat"}
	if got := m.urgencyBonus(bare, urgency, "there is no heat here"); got != 0 {
		t.Fatalf("urgencyBonus without category = %v, want 0", got)
	}

	// Non-emergency scenarios never receive the bonus.
	booking := &template.Scenario{ID: "sc", Name: "booking", Categories: []string{"hvac"}}
	if got := m.urgencyBonus(booking, urgency, "there is no heat here"); got != 0 {
		t.Fatalf("urgencyBonus for booking = %v, want 0", got)
	}
}

func TestMatcher_UrgencyBonusCapped(t *testing.T) {
	urgency := []template.UrgencyKeyword{
		{Word: "no heat", Weight: 0.4},
		{Word: "freezing", Weight: 0.4},
	}
	sc := &template.Scenario{ID: "sc", Name: "emergency"}

	m := New()
	if got := m.urgencyBonus(sc, urgency, "no heat and we are freezing"); got != urgencyBonusCap {
		t.Fatalf("urgencyBonus = %v, want capped at %v", got, urgencyBonusCap)
	}
}

func TestMatcher_Eligibility(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tpl := &template.Template{
		ID: "tpl",
		Scenarios: []template.Scenario{
			live("sc-live", 0, "heater broken"),
			{ID: "sc-draft", Name: "sc-draft", Triggers: []string{"heater broken"}, Status: template.StatusDraft},
			{ID: "sc-phone", Name: "sc-phone", Triggers: []string{"heater broken"}, Status: template.StatusLive, Channels: []string{"phone"}},
			{ID: "sc-es", Name: "sc-es", Triggers: []string{"heater broken"}, Status: template.StatusLive, Language: "es"},
			{ID: "sc-cooled", Name: "sc-cooled", Triggers: []string{"heater broken"}, Status: template.StatusLive, CooldownSeconds: 60},
		},
	}
	convCtx := &types.Context{
		Cooldowns: map[string]time.Time{"sc-cooled": now.Add(-30 * time.Second)},
	}

	m := New(WithClock(func() time.Time { return now }))
	res := m.Match(context.Background(), Request{
		Pre:      pre("heater broken today", "heater", "broken"),
		Turn:     types.Turn{Context: convCtx},
		Template: tpl,
		Channel:  "sms",
		Language: "en",
	})

	if len(res.Candidates) != 1 || res.Candidates[0].Scenario.ID != "sc-live" {
		var ids []string
		for _, c := range res.Candidates {
			ids = append(ids, c.Scenario.ID)
		}
		t.Fatalf("eligible candidates = %v, want [sc-live]", ids)
	}
}

func TestMatcher_AcceptanceFloor(t *testing.T) {
	m := New()
	tpl := &template.Template{ID: "tpl"}

	if got := m.AcceptanceFloor(&template.Scenario{}, tpl); got != 0.45 {
		t.Fatalf("default floor = %v, want 0.45", got)
	}

	tpl.MinConfidenceDefault = 0.55
	if got := m.AcceptanceFloor(&template.Scenario{}, tpl); got != 0.55 {
		t.Fatalf("template floor = %v, want 0.55", got)
	}

	sc := &template.Scenario{ConfidenceThreshold: 0.70}
	if got := m.AcceptanceFloor(sc, tpl); got != 0.70 {
		t.Fatalf("scenario override = %v, want 0.70", got)
	}

	// A per-scenario min-confidence gate can only raise the floor.
	sc.MinConfidence = 0.85
	if got := m.AcceptanceFloor(sc, tpl); got != 0.85 {
		t.Fatalf("raised floor = %v, want 0.85", got)
	}
	sc.MinConfidence = 0.10
	if got := m.AcceptanceFloor(sc, tpl); got != 0.70 {
		t.Fatalf("lowered floor = %v, want 0.70 unchanged", got)
	}
}

func TestMatcher_Acceptable(t *testing.T) {
	m := New()
	tpl := &template.Template{ID: "tpl"}
	sc := &template.Scenario{ID: "sc", Preconditions: map[string]string{"slot_filled": "true"}}

	if ok, reason := m.Acceptable(nil, tpl, nil); ok || reason != "no_candidate" {
		t.Fatalf("nil candidate = %v/%q", ok, reason)
	}
	if ok, reason := m.Acceptable(&Candidate{Scenario: sc, Blocked: true}, tpl, nil); ok || reason != "blocked" {
		t.Fatalf("blocked candidate = %v/%q", ok, reason)
	}
	if ok, reason := m.Acceptable(&Candidate{Scenario: sc, Confidence: 0.2}, tpl, nil); ok || reason != "below_min_confidence" {
		t.Fatalf("weak candidate = %v/%q", ok, reason)
	}
	if ok, reason := m.Acceptable(&Candidate{Scenario: sc, Confidence: 0.9}, tpl, nil); ok || reason != "precondition_failed" {
		t.Fatalf("unmet precondition = %v/%q", ok, reason)
	}

	convCtx := &types.Context{State: map[string]string{"slot_filled": "true"}}
	if ok, reason := m.Acceptable(&Candidate{Scenario: sc, Confidence: 0.9}, tpl, convCtx); !ok || reason != "" {
		t.Fatalf("acceptable candidate = %v/%q", ok, reason)
	}
}

func TestMatcher_DualIntentClarifier(t *testing.T) {
	// Keyword overrides pin both aggregate scores into the too-close band.
	tpl := &template.Template{
		ID: "tpl",
		IntentKeywords: map[string][]string{
			types.IntentEmergency.String():  {"flooding"},
			types.IntentBook.String():       {"schedule", "visit"},
			types.IntentReschedule.String(): {"visit"},
		},
		Scenarios: []template.Scenario{
			live("emergency water", 0, "flooding basement"),
			live("booking", 0, "schedule visit"),
		},
	}

	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("flooding schedule visit please", "flooding", "schedule", "visit"),
		Template: tpl,
	})

	if res.ProblemScore < dualIntentThreshold || res.ActionScore < dualIntentThreshold {
		t.Fatalf("aggregates = %v/%v, want both above %v",
			res.ProblemScore, res.ActionScore, dualIntentThreshold)
	}
	if d := abs(res.ProblemScore - res.ActionScore); d >= dualIntentDelta {
		t.Fatalf("aggregate separation = %v, want < %v", d, dualIntentDelta)
	}

	top := res.Top()
	if top == nil || !top.NeedsClarifier {
		t.Fatalf("top candidate should need a clarifier, got %+v", top)
	}
	if top.ClarifierPrompt == "" {
		t.Fatal("clarifier prompt must be set")
	}
}

func TestMatcher_DualIntentEmergencyBoost(t *testing.T) {
	tpl := &template.Template{
		ID: "tpl",
		IntentKeywords: map[string][]string{
			types.IntentEmergency.String(): {"flooding", "basement"},
		},
		Scenarios: []template.Scenario{
			live("emergency water", 0, "flooding basement"),
			live("booking", 0, "schedule visit"),
		},
	}

	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("my basement is flooding", "basement", "flooding"),
		Template: tpl,
	})

	if res.ProblemScore < emergencyHardThreshold {
		t.Fatalf("problem aggregate = %v, want >= %v", res.ProblemScore, emergencyHardThreshold)
	}
	top := res.Top()
	if top == nil || top.Scenario.ID != "emergency water" {
		t.Fatalf("Top() = %v, want the emergency scenario", top)
	}
	if top.NeedsClarifier {
		t.Fatal("a hard emergency read should not ask a clarifier")
	}
	// Full trigger overlap (0.4) plus the emergency intent bonus (0.5) boosted
	// by 1.5 clamps to 1.0.
	if top.Confidence != 1.0 {
		t.Fatalf("boosted confidence = %v, want 1.0", top.Confidence)
	}
}

func TestMatcher_ScoreStaysInBounds(t *testing.T) {
	// Stack every signal: full overlap, semantic 1.0, regex hit, context
	// boosts, emergency intent bonus, urgency bonus. The fused score must
	// still clamp to [0,1].
	tpl := &template.Template{
		ID:      "tpl",
		Urgency: []template.UrgencyKeyword{{Word: "no heat", Weight: 0.5}},
		Scenarios: []template.Scenario{
			{
				ID:            "sc-emergency",
				Name:          "emergency no heat",
				Categories:    []string{"heating"},
				Triggers:      []string{"no heat tonight"},
				RegexTriggers: []string{`no\s+heat`},
				Status:        template.StatusLive,
			},
		},
	}
	convCtx := &types.Context{
		LastIntent:         "heating",
		PreferredScenarios: []string{"sc-emergency"},
	}

	m := New(WithSemanticScorer(stubScorer{score: 1.0}))
	res := m.Match(context.Background(), Request{
		Pre:      pre("we have no heat tonight help", "heat", "tonight", "help"),
		Turn:     types.Turn{Context: convCtx},
		Template: tpl,
	})

	top := res.Top()
	if top == nil {
		t.Fatal("expected a candidate")
	}
	if top.Score != 1.0 || top.Confidence != 1.0 {
		t.Fatalf("score = %v/%v, want clamped to 1.0", top.Score, top.Confidence)
	}
}

func TestMatcher_EmptyTemplate(t *testing.T) {
	m := New()
	res := m.Match(context.Background(), Request{
		Pre:      pre("hello"),
		Template: &template.Template{ID: "tpl"},
	})
	if len(res.Candidates) != 0 || res.Top() != nil {
		t.Fatalf("empty template should produce no candidates, got %+v", res)
	}
}
