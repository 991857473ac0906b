package preprocess

import (
	"context"
	"testing"

	"github.com/openclerk/switchboard/internal/preprocess/names"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// run is a shorthand that routes raw text through a pipeline with the given
// template and company.
func run(t *testing.T, p *Pipeline, raw string, tpl *template.Template, co *template.Company) *Result {
	t.Helper()
	return p.Run(context.Background(), Request{
		Turn:     types.Turn{RawText: raw, TemplateID: tpl.ID},
		Template: tpl,
		Company:  co,
	})
}

func baseTemplate() *template.Template {
	return &template.Template{ID: "tpl-test"}
}

func TestRun_FillerAndGreetingRemoval(t *testing.T) {
	p := New()
	res := run(t, p, "Good morning um so my heater is like broken", baseTemplate(), nil)

	if res.Normalized != "my heater is broken" {
		t.Fatalf("Normalized = %q", res.Normalized)
	}
	if res.RawText != "Good morning um so my heater is like broken" {
		t.Fatal("RawText must keep the original input")
	}
	if got := res.OriginalTokens; len(got) != 2 || got[0] != "heater" || got[1] != "broken" {
		t.Fatalf("OriginalTokens = %v", got)
	}
}

func TestRun_CompanyNameStripped(t *testing.T) {
	p := New()
	co := &template.Company{ID: "co-1", Name: "Comfort Climate"}
	res := run(t, p, "Good morning Comfort Climate my heater is broken", baseTemplate(), co)

	if res.Normalized != "my heater is broken" {
		t.Fatalf("Normalized = %q", res.Normalized)
	}
}

func TestRun_CompanyNameWithMetacharactersStripped(t *testing.T) {
	p := New()
	co := &template.Company{ID: "co-1", Name: "Joe's Heating + Air"}
	res := run(t, p, "hi Joe's Heating + Air my heater is broken", baseTemplate(), co)

	if res.Normalized != "my heater is broken" {
		t.Fatalf("Normalized = %q", res.Normalized)
	}
}

// stubNames validates against fixed lists, without phonetic fallback.
type stubNames struct {
	first, last map[string]bool
}

func (s stubNames) IsFirstName(n string) bool { return s.first[n] }
func (s stubNames) IsLastName(n string) bool  { return s.last[n] }

func TestClassifyName_InvalidFirstKeepsLastOnly(t *testing.T) {
	dict := stubNames{last: map[string]bool{"smith": true}}

	first, last, validated := classifyName("qwzx", "smith", dict)
	if first != "" || last != "smith" || !validated {
		t.Fatalf("classifyName = %q/%q/%v, want \"\"/smith/true", first, last, validated)
	}

	// Same outcome when there was no first-name candidate at all.
	first, last, validated = classifyName("", "smith", dict)
	if first != "" || last != "smith" || !validated {
		t.Fatalf("classifyName = %q/%q/%v, want \"\"/smith/true", first, last, validated)
	}
}

func TestRun_ProtectedWordsSurviveFillers(t *testing.T) {
	tpl := baseTemplate()
	// A tenant filler list that tries to remove an answer word is ignored for
	// that word.
	tpl.Fillers = []string{"no", "please"}

	p := New()
	res := run(t, p, "no please cancel the visit", tpl, nil)
	if res.Normalized != "no cancel the visit" {
		t.Fatalf("Normalized = %q", res.Normalized)
	}
}

func TestRun_VocabularyPriorityChain(t *testing.T) {
	tpl := baseTemplate()
	tpl.VocabCorrections = []template.VocabCorrection{
		{From: "air conditioner", To: "cooling system", Priority: 2},
		{From: "ac", To: "air conditioner", Priority: 1},
	}

	p := New()
	res := run(t, p, "the ac is down", tpl, nil)

	// Lower priority runs first, so the correction chain composes.
	if res.AfterVocab != "the cooling system is down" {
		t.Fatalf("AfterVocab = %q", res.AfterVocab)
	}
}

func TestRun_SynonymTranslation(t *testing.T) {
	tpl := baseTemplate()
	tpl.Synonyms = map[string][]string{
		"thermostat": {"temperature thingy", "heat dial"},
	}

	p := New()
	res := run(t, p, "the temperature thingy reads wrong", tpl, nil)

	if res.Normalized != "the thermostat reads wrong" {
		t.Fatalf("Normalized = %q", res.Normalized)
	}
}

func TestRun_TokenExpansion(t *testing.T) {
	tpl := baseTemplate()
	tpl.Synonyms = map[string][]string{
		"thermostat": {"temperature thingy", "heat dial"},
	}
	tpl.ContextPatterns = []template.ContextPattern{
		{Pattern: []string{"thermostat", "broken"}, Component: "hvac_repair", ContextTokens: []string{"repair"}},
	}

	p := New()
	res := run(t, p, "thermostat broken", tpl, nil)

	want := map[string]bool{
		"thermostat": true, "broken": true,
		"temperature": true, "thingy": true, "heat": true, "dial": true,
		"hvac_repair": true, "repair": true,
	}
	got := make(map[string]bool, len(res.ExpandedTokens))
	for _, tok := range res.ExpandedTokens {
		if got[tok] {
			t.Fatalf("duplicate expanded token %q", tok)
		}
		got[tok] = true
	}
	for tok := range want {
		if !got[tok] {
			t.Fatalf("expanded tokens missing %q: %v", tok, res.ExpandedTokens)
		}
	}

	// Original tokens always lead the expansion.
	if res.ExpandedTokens[0] != "thermostat" || res.ExpandedTokens[1] != "broken" {
		t.Fatalf("ExpandedTokens = %v, want originals first", res.ExpandedTokens)
	}
	if len(res.ExpansionMap["thermostat"]) == 0 {
		t.Fatal("ExpansionMap should record the thermostat expansions")
	}
}

func TestRun_EntityExtraction(t *testing.T) {
	tpl := baseTemplate()
	tpl.EntityPatterns = []template.EntityPattern{
		{Name: "time", Regex: `(?i)\b(tomorrow|today|tonight)\b`},
	}

	p := New(WithNameDictionary(names.New()))
	raw := "Hi, my name is Maria Garcia, my number is 555-123-4567, email Maria.G@example.COM, come tomorrow to 42 Oak Street"
	res := run(t, p, raw, tpl, nil)

	e := res.Entities
	if e.FirstName != "Maria" || e.LastName != "Garcia" || !e.NameValidated {
		t.Fatalf("name = %q/%q validated=%v", e.FirstName, e.LastName, e.NameValidated)
	}
	if e.FullName != "Maria Garcia" {
		t.Fatalf("FullName = %q", e.FullName)
	}
	if e.Phone != "5551234567" {
		t.Fatalf("Phone = %q", e.Phone)
	}
	if e.Email != "maria.g@example.com" {
		t.Fatalf("Email = %q", e.Email)
	}
	if e.Address != "42 Oak Street" {
		t.Fatalf("Address = %q", e.Address)
	}
	if e.Custom["time"] != "tomorrow" {
		t.Fatalf("Custom[time] = %q", e.Custom["time"])
	}
}

func TestRun_UnvalidatedNameKept(t *testing.T) {
	// Without a dictionary the raw guess passes through unvalidated.
	p := New()
	res := run(t, p, "my name is Zorblax Vexx", baseTemplate(), nil)

	e := res.Entities
	if e.FirstName != "Zorblax" || e.NameValidated {
		t.Fatalf("name = %q validated=%v, want unvalidated guess", e.FirstName, e.NameValidated)
	}
}

func TestRun_CancelledContextDisablesPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New()
	res := p.Run(ctx, Request{
		Turn:     types.Turn{RawText: "my heater is broken"},
		Template: baseTemplate(),
	})

	if !res.Disabled {
		t.Fatal("pipeline should report Disabled on an expired context")
	}
	if res.Normalized != "my heater is broken" {
		t.Fatalf("Normalized = %q, want the raw text", res.Normalized)
	}
}

func TestGate_Evaluate(t *testing.T) {
	g := defaultGateConfig

	cases := []struct {
		name       string
		normalized string
		passed     bool
		reason     string
		reprompt   bool
	}{
		{"empty", "", false, ReasonEmpty, true},
		{"common noise", "thank you", true, ReasonCommonNoise, false},
		{"too short", "help", false, ReasonTooShort, true},
		{"low ratio", "asdf123 xx9", false, ReasonLowQuality, true},
		{"acceptable", "my heater is broken", true, ReasonAcceptable, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := g.Evaluate(tc.normalized)
			if v.Passed != tc.passed || v.Reason != tc.reason || v.ShouldReprompt != tc.reprompt {
				t.Fatalf("Evaluate(%q) = %+v", tc.normalized, v)
			}
		})
	}
}

func TestRun_CategoryLayersApply(t *testing.T) {
	tpl := baseTemplate()
	tpl.CategoryFillers = map[string][]string{
		"plumbing": {"whatsit"},
	}
	tpl.CategorySynonyms = map[string]map[string][]string{
		"plumbing": {"pipe": {"water tube"}},
	}

	p := New()
	res := p.Run(context.Background(), Request{
		Turn:     types.Turn{RawText: "the whatsit water tube burst"},
		Template: tpl,
		Category: "plumbing",
	})

	if res.Normalized != "the pipe burst" {
		t.Fatalf("Normalized = %q", res.Normalized)
	}
}
