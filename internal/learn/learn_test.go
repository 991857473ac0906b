package learn

import (
	"context"
	"errors"
	"testing"

	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/template"
)

func seedStore(t *testing.T) *template.MemStore {
	t.Helper()
	store := template.NewMemStore()
	err := store.PutTemplate(&template.Template{
		ID:      "tpl-hvac",
		Version: 1,
		Scenarios: []template.Scenario{
			{ID: "sc-heating", Name: "heating", Triggers: []string{"no heat"}, Status: template.StatusLive},
		},
	})
	if err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	return store
}

// memSuggestions collects enqueued suggestions.
type memSuggestions struct {
	seen []Suggestion
	err  error
}

func (m *memSuggestions) Enqueue(_ context.Context, s Suggestion) error {
	m.seen = append(m.seen, s)
	return m.err
}

func TestLearner_SplitsAtConfidenceFloor(t *testing.T) {
	store := seedStore(t)
	sugg := &memSuggestions{}
	l := New(store, WithSuggestionLog(sugg))

	patterns := []template.Pattern{
		{Kind: template.PatternFiller, Word: "basically", Confidence: 0.9},
		{Kind: template.PatternSynonym, Term: "thermostat", Aliases: []string{"heat dial"}, Confidence: 0.5},
	}

	trace := diag.NewEnvelope("call-1", 0)
	out, err := l.Apply(context.Background(), "tpl-hvac", 1, patterns, "the heat dial is off", "sc-heating", trace)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(out.Applied) != 1 || out.Applied[0].Kind != template.PatternFiller {
		t.Fatalf("applied = %+v, want the filler pattern", out.Applied)
	}
	if len(out.Suggested) != 1 || out.Suggested[0].Kind != template.PatternSynonym {
		t.Fatalf("suggested = %+v, want the synonym pattern", out.Suggested)
	}
	if len(sugg.seen) != 1 || sugg.seen[0].Utterance != "the heat dial is off" {
		t.Fatalf("suggestion log = %+v", sugg.seen)
	}
	if !trace.Has(diag.EventPatternLearning) {
		t.Fatal("learning pass should trace")
	}

	tpl, _ := store.LoadTemplate(context.Background(), "tpl-hvac")
	if tpl.Version != 2 {
		t.Fatalf("version = %d, want bumped to 2", tpl.Version)
	}
	if len(tpl.Synonyms) != 0 {
		t.Fatal("below-floor synonym must not be applied")
	}
}

func TestLearner_VersionConflictDropsPatterns(t *testing.T) {
	store := seedStore(t)
	l := New(store)

	out, err := l.Apply(context.Background(), "tpl-hvac", 99,
		[]template.Pattern{{Kind: template.PatternFiller, Word: "basically", Confidence: 0.9}},
		"", "", nil)
	if err != nil {
		t.Fatalf("Apply: %v, conflicts must not surface as errors", err)
	}
	if !out.Conflicted || len(out.Applied) != 0 {
		t.Fatalf("outcome = %+v, want conflicted with nothing applied", out)
	}

	tpl, _ := store.LoadTemplate(context.Background(), "tpl-hvac")
	if tpl.Version != 1 {
		t.Fatalf("version = %d, want unchanged", tpl.Version)
	}
}

func TestLearner_RejectsUnknownKinds(t *testing.T) {
	store := seedStore(t)
	l := New(store)

	out, err := l.Apply(context.Background(), "tpl-hvac", 1,
		[]template.Pattern{{Kind: "mystery", Confidence: 0.99}},
		"", "", nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Rejected) != 1 || len(out.Applied) != 0 {
		t.Fatalf("outcome = %+v, want one rejection", out)
	}
}

func TestLearner_CustomFloor(t *testing.T) {
	store := seedStore(t)
	l := New(store, WithConfidenceFloor(0.5))

	out, err := l.Apply(context.Background(), "tpl-hvac", 1,
		[]template.Pattern{{Kind: template.PatternFiller, Word: "basically", Confidence: 0.6}},
		"", "", nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Applied) != 1 {
		t.Fatalf("outcome = %+v, want applied under the lowered floor", out)
	}
}

func TestLearner_StoreErrorsSurface(t *testing.T) {
	l := New(failingStore{})

	_, err := l.Apply(context.Background(), "tpl-hvac", 1,
		[]template.Pattern{{Kind: template.PatternFiller, Word: "basically", Confidence: 0.9}},
		"", "", nil)
	if err == nil {
		t.Fatal("non-conflict store errors must surface")
	}
}

func TestLearner_EmptyPatternsNoOp(t *testing.T) {
	l := New(failingStore{}) // would error if touched
	out, err := l.Apply(context.Background(), "tpl-hvac", 1, nil, "", "", nil)
	if err != nil || len(out.Applied)+len(out.Rejected)+len(out.Suggested) != 0 {
		t.Fatalf("outcome = %+v err=%v, want a clean no-op", out, err)
	}
}

// failingStore errors on every operation.
type failingStore struct{}

func (failingStore) LoadTemplate(context.Context, string) (*template.Template, error) {
	return nil, errors.New("store down")
}

func (failingStore) ApplyPatterns(context.Context, string, []template.Pattern, int64) (*template.ApplyResult, error) {
	return nil, errors.New("store down")
}
