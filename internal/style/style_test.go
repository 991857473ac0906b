package style

import (
	"strings"
	"testing"

	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

func TestRender_AskSlotUsesConfiguredQuestion(t *testing.T) {
	tpl := &template.Template{
		SlotQuestions: map[string]string{"phone": "What number should the technician call?"},
	}

	r := New()
	resp := r.Render(Request{Action: ActionAskSlot, Slot: "phone", Template: tpl})

	if resp.Say != "What number should the technician call?" {
		t.Fatalf("Say = %q", resp.Say)
	}
	if resp.Expecting != "phone" {
		t.Fatalf("Expecting = %q, want phone", resp.Expecting)
	}
}

func TestRender_AskSlotFallsBackToDefaults(t *testing.T) {
	r := New()
	resp := r.Render(Request{Action: ActionAskSlot, Slot: "address"})
	if resp.Say != "What's the service address?" {
		t.Fatalf("Say = %q", resp.Say)
	}

	resp = r.Render(Request{Action: ActionAskSlot, Slot: "pet"})
	if resp.Say != "Could you tell me your pet?" {
		t.Fatalf("Say = %q, want the generic prompt", resp.Say)
	}
}

func TestRender_PersonalizedAcknowledgments(t *testing.T) {
	r := New()

	resp := r.Render(Request{
		Action:    ActionAskSlot,
		Slot:      "phone",
		Extracted: types.Entities{FirstName: "Maria"},
	})
	if !strings.HasPrefix(resp.Say, "Thanks, Maria.") {
		t.Fatalf("Say = %q, want the name acknowledgment first", resp.Say)
	}

	resp = r.Render(Request{
		Action:    ActionAskSlot,
		Slot:      "address",
		Extracted: types.Entities{Phone: "5551234567"},
	})
	if !strings.HasPrefix(resp.Say, "Got your number.") {
		t.Fatalf("Say = %q, want the phone acknowledgment first", resp.Say)
	}

	// Nothing captured this turn: the question stands alone.
	resp = r.Render(Request{Action: ActionAskSlot, Slot: "name"})
	if resp.Say != "May I have your name, please?" {
		t.Fatalf("Say = %q, want no acknowledgment", resp.Say)
	}
}

func TestRender_VariantPickerIsDeterministic(t *testing.T) {
	entities := types.Entities{Custom: map[string]string{"color": "blue"}}

	a := New()
	b := New()
	for i := 0; i < 5; i++ {
		got := a.Render(Request{Action: ActionAskSlot, Slot: "time", SessionID: "call-1", Extracted: entities})
		want := b.Render(Request{Action: ActionAskSlot, Slot: "time", SessionID: "call-1", Extracted: entities})
		if got.Say != want.Say {
			t.Fatalf("turn %d: %q vs %q, want identical sequences per session id", i, got.Say, want.Say)
		}
	}
}

func TestRender_AckOverridesReplaceBuiltins(t *testing.T) {
	co := &template.Company{
		ConversationStyle: "confident",
		AckOverrides:      map[string][]string{"confident": {"Understood."}},
	}
	entities := types.Entities{Custom: map[string]string{"color": "blue"}}

	r := New()
	resp := r.Render(Request{
		Action:    ActionAskSlot,
		Slot:      "time",
		SessionID: "call-1",
		Company:   co,
		Extracted: entities,
	})
	if !strings.HasPrefix(resp.Say, "Understood.") {
		t.Fatalf("Say = %q, want the override acknowledgment", resp.Say)
	}
}

func TestAckList_StyleSelection(t *testing.T) {
	if got := ackList(nil); got[0] != ackVariants["balanced"][0] {
		t.Fatalf("nil company ackList = %v, want balanced", got)
	}
	co := &template.Company{ConversationStyle: "Polite"}
	if got := ackList(co); got[0] != ackVariants["polite"][0] {
		t.Fatalf("polite ackList = %v", got)
	}
	co = &template.Company{ConversationStyle: "swagger"}
	if got := ackList(co); got[0] != ackVariants["balanced"][0] {
		t.Fatalf("unknown style ackList = %v, want balanced fallback", got)
	}
}

func TestRender_ConfirmationSlotOrder(t *testing.T) {
	r := New()
	resp := r.Render(Request{
		Action: ActionConfirmBooking,
		Slots: map[string]string{
			"time":    "tomorrow at 9",
			"name":    "Maria Garcia",
			"phone":   "5551234567",
			"address": "42 Oak Street",
		},
	})

	want := "Let me confirm: I have your name as Maria Garcia, your number as 5551234567, " +
		"the address as 42 Oak Street, the appointment for tomorrow at 9. Is that all correct?"
	if resp.Say != want {
		t.Fatalf("Say = %q\nwant  %q", resp.Say, want)
	}
	if resp.Expecting != "yes_no" {
		t.Fatalf("Expecting = %q, want yes_no", resp.Expecting)
	}

	// Missing slots are skipped, order preserved.
	resp = r.Render(Request{
		Action: ActionConfirmBooking,
		Slots:  map[string]string{"phone": "5551234567", "time": "tomorrow"},
	})
	want = "Let me confirm: your number as 5551234567, the appointment for tomorrow. Is that all correct?"
	if resp.Say != want {
		t.Fatalf("Say = %q", resp.Say)
	}

	resp = r.Render(Request{Action: ActionConfirmBooking})
	if resp.Say != confirmationClose {
		t.Fatalf("Say with no slots = %q", resp.Say)
	}
}

func TestRender_GreetingAndFallbacks(t *testing.T) {
	r := New()

	resp := r.Render(Request{Action: ActionGreeting, Company: &template.Company{Name: "Comfort Climate"}})
	if resp.Say != "Thanks for calling Comfort Climate, how can I help you today?" {
		t.Fatalf("greeting = %q", resp.Say)
	}
	resp = r.Render(Request{Action: ActionGreeting})
	if !strings.Contains(resp.Say, "calling us") {
		t.Fatalf("anonymous greeting = %q", resp.Say)
	}

	resp = r.Render(Request{Action: ActionClarify})
	if resp.Say != defaultClarify {
		t.Fatalf("clarify = %q", resp.Say)
	}
	resp = r.Render(Request{Action: ActionClarify, Prompt: "Urgent or a visit?"})
	if resp.Say != "Urgent or a visit?" {
		t.Fatalf("clarify with prompt = %q", resp.Say)
	}

	resp = r.Render(Request{Action: ActionFallback})
	if resp.Say != defaultFallback {
		t.Fatalf("fallback = %q", resp.Say)
	}

	resp = r.Render(Request{Action: Action("BOGUS")})
	if resp.Action != ActionError || resp.Say != defaultError {
		t.Fatalf("unknown action = %+v", resp)
	}
}

func TestRenderer_EndSessionResetsVariantState(t *testing.T) {
	entities := types.Entities{Custom: map[string]string{"color": "blue"}}
	req := Request{Action: ActionAskSlot, Slot: "time", SessionID: "call-1", Extracted: entities}

	r := New()
	first := r.Render(req).Say
	r.Render(req)
	r.Render(req)

	// After the session ends the picker reseeds from the id, so the next call
	// repeats the session's first acknowledgment.
	r.EndSession("call-1")
	if got := r.Render(req).Say; got != first {
		t.Fatalf("post-reset Say = %q, want %q", got, first)
	}
}
