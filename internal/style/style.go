// Package style renders structural actions (ask a slot, confirm a booking,
// greet, escalate) into concrete utterances without calling an LLM. Slot
// questions come verbatim from template configuration; acknowledgments are
// chosen deterministically from small variant arrays seeded by the session id,
// so a caller hears variety within one call but tests get reproducible output.
package style

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openclerk/switchboard/internal/diag"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// Action is the structural thing the agent needs to say next.
type Action string

const (
	ActionAskSlot        Action = "ASK_SLOT"
	ActionClarify        Action = "CLARIFY"
	ActionConfirmBooking Action = "CONFIRM_BOOKING"
	ActionEscalate       Action = "ESCALATE"
	ActionGreeting       Action = "GREETING"
	ActionFallback       Action = "FALLBACK"
	ActionError          Action = "ERROR"
)

// confirmSlotOrder fixes the order slots appear in confirmation summaries.
var confirmSlotOrder = []string{"name", "phone", "address", "time"}

// Built-in acknowledgment variants per conversation style. Company ack
// overrides replace a style's list wholesale.
var ackVariants = map[string][]string{
	"confident": {"Got it.", "Perfect.", "Done.", "Noted."},
	"balanced":  {"Got it, thank you.", "Great, thanks.", "Okay, noted."},
	"polite":    {"Thank you so much.", "Wonderful, thank you.", "Lovely, thank you."},
}

// defaultSlotQuestions back up templates that configure no question for a
// slot.
var defaultSlotQuestions = map[string]string{
	"name":    "May I have your name, please?",
	"phone":   "What's the best phone number to reach you?",
	"address": "What's the service address?",
	"time":    "What day and time works best for you?",
}

const (
	defaultGreeting   = "Thanks for calling %s, how can I help you today?"
	defaultFallback   = "Let me have one of our specialists follow up with you."
	defaultError      = "I'm sorry, something went wrong on my end. Could you say that again?"
	defaultClarify    = "Just to make sure I understand — could you tell me a bit more?"
	confirmationClose = "Is that all correct?"
)

// Request carries one render call.
type Request struct {
	Action Action

	// SessionID seeds the variant picker; usually the call ID.
	SessionID string

	// Slot names the slot to ask for when Action is ASK_SLOT.
	Slot string

	// Prompt overrides the built-in text for CLARIFY and FALLBACK.
	Prompt string

	// Extracted holds entities captured this turn; a fresh capture gets a
	// personalized acknowledgment before the next question.
	Extracted types.Entities

	// Slots are the values collected so far, summarized by CONFIRM_BOOKING.
	Slots map[string]string

	// Template supplies exact slot questions. May be nil.
	Template *template.Template

	// Company supplies the conversation style and ack overrides. May be nil.
	Company *template.Company

	// Trace receives a STYLE event. May be nil.
	Trace *diag.Envelope
}

// Response is the rendered utterance.
type Response struct {
	Say    string
	Action Action

	// Expecting names the slot the agent now waits for, when any.
	Expecting string
}

// Renderer holds per-session variant-picker state. Safe for concurrent use.
type Renderer struct {
	mu     sync.Mutex
	states map[string]uint32
}

// New constructs a Renderer.
func New() *Renderer {
	return &Renderer{states: make(map[string]uint32)}
}

// Render produces the utterance for one action.
func (r *Renderer) Render(req Request) Response {
	var resp Response
	switch req.Action {
	case ActionAskSlot:
		resp = r.renderAskSlot(req)
	case ActionClarify:
		say := req.Prompt
		if say == "" {
			say = defaultClarify
		}
		resp = Response{Say: say, Action: ActionClarify}
	case ActionConfirmBooking:
		resp = Response{Say: renderConfirmation(req.Slots), Action: ActionConfirmBooking, Expecting: "yes_no"}
	case ActionEscalate:
		resp = Response{Say: defaultFallback, Action: ActionEscalate}
	case ActionGreeting:
		resp = Response{Say: renderGreeting(req.Company), Action: ActionGreeting}
	case ActionFallback:
		say := req.Prompt
		if say == "" {
			say = defaultFallback
		}
		resp = Response{Say: say, Action: ActionFallback}
	default:
		resp = Response{Say: defaultError, Action: ActionError}
	}

	if req.Trace != nil {
		req.Trace.Append(diag.EventStyle, "style", diag.StatusOK, map[string]any{
			"action":    string(resp.Action),
			"expecting": resp.Expecting,
		})
	}
	return resp
}

// EndSession drops the variant-picker state for a finished call.
func (r *Renderer) EndSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, sessionID)
}

// renderAskSlot acknowledges anything just captured, then asks the exact
// configured question for the requested slot.
func (r *Renderer) renderAskSlot(req Request) Response {
	var parts []string
	if ack := r.acknowledge(req); ack != "" {
		parts = append(parts, ack)
	}
	parts = append(parts, slotQuestion(req.Template, req.Slot))
	return Response{
		Say:       strings.Join(parts, " "),
		Action:    ActionAskSlot,
		Expecting: req.Slot,
	}
}

// acknowledge picks an acknowledgment for a just-extracted value:
// personalized by the captured slot first, else a variant of the company's
// conversation style.
func (r *Renderer) acknowledge(req Request) string {
	switch {
	case req.Extracted.FirstName != "":
		return fmt.Sprintf("Thanks, %s.", req.Extracted.FirstName)
	case req.Extracted.Phone != "":
		return "Got your number."
	case req.Extracted.Address != "":
		return "Got the address."
	case req.Extracted.Custom["time"] != "":
		return "That time works."
	}
	if req.Extracted.Empty() {
		return ""
	}
	return r.pickVariant(req.SessionID, ackList(req.Company))
}

// ackList returns the company's acknowledgment variants: the override for its
// conversation style when configured, else the built-in list, else balanced.
func ackList(c *template.Company) []string {
	styleKey := "balanced"
	if c != nil && c.ConversationStyle != "" {
		styleKey = strings.ToLower(c.ConversationStyle)
	}
	if c != nil {
		if override, ok := c.AckOverrides[styleKey]; ok && len(override) > 0 {
			return override
		}
	}
	if list, ok := ackVariants[styleKey]; ok {
		return list
	}
	return ackVariants["balanced"]
}

// pickVariant selects a variant with a linear-congruential generator keyed by
// session: the state advances on every selection, so one session cycles
// through variants in a fixed but non-repeating-feeling order.
func (r *Renderer) pickVariant(sessionID string, variants []string) string {
	if len(variants) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[sessionID]
	if !ok {
		state = seedFrom(sessionID)
	}
	// Numerical Recipes LCG constants.
	state = state*1664525 + 1013904223
	r.states[sessionID] = state

	return variants[int(state%uint32(len(variants)))]
}

// seedFrom derives the initial LCG state from the session id (FNV-1a).
func seedFrom(sessionID string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(sessionID); i++ {
		h ^= uint32(sessionID[i])
		h *= 16777619
	}
	return h
}

// slotQuestion returns the template's exact question for the slot, else the
// built-in default, else a generic prompt.
func slotQuestion(t *template.Template, slot string) string {
	if t != nil {
		if q, ok := t.SlotQuestions[slot]; ok && q != "" {
			return q
		}
	}
	if q, ok := defaultSlotQuestions[slot]; ok {
		return q
	}
	return fmt.Sprintf("Could you tell me your %s?", slot)
}

// renderConfirmation summarizes collected slots in fixed order and appends
// the yes/no question.
func renderConfirmation(slots map[string]string) string {
	var parts []string
	for _, key := range confirmSlotOrder {
		v := slots[key]
		if v == "" {
			continue
		}
		switch key {
		case "name":
			parts = append(parts, fmt.Sprintf("I have your name as %s", v))
		case "phone":
			parts = append(parts, fmt.Sprintf("your number as %s", v))
		case "address":
			parts = append(parts, fmt.Sprintf("the address as %s", v))
		case "time":
			parts = append(parts, fmt.Sprintf("the appointment for %s", v))
		}
	}
	if len(parts) == 0 {
		return confirmationClose
	}
	return "Let me confirm: " + strings.Join(parts, ", ") + ". " + confirmationClose
}

// renderGreeting uses the company name when known.
func renderGreeting(c *template.Company) string {
	name := "us"
	if c != nil && c.Name != "" {
		name = c.Name
	}
	return fmt.Sprintf(defaultGreeting, name)
}
