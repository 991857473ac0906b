// Package types defines the shared value types that flow through the
// Switchboard utterance-routing pipeline: the caller [Turn], the rolling
// conversation [Context], extracted [Entities], and the caller [Intent]
// taxonomy.
//
// These types are deliberately free of behaviour and of dependencies on any
// other Switchboard package so that every pipeline stage can consume them
// without import cycles.
package types

import "time"

// Turn is a single caller utterance submitted for routing. RawText is never
// mutated by any pipeline stage; all normalization happens on copies.
type Turn struct {
	// RawText is the speech-to-text transcript exactly as received.
	RawText string

	// CallID is the stable identifier of the phone call this turn belongs to.
	CallID string

	// TurnIndex is the zero-based position of this turn within the call.
	TurnIndex int

	// Timestamp is when the transcript was received.
	Timestamp time.Time

	// TemplateID and CompanyID select the tenant configuration for this turn.
	TemplateID string
	CompanyID  string

	// Context carries prior-turn conversation state. May be nil on the first
	// turn of a call.
	Context *Context
}

// Context is the rolling conversation state carried between turns of one call.
// The router treats it as read-only; the telephony adapter owns its lifecycle.
type Context struct {
	// LastIntent is the string name of the intent detected on the previous
	// turn (e.g. "BOOK"). Empty on the first turn.
	LastIntent string

	// LastScenarioID is the scenario accepted on the previous turn, if any.
	LastScenarioID string

	// Slots holds values captured so far in the conversation
	// (e.g. "name" → "Maria", "phone" → "5551234567").
	Slots map[string]string

	// State holds arbitrary key=value conversation facts consulted by
	// scenario preconditions (e.g. "booking_confirmed" → "true").
	State map[string]string

	// Cooldowns maps scenario IDs to the time they last fired. A scenario
	// whose cooldown has not elapsed is ineligible for matching.
	Cooldowns map[string]time.Time

	// PreferredScenarios lists scenario IDs the caller profile favours;
	// they receive a context-score boost during matching.
	PreferredScenarios []string

	// ForcedScenarioID, when set by the optimization policy, short-circuits
	// the LLM tier with a known-good scenario.
	ForcedScenarioID string
}

// SlotValue returns the captured slot value for key, or "" when absent.
// Safe to call on a nil Context.
func (c *Context) SlotValue(key string) string {
	if c == nil || c.Slots == nil {
		return ""
	}
	return c.Slots[key]
}

// StateValue returns the conversation-state value for key, or "" when absent.
// Safe to call on a nil Context.
func (c *Context) StateValue(key string) string {
	if c == nil || c.State == nil {
		return ""
	}
	return c.State[key]
}

// OnCooldown reports whether scenarioID fired less than cooldown ago.
// Safe to call on a nil Context; a zero cooldown never blocks.
func (c *Context) OnCooldown(scenarioID string, cooldown time.Duration, now time.Time) bool {
	if c == nil || cooldown <= 0 {
		return false
	}
	last, ok := c.Cooldowns[scenarioID]
	if !ok {
		return false
	}
	return now.Sub(last) < cooldown
}

// Entities is the bag of structured values extracted from a single utterance.
type Entities struct {
	FirstName string
	LastName  string
	FullName  string

	// NameValidated is true when the name dictionary confirmed the
	// first/last classification; false for lower-confidence guesses.
	NameValidated bool

	// Phone is a normalized 10-digit phone number, or "".
	Phone string

	Email   string
	Address string

	// Custom holds entities captured by template-configured patterns,
	// keyed by the pattern's entity name.
	Custom map[string]string
}

// Empty reports whether no entity of any kind was extracted.
func (e Entities) Empty() bool {
	return e.FirstName == "" && e.LastName == "" && e.FullName == "" &&
		e.Phone == "" && e.Email == "" && e.Address == "" && len(e.Custom) == 0
}

// Intent classifies what the caller is trying to accomplish. The ordering of
// the constants is by ascending priority so that the highest-priority detected
// intent can be selected with a simple comparison.
type Intent int

const (
	// IntentNone means no intent keyword set matched.
	IntentNone Intent = iota
	IntentSmalltalk
	IntentQuestion
	IntentStatus
	IntentReschedule
	IntentBook
	IntentEmergency
)

// String returns the canonical upper-case intent name used in templates,
// traces, and conversation context.
func (i Intent) String() string {
	switch i {
	case IntentEmergency:
		return "EMERGENCY"
	case IntentBook:
		return "BOOK"
	case IntentReschedule:
		return "RESCHEDULE"
	case IntentStatus:
		return "STATUS"
	case IntentQuestion:
		return "QUESTION"
	case IntentSmalltalk:
		return "SMALLTALK"
	default:
		return "NONE"
	}
}

// Priority returns the detection priority of the intent. When several intents
// match one utterance, the highest priority wins.
func (i Intent) Priority() int {
	switch i {
	case IntentEmergency:
		return 100
	case IntentBook:
		return 80
	case IntentReschedule:
		return 60
	case IntentStatus:
		return 40
	case IntentQuestion:
		return 20
	case IntentSmalltalk:
		return 10
	default:
		return 0
	}
}

// Bonus returns the additive score adjustment applied to scenarios whose name
// or categories match this intent. SMALLTALK carries a small penalty.
func (i Intent) Bonus() float64 {
	switch i {
	case IntentEmergency:
		return 0.50
	case IntentBook:
		return 0.40
	case IntentReschedule:
		return 0.25
	case IntentStatus:
		return 0.15
	case IntentSmalltalk:
		return -0.10
	default:
		return 0
	}
}

// ParseIntent converts a canonical intent name (as stored in templates or
// conversation context) back to an Intent. Unknown names map to IntentNone.
func ParseIntent(name string) Intent {
	switch name {
	case "EMERGENCY":
		return IntentEmergency
	case "BOOK":
		return IntentBook
	case "RESCHEDULE":
		return IntentReschedule
	case "STATUS":
		return IntentStatus
	case "QUESTION":
		return IntentQuestion
	case "SMALLTALK":
		return IntentSmalltalk
	default:
		return IntentNone
	}
}

// AllIntents lists the detectable intents in descending priority order.
// Used by the matcher and behavior engine to iterate deterministically.
var AllIntents = []Intent{
	IntentEmergency,
	IntentBook,
	IntentReschedule,
	IntentStatus,
	IntentQuestion,
	IntentSmalltalk,
}
