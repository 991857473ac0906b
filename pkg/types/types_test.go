package types

import (
	"testing"
	"time"
)

func TestContext_NilSafety(t *testing.T) {
	var c *Context
	if got := c.SlotValue("name"); got != "" {
		t.Fatalf("SlotValue on nil context = %q, want empty", got)
	}
	if got := c.StateValue("booking_confirmed"); got != "" {
		t.Fatalf("StateValue on nil context = %q, want empty", got)
	}
	if c.OnCooldown("sc-1", time.Minute, time.Now()) {
		t.Fatal("OnCooldown on nil context should be false")
	}
}

func TestContext_SlotAndStateLookup(t *testing.T) {
	c := &Context{
		Slots: map[string]string{"name": "Maria"},
		State: map[string]string{"booking_confirmed": "true"},
	}
	if got := c.SlotValue("name"); got != "Maria" {
		t.Fatalf("SlotValue = %q, want Maria", got)
	}
	if got := c.SlotValue("phone"); got != "" {
		t.Fatalf("SlotValue for absent key = %q, want empty", got)
	}
	if got := c.StateValue("booking_confirmed"); got != "true" {
		t.Fatalf("StateValue = %q, want true", got)
	}
}

func TestContext_OnCooldown(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c := &Context{
		Cooldowns: map[string]time.Time{
			"sc-recent": now.Add(-30 * time.Second),
			"sc-old":    now.Add(-10 * time.Minute),
		},
	}

	if !c.OnCooldown("sc-recent", time.Minute, now) {
		t.Fatal("scenario that fired 30s ago should be on a 1m cooldown")
	}
	if c.OnCooldown("sc-old", time.Minute, now) {
		t.Fatal("scenario that fired 10m ago should be off a 1m cooldown")
	}
	if c.OnCooldown("sc-never", time.Minute, now) {
		t.Fatal("scenario that never fired should not be on cooldown")
	}
	if c.OnCooldown("sc-recent", 0, now) {
		t.Fatal("zero cooldown must never block")
	}
}

func TestEntities_Empty(t *testing.T) {
	if !(Entities{}).Empty() {
		t.Fatal("zero Entities should be empty")
	}
	if (Entities{Phone: "5551234567"}).Empty() {
		t.Fatal("Entities with a phone should not be empty")
	}
	if (Entities{Custom: map[string]string{"time": "tomorrow"}}).Empty() {
		t.Fatal("Entities with a custom value should not be empty")
	}
	// NameValidated alone carries no extracted value.
	if !(Entities{NameValidated: true}).Empty() {
		t.Fatal("NameValidated without names should still be empty")
	}
}

func TestIntent_RoundTrip(t *testing.T) {
	for _, in := range AllIntents {
		if got := ParseIntent(in.String()); got != in {
			t.Fatalf("ParseIntent(%q) = %v, want %v", in.String(), got, in)
		}
	}
	if got := ParseIntent("SOMETHING_ELSE"); got != IntentNone {
		t.Fatalf("ParseIntent of unknown name = %v, want IntentNone", got)
	}
	if got := IntentNone.String(); got != "NONE" {
		t.Fatalf("IntentNone.String() = %q, want NONE", got)
	}
}

func TestIntent_PriorityOrdering(t *testing.T) {
	// AllIntents is documented as descending priority; the matcher depends
	// on that to break ties deterministically.
	for i := 1; i < len(AllIntents); i++ {
		if AllIntents[i-1].Priority() <= AllIntents[i].Priority() {
			t.Fatalf("AllIntents[%d] (%v) should outrank AllIntents[%d] (%v)",
				i-1, AllIntents[i-1], i, AllIntents[i])
		}
	}
}

func TestIntent_Bonus(t *testing.T) {
	if got := IntentEmergency.Bonus(); got != 0.50 {
		t.Fatalf("emergency bonus = %v, want 0.50", got)
	}
	if got := IntentSmalltalk.Bonus(); got != -0.10 {
		t.Fatalf("smalltalk bonus = %v, want -0.10", got)
	}
	if got := IntentNone.Bonus(); got != 0 {
		t.Fatalf("none bonus = %v, want 0", got)
	}
}
