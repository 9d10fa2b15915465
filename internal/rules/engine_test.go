package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"earshot/internal/kit"
	"earshot/pkg/logx"
)

type fakeDirectory struct {
	self   string
	emails map[string]string
}

func (d *fakeDirectory) SelfID() string { return d.self }
func (d *fakeDirectory) UserIDByEmail(_ context.Context, email string) string {
	return d.emails[email]
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(Config{StartTime: time.Unix(1000, 0)}, logx.Nop(), nil)
}

func msgAt(id string, ts float64) kit.Message {
	return kit.Message{
		ID:         id,
		Content:    "deploy finished",
		SenderID:   "U1",
		SenderName: "Sam",
		ChannelID:  "C1",
		Timestamp:  ts,
		Type:       kit.TypeChannel,
	}
}

func TestProcessMessageStartTimeGate(t *testing.T) {
	e := testEngine(t)
	if _, err := e.When("any").PlaySound("default").Done(); err != nil {
		t.Fatal(err)
	}

	if got := e.ProcessMessage(msgAt("old", 999)); got != nil {
		t.Fatalf("pre-start message produced actions: %v", got)
	}
	if got := e.ProcessMessage(msgAt("new", 1001)); len(got) != 1 {
		t.Fatalf("post-start message: got %d actions", len(got))
	}
}

func TestProcessMessageDedup(t *testing.T) {
	e := testEngine(t)
	if _, err := e.When("any").PlaySound("default").Done(); err != nil {
		t.Fatal(err)
	}

	if got := e.ProcessMessage(msgAt("m1", 2000)); len(got) != 1 {
		t.Fatalf("first pass: %d actions", len(got))
	}
	if got := e.ProcessMessage(msgAt("m1", 2000)); got != nil {
		t.Fatalf("duplicate id produced actions: %v", got)
	}
}

func TestProcessMessageDedupClearPastLimit(t *testing.T) {
	e := NewEngine(Config{StartTime: time.Unix(1000, 0), DedupLimit: 10}, logx.Nop(), nil)
	if _, err := e.When("any").PlaySound("default").Done(); err != nil {
		t.Fatal(err)
	}

	e.ProcessMessage(msgAt("m0", 2000))
	for i := 1; i <= 10; i++ {
		e.ProcessMessage(msgAt(fmt.Sprintf("fill%d", i), 2000))
	}
	// The set overflowed and was cleared wholesale, so m0 fires again.
	if got := e.ProcessMessage(msgAt("m0", 2000)); len(got) != 1 {
		t.Fatalf("expected re-fire after dedup reset, got %d actions", len(got))
	}
}

func TestProcessMessageStatusGating(t *testing.T) {
	e := testEngine(t)
	if _, err := e.When("low").WithPriority(kit.PriorityLow).PlaySound("default").Done(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.When("critical").WithPriority(kit.PriorityCritical).PlaySound("urgent").Done(); err != nil {
		t.Fatal(err)
	}

	e.SetStatus(kit.StatusDND)
	got := e.ProcessMessage(msgAt("m1", 2000))
	if len(got) != 1 {
		t.Fatalf("do_not_disturb should admit only the critical rule, got %d actions", len(got))
	}
	if got[0].ActionPriority() != kit.PriorityCritical {
		t.Fatalf("surviving action priority = %s", got[0].ActionPriority())
	}

	e.SetStatus(kit.StatusFocused)
	if got := e.ProcessMessage(msgAt("m2", 2000)); len(got) != 1 {
		t.Fatalf("focused should admit only the critical rule, got %d", len(got))
	}

	e.SetStatus(kit.StatusAway)
	if got := e.ProcessMessage(msgAt("m3", 2000)); len(got) != 2 {
		t.Fatalf("away should admit everything, got %d", len(got))
	}
}

func TestProcessMessageActionOrder(t *testing.T) {
	e := testEngine(t)
	if _, err := e.When("first low").WithPriority(kit.PriorityLow).Speak("{content}").Done(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.When("then high").WithPriority(kit.PriorityHigh).PlaySound("mention").Done(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.When("another low").WithPriority(kit.PriorityLow).Speak("again {content}").Done(); err != nil {
		t.Fatal(err)
	}

	got := e.ProcessMessage(msgAt("m1", 2000))
	if len(got) != 3 {
		t.Fatalf("got %d actions", len(got))
	}
	if got[0].ActionPriority() != kit.PriorityHigh {
		t.Fatalf("high priority action must sort first, got %s", got[0].ActionPriority())
	}
	// Stable sort: the two low actions keep rule registration order.
	first, ok := got[1].(Speak)
	if !ok {
		t.Fatalf("expected Speak, got %T", got[1])
	}
	if first.Template != "deploy finished" {
		t.Fatalf("tie broken out of order: %q", first.Template)
	}
}

func TestProcessMessageBrokenRuleSkipped(t *testing.T) {
	e := testEngine(t)
	e.AddRule(Rule{
		ID:         "rule_broken",
		Name:       "broken",
		Conditions: map[Condition]string{CondContent: "("},
		Actions:    []Action{Notify{Profile: "default", Priority: kit.PriorityMedium}},
		Priority:   kit.PriorityMedium,
		Enabled:    true,
	})
	if _, err := e.When("ok").PlaySound("default").Done(); err != nil {
		t.Fatal(err)
	}

	if got := e.ProcessMessage(msgAt("m1", 2000)); len(got) != 1 {
		t.Fatalf("unbroken rule should still fire, got %d actions", len(got))
	}
}

func TestRuleExceptions(t *testing.T) {
	e := testEngine(t)
	if _, err := e.When("noisy").PlaySound("default").AddException("U1").Done(); err != nil {
		t.Fatal(err)
	}
	if got := e.ProcessMessage(msgAt("m1", 2000)); got != nil {
		t.Fatalf("excepted sender matched: %v", got)
	}
}

func TestRuleMatchesConditions(t *testing.T) {
	r := Rule{
		ID:      "rule_x",
		Name:    "x",
		Enabled: true,
		Conditions: map[Condition]string{
			CondSender:      "U1",
			CondChannel:     "C1",
			CondContent:     "DEPLOY",
			CondMessageType: "channel",
		},
	}

	ok, err := r.Matches(msgAt("m1", 2000))
	if err != nil || !ok {
		t.Fatalf("all conditions should match (case-insensitive content): ok=%v err=%v", ok, err)
	}

	other := msgAt("m2", 2000)
	other.ChannelID = "C2"
	if ok, _ := r.Matches(other); ok {
		t.Fatal("channel mismatch should not match")
	}

	r.Enabled = false
	if ok, _ := r.Matches(msgAt("m3", 2000)); ok {
		t.Fatal("disabled rule matched")
	}
}

func TestAddRuleReplaceKeepsOrder(t *testing.T) {
	e := testEngine(t)
	if _, err := e.When("a").PlaySound("default").Done(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.When("b").PlaySound("default").Done(); err != nil {
		t.Fatal(err)
	}

	replacement := Rule{ID: RuleID("a"), Name: "a", Enabled: true, Priority: kit.PriorityHigh}
	e.AddRule(replacement)

	rs := e.Rules()
	if len(rs) != 2 || rs[0].ID != "rule_a" || rs[0].Priority != kit.PriorityHigh {
		t.Fatalf("replace moved or lost the rule: %+v", rs)
	}

	e.RemoveRule("rule_a")
	rs = e.Rules()
	if len(rs) != 1 || rs[0].ID != "rule_b" {
		t.Fatalf("remove left %+v", rs)
	}
}
