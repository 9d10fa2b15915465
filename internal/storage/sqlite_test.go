package storage

import (
	"context"
	"path/filepath"
	"testing"

	"earshot/internal/kit"
	"earshot/internal/rules"
	"earshot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "earshot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if st == nil {
		t.Fatal("store is nil")
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{Path: "  "}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if st != nil {
		t.Fatal("empty path should disable storage")
	}
}

func TestProfileRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	in := []kit.Profile{
		{
			Name:            "urgent",
			Sound:           kit.SoundUrgent,
			TitleTemplate:   "Urgent",
			MessageTemplate: "URGENT: {content}",
			Volume:          0.8,
			Priority:        kit.PriorityCritical,
			Enabled:         true,
			Settings:        kit.BackendSettings{"orca": {"rate": float64(90)}},
		},
		{
			Name:            "quiet",
			Sound:           kit.SoundMessage,
			TitleTemplate:   "Msg",
			MessageTemplate: "{sender}",
			Volume:          0.2,
			Priority:        kit.PriorityLow,
		},
	}
	assignments := map[string]string{"U1": "urgent"}

	if err := st.SaveProfiles(ctx, in, assignments); err != nil {
		t.Fatal(err)
	}
	profiles, gotAssign, err := st.LoadProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("loaded %d profiles", len(profiles))
	}
	byName := map[string]kit.Profile{}
	for _, p := range profiles {
		byName[p.Name] = p
	}
	u := byName["urgent"]
	if u.Priority != kit.PriorityCritical || !u.Enabled || u.Volume != 0.8 {
		t.Errorf("urgent = %+v", u)
	}
	if u.Settings["orca"]["rate"] != float64(90) {
		t.Errorf("settings = %v", u.Settings)
	}
	if byName["quiet"].Enabled {
		t.Error("quiet should stay disabled")
	}
	if gotAssign["U1"] != "urgent" {
		t.Errorf("assignments = %v", gotAssign)
	}

	// Save replaces wholesale.
	if err := st.SaveProfiles(ctx, in[:1], nil); err != nil {
		t.Fatal(err)
	}
	profiles, gotAssign, err = st.LoadProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || len(gotAssign) != 0 {
		t.Fatalf("after replace: %d profiles, %d assignments", len(profiles), len(gotAssign))
	}
}

func TestRuleRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	r := rules.Rule{
		ID:   "rule_deploys",
		Name: "deploys",
		Conditions: map[rules.Condition]string{
			rules.CondChannel: "C1",
			rules.CondContent: "deploy",
		},
		Actions: []rules.Action{
			rules.Notify{Profile: "mention", Template: "{content}", Priority: kit.PriorityHigh},
		},
		Priority: kit.PriorityHigh,
		Enabled:  true,
	}
	if err := st.SaveRule(ctx, r); err != nil {
		t.Fatal(err)
	}

	// Upsert on the same id.
	r.Name = "deploy alerts"
	if err := st.SaveRule(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := st.LoadRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d rules", len(got))
	}
	if got[0].Name != "deploy alerts" || got[0].Conditions[rules.CondChannel] != "C1" {
		t.Errorf("rule = %+v", got[0])
	}
	if len(got[0].Actions) != 1 || got[0].Actions[0].ActionPriority() != kit.PriorityHigh {
		t.Errorf("actions = %+v", got[0].Actions)
	}

	if err := st.DeleteRule(ctx, "rule_deploys"); err != nil {
		t.Fatal(err)
	}
	got, err = st.LoadRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("%d rules after delete", len(got))
	}
}

func TestUserCache(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetUserByEmail(ctx, "ana@example.com"); err != nil || ok {
		t.Fatalf("lookup on empty table: ok=%v err=%v", ok, err)
	}

	u := User{ID: "U1", Name: "Ana", Email: "ana@example.com"}
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	u.Name = "Ana B"
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	got, ok, err := st.GetUserByEmail(ctx, "ana@example.com")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.ID != "U1" || got.Name != "Ana B" {
		t.Errorf("user = %+v", got)
	}
}

func TestTokensRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.Tokens(ctx); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v", ok, err)
	}

	in := Tokens{AppToken: "xapp-1", BotToken: "xoxb-1", UserToken: "xoxp-1"}
	if err := st.SaveTokens(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.BotToken = "xoxb-2"
	if err := st.SaveTokens(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, ok, err := st.Tokens(ctx)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got != in {
		t.Errorf("tokens = %+v", got)
	}
}
