package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"earshot/internal/config"
	"earshot/internal/kit"
	"earshot/internal/notify"
	"earshot/internal/rules"
	"earshot/internal/status"
	"earshot/pkg/logx"
)

func validConfig() *config.Config {
	return &config.Config{
		Slack: config.SlackConfig{Email: "ana@example.com"},
		Rules: []config.RuleConfig{
			{Name: "deploys", Channel: "C1", Notify: &config.NotifyAction{Profile: "mention"}},
			{Name: "spoken", Containing: "urgent", Speak: "{sender}: {content}"},
		},
		Status: config.StatusConfig{
			Initial: "active",
			Schedule: config.ScheduleConfig{
				Entries: []config.ScheduleEntry{{Spec: "0 22 * * *", Status: "do_not_disturb"}},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing email", func(c *config.Config) { c.Slack.Email = " " }, "slack.email"},
		{"bad poll", func(c *config.Config) { c.Slack.PresencePoll = "soon" }, "presence_poll"},
		{"bad deliver timeout", func(c *config.Config) { c.Notify.DeliverTimeout = "x" }, "deliver_timeout"},
		{"unnamed rule", func(c *config.Config) { c.Rules[0].Name = "" }, "name is required"},
		{"actionless rule", func(c *config.Config) { c.Rules[1].Speak = "" }, "notify or speak"},
		{"profileless notify", func(c *config.Config) { c.Rules[0].Notify.Profile = "" }, "notify.profile"},
		{"bad schedule status", func(c *config.Config) { c.Status.Schedule.Entries[0].Status = "zen" }, "unknown status"},
		{"bad initial status", func(c *config.Config) { c.Status.Initial = "sleepy" }, "status.initial"},
	}
	for _, c := range cases {
		cfg := validConfig()
		c.mutate(cfg)
		err := Validate(cfg)
		if err == nil {
			t.Errorf("%s: accepted", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: err = %v, want mention of %q", c.name, err, c.want)
		}
	}
}

type countingDeliverer struct {
	mu       sync.Mutex
	profiles []string
	done     chan struct{}
}

func (d *countingDeliverer) Backend() string { return "speech" }

func (d *countingDeliverer) Deliver(_ context.Context, _, _ string, p kit.Profile, _ map[string]any) error {
	d.mu.Lock()
	d.profiles = append(d.profiles, p.Name)
	d.mu.Unlock()
	d.done <- struct{}{}
	return nil
}

type staticDirectory map[string]string

func (staticDirectory) SelfID() string { return "USELF" }
func (d staticDirectory) UserIDByEmail(_ context.Context, email string) string { return d[email] }

// End to end through the ingestion pipeline: one matching message, one
// queued action, one delivery.
func TestPipelineEndToEnd(t *testing.T) {
	start := time.Unix(1000, 0)
	d := &countingDeliverer{done: make(chan struct{}, 8)}

	a := &App{log: logx.Nop()}
	a.statusMgr = status.NewManager(logx.Nop(), nil)
	a.engine = rules.NewEngine(rules.Config{StartTime: start}, logx.Nop(), nil)
	a.engine.SetDirectory(staticDirectory{"a@x.com": "U_A"})
	a.notifier = notify.New(notify.Config{StartTime: start, PollInterval: 5 * time.Millisecond},
		d, nil, logx.Nop(), nil)

	if err := a.notifier.CreateProfile(context.Background(), kit.Profile{
		Name: "p1", Priority: kit.PriorityHigh, Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.engine.When("message").
		FromPerson("a@x.com").
		WithPriority(kit.PriorityHigh).
		PlaySound("p1").
		Done(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.notifier.Start(ctx)

	a.onMessage(kit.Message{
		ID: "m1", Content: "hello", SenderID: "U_A", SenderName: "A",
		ChannelID: "C1", Timestamp: 2000, Type: kit.TypeChannel,
	})
	// A non-matching sender produces nothing.
	a.onMessage(kit.Message{
		ID: "m2", Content: "hello", SenderID: "U_B", SenderName: "B",
		ChannelID: "C1", Timestamp: 2000, Type: kit.TypeChannel,
	})

	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	time.Sleep(50 * time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.profiles) != 1 || d.profiles[0] != "p1" {
		t.Fatalf("deliveries = %v", d.profiles)
	}
}

// Buffered messages bypass the rule engine entirely.
func TestPipelineBuffersWhileFocused(t *testing.T) {
	start := time.Unix(1000, 0)
	d := &countingDeliverer{done: make(chan struct{}, 8)}

	a := &App{log: logx.Nop()}
	a.statusMgr = status.NewManager(logx.Nop(), nil)
	a.engine = rules.NewEngine(rules.Config{StartTime: start}, logx.Nop(), nil)
	a.notifier = notify.New(notify.Config{StartTime: start}, d, nil, logx.Nop(), nil)

	if _, err := a.engine.When("everything").WithPriority(kit.PriorityCritical).PlaySound("urgent").Done(); err != nil {
		t.Fatal(err)
	}

	a.statusMgr.SetStatus(kit.StatusFocused, true)
	a.onMessage(kit.Message{ID: "m1", Content: "x", SenderID: "U1", SenderName: "Ana", Timestamp: 2000})
	if got := a.notifier.QueueLen(); got != 0 {
		t.Fatalf("buffered message reached the queue: %d items", got)
	}
	if got := a.statusMgr.BufferSummary(); got != "1 message from Ana" {
		t.Fatalf("summary = %q", got)
	}
}

func TestScheduleConfigConversion(t *testing.T) {
	got := scheduleConfig(config.ScheduleConfig{
		Enabled:  true,
		Timezone: "UTC",
		Entries: []config.ScheduleEntry{
			{Spec: "0 22 * * *", Status: "do_not_disturb"},
			{Spec: "0 7 * * *", Status: "active"},
		},
	})
	if !got.Enabled || got.Timezone != "UTC" || len(got.Entries) != 2 {
		t.Fatalf("converted = %+v", got)
	}
	if got.Entries[0].Status != kit.StatusDND || got.Entries[1].Status != kit.StatusActive {
		t.Fatalf("statuses = %+v", got.Entries)
	}
}
