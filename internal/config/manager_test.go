package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"earshot/pkg/logx"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
slack:
  email: ana@example.com
  presence_poll: 45s
logging:
  level: debug
  console: true
rules:
  - name: deploys
    channel: C1
    containing: deploy
    priority: high
    notify:
      profile: mention
`)
	m := NewManager(path, logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.Email != "ana@example.com" || cfg.Slack.PresencePoll != "45s" {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Notify == nil || cfg.Rules[0].Notify.Profile != "mention" {
		t.Errorf("rules = %+v", cfg.Rules)
	}
	if m.Get() != cfg {
		t.Error("Load must commit")
	}
}

func TestParseJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"slack":{"email":"a@b.c"},"logging":{"level":"info"}}`)
	cfg, err := NewManager(path, logx.Nop()).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.Email != "a@b.c" {
		t.Errorf("email = %q", cfg.Slack.Email)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.yaml", "slack:\n  email: a@b.c\n  shoesize: 42\n")
	if _, err := NewManager(path, logx.Nop()).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	} else if !strings.Contains(err.Error(), "shoesize") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeFile(t, "config.json", `{"slack":{"email":"a@b.c"}}{"extra":true}`)
	if _, err := NewManager(path, logx.Nop()).Parse(); err == nil {
		t.Fatal("trailing document accepted")
	}
}

func TestEqual(t *testing.T) {
	a := &Config{Slack: SlackConfig{Email: "a@b.c"}}
	b := &Config{Slack: SlackConfig{Email: "a@b.c"}}
	if !Equal(a, b) {
		t.Error("identical configs compare unequal")
	}
	b.Slack.Email = "x@y.z"
	if Equal(a, b) {
		t.Error("different configs compare equal")
	}
}

func TestSubscribeGetsLatest(t *testing.T) {
	path := writeFile(t, "config.json", `{"slack":{"email":"a@b.c"}}`)
	m := NewManager(path, logx.Nop())
	ch := m.Subscribe(1)

	// Two publishes against a full buffer: the newest wins.
	first := &Config{Slack: SlackConfig{Email: "one@x"}}
	second := &Config{Slack: SlackConfig{Email: "two@x"}}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-ch:
		if got.Slack.Email != "two@x" {
			t.Fatalf("got %q", got.Slack.Email)
		}
	case <-time.After(time.Second):
		t.Fatal("no config received")
	}
}

func TestParseDurations(t *testing.T) {
	if _, err := ParseDurationField("x", "not-a-duration"); err == nil {
		t.Error("bad duration accepted")
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Error("negative duration accepted")
	}
	d, err := ParseDurationOrDefault("x", "", 30*time.Second)
	if err != nil || d != 30*time.Second {
		t.Errorf("default not applied: %v %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "45s", 30*time.Second)
	if err != nil || d != 45*time.Second {
		t.Errorf("explicit value lost: %v %v", d, err)
	}
}
