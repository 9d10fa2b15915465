// Package config loads and watches earshot's configuration file.
//
// The file may be YAML or JSON; YAML is coerced to JSON so both formats
// share one strict decoder (unknown fields are rejected).
package config

import "encoding/json"

type Config struct {
	Slack   SlackConfig   `json:"slack"`
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage,omitempty"`
	Notify  NotifyConfig  `json:"notify,omitempty"`
	Output  OutputConfig  `json:"output,omitempty"`
	Status  StatusConfig  `json:"status,omitempty"`

	// Rules declared in the file are built through the rule builder at
	// startup, after the ones loaded from storage.
	Rules []RuleConfig `json:"rules,omitempty"`
}

type SlackConfig struct {
	// Tokens may be omitted here when they were captured into storage
	// during setup.
	AppToken  string `json:"app_token,omitempty"`
	BotToken  string `json:"bot_token,omitempty"`
	UserToken string `json:"user_token,omitempty"`

	// Email identifies the end user in the workspace.
	Email string `json:"email"`

	// PresencePoll is a Go duration string; default 30s.
	PresencePoll string `json:"presence_poll,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	// Path of the SQLite file; empty disables persistence.
	Path string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	// RatePerSec throttles deliveries; 0 means unlimited.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// DeliverTimeout bounds one backend call; Go duration string,
	// default 10s.
	DeliverTimeout string `json:"deliver_timeout,omitempty"`
	// DedupLimit caps the seen-notification set; default 1000.
	DedupLimit int `json:"dedup_limit,omitempty"`
}

type OutputConfig struct {
	// Backend forces an output backend (voiceover, nvda, jaws, orca,
	// speech); empty or "auto" detects.
	Backend string `json:"backend,omitempty"`
	// Sound is a pointer so "omitted" defaults to true.
	Sound *bool `json:"sound,omitempty"`
}

type StatusConfig struct {
	// Initial status at startup; default active.
	Initial string `json:"initial,omitempty"`
	// BufferExceptions are sender ids that bypass buffering entirely.
	BufferExceptions []string `json:"buffer_exceptions,omitempty"`
	Schedule         ScheduleConfig `json:"schedule,omitempty"`
}

type ScheduleConfig struct {
	Enabled  bool            `json:"enabled,omitempty"`
	Timezone string          `json:"timezone,omitempty"`
	Entries  []ScheduleEntry `json:"entries,omitempty"`
}

type ScheduleEntry struct {
	Spec   string `json:"spec"`
	Status string `json:"status"`
}

// RuleConfig is the declarative form of a notification rule.
type RuleConfig struct {
	Name       string   `json:"name"`
	From       string   `json:"from,omitempty"`       // sender id, email, or "self"
	Channel    string   `json:"channel,omitempty"`
	Containing string   `json:"containing,omitempty"` // case-insensitive regexp
	Type       string   `json:"type,omitempty"`       // direct|channel|thread|mention
	Priority   string   `json:"priority,omitempty"`
	Exceptions []string `json:"exceptions,omitempty"`

	// Actions; at least one should be present for the rule to do
	// anything.
	Notify *NotifyAction `json:"notify,omitempty"`
	Speak  string        `json:"speak,omitempty"`

	// Enabled is a pointer so "omitted" defaults to true.
	Enabled *bool `json:"enabled,omitempty"`
}

type NotifyAction struct {
	Profile string `json:"profile"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Equal compares two configs structurally.
func Equal(a, b *Config) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
