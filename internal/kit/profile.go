package kit

import (
	"regexp"
	"strings"
)

// Sound names one of the built-in notification sounds. Backends map these
// to whatever their platform provides.
type Sound string

const (
	SoundMessage Sound = "message"
	SoundMention Sound = "mention"
	SoundDM      Sound = "dm"
	SoundUrgent  Sound = "urgent"
	SoundSuccess Sound = "success"
	SoundWarning Sound = "warning"
)

// ParseSound maps a stored string to a Sound, defaulting to SoundMessage.
func ParseSound(s string) Sound {
	switch Sound(strings.ToLower(strings.TrimSpace(s))) {
	case SoundMention:
		return SoundMention
	case SoundDM:
		return SoundDM
	case SoundUrgent:
		return SoundUrgent
	case SoundSuccess:
		return SoundSuccess
	case SoundWarning:
		return SoundWarning
	default:
		return SoundMessage
	}
}

// BackendSettings are per-output-backend rendering knobs (voice, rate,
// pitch, sound), keyed by backend name ("voiceover", "nvda", "jaws",
// "orca", "speech").
type BackendSettings map[string]map[string]any

// Profile is a named notification template: how a message is rendered and
// how loudly/urgently it is presented.
type Profile struct {
	Name            string
	Sound           Sound
	TitleTemplate   string
	MessageTemplate string
	Volume          float64
	Priority        Priority
	Enabled         bool
	Settings        BackendSettings
}

// SettingsFor returns the settings entry for the given backend, or an
// empty map when the profile has none.
func (p Profile) SettingsFor(backend string) map[string]any {
	if s, ok := p.Settings[backend]; ok && s != nil {
		return s
	}
	return map[string]any{}
}

// Render produces the notification title and body for a message by
// substituting the {sender}, {content}, {channel} and {time} placeholders.
func (p Profile) Render(m Message) (title, body string) {
	return RenderTemplate(p.TitleTemplate, m), RenderTemplate(p.MessageTemplate, m)
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// RenderTemplate substitutes the message context into a template. A
// template referencing a placeholder outside the known context falls back
// to the raw message content instead of failing the notification.
func RenderTemplate(tpl string, m Message) string {
	if tpl == "" {
		return m.Content
	}
	bad := false
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(ph string) string {
		switch ph {
		case "{sender}":
			return m.SenderName
		case "{content}":
			return m.Content
		case "{channel}":
			return m.Channel()
		case "{time}":
			return m.FormattedTime()
		default:
			bad = true
			return ph
		}
	})
	if bad {
		return m.Content
	}
	return out
}
