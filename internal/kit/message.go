package kit

import "time"

// MessageType classifies how an inbound message reached the user.
type MessageType string

const (
	TypeDirect  MessageType = "direct"
	TypeChannel MessageType = "channel"
	TypeThread  MessageType = "thread"
	TypeMention MessageType = "mention"
)

// ParseMessageType maps a stored string to a MessageType.
// Unknown values default to TypeChannel.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case TypeDirect, TypeChannel, TypeThread, TypeMention:
		return MessageType(s)
	default:
		return TypeChannel
	}
}

// Message is one inbound chat event, normalized by the message source.
// It is constructed once and never mutated; the core reads it only.
type Message struct {
	ID         string
	Content    string
	SenderID   string
	SenderName string
	ChannelID  string
	ThreadID   string
	Timestamp  float64 // epoch seconds, monotonic w.r.t. arrival
	Type       MessageType
	Mentions   []string
}

// Time converts the epoch-seconds timestamp to a time.Time.
func (m Message) Time() time.Time {
	sec := int64(m.Timestamp)
	nsec := int64((m.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// FormattedTime renders the timestamp for template substitution.
func (m Message) FormattedTime() string {
	return m.Time().Format("2006-01-02 15:04:05")
}

// Channel returns the channel id, or "DM" for messages without one.
func (m Message) Channel() string {
	if m.ChannelID == "" {
		return "DM"
	}
	return m.ChannelID
}
