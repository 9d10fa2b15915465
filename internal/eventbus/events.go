package eventbus

import "time"

// Event types published by the core pipeline. Subscribers should treat
// unknown types as ignorable; the set grows over time.
const (
	EventStatusChanged   = "status.changed"
	EventMessageBuffered = "message.buffered"
	EventRuleMatched     = "rule.matched"
	EventNotifyQueued    = "notify.queued"
	EventNotifyDeduped   = "notify.deduped"
	EventNotifySent      = "notify.sent"
	EventNotifyDropped   = "notify.dropped"
	EventNotifyFailed    = "notify.failed"
)

// StatusEvent is the payload of status.changed.
type StatusEvent struct {
	Old string
	New string
	At  time.Time
}

// MessageEvent is the payload of message.buffered and rule.matched.
type MessageEvent struct {
	MessageID string
	SenderID  string
	Rule      string
	At        time.Time
}

// NotifyEvent is the payload of the notify.* events.
type NotifyEvent struct {
	MessageID string
	Profile   string
	Priority  string
	At        time.Time
	Error     string
}
