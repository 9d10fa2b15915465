package status

import (
	"fmt"
	"strings"
	"time"

	"earshot/internal/kit"
)

// NoBufferedMessages is the summary sentinel for an empty buffer.
const NoBufferedMessages = "No buffered messages"

// buffer withholds messages while the user is in a focus-preserving
// status. It is owned exclusively by Manager, which serializes access.
type buffer struct {
	enabled    bool
	messages   []kit.Message
	startTime  time.Time
	exceptions map[string]struct{}
}

func newBuffer() *buffer {
	return &buffer{exceptions: map[string]struct{}{}}
}

func (b *buffer) start() {
	if b.enabled {
		return
	}
	b.enabled = true
	b.startTime = time.Now()
}

// add appends the message and reports true unless buffering is off or the
// sender is excepted.
func (b *buffer) add(m kit.Message) bool {
	if !b.enabled {
		return false
	}
	if _, ok := b.exceptions[m.SenderID]; ok {
		return false
	}
	b.messages = append(b.messages, m)
	return true
}

// flush atomically drains the buffer, disables it and returns the
// withheld messages.
func (b *buffer) flush() []kit.Message {
	msgs := b.messages
	b.messages = nil
	b.startTime = time.Time{}
	b.enabled = false
	return msgs
}

// summary aggregates buffered messages into per-sender counts, keeping
// first-seen sender order.
func (b *buffer) summary() string {
	if len(b.messages) == 0 {
		return NoBufferedMessages
	}

	counts := map[string]int{}
	var order []string
	for _, m := range b.messages {
		if _, seen := counts[m.SenderName]; !seen {
			order = append(order, m.SenderName)
		}
		counts[m.SenderName]++
	}

	parts := make([]string, 0, len(order))
	for _, sender := range order {
		n := counts[sender]
		plural := "s"
		if n == 1 {
			plural = ""
		}
		parts = append(parts, fmt.Sprintf("%d message%s from %s", n, plural, sender))
	}
	return strings.Join(parts, ", ")
}
