package kit

import "strings"

// Priority is the total order used both for rule precedence and for
// delivery ordering in the notification queue.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Value maps a priority to its numeric rank (LOW=1 .. CRITICAL=4).
// Unknown values rank as MEDIUM.
func (p Priority) Value() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 2
	}
}

// ParsePriority maps a stored string to a Priority, defaulting to MEDIUM.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityCritical:
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// Status is the user's current presence/focus state.
type Status string

const (
	StatusActive  Status = "active"
	StatusFocused Status = "focused"
	StatusDND     Status = "do_not_disturb"
	StatusAway    Status = "away"
)

// ParseStatus maps a stored string to a Status, defaulting to active.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusFocused:
		return StatusFocused
	case StatusDND:
		return StatusDND
	case StatusAway:
		return StatusAway
	default:
		return StatusActive
	}
}

// Buffering reports whether the status withholds low-priority notifications.
func (s Status) Buffering() bool {
	return s == StatusFocused || s == StatusDND
}

// CanBreakThrough is the gating truth table: which priorities are admitted
// under which status. Active and away admit everything, focused admits high
// and critical, do-not-disturb admits critical only. Away being
// active-equivalent is intentional: an away user still wants to hear what
// happened when they return to the machine.
func CanBreakThrough(p Priority, s Status) bool {
	switch s {
	case StatusFocused:
		return p == PriorityHigh || p == PriorityCritical
	case StatusDND:
		return p == PriorityCritical
	default:
		return true
	}
}
