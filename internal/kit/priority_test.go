package kit

import "testing"

func TestPriorityValue(t *testing.T) {
	cases := []struct {
		p    Priority
		want int
	}{
		{PriorityLow, 1},
		{PriorityMedium, 2},
		{PriorityHigh, 3},
		{PriorityCritical, 4},
		{Priority("garbage"), 2},
	}
	for _, c := range cases {
		if got := c.p.Value(); got != c.want {
			t.Errorf("Value(%s) = %d, want %d", c.p, got, c.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	if got := ParsePriority(" high "); got != PriorityHigh {
		t.Errorf("ParsePriority(\" high \") = %s", got)
	}
	if got := ParsePriority("nonsense"); got != PriorityMedium {
		t.Errorf("unknown priority should default to MEDIUM, got %s", got)
	}
}

func TestCanBreakThrough(t *testing.T) {
	cases := []struct {
		p    Priority
		s    Status
		want bool
	}{
		{PriorityLow, StatusActive, true},
		{PriorityCritical, StatusActive, true},
		{PriorityLow, StatusAway, true},
		{PriorityMedium, StatusAway, true},
		{PriorityCritical, StatusAway, true},
		{PriorityLow, StatusFocused, false},
		{PriorityMedium, StatusFocused, false},
		{PriorityHigh, StatusFocused, true},
		{PriorityCritical, StatusFocused, true},
		{PriorityLow, StatusDND, false},
		{PriorityMedium, StatusDND, false},
		{PriorityHigh, StatusDND, false},
		{PriorityCritical, StatusDND, true},
	}
	for _, c := range cases {
		if got := CanBreakThrough(c.p, c.s); got != c.want {
			t.Errorf("CanBreakThrough(%s, %s) = %v, want %v", c.p, c.s, got, c.want)
		}
	}
}

func TestStatusBuffering(t *testing.T) {
	if StatusActive.Buffering() || StatusAway.Buffering() {
		t.Error("active/away must not buffer")
	}
	if !StatusFocused.Buffering() || !StatusDND.Buffering() {
		t.Error("focused/do_not_disturb must buffer")
	}
}
