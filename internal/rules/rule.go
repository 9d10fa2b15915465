package rules

import (
	"regexp"
	"strings"

	"earshot/internal/kit"
)

// Condition is one kind of predicate a rule can carry. All conditions on
// a rule are AND-combined.
type Condition string

const (
	CondSender      Condition = "sender"
	CondChannel     Condition = "channel"
	CondContent     Condition = "content" // case-insensitive regexp search
	CondMessageType Condition = "message_type"
)

// Rule is a named predicate set plus an ordered action list. Rules are
// built once via Builder and treated as immutable afterwards.
type Rule struct {
	ID         string
	Name       string
	Conditions map[Condition]string
	Actions    []Action
	Priority   kit.Priority
	Enabled    bool
	Exceptions map[string]struct{}
}

// RuleID derives the stable rule id from its name.
func RuleID(name string) string {
	return "rule_" + strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// Matches reports whether the message satisfies every condition. A
// disabled rule never matches, and an excepted sender short-circuits to
// no-match regardless of conditions. An error means a condition itself is
// broken (bad pattern); the caller skips the rule and moves on.
func (r Rule) Matches(m kit.Message) (bool, error) {
	if !r.Enabled {
		return false, nil
	}
	if _, excepted := r.Exceptions[m.SenderID]; excepted {
		return false, nil
	}
	for cond, value := range r.Conditions {
		ok, err := checkCondition(cond, value, m)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func checkCondition(cond Condition, value string, m kit.Message) (bool, error) {
	switch cond {
	case CondSender:
		return m.SenderID == value, nil
	case CondChannel:
		return m.ChannelID == value, nil
	case CondContent:
		re, err := regexp.Compile("(?i)" + value)
		if err != nil {
			return false, err
		}
		return re.MatchString(m.Content), nil
	case CondMessageType:
		return string(m.Type) == value, nil
	default:
		return false, nil
	}
}
