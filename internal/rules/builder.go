package rules

import (
	"context"
	"fmt"
	"strings"

	"earshot/internal/kit"
)

// Builder constructs a rule fluently and registers it on Done. The
// intermediate state is private; only Done produces a Rule value.
//
//	rule, err := engine.When("urgent from boss").
//		FromPerson("boss@corp.com").
//		Containing("deploy|outage").
//		WithPriority(kit.PriorityCritical).
//		PlaySound("urgent").
//		Done()
type Builder struct {
	engine *Engine
	dir    kit.Directory

	name       string
	conditions map[Condition]string
	actions    []Action
	priority   kit.Priority
	exceptions map[string]struct{}
	err        error
}

// When starts building a named rule bound to this engine. Identifier
// resolution ("self", emails) uses the engine's directory, which is
// attached after login; without one those identifiers degrade as
// documented on FromPerson.
func (e *Engine) When(name string) *Builder {
	return &Builder{
		engine:     e,
		dir:        e.directory(),
		name:       name,
		conditions: map[Condition]string{},
		priority:   kit.PriorityMedium,
		exceptions: map[string]struct{}{},
	}
}

// FromPerson adds a sender condition. The literal "self" resolves to the
// authenticated user's id; an email-shaped identifier resolves through the
// directory, falling back to the raw value when the lookup finds nothing;
// anything else is stored verbatim as a sender id.
func (b *Builder) FromPerson(identifier string) *Builder {
	switch {
	case strings.EqualFold(identifier, "self"):
		if b.dir == nil || b.dir.SelfID() == "" {
			b.fail(fmt.Errorf("%w: cannot resolve \"self\" before login", ErrConfiguration))
			return b
		}
		b.conditions[CondSender] = b.dir.SelfID()
	case strings.Contains(identifier, "@") && b.dir != nil:
		if id := b.dir.UserIDByEmail(context.Background(), identifier); id != "" {
			b.conditions[CondSender] = id
		} else {
			b.conditions[CondSender] = identifier
		}
	default:
		b.conditions[CondSender] = identifier
	}
	return b
}

func (b *Builder) InChannel(channelID string) *Builder {
	b.conditions[CondChannel] = channelID
	return b
}

// Containing adds a content condition: a case-insensitive regular
// expression searched (not full-matched) against the message content.
func (b *Builder) Containing(pattern string) *Builder {
	b.conditions[CondContent] = pattern
	return b
}

func (b *Builder) OfType(t kit.MessageType) *Builder {
	b.conditions[CondMessageType] = string(t)
	return b
}

// WithPriority sets the rule priority and rewrites the priority on every
// action added so far; action priority always tracks the rule's current
// priority, it is not frozen at the time the action was added.
func (b *Builder) WithPriority(p kit.Priority) *Builder {
	b.priority = p
	for i, a := range b.actions {
		b.actions[i] = a.rebind(p)
	}
	return b
}

func (b *Builder) AddException(senderID string) *Builder {
	b.exceptions[senderID] = struct{}{}
	return b
}

// PlaySound adds a notify action for the given profile. Optional trailing
// arguments are a title template and a message template; the message
// template defaults to "{content}".
func (b *Builder) PlaySound(profile string, templates ...string) *Builder {
	a := Notify{Profile: profile, Template: "{content}", Priority: b.priority}
	if len(templates) > 0 {
		a.Title = templates[0]
	}
	if len(templates) > 1 && templates[1] != "" {
		a.Template = templates[1]
	}
	b.actions = append(b.actions, a)
	return b
}

// Speak adds a speech action with the given template.
func (b *Builder) Speak(template string) *Builder {
	b.actions = append(b.actions, Speak{Template: template, Priority: b.priority})
	return b
}

// Done validates, builds the immutable rule, registers it with the engine
// and returns it. The first error recorded while chaining wins.
func (b *Builder) Done() (Rule, error) {
	if b.err != nil {
		return Rule{}, b.err
	}
	if strings.TrimSpace(b.name) == "" {
		return Rule{}, fmt.Errorf("%w: rule must have a name", ErrValidation)
	}

	r := Rule{
		ID:         RuleID(b.name),
		Name:       b.name,
		Conditions: b.conditions,
		Actions:    append([]Action(nil), b.actions...),
		Priority:   b.priority,
		Enabled:    true,
		Exceptions: b.exceptions,
	}
	b.engine.AddRule(r)
	return r, nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
