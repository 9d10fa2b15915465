package rules

import (
	"encoding/json"
	"fmt"

	"earshot/internal/kit"
)

// Action is what a matched rule tells the pipeline to do. It is a closed
// variant: Notify or Speak, each carrying its own priority so the delivery
// queue can order actions without consulting the rule again.
type Action interface {
	ActionPriority() kit.Priority

	// rebind returns a copy with the given priority. The builder keeps
	// action priority in lock-step with the rule's current priority.
	rebind(p kit.Priority) Action

	// expand instantiates the action's template against a message. An
	// absent template falls back to the raw content.
	expand(m kit.Message) Action
}

// Notify plays a sound notification through a named profile.
type Notify struct {
	Profile  string
	Title    string
	Template string
	Priority kit.Priority
}

func (a Notify) ActionPriority() kit.Priority { return a.Priority }

func (a Notify) rebind(p kit.Priority) Action {
	a.Priority = p
	return a
}

func (a Notify) expand(m kit.Message) Action {
	if a.Title != "" {
		a.Title = kit.RenderTemplate(a.Title, m)
	}
	a.Template = kit.RenderTemplate(a.Template, m)
	return a
}

// Speak reads a rendered template aloud.
type Speak struct {
	Template string
	Priority kit.Priority
}

func (a Speak) ActionPriority() kit.Priority { return a.Priority }

func (a Speak) rebind(p kit.Priority) Action {
	a.Priority = p
	return a
}

func (a Speak) expand(m kit.Message) Action {
	a.Template = kit.RenderTemplate(a.Template, m)
	return a
}

// ---- persistence codec ----

// actionRecord is the stored JSON shape of an Action.
type actionRecord struct {
	Kind     string `json:"kind"`
	Profile  string `json:"profile,omitempty"`
	Title    string `json:"title,omitempty"`
	Template string `json:"template,omitempty"`
	Priority string `json:"priority"`
}

// EncodeActions serializes actions for the rule store.
func EncodeActions(actions []Action) ([]byte, error) {
	recs := make([]actionRecord, 0, len(actions))
	for _, a := range actions {
		switch v := a.(type) {
		case Notify:
			recs = append(recs, actionRecord{Kind: "notify", Profile: v.Profile, Title: v.Title, Template: v.Template, Priority: string(v.Priority)})
		case Speak:
			recs = append(recs, actionRecord{Kind: "speak", Template: v.Template, Priority: string(v.Priority)})
		default:
			return nil, fmt.Errorf("unknown action type %T", a)
		}
	}
	return json.Marshal(recs)
}

// DecodeActions deserializes actions from the rule store. Records with an
// unknown kind are skipped rather than failing the whole rule.
func DecodeActions(data []byte) ([]Action, error) {
	var recs []actionRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	out := make([]Action, 0, len(recs))
	for _, r := range recs {
		p := kit.ParsePriority(r.Priority)
		switch r.Kind {
		case "notify":
			out = append(out, Notify{Profile: r.Profile, Title: r.Title, Template: r.Template, Priority: p})
		case "speak":
			out = append(out, Speak{Template: r.Template, Priority: p})
		}
	}
	return out, nil
}
