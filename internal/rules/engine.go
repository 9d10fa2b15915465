package rules

import (
	"sort"
	"sync"
	"time"

	"earshot/internal/eventbus"
	"earshot/internal/kit"
	"earshot/pkg/logx"
)

// Config configures the rule engine.
type Config struct {
	// StartTime gates out messages that predate the engine. Zero means now.
	StartTime time.Time
	// DedupLimit caps the processed-id set; past it the set is cleared
	// wholesale. Zero means 1000.
	DedupLimit int
}

// Engine holds the rule set and turns messages into prioritized actions.
//
// Mutations and ProcessMessage are safe for concurrent use; the reference
// caller is the single ingestion goroutine, but the config surface may
// add rules concurrently.
type Engine struct {
	log logx.Logger
	bus eventbus.Bus

	mu     sync.Mutex
	dir    kit.Directory
	rules  map[string]Rule
	order  []string // rule ids in registration order
	status kit.Status

	startTime  float64
	dedupLimit int
	processed  map[string]struct{}
}

func NewEngine(cfg Config, log logx.Logger, bus eventbus.Bus) *Engine {
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	if cfg.DedupLimit <= 0 {
		cfg.DedupLimit = 1000
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		log:        log,
		bus:        bus,
		rules:      map[string]Rule{},
		status:     kit.StatusActive,
		startTime:  float64(cfg.StartTime.UnixNano()) / 1e9,
		dedupLimit: cfg.DedupLimit,
		processed:  map[string]struct{}{},
	}
}

// SetDirectory attaches the identity resolver once the message source has
// authenticated. Builders created before that cannot resolve "self".
func (e *Engine) SetDirectory(dir kit.Directory) {
	e.mu.Lock()
	e.dir = dir
	e.mu.Unlock()
}

func (e *Engine) directory() kit.Directory {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// AddRule registers or replaces a rule. Replacing keeps the rule's
// original position in evaluation order.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	if _, exists := e.rules[r.ID]; !exists {
		e.order = append(e.order, r.ID)
	}
	e.rules[r.ID] = r
	e.mu.Unlock()
	e.log.Info("rule added", logx.String("rule", r.Name), logx.String("id", r.ID))
}

func (e *Engine) RemoveRule(id string) {
	e.mu.Lock()
	if _, ok := e.rules[id]; ok {
		delete(e.rules, id)
		for i, rid := range e.order {
			if rid == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
		e.mu.Unlock()
		e.log.Info("rule removed", logx.String("id", id))
		return
	}
	e.mu.Unlock()
}

// Rule returns a registered rule by id.
func (e *Engine) Rule(id string) (Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	return r, ok
}

// Rules returns all rules in registration order.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id])
	}
	return out
}

// SetStatus updates the gating status. It affects subsequent
// ProcessMessage calls only; nothing is re-evaluated retroactively.
func (e *Engine) SetStatus(s kit.Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
	e.log.Debug("rule engine status", logx.String("status", string(s)))
}

// ProcessMessage matches a message against every enabled rule and returns
// the expanded actions, sorted by priority descending. The sort is stable:
// ties keep the order in which matching rules were evaluated.
//
// Two gates apply before any rule runs: messages older than the engine's
// start time are dropped (startup replay protection, not a clock-skew
// bound), and already-seen message ids are dropped. The seen set is
// cleared wholesale past its cap, trading occasional duplicate re-fires
// for bounded memory.
func (e *Engine) ProcessMessage(m kit.Message) []Action {
	e.mu.Lock()
	if m.Timestamp < e.startTime {
		e.mu.Unlock()
		return nil
	}
	if _, seen := e.processed[m.ID]; seen {
		e.mu.Unlock()
		return nil
	}
	e.processed[m.ID] = struct{}{}
	if len(e.processed) > e.dedupLimit {
		e.processed = map[string]struct{}{}
	}

	status := e.status
	ordered := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		ordered = append(ordered, e.rules[id])
	}
	e.mu.Unlock()

	var actions []Action
	for _, r := range ordered {
		ok, err := r.Matches(m)
		if err != nil {
			// One broken rule must not drop the rest of the batch.
			e.log.Warn("rule evaluation failed", logx.String("rule", r.Name), logx.Err(err))
			continue
		}
		if !ok {
			continue
		}
		if !kit.CanBreakThrough(r.Priority, status) {
			e.log.Debug("rule gated by status", logx.String("rule", r.Name), logx.String("status", string(status)))
			continue
		}
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Type: eventbus.EventRuleMatched, Data: eventbus.MessageEvent{
				MessageID: m.ID, SenderID: m.SenderID, Rule: r.Name, At: time.Now(),
			}})
		}
		for _, a := range r.Actions {
			actions = append(actions, a.expand(m))
		}
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].ActionPriority().Value() > actions[j].ActionPriority().Value()
	})
	return actions
}
