// Package status tracks the user's presence state and buffers low-value
// notifications while a focus-preserving status is active.
package status

import (
	"sync"
	"time"

	"earshot/internal/eventbus"
	"earshot/internal/kit"
	"earshot/pkg/logx"
)

// Listener observes status transitions. Listeners run synchronously on
// the goroutine calling SetStatus, in registration order; a panicking
// listener is isolated and logged without aborting the rest.
type Listener func(old, new kit.Status)

type transition struct {
	status kit.Status
	at     time.Time
}

// Manager is the state machine over kit.Status with buffering side
// effects. Safe for concurrent use.
type Manager struct {
	log logx.Logger
	bus eventbus.Bus

	mu          sync.Mutex
	current     kit.Status
	buf         *buffer
	lastSummary string // captured at the most recent flush
	history     []transition
	listeners []Listener
	seq       []uint64
	nextID    uint64
}

func NewManager(log logx.Logger, bus eventbus.Bus) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		log:     log,
		bus:     bus,
		current: kit.StatusActive,
		buf:     newBuffer(),
	}
}

// Status returns the current presence state.
func (m *Manager) Status() kit.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetStatus records the transition and manages buffering: entering a
// buffering status (focused, do-not-disturb) starts the buffer when
// autoBuffer is set; leaving one to a non-buffering status flushes it.
// The flushed messages themselves are discarded here; the caller reads
// BufferSummary from inside a listener if it wants to surface them.
func (m *Manager) SetStatus(s kit.Status, autoBuffer bool) {
	m.mu.Lock()
	old := m.current
	m.current = s
	m.history = append(m.history, transition{status: s, at: time.Now()})

	if autoBuffer {
		if s.Buffering() {
			if !m.buf.enabled {
				m.lastSummary = ""
			}
			m.buf.start()
		} else if old.Buffering() {
			m.lastSummary = m.buf.summary()
			dropped := m.buf.flush()
			if len(dropped) > 0 {
				m.log.Debug("buffer flushed", logx.Int("messages", len(dropped)))
			}
		}
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.log.Info("status changed", logx.String("old", string(old)), logx.String("new", string(s)))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.EventStatusChanged, Data: eventbus.StatusEvent{
			Old: string(old), New: string(s), At: time.Now(),
		}})
	}

	for _, fn := range listeners {
		m.invoke(fn, old, s)
	}
}

func (m *Manager) invoke(fn Listener, old, new kit.Status) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("status listener panicked", logx.Any("panic", r))
		}
	}()
	fn(old, new)
}

// ShouldBuffer appends the message to the buffer and reports true when
// buffering is active and the sender is not excepted. A false return
// means the message proceeds to the rule engine.
func (m *Manager) ShouldBuffer(msg kit.Message) bool {
	m.mu.Lock()
	buffered := m.buf.add(msg)
	m.mu.Unlock()

	if buffered && m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.EventMessageBuffered, Data: eventbus.MessageEvent{
			MessageID: msg.ID, SenderID: msg.SenderID, At: time.Now(),
		}})
	}
	return buffered
}

// BufferSummary renders the buffered messages as per-sender counts. While
// buffering it reflects the live buffer; after a flush it returns the
// summary captured at flush time, so listeners invoked by the flushing
// transition can still surface what was withheld.
func (m *Manager) BufferSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buf.messages) > 0 {
		return m.buf.summary()
	}
	if m.lastSummary != "" {
		return m.lastSummary
	}
	return NoBufferedMessages
}

// AddBufferException lets a sender bypass buffering entirely, regardless
// of status.
func (m *Manager) AddBufferException(senderID string) {
	m.mu.Lock()
	m.buf.exceptions[senderID] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) RemoveBufferException(senderID string) {
	m.mu.Lock()
	delete(m.buf.exceptions, senderID)
	m.mu.Unlock()
}

// AddListener registers a transition observer and returns its remove
// function.
func (m *Manager) AddListener(fn Listener) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, fn)
	m.seq = append(m.seq, id)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sid := range m.seq {
			if sid == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				m.seq = append(m.seq[:i], m.seq[i+1:]...)
				return
			}
		}
	}
}

// RemoveAllListeners drops every registration; part of shutdown.
func (m *Manager) RemoveAllListeners() {
	m.mu.Lock()
	m.listeners = nil
	m.seq = nil
	m.mu.Unlock()
}

// StatusDuration reports how long the current status has been held.
func (m *Manager) StatusDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return 0
	}
	return time.Since(m.history[len(m.history)-1].at)
}
