package notify

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"earshot/internal/eventbus"
	"earshot/internal/kit"
	"earshot/pkg/logx"
)

// ProfileStore persists the profile table. Every profile mutation writes
// the whole table.
type ProfileStore interface {
	SaveProfiles(ctx context.Context, profiles []kit.Profile, assignments map[string]string) error
}

// Config configures the notification service.
type Config struct {
	// StartTime gates out messages that predate the service. Zero means now.
	StartTime time.Time
	// DedupLimit caps the seen-notification set (wholesale clear past it).
	// Zero means 1000.
	DedupLimit int
	// PollInterval is the worker's idle poll. Zero means 100ms.
	PollInterval time.Duration
	// DeliverTimeout bounds a single backend call so a hanging backend
	// cannot stall the queue forever. Zero means 10s.
	DeliverTimeout time.Duration
	// RatePerSec throttles deliveries. Zero means no limit.
	RatePerSec int
}

// Service is the notification manager: profiles, per-sender overrides,
// the priority-ordered delivery queue and its single dispatch worker.
//
// Notify never blocks on the worker; it renders, gates and enqueues.
type Service struct {
	log       logx.Logger
	bus       eventbus.Bus
	deliverer kit.Deliverer
	store     ProfileStore // may be nil

	cfg       Config
	limiter   *rate.Limiter
	q         *queue
	startTime float64

	mu           sync.Mutex
	profiles     map[string]kit.Profile
	userProfiles map[string]string // sender id -> profile name
	status       kit.Status
	accepting    bool

	// Check-and-insert on the dedup set must be atomic: Notify may be
	// called from the config surface as well as the ingestion loop.
	dmu   sync.Mutex
	dedup map[string]struct{}

	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, deliverer kit.Deliverer, store ProfileStore, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	if cfg.DedupLimit <= 0 {
		cfg.DedupLimit = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Service{
		log:          log,
		bus:          bus,
		deliverer:    deliverer,
		store:        store,
		cfg:          cfg,
		q:            newQueue(),
		startTime:    float64(cfg.StartTime.UnixNano()) / 1e9,
		profiles:     map[string]kit.Profile{},
		userProfiles: map[string]string{},
		status:       kit.StatusActive,
		accepting:    true,
		dedup:        map[string]struct{}{},
	}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	for _, p := range defaultProfiles() {
		s.profiles[p.Name] = p
	}
	return s
}

// Restore installs profiles and assignments loaded from the store without
// writing them back.
func (s *Service) Restore(profiles []kit.Profile, assignments map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		if p.Priority == "" {
			p.Priority = kit.PriorityMedium
		}
		s.profiles[p.Name] = p
	}
	for sender, name := range assignments {
		s.userProfiles[sender] = name
	}
}

// CreateProfile upserts a profile and persists the whole table.
func (s *Service) CreateProfile(ctx context.Context, p kit.Profile) error {
	if p.Priority == "" {
		p.Priority = kit.PriorityMedium
	}
	if p.Volume == 0 {
		p.Volume = 1.0
	}
	s.mu.Lock()
	s.profiles[p.Name] = p
	s.mu.Unlock()
	s.log.Info("profile upserted", logx.String("profile", p.Name), logx.String("priority", string(p.Priority)))
	return s.persist(ctx)
}

// SetUserProfile assigns a profile to a sender; the assignment takes
// precedence over any per-call profile name.
func (s *Service) SetUserProfile(ctx context.Context, senderID, profileName string) error {
	s.mu.Lock()
	if _, ok := s.profiles[profileName]; !ok {
		s.mu.Unlock()
		return ErrUnknownProfile
	}
	s.userProfiles[senderID] = profileName
	s.mu.Unlock()
	return s.persist(ctx)
}

// Profile returns a profile by name.
func (s *Service) Profile(name string) (kit.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Profiles returns all profiles sorted by name.
func (s *Service) Profiles() []kit.Profile {
	s.mu.Lock()
	out := make([]kit.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetStatus updates the manager's own gate. This gate is independent of
// the rule engine's: a message that cleared the engine can still be
// dropped here if the status changed in between.
func (s *Service) SetStatus(st kit.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// QueueLen reports the number of undelivered items.
func (s *Service) QueueLen() int { return s.q.len() }

// Notify gates, renders and enqueues a notification for the message.
// Drops are silent; they are expected, frequent outcomes, not errors.
func (s *Service) Notify(msg kit.Message, profileName string) {
	s.enqueue(msg, profileName, "", "", false)
}

// NotifyRendered is Notify with pre-rendered title and body overriding the
// profile's templates. Rule actions carry their own templates and arrive
// here already expanded; an empty override falls back to the profile.
func (s *Service) NotifyRendered(msg kit.Message, profileName, title, body string) {
	s.enqueue(msg, profileName, title, body, false)
}

// Speak enqueues a speech item: the body is the pre-rendered text coming
// from a speak action, resolution and gating follow Notify.
func (s *Service) Speak(msg kit.Message, text string) {
	s.enqueue(msg, "default", "", text, true)
}

func (s *Service) enqueue(msg kit.Message, profileName, title, body string, isSpeech bool) {
	s.mu.Lock()
	accepting := s.accepting
	override := s.userProfiles[msg.SenderID]
	status := s.status
	s.mu.Unlock()

	if !accepting {
		s.log.Debug("notify after stop", logx.String("msg", msg.ID))
		return
	}
	if msg.Timestamp < s.startTime {
		return
	}

	key := msg.ID + ":" + profileName
	if isSpeech {
		key = msg.ID + ":speak:" + profileName
	}
	if !s.dedupAllow(key) {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifyDeduped, Data: eventbus.NotifyEvent{
				MessageID: msg.ID, Profile: profileName, At: time.Now(),
			}})
		}
		return
	}

	// Effective profile: per-sender assignment wins over the explicit
	// argument, which wins over the profile literally named "default".
	name := override
	if name == "" {
		name = profileName
	}
	if name == "" {
		name = "default"
	}
	s.mu.Lock()
	profile, ok := s.profiles[name]
	s.mu.Unlock()
	if !ok || !profile.Enabled {
		s.log.Debug("notification dropped: profile missing or disabled", logx.String("profile", name))
		s.drop(msg.ID, name)
		return
	}

	if !kit.CanBreakThrough(profile.Priority, status) {
		s.log.Debug("notification gated by status",
			logx.String("profile", name), logx.String("status", string(status)))
		s.drop(msg.ID, name)
		return
	}

	// Render before enqueue; the worker never sees templates.
	pTitle, pBody := profile.Render(msg)
	if title == "" {
		title = pTitle
	}
	if body == "" {
		body = pBody
	}

	s.q.push(item{
		title:     title,
		body:      body,
		speech:    isSpeech,
		profile:   profile,
		settings:  profile.SettingsFor(s.deliverer.Backend()),
		messageID: msg.ID,
		priority:  profile.Priority.Value(),
		timestamp: msg.Timestamp,
	})
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifyQueued, Data: eventbus.NotifyEvent{
			MessageID: msg.ID, Profile: name, Priority: string(profile.Priority), At: time.Now(),
		}})
	}
}

func (s *Service) drop(messageID, profile string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifyDropped, Data: eventbus.NotifyEvent{
		MessageID: messageID, Profile: profile, At: time.Now(),
	}})
}

// dedupAllow is the atomic check-and-insert. The set is cleared wholesale
// past its cap rather than evicted entry-by-entry; duplicate suppression
// can regress briefly after a clear, a documented trade of accuracy for
// bounded memory.
func (s *Service) dedupAllow(key string) bool {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if _, seen := s.dedup[key]; seen {
		return false
	}
	s.dedup[key] = struct{}{}
	if len(s.dedup) > s.cfg.DedupLimit {
		s.dedup = map[string]struct{}{}
	}
	return true
}

// Start launches the dispatch worker. Exactly one worker consumes the
// queue; ordering within the queue is the only delivery-order guarantee.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.runCancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.mu.Unlock()

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in dispatch worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.workerLoop(runCtx)
	}()
}

func (s *Service) workerLoop(ctx context.Context) {
	for {
		it, ok := s.q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.q.wake:
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}
		s.deliver(ctx, it)
	}
}

func (s *Service) deliver(ctx context.Context, it item) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliverTimeout)
	err := s.deliverer.Deliver(callCtx, it.title, it.body, it.profile, it.settings)
	cancel()

	if err != nil {
		// At-most-once, best effort: log and move on, never retry.
		s.log.Warn("delivery failed", logx.String("profile", it.profile.Name), logx.Err(err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifyFailed, Data: eventbus.NotifyEvent{
				MessageID: it.messageID, Profile: it.profile.Name, At: time.Now(), Error: err.Error(),
			}})
		}
		return
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventNotifySent, Data: eventbus.NotifyEvent{
			MessageID: it.messageID, Profile: it.profile.Name, Priority: string(it.profile.Priority), At: time.Now(),
		}})
	}
}

// Stop shuts the pipeline down: stop intake, drain the queue within the
// ctx deadline, discard stragglers, persist profiles.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	s.accepting = false
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	// Bounded drain: let the worker finish what is already queued.
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
drain:
	for s.q.len() > 0 {
		select {
		case <-ctx.Done():
			break drain
		case <-tick.C:
		}
	}

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}

	if n := s.q.drain(); n > 0 {
		s.log.Warn("discarded undelivered notifications", logx.Int("count", n))
	}

	if err := s.persist(ctx); err != nil {
		s.log.Error("final profile persistence failed", logx.Err(err))
	}
}

func (s *Service) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	profiles := make([]kit.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	assignments := make(map[string]string, len(s.userProfiles))
	for k, v := range s.userProfiles {
		assignments[k] = v
	}
	s.mu.Unlock()

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	if err := s.store.SaveProfiles(ctx, profiles, assignments); err != nil {
		s.log.Error("profile persistence failed", logx.Err(err))
		return err
	}
	return nil
}
