package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"earshot/internal/config"
	"earshot/internal/eventbus"
	"earshot/internal/kit"
	"earshot/internal/notify"
	"earshot/internal/output"
	"earshot/internal/rules"
	slacksrc "earshot/internal/source/slack"
	"earshot/internal/status"
	"earshot/internal/storage"
	"earshot/pkg/logx"
)

const shutdownGrace = 5 * time.Second

// App owns the service graph and its lifecycle. Construct with New, then
// Run blocks until the context is canceled.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus       eventbus.Bus
	store     storage.Store
	notifier  *notify.Service
	statusMgr *status.Manager
	schedule  *status.Schedule
	engine    *rules.Engine
	src       *slacksrc.Source
}

// New loads the config file and brings up logging. Everything else is
// deferred to Run so a config error surfaces before any goroutine starts.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetValidator(Validate)

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log.With(logx.String("component", "app")),
	}, nil
}

// Run assembles the services and pumps Slack events until ctx is
// canceled, then drains the notification queue and persists state.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfgMgr.Get()
	start := time.Now()
	a.bus = eventbus.New()

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, a.log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	if store != nil {
		defer store.Close()
	}

	tokens, err := a.resolveTokens(ctx, cfg)
	if err != nil {
		return err
	}

	poll, err := config.ParseDurationOrDefault("slack.presence_poll", cfg.Slack.PresencePoll, 30*time.Second)
	if err != nil {
		return err
	}
	src, err := slacksrc.New(slacksrc.Config{
		AppToken:     tokens.AppToken,
		BotToken:     tokens.BotToken,
		UserToken:    tokens.UserToken,
		Email:        cfg.Slack.Email,
		PresencePoll: poll,
	}, store, a.log)
	if err != nil {
		return fmt.Errorf("slack source: %w", err)
	}
	a.src = src
	if err := src.Login(ctx); err != nil {
		return fmt.Errorf("slack login: %w", err)
	}

	deliverTimeout, err := config.ParseDurationOrDefault("notify.deliver_timeout", cfg.Notify.DeliverTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	out := output.New(output.Config{
		Backend: cfg.Output.Backend,
		Sound:   cfg.Output.Sound == nil || *cfg.Output.Sound,
	}, a.log)
	a.notifier = notify.New(notify.Config{
		StartTime:      start,
		DedupLimit:     cfg.Notify.DedupLimit,
		DeliverTimeout: deliverTimeout,
		RatePerSec:     cfg.Notify.RatePerSec,
	}, out, store, a.log, a.bus)
	if store != nil {
		profiles, assignments, err := store.LoadProfiles(ctx)
		if err != nil {
			a.log.Warn("load profiles", logx.Err(err))
		} else if len(profiles) > 0 {
			a.notifier.Restore(profiles, assignments)
		}
	}

	a.statusMgr = status.NewManager(a.log, a.bus)
	for _, id := range cfg.Status.BufferExceptions {
		a.statusMgr.AddBufferException(id)
	}

	a.engine = rules.NewEngine(rules.Config{StartTime: start, DedupLimit: cfg.Notify.DedupLimit}, a.log, a.bus)
	a.engine.SetDirectory(src)
	if store != nil {
		stored, err := store.LoadRules(ctx)
		if err != nil {
			a.log.Warn("load rules", logx.Err(err))
		}
		for _, r := range stored {
			a.engine.AddRule(r)
		}
	}
	if err := a.buildRules(cfg.Rules); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	removeListener := a.statusMgr.AddListener(func(old, new kit.Status) {
		a.engine.SetStatus(new)
		a.notifier.SetStatus(new)
		a.src.SyncStatus(runCtx, new)
		if old.Buffering() && !new.Buffering() {
			a.announceBuffered(old)
		}
	})
	defer removeListener()

	if cfg.Status.Initial != "" {
		a.statusMgr.SetStatus(kit.ParseStatus(cfg.Status.Initial), true)
	}
	if cfg.Status.Schedule.Enabled {
		sched, err := status.NewSchedule(scheduleConfig(cfg.Status.Schedule), a.statusMgr, a.log)
		if err != nil {
			return fmt.Errorf("status schedule: %w", err)
		}
		a.schedule = sched
		sched.Start()
		defer sched.Stop()
	}

	src.OnMessage(a.onMessage)
	src.OnPresenceChange(a.onPresence)

	a.notifier.Start(runCtx)
	go a.watchEvents(runCtx)
	go a.watchConfig(runCtx)

	a.log.Info("earshot running",
		logx.String("backend", out.Backend()),
		logx.Int("rules", len(a.engine.Rules())))

	err = src.Run(runCtx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	a.statusMgr.RemoveAllListeners()
	a.notifier.Stop(stopCtx)
	a.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the logging sinks. Safe to call after Run returns.
func (a *App) Close() {
	if a.logSvc != nil {
		a.logSvc.Close()
	}
}

// onMessage is the ingestion pipeline: buffer gate first, then rule
// evaluation, then dispatch of whatever actions survived the gates.
func (a *App) onMessage(msg kit.Message) {
	if a.statusMgr.ShouldBuffer(msg) {
		return
	}
	for _, act := range a.engine.ProcessMessage(msg) {
		switch v := act.(type) {
		case rules.Notify:
			a.notifier.NotifyRendered(msg, v.Profile, v.Title, v.Template)
		case rules.Speak:
			a.notifier.Speak(msg, v.Template)
		}
	}
}

// onPresence maps Slack presence polls onto status. Focus states are
// operator intent; a background poll must not clobber them.
func (a *App) onPresence(_ string, presence string) {
	cur := a.statusMgr.Status()
	if cur == kit.StatusFocused || cur == kit.StatusDND {
		return
	}
	switch presence {
	case "away":
		a.statusMgr.SetStatus(kit.StatusAway, true)
	case "active", "auto":
		a.statusMgr.SetStatus(kit.StatusActive, true)
	}
}

// announceBuffered surfaces what was withheld while a focus status was
// active, as a single notification through the default profile.
func (a *App) announceBuffered(old kit.Status) {
	summary := a.statusMgr.BufferSummary()
	if summary == status.NoBufferedMessages {
		return
	}
	phrase := "away"
	switch old {
	case kit.StatusFocused:
		phrase = "focused"
	case kit.StatusDND:
		phrase = "busy"
	}
	msg := kit.Message{
		ID:         uuid.NewString(),
		Content:    summary,
		SenderID:   "system",
		SenderName: "earshot",
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
		Type:       kit.TypeDirect,
	}
	a.notifier.NotifyRendered(msg, "default", "While you were "+phrase, summary)
}

// buildRules registers the declarative rules from the config file, after
// any rules restored from storage.
func (a *App) buildRules(rcs []config.RuleConfig) error {
	for _, rc := range rcs {
		b := a.engine.When(rc.Name)
		if rc.Priority != "" {
			b.WithPriority(kit.ParsePriority(rc.Priority))
		}
		if rc.From != "" {
			b.FromPerson(rc.From)
		}
		if rc.Channel != "" {
			b.InChannel(rc.Channel)
		}
		if rc.Containing != "" {
			b.Containing(rc.Containing)
		}
		if rc.Type != "" {
			b.OfType(kit.ParseMessageType(rc.Type))
		}
		for _, ex := range rc.Exceptions {
			b.AddException(ex)
		}
		if rc.Notify != nil {
			b.PlaySound(rc.Notify.Profile, rc.Notify.Title, rc.Notify.Message)
		}
		if rc.Speak != "" {
			b.Speak(rc.Speak)
		}
		r, err := b.Done()
		if err != nil {
			return fmt.Errorf("rule %q: %w", rc.Name, err)
		}
		if rc.Enabled != nil && !*rc.Enabled {
			r.Enabled = false
			a.engine.AddRule(r)
		}
	}
	return nil
}

// resolveTokens prefers file tokens, falls back to stored ones, and
// persists fresh file tokens so the config entry can later be removed.
func (a *App) resolveTokens(ctx context.Context, cfg *config.Config) (storage.Tokens, error) {
	t := storage.Tokens{
		AppToken:  cfg.Slack.AppToken,
		BotToken:  cfg.Slack.BotToken,
		UserToken: cfg.Slack.UserToken,
	}
	fromFile := t.AppToken != "" || t.BotToken != ""
	if (t.AppToken == "" || t.BotToken == "") && a.store != nil {
		stored, ok, err := a.store.Tokens(ctx)
		if err != nil {
			return t, fmt.Errorf("load tokens: %w", err)
		}
		if ok {
			if t.AppToken == "" {
				t.AppToken = stored.AppToken
			}
			if t.BotToken == "" {
				t.BotToken = stored.BotToken
			}
			if t.UserToken == "" {
				t.UserToken = stored.UserToken
			}
		}
	}
	if t.AppToken == "" || t.BotToken == "" {
		return t, errors.New("missing slack tokens: set slack.app_token and slack.bot_token")
	}
	if fromFile && a.store != nil {
		if err := a.store.SaveTokens(ctx, t); err != nil {
			a.log.Warn("persist tokens", logx.Err(err))
		}
	}
	return t, nil
}

// watchEvents drains the bus so pipeline stages never block on a full
// subscriber, and keeps per-type counters for the periodic stats line.
func (a *App) watchEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(128)
	defer unsub()

	counts := map[string]uint64{}
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			counts[e.Type]++
			a.log.Trace("event", logx.String("type", e.Type))
		case <-tick.C:
			if len(counts) == 0 {
				continue
			}
			fields := make([]logx.Field, 0, len(counts))
			for t, n := range counts {
				fields = append(fields, logx.Int64(t, int64(n)))
			}
			a.log.Debug("event stats", fields...)
		}
	}
}

// watchConfig applies file reloads. Only the logging section is applied
// live; the service graph is built once, so other sections take effect
// on restart.
func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	go func() {
		if err := a.cfgMgr.Watch(ctx); err != nil {
			a.log.Warn("config watch", logx.Err(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-sub:
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied; other sections apply on restart")
		}
	}
}

// Validate rejects configs that would fail deep inside startup: bad
// durations, unnamed rules, rules with no action, unknown schedule
// statuses.
func Validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Slack.Email) == "" {
		return errors.New("slack.email is required")
	}
	if _, err := config.ParseDurationField("slack.presence_poll", cfg.Slack.PresencePoll); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("notify.deliver_timeout", cfg.Notify.DeliverTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	for i, rc := range cfg.Rules {
		if strings.TrimSpace(rc.Name) == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if rc.Notify == nil && rc.Speak == "" {
			return fmt.Errorf("rules[%d] (%s): needs a notify or speak action", i, rc.Name)
		}
		if rc.Notify != nil && strings.TrimSpace(rc.Notify.Profile) == "" {
			return fmt.Errorf("rules[%d] (%s): notify.profile is required", i, rc.Name)
		}
	}
	for i, e := range cfg.Status.Schedule.Entries {
		if !knownStatus(e.Status) {
			return fmt.Errorf("status.schedule.entries[%d]: unknown status %q", i, e.Status)
		}
	}
	if cfg.Status.Initial != "" && !knownStatus(cfg.Status.Initial) {
		return fmt.Errorf("status.initial: unknown status %q", cfg.Status.Initial)
	}
	return nil
}

func knownStatus(s string) bool {
	switch kit.Status(s) {
	case kit.StatusActive, kit.StatusFocused, kit.StatusDND, kit.StatusAway:
		return true
	}
	return false
}

func scheduleConfig(sc config.ScheduleConfig) status.ScheduleConfig {
	out := status.ScheduleConfig{Enabled: sc.Enabled, Timezone: sc.Timezone}
	for _, e := range sc.Entries {
		out.Entries = append(out.Entries, status.ScheduleEntry{
			Spec:   e.Spec,
			Status: kit.ParseStatus(e.Status),
		})
	}
	return out
}
