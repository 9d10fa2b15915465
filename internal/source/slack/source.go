package slack

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"earshot/internal/kit"
	"earshot/internal/storage"
	"earshot/pkg/logx"
)

// Config configures the Slack source.
type Config struct {
	AppToken  string // xapp-… Socket Mode token
	BotToken  string // xoxb-…
	UserToken string // xoxp-…, optional, enables status sync
	Email     string // the end user's email, resolved to self at login
	// PresencePoll is how often the user's presence is polled. Socket
	// Mode does not push presence_change, so earshot polls. Zero means
	// 30s.
	PresencePoll time.Duration
}

// MessageHandler receives every normalized inbound message.
type MessageHandler func(kit.Message)

// PresenceHandler receives presence flips for the authenticated user.
type PresenceHandler func(userID, presence string)

// Source is the Socket Mode event pump. It implements kit.Directory once
// Login has succeeded.
type Source struct {
	log   logx.Logger
	cfg   Config
	api   *slack.Client
	sm    *socketmode.Client
	user  *slack.Client // user-token client, may be nil
	store storage.Store // may be nil; used as a user cache

	mu           sync.Mutex
	selfID       string
	selfName     string
	names        map[string]string
	lastPresence string
	onMessage    MessageHandler
	onPresence   PresenceHandler
}

func New(cfg Config, store storage.Store, log logx.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.AppToken) == "" || strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slack app and bot tokens are required")
	}
	if cfg.PresencePoll <= 0 {
		cfg.PresencePoll = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	s := &Source{
		log:   log,
		cfg:   cfg,
		api:   api,
		sm:    socketmode.New(api),
		store: store,
		names: map[string]string{},
	}
	if strings.TrimSpace(cfg.UserToken) != "" {
		s.user = slack.New(cfg.UserToken)
	}
	return s, nil
}

// OnMessage registers the message handler. Register before Run.
func (s *Source) OnMessage(fn MessageHandler) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// OnPresenceChange registers the presence handler. Register before Run.
func (s *Source) OnPresenceChange(fn PresenceHandler) {
	s.mu.Lock()
	s.onPresence = fn
	s.mu.Unlock()
}

// Login verifies the tokens and resolves the configured email to the
// user's workspace identity.
func (s *Source) Login(ctx context.Context) error {
	if _, err := s.api.AuthTestContext(ctx); err != nil {
		return err
	}

	u, err := s.api.GetUserByEmailContext(ctx, s.cfg.Email)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.selfID = u.ID
	s.selfName = displayName(u)
	s.names[u.ID] = s.selfName
	s.mu.Unlock()

	s.cacheUser(ctx, u)
	s.log.Info("logged in", logx.String("user", s.selfName), logx.String("id", u.ID))
	return nil
}

// SelfID implements kit.Directory.
func (s *Source) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// UserIDByEmail implements kit.Directory: API first, then the local user
// cache, then "".
func (s *Source) UserIDByEmail(ctx context.Context, email string) string {
	if u, err := s.api.GetUserByEmailContext(ctx, email); err == nil {
		s.cacheUser(ctx, u)
		return u.ID
	}
	if s.store != nil {
		if u, ok, err := s.store.GetUserByEmail(ctx, email); err == nil && ok {
			return u.ID
		}
	}
	return ""
}

// Run pumps Socket Mode events until ctx is cancelled. It blocks.
func (s *Source) Run(ctx context.Context) error {
	go s.pollPresence(ctx)
	go s.dispatchLoop(ctx)
	return s.sm.RunContext(ctx)
}

func (s *Source) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.sm.Events:
			if !ok {
				return
			}
			s.handle(ctx, evt)
		}
	}
}

func (s *Source) handle(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		s.log.Info("socket mode connected")
	case socketmode.EventTypeConnectionError:
		s.log.Warn("socket mode connection error")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			s.sm.Ack(*evt.Request)
		}
		if apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			s.handleMessage(ctx, ev)
		}
	}
}

func (s *Source) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// Bot chatter and non-message subtypes (edits, joins) are not
	// something the user wants announced.
	if ev.BotID != "" || ev.SubType != "" || ev.User == "" {
		return
	}

	s.mu.Lock()
	selfID := s.selfID
	fn := s.onMessage
	s.mu.Unlock()
	if fn == nil {
		return
	}

	msg := convertMessage(ev, selfID, func(id string) string { return s.userName(ctx, id) })
	fn(msg)
}

// userName resolves a user id to a display name through the in-memory
// cache, the API, then the persistent cache.
func (s *Source) userName(ctx context.Context, id string) string {
	if id == "" {
		return "Unknown User"
	}
	s.mu.Lock()
	if name, ok := s.names[id]; ok {
		s.mu.Unlock()
		return name
	}
	s.mu.Unlock()

	if u, err := s.api.GetUserInfoContext(ctx, id); err == nil {
		name := displayName(u)
		s.mu.Lock()
		s.names[id] = name
		s.mu.Unlock()
		s.cacheUser(ctx, u)
		return name
	}
	return "Unknown User"
}

func (s *Source) cacheUser(ctx context.Context, u *slack.User) {
	if s.store == nil || u == nil {
		return
	}
	rec := storage.User{ID: u.ID, Name: displayName(u), Email: u.Profile.Email}
	if rec.Email == "" {
		return
	}
	if err := s.store.PutUser(ctx, rec); err != nil {
		s.log.Debug("user cache write failed", logx.Err(err))
	}
}

// pollPresence watches the authenticated user's own presence and feeds
// flips to the presence handler.
func (s *Source) pollPresence(ctx context.Context) {
	t := time.NewTicker(s.cfg.PresencePoll)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		s.mu.Lock()
		selfID := s.selfID
		fn := s.onPresence
		last := s.lastPresence
		s.mu.Unlock()
		if selfID == "" || fn == nil {
			continue
		}

		p, err := s.api.GetUserPresenceContext(ctx, selfID)
		if err != nil {
			s.log.Debug("presence poll failed", logx.Err(err))
			continue
		}
		if p.Presence == last {
			continue
		}
		s.mu.Lock()
		s.lastPresence = p.Presence
		s.mu.Unlock()
		fn(selfID, p.Presence)
	}
}

// SyncStatus mirrors the earshot status onto the user's Slack profile.
// Requires a user token; without one it is a no-op.
func (s *Source) SyncStatus(ctx context.Context, status kit.Status) {
	if s.user == nil {
		return
	}
	emoji := map[kit.Status]string{
		kit.StatusActive:  ":green_circle:",
		kit.StatusFocused: ":headphones:",
		kit.StatusDND:     ":no_entry:",
		kit.StatusAway:    ":clock1:",
	}[status]
	if err := s.user.SetUserCustomStatusContext(ctx, string(status), emoji, 0); err != nil {
		s.log.Debug("status sync failed", logx.Err(err))
	}
}

func displayName(u *slack.User) string {
	switch {
	case u == nil:
		return "Unknown User"
	case u.RealName != "":
		return u.RealName
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.Name != "":
		return u.Name
	default:
		return "Unknown User"
	}
}
