package storage

import (
	"context"
	"time"

	"earshot/internal/kit"
	"earshot/internal/rules"
)

// Config configures storage. An empty Path disables persistence; the
// daemon then runs purely in-memory.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// User is a cached workspace member.
type User struct {
	ID    string
	Name  string
	Email string
}

// Tokens are the chat-platform credentials captured during setup. The
// user token is optional; it only enables profile status sync.
type Tokens struct {
	AppToken  string
	BotToken  string
	UserToken string
}

// Store is the persistence API used by the core. A nil Store is valid
// and means "no persistence".
type Store interface {
	LoadProfiles(ctx context.Context) (profiles []kit.Profile, assignments map[string]string, err error)
	SaveProfiles(ctx context.Context, profiles []kit.Profile, assignments map[string]string) error

	LoadRules(ctx context.Context) ([]rules.Rule, error)
	SaveRule(ctx context.Context, r rules.Rule) error
	DeleteRule(ctx context.Context, id string) error

	GetUserByEmail(ctx context.Context, email string) (User, bool, error)
	PutUser(ctx context.Context, u User) error

	SaveTokens(ctx context.Context, t Tokens) error
	Tokens(ctx context.Context) (Tokens, bool, error)

	Close() error
}
