package kit

import "context"

// Deliverer renders one notification on an assistive output backend.
// Calls are fire-and-forget from the core's perspective: failures are
// logged by the caller and never retried.
type Deliverer interface {
	// Backend names the currently detected output backend. It selects
	// which BackendSettings entry accompanies a delivery.
	Backend() string
	Deliver(ctx context.Context, title, body string, profile Profile, settings map[string]any) error
}

// Directory resolves chat-platform identities. Implemented by the message
// source once authenticated.
type Directory interface {
	// SelfID returns the authenticated user's id, or "" when not logged in.
	SelfID() string
	// UserIDByEmail resolves an email to a user id, or "" when unknown.
	UserIDByEmail(ctx context.Context, email string) string
}
