// Package slack is the message source: it holds the Socket Mode
// connection to the workspace, normalizes message events into
// kit.Message values, watches the user's presence, and resolves
// identities (self, email → id) for the rule builder.
package slack
