// Package kit holds the shared domain types of earshot: chat messages,
// notification priorities, user statuses, notification profiles, and the
// small interfaces that connect the core to its collaborators (output
// backend, user directory, persistence).
//
// Everything in this package is either an immutable value or a pure
// function; no goroutines, no locks.
package kit
