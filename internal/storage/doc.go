// Package storage persists earshot's durable state: notification rules,
// profiles, per-sender profile assignments, workspace tokens and the
// local user cache (email → id).
//
// The backing store is a single SQLite file. Loads happen at startup,
// saves on every mutation; the core never reads the store on the hot
// path.
package storage
