// Package core wires earshot together: configuration, logging, storage,
// the Slack source, the rule engine, status tracking and the notification
// pipeline. It owns startup order and graceful shutdown; the packages it
// assembles do not know about each other.
package core
