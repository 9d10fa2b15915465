// Package notify owns notification profiles and the delivery pipeline:
// per-sender profile resolution, status gating, dedup, a priority queue,
// and the single dispatch worker that talks to the output backend.
//
// Rendering happens before enqueue; the worker only ever sees fully
// rendered items, so a half-rendered notification is never observable.
package notify
