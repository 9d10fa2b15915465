// Package output renders notifications on the assistive technology the
// user actually runs: a screen reader when one is detected (VoiceOver,
// NVDA, JAWS, Orca), plain speech synthesis otherwise, plus a system
// sound per profile.
//
// All platform interaction goes through external commands behind the
// Runner interface so the delivery paths stay testable.
package output
