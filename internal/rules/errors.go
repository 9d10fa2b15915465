package rules

import "errors"

var (
	// ErrValidation is returned by Builder.Done when the rule is malformed
	// (currently: no name). The rule is not registered.
	ErrValidation = errors.New("rule validation failed")

	// ErrConfiguration is returned when rule construction needs context
	// that is unavailable, e.g. resolving "self" before login.
	ErrConfiguration = errors.New("rule configuration unavailable")
)
