package notify

import "errors"

// ErrUnknownProfile is returned when an assignment names a profile that
// does not exist.
var ErrUnknownProfile = errors.New("unknown profile")
