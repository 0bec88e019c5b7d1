package conductor

import "errors"

var (
	// ErrInvalidTransition is returned when a UI action does not apply to
	// the current state.
	ErrInvalidTransition = errors.New("action not valid in current state")

	// ErrBusy is returned when a song change is requested mid-performance.
	ErrBusy = errors.New("performance in progress")
)
