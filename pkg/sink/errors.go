package sink

import "errors"

var (
	// ErrClosed is returned when using a sink after Close.
	ErrClosed = errors.New("sink closed")

	// ErrUnsupportedBackend is returned by New for an unknown backend.
	ErrUnsupportedBackend = errors.New("unsupported sink backend")

	// ErrPortNotFound is returned when no MIDI output matches the configured port.
	ErrPortNotFound = errors.New("midi output port not found")
)
