// Package sink delivers scheduled notes to an output device.
//
// This package supports multiple backends:
//   - MIDI - a hardware or virtual MIDI output port (gomidi)
//   - Log - headless runs, notes are written to the logger
//   - Mock - tests, every call is recorded
package sink

import "io"

// Sink plays notes. Gain is per channel and scales note velocity at
// the device, so ramps never retrigger held notes.
type Sink interface {
	// NoteOn starts a note. Velocity is 1-127.
	NoteOn(channel, key, velocity uint8) error

	// NoteOff releases a note. Releasing a note that is not held is a no-op.
	NoteOff(channel, key uint8) error

	// SetGain sets a channel's volume, 0-1.
	SetGain(channel uint8, gain float64) error

	// Silence releases every held note on every channel.
	// It is safe to call at any time.
	Silence() error

	// Name returns the backend name (e.g., "midi", "log", "mock").
	Name() string

	// Stats returns delivery counters.
	Stats() Stats

	// Close silences and releases the device.
	// After Close every call returns ErrClosed.
	io.Closer
}

// Stats contains statistics about a sink.
type Stats struct {
	// NotesOn is the total number of notes started.
	NotesOn int64 `json:"notes_on"`

	// NotesOff is the total number of notes released.
	NotesOff int64 `json:"notes_off"`

	// GainChanges is the number of SetGain calls delivered.
	GainChanges int64 `json:"gain_changes"`

	// Errors is the number of messages the device rejected.
	Errors int64 `json:"errors"`

	// Held is the number of notes currently sounding.
	Held int `json:"held"`

	// Backend is the name of the backend.
	Backend string `json:"backend"`
}

// gainToCC maps a 0-1 gain onto a 7-bit controller value.
func gainToCC(gain float64) uint8 {
	switch {
	case gain <= 0:
		return 0
	case gain >= 1:
		return 127
	default:
		return uint8(gain*127 + 0.5)
	}
}

// noteKey identifies a held note.
type noteKey struct {
	channel uint8
	key     uint8
}
