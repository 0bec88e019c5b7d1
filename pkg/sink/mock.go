package sink

import (
	"sync"
	"time"

	"github.com/teslashibe/go-semiconductor/internal/timeutil"
)

// EventKind identifies a recorded sink call.
type EventKind string

const (
	EventNoteOn  EventKind = "note_on"
	EventNoteOff EventKind = "note_off"
	EventGain    EventKind = "gain"
	EventSilence EventKind = "silence"
)

// Event is one recorded call.
type Event struct {
	Kind     EventKind
	At       time.Time
	Channel  uint8
	Key      uint8
	Velocity uint8
	Gain     float64
}

// MockSink records every call for tests.
type MockSink struct {
	clock timeutil.Clock

	mu     sync.Mutex
	events []Event
	held   map[noteKey]struct{}
	gains  map[uint8]float64
	closed bool
	stats  Stats

	// Injected failures, see FailNext
	failErr   error
	failCount int
}

// NewMockSink creates a mock sink. Events are stamped with clock, or
// the wall clock when nil.
func NewMockSink(clock timeutil.Clock) *MockSink {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &MockSink{
		clock: clock,
		held:  make(map[noteKey]struct{}),
		gains: make(map[uint8]float64),
		stats: Stats{Backend: "mock"},
	}
}

// FailNext makes the next n calls return err.
func (m *MockSink) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount, m.failErr = n, err
}

func (m *MockSink) check() error {
	if m.closed {
		return ErrClosed
	}
	if m.failCount > 0 {
		m.failCount--
		m.stats.Errors++
		return m.failErr
	}
	return nil
}

// NoteOn records a note start.
func (m *MockSink) NoteOn(channel, key, velocity uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.held[noteKey{channel, key}] = struct{}{}
	m.stats.NotesOn++
	m.events = append(m.events, Event{Kind: EventNoteOn, At: m.clock.Now(), Channel: channel, Key: key, Velocity: velocity})
	return nil
}

// NoteOff records a note release.
func (m *MockSink) NoteOff(channel, key uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	k := noteKey{channel, key}
	if _, ok := m.held[k]; !ok {
		return nil
	}
	delete(m.held, k)
	m.stats.NotesOff++
	m.events = append(m.events, Event{Kind: EventNoteOff, At: m.clock.Now(), Channel: channel, Key: key})
	return nil
}

// SetGain records a volume change.
func (m *MockSink) SetGain(channel uint8, gain float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.gains[channel] = gain
	m.stats.GainChanges++
	m.events = append(m.events, Event{Kind: EventGain, At: m.clock.Now(), Channel: channel, Gain: gain})
	return nil
}

// Silence records a silence and releases held notes.
func (m *MockSink) Silence() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.stats.NotesOff += int64(len(m.held))
	clear(m.held)
	m.events = append(m.events, Event{Kind: EventSilence, At: m.clock.Now()})
	return nil
}

// Name returns "mock".
func (m *MockSink) Name() string { return "mock" }

// Stats returns call counters.
func (m *MockSink) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Held = len(m.held)
	return s
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.held)
	return nil
}

// Events returns a copy of all recorded events.
func (m *MockSink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// NotesOn returns the recorded note starts.
func (m *MockSink) NotesOn() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Kind == EventNoteOn {
			out = append(out, e)
		}
	}
	return out
}

// Gain returns the last gain set on channel and whether one was set.
func (m *MockSink) Gain(channel uint8) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gains[channel]
	return g, ok
}

// Reset forgets recorded events without touching held notes.
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
