package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// LogSink writes notes to a logger at debug level. It is the default
// when no MIDI port is configured, so headless runs still show activity.
type LogSink struct {
	logger *slog.Logger

	mu     sync.Mutex
	held   map[noteKey]struct{}
	closed bool

	notesOn  atomic.Int64
	notesOff atomic.Int64
	gains    atomic.Int64
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		logger: logger.With("component", "sink"),
		held:   make(map[noteKey]struct{}),
	}
}

// NoteOn logs a note start.
func (l *LogSink) NoteOn(channel, key, velocity uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.held[noteKey{channel, key}] = struct{}{}
	l.notesOn.Add(1)
	l.logger.Debug("note on", "channel", channel, "key", key, "velocity", velocity)
	return nil
}

// NoteOff logs a note release.
func (l *LogSink) NoteOff(channel, key uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	k := noteKey{channel, key}
	if _, ok := l.held[k]; !ok {
		return nil
	}
	delete(l.held, k)
	l.notesOff.Add(1)
	l.logger.Debug("note off", "channel", channel, "key", key)
	return nil
}

// SetGain logs a volume change.
func (l *LogSink) SetGain(channel uint8, gain float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.gains.Add(1)
	l.logger.Debug("gain", "channel", channel, "gain", gain)
	return nil
}

// Silence releases all held notes.
func (l *LogSink) Silence() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.notesOff.Add(int64(len(l.held)))
	clear(l.held)
	return nil
}

// Name returns "log".
func (l *LogSink) Name() string { return "log" }

// Stats returns delivery counters.
func (l *LogSink) Stats() Stats {
	l.mu.Lock()
	held := len(l.held)
	l.mu.Unlock()
	return Stats{
		NotesOn:     l.notesOn.Load(),
		NotesOff:    l.notesOff.Load(),
		GainChanges: l.gains.Load(),
		Held:        held,
		Backend:     l.Name(),
	}
}

// Close releases held notes.
func (l *LogSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.notesOff.Add(int64(len(l.held)))
	clear(l.held)
	l.closed = true
	return nil
}
