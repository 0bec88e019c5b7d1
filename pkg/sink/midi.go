package sink

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const ccAllNotesOff = 123

// MIDISink sends notes to a MIDI output port.
type MIDISink struct {
	logger *slog.Logger
	volume uint8

	mu     sync.Mutex
	send   func(midi.Message) error
	close  func() error
	held   map[noteKey]struct{}
	closed bool

	notesOn  atomic.Int64
	notesOff atomic.Int64
	gains    atomic.Int64
	errors   atomic.Int64
}

// OpenMIDI finds and opens the configured output port.
func OpenMIDI(cfg Config, logger *slog.Logger) (*MIDISink, error) {
	out, err := midi.FindOutPort(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrPortNotFound, cfg.Port, err)
	}
	return NewMIDISink(out, cfg, logger)
}

// NewMIDISink wraps an output port.
func NewMIDISink(out drivers.Out, cfg Config, logger *slog.Logger) (*MIDISink, error) {
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open midi output %s: %w", out.String(), err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("midi output opened", "port", out.String())
	return newMIDISink(send, out.Close, cfg, logger), nil
}

func newMIDISink(send func(midi.Message) error, closeFn func() error, cfg Config, logger *slog.Logger) *MIDISink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MIDISink{
		logger: logger,
		volume: cfg.VolumeController,
		send:   send,
		close:  closeFn,
		held:   make(map[noteKey]struct{}),
	}
}

func (m *MIDISink) write(msg midi.Message) error {
	if err := m.send(msg); err != nil {
		// Log only every 100th failure to avoid spam
		if n := m.errors.Add(1); n%100 == 1 {
			m.logger.Warn("midi write failed", "error", err, "count", n)
		}
		return err
	}
	return nil
}

// NoteOn starts a note.
func (m *MIDISink) NoteOn(channel, key, velocity uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if velocity == 0 {
		velocity = 1
	}
	if err := m.write(midi.NoteOn(channel&0x0f, key&0x7f, velocity&0x7f)); err != nil {
		return err
	}
	m.held[noteKey{channel, key}] = struct{}{}
	m.notesOn.Add(1)
	return nil
}

// NoteOff releases a note.
func (m *MIDISink) NoteOff(channel, key uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	k := noteKey{channel, key}
	if _, ok := m.held[k]; !ok {
		return nil
	}
	delete(m.held, k)
	if err := m.write(midi.NoteOff(channel&0x0f, key&0x7f)); err != nil {
		return err
	}
	m.notesOff.Add(1)
	return nil
}

// SetGain sends the volume controller.
func (m *MIDISink) SetGain(channel uint8, gain float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.write(midi.ControlChange(channel&0x0f, m.volume, gainToCC(gain))); err != nil {
		return err
	}
	m.gains.Add(1)
	return nil
}

// Silence releases held notes and sends All Notes Off on every channel.
func (m *MIDISink) Silence() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.silenceLocked()
}

func (m *MIDISink) silenceLocked() error {
	var firstErr error
	for k := range m.held {
		if err := m.write(midi.NoteOff(k.channel&0x0f, k.key&0x7f)); err != nil && firstErr == nil {
			firstErr = err
		}
		m.notesOff.Add(1)
	}
	clear(m.held)
	for ch := uint8(0); ch < 16; ch++ {
		if err := m.write(midi.ControlChange(ch, ccAllNotesOff, 0)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Name returns "midi".
func (m *MIDISink) Name() string { return "midi" }

// Stats returns delivery counters.
func (m *MIDISink) Stats() Stats {
	m.mu.Lock()
	held := len(m.held)
	m.mu.Unlock()
	return Stats{
		NotesOn:     m.notesOn.Load(),
		NotesOff:    m.notesOff.Load(),
		GainChanges: m.gains.Load(),
		Errors:      m.errors.Load(),
		Held:        held,
		Backend:     m.Name(),
	}
}

// Close silences the port and closes it.
func (m *MIDISink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.silenceLocked()
	m.closed = true
	if m.close != nil {
		return m.close()
	}
	return nil
}
