// Package beatclock maps wall-clock time onto beat-phase at a changing tempo.
//
// The clock keeps an anchor (a wall time and the phase at that time) and
// a tempo. Every tempo change or resume moves the anchor to now, so the
// phase is continuous across changes and paused time contributes nothing.
package beatclock

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-semiconductor/internal/timeutil"
)

// Config holds the tempo limits.
type Config struct {
	MinBPM     float64 `yaml:"min_bpm"`     // Finite positive tempos below this are clamped up
	MaxBPM     float64 `yaml:"max_bpm"`     // Tempos above this are clamped down
	InitialBPM float64 `yaml:"initial_bpm"` // Tempo after New and Reset
}

// DefaultConfig returns a playable range for conducted music.
func DefaultConfig() Config {
	return Config{
		MinBPM:     40,
		MaxBPM:     240,
		InitialBPM: 100,
	}
}

// Clock is the timing authority shared by the scheduler and state machine.
type Clock struct {
	mu    sync.RWMutex
	clock timeutil.Clock
	cfg   Config

	bpm         float64
	anchor      time.Time
	anchorPhase float64
	running     bool
	paused      bool

	played       time.Duration // Playing time before segmentStart
	segmentStart time.Time
}

// New creates a stopped clock at phase zero.
func New(clock timeutil.Clock, cfg Config) *Clock {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.MinBPM <= 0 {
		cfg.MinBPM = DefaultConfig().MinBPM
	}
	if cfg.MaxBPM < cfg.MinBPM {
		cfg.MaxBPM = cfg.MinBPM
	}
	c := &Clock{clock: clock, cfg: cfg}
	c.Reset()
	return c
}

// Start begins advancing phase from its current value. It is a no-op
// while already running.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	now := c.clock.Now()
	c.running = true
	c.paused = false
	c.anchor = now
	c.segmentStart = now
}

// Reset stops the clock and rewinds to phase zero at the initial tempo.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.paused = false
	c.anchorPhase = 0
	c.played = 0
	c.bpm = c.clamp(c.cfg.InitialBPM)
	if !(c.bpm > 0) {
		c.bpm = c.cfg.MinBPM
	}
}

// SetBaseTempo changes the tempo used after Reset, typically the
// song's own tempo. Invalid values are ignored.
func (c *Clock) SetBaseTempo(bpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return
	}
	c.cfg.InitialBPM = c.clamp(bpm)
}

// Phase returns the current beat position.
func (c *Clock) Phase() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phaseAt(c.clock.Now())
}

func (c *Clock) phaseAt(now time.Time) float64 {
	if !c.running || c.paused {
		return c.anchorPhase
	}
	return c.anchorPhase + now.Sub(c.anchor).Seconds()*c.bpm/60
}

// SetTempo changes the tempo without a phase jump. Non-finite and
// non-positive values are rejected and the previous tempo kept; anything
// else is clamped into [MinBPM, MaxBPM]. It returns the tempo in effect
// afterwards.
func (c *Clock) SetTempo(bpm float64) (applied float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return c.bpm, false
	}
	bpm = c.clamp(bpm)

	now := c.clock.Now()
	c.anchorPhase = c.phaseAt(now)
	c.anchor = now
	c.bpm = bpm
	return bpm, true
}

func (c *Clock) clamp(bpm float64) float64 {
	return math.Max(c.cfg.MinBPM, math.Min(c.cfg.MaxBPM, bpm))
}

// Pause freezes phase. Pausing twice is a no-op.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.paused {
		return
	}
	now := c.clock.Now()
	c.anchorPhase = c.phaseAt(now)
	c.played += now.Sub(c.segmentStart)
	c.paused = true
}

// Resume continues from the frozen phase.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || !c.paused {
		return
	}
	now := c.clock.Now()
	c.anchor = now
	c.segmentStart = now
	c.paused = false
}

// TimeAt returns the wall time phase will be reached at the current
// tempo. While stopped or paused it assumes playback continues now.
func (c *Clock) TimeAt(phase float64) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	base := c.anchor
	if !c.running || c.paused {
		base = c.clock.Now()
	}
	beats := phase - c.anchorPhase
	return base.Add(time.Duration(beats * 60 / c.bpm * float64(time.Second)))
}

// Elapsed returns playing time since Start, excluding pauses.
func (c *Clock) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running || c.paused {
		return c.played
	}
	return c.played + c.clock.Since(c.segmentStart)
}

// Now returns the current time of the underlying time source.
func (c *Clock) Now() time.Time { return c.clock.Now() }

// Tempo returns the current tempo in BPM.
func (c *Clock) Tempo() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bpm
}

// BeatDuration returns the length of one beat at the current tempo.
func (c *Clock) BeatDuration() time.Duration {
	return time.Duration(60 / c.Tempo() * float64(time.Second))
}

// Running reports whether Start has been called since the last Reset.
func (c *Clock) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Paused reports whether phase is frozen.
func (c *Clock) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}
