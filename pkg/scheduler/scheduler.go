// Package scheduler plays a multi-track song against the beat clock.
//
// Notes are queued a short lookahead ahead of the playhead and fired on
// periodic ticks. Due times come from the beat clock and are re-derived
// whenever the tempo changes, so queued notes follow the conductor.
// Ticks may arrive late or be skipped: anything already due fires on
// the next tick instead of being dropped.
package scheduler

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/beatclock"
	"github.com/teslashibe/go-semiconductor/pkg/sink"
	"github.com/teslashibe/go-semiconductor/pkg/song"
)

// Trigger reports a note that started, for renderer animations.
type Trigger struct {
	TrackID    string  `json:"track_id"`
	Instrument string  `json:"instrument"`
	Pitch      uint8   `json:"pitch"`
	Velocity   float64 `json:"velocity"`
	Beat       float64 `json:"beat"`
}

// Report is the outcome of a Tick.
type Report struct {
	Progress float64   // Percent of the song played at the current tempo
	Finished bool      // True on the single tick that crossed CompleteAt
	Triggers []Trigger // Notes started during this tick
}

// TrackSnapshot is a read-only view of one track.
type TrackSnapshot struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Instrument string  `json:"instrument"`
	Active     bool    `json:"active"`
	Gain       float64 `json:"gain"`
}

// Snapshot is a read-only view of the scheduler.
type Snapshot struct {
	Song     string          `json:"song"`
	Playing  bool            `json:"playing"`
	Phase    float64         `json:"phase"`
	Total    float64         `json:"total_beats"`
	Tempo    float64         `json:"tempo"`
	Progress float64         `json:"progress"`
	Velocity float64         `json:"velocity"`
	Pending  int             `json:"pending"`
	Tracks   []TrackSnapshot `json:"tracks"`
}

// Scheduler owns the runtime state of a song's tracks.
type Scheduler struct {
	cfg    Config
	clock  *beatclock.Clock
	out    sink.Sink
	logger *slog.Logger

	mu       sync.Mutex
	song     *song.Song
	total    float64
	tracks   []*trackState
	byID     map[string]int
	queue    eventQueue
	seq      uint64
	playing  bool
	finished bool
	velocity float64
}

// New creates a scheduler driving out from clock.
func New(clock *beatclock.Clock, out sink.Sink, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if clock == nil || out == nil {
		return nil, fmt.Errorf("scheduler needs a clock and a sink")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		clock:    clock,
		out:      out,
		logger:   logger,
		velocity: 1,
	}, nil
}

// Queue loads a song and rewinds to its start. A song that was playing
// is stopped first.
func (s *Scheduler) Queue(sng *song.Song) error {
	if sng == nil {
		return ErrNoSong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.playing = false
	s.clock.SetBaseTempo(sng.Header.BPM)
	s.clock.Reset()

	s.song = sng
	s.total = sng.TotalBeats()
	s.tracks = make([]*trackState, len(sng.Tracks))
	s.byID = make(map[string]int, len(sng.Tracks))
	for i := range sng.Tracks {
		s.tracks[i] = newTrackState(&sng.Tracks[i])
		s.byID[sng.Tracks[i].ID] = i
	}
	s.rewindLocked()

	s.logger.Info("song queued",
		"name", sng.Header.Name,
		"tracks", len(sng.Tracks),
		"notes", sng.NoteCount(),
		"beats", s.total,
	)
	return nil
}

// Start begins or resumes playback.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.song == nil {
		return ErrNoSong
	}
	if s.playing {
		return nil
	}

	if !s.clock.Running() {
		s.clock.Start()
	} else {
		s.clock.Resume()
	}
	s.playing = true
	s.retimeLocked()
	return nil
}

// Stop pauses playback: every track holds its position and sounding
// notes are released. Stop is safe in any state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return
	}
	s.clock.Pause()
	s.playing = false
	s.releaseAllLocked()
}

// Restart stops playback, discards every queued note and rewinds to the
// start of the song. Nothing queued before Restart fires afterwards.
func (s *Scheduler) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playing = false
	s.clock.Reset()
	s.rewindLocked()
}

func (s *Scheduler) rewindLocked() {
	s.queue = s.queue[:0]
	s.finished = false
	s.velocity = 1
	for _, ts := range s.tracks {
		ts.rewind()
	}
	if err := s.out.Silence(); err != nil {
		s.logger.Warn("failed to silence sink", "error", err)
	}
}

func (s *Scheduler) releaseAllLocked() {
	for _, ts := range s.tracks {
		clear(ts.sounding)
	}
	if err := s.out.Silence(); err != nil {
		s.logger.Warn("failed to silence sink", "error", err)
	}
}

// Retime re-derives the due time of every queued note from the beat
// clock. Call it after every tempo change.
func (s *Scheduler) Retime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retimeLocked()
}

func (s *Scheduler) retimeLocked() {
	for _, e := range s.queue {
		e.due = s.clock.TimeAt(e.beat)
	}
}

// SetInstrumentGroup makes exactly the listed tracks audible. Inactive
// tracks keep advancing silently so they re-enter in phase.
func (s *Scheduler) SetInstrumentGroup(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.song == nil {
		return ErrNoSong
	}

	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		i, ok := s.byID[id]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTrack, id)
		}
		want[i] = true
	}

	for i, ts := range s.tracks {
		active := want[i]
		if ts.active && !active {
			s.muteLocked(ts)
		}
		ts.active = active
	}
	return nil
}

// SetGroup activates a named instrument group of the queued song.
func (s *Scheduler) SetGroup(name string) error {
	s.mu.Lock()
	sng := s.song
	s.mu.Unlock()
	if sng == nil {
		return ErrNoSong
	}

	ids, err := sng.Group(name)
	if err != nil {
		return err
	}
	return s.SetInstrumentGroup(ids)
}

func (s *Scheduler) muteLocked(ts *trackState) {
	for pitch := range ts.sounding {
		if err := s.out.NoteOff(ts.track.Channel, pitch); err != nil {
			s.logger.Debug("note off failed", "track", ts.track.ID, "error", err)
		}
	}
	clear(ts.sounding)
}

// SetVelocity sets the conducting intensity, 0-1. Track gains ramp
// towards the new level over RampDuration.
func (s *Scheduler) SetVelocity(level float64) {
	if math.IsNaN(level) {
		return
	}
	level = math.Max(0, math.Min(1, level))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.velocity = level
	target := s.cfg.MinGain + (1-s.cfg.MinGain)*level
	now := s.clock.Now()
	for _, ts := range s.tracks {
		ts.setTarget(target, now, s.cfg.RampDuration)
	}
}

// Tick queues notes entering the lookahead window, fires every note that
// is due and advances gain ramps.
func (s *Scheduler) Tick(now time.Time) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.song == nil || !s.playing {
		return Report{Progress: s.progressLocked()}
	}

	s.fillLocked()
	triggers := s.fireLocked(now)
	s.applyGainLocked(now)

	r := Report{Progress: s.progressLocked(), Triggers: triggers}
	if r.Progress >= s.cfg.CompleteAt && !s.finished {
		s.finished = true
		r.Finished = true
		s.logger.Info("song complete", "elapsed", s.clock.Elapsed().Round(time.Millisecond))
	}
	return r
}

func (s *Scheduler) fillLocked() {
	horizon := s.clock.Phase() + s.cfg.Lookahead.Seconds()*s.clock.Tempo()/60

	for ti, ts := range s.tracks {
		notes := ts.track.Notes
		for ts.next < len(notes) && notes[ts.next].Beat <= horizon {
			n := notes[ts.next]
			s.seq++
			s.queue.push(&event{beat: n.Beat, due: s.clock.TimeAt(n.Beat), track: ti, note: ts.next, seq: s.seq})
			s.seq++
			s.queue.push(&event{beat: n.End(), due: s.clock.TimeAt(n.End()), track: ti, note: ts.next, off: true, seq: s.seq})
			ts.next++
		}
	}
}

func (s *Scheduler) fireLocked(now time.Time) []Trigger {
	var triggers []Trigger

	for e := s.queue.peek(); e != nil && !e.due.After(now); e = s.queue.peek() {
		s.queue.pop()
		ts := s.tracks[e.track]
		n := ts.track.Notes[e.note]

		if e.off {
			if ts.sounding[n.Pitch] == 0 {
				continue
			}
			// Overlapping notes on one pitch share a key; release on the last
			ts.sounding[n.Pitch]--
			if ts.sounding[n.Pitch] > 0 {
				continue
			}
			delete(ts.sounding, n.Pitch)
			if err := s.out.NoteOff(ts.track.Channel, n.Pitch); err != nil {
				s.logger.Debug("note off failed", "track", ts.track.ID, "error", err)
			}
			continue
		}

		// Inactive tracks advance without sounding
		if !ts.active {
			continue
		}
		if err := s.out.NoteOn(ts.track.Channel, n.Pitch, midiVelocity(n.Velocity)); err != nil {
			s.logger.Debug("note on failed", "track", ts.track.ID, "error", err)
			continue
		}
		ts.sounding[n.Pitch]++
		triggers = append(triggers, Trigger{
			TrackID:    ts.track.ID,
			Instrument: ts.track.Instrument,
			Pitch:      n.Pitch,
			Velocity:   n.Velocity,
			Beat:       n.Beat,
		})
	}
	return triggers
}

func (s *Scheduler) applyGainLocked(now time.Time) {
	for _, ts := range s.tracks {
		g := ts.gain(now, s.cfg.RampDuration)
		// Half a controller step is the smallest audible change
		if ts.lastSent >= 0 && math.Abs(g-ts.lastSent) < 0.5/127 && (g != ts.target || ts.lastSent == ts.target) {
			continue
		}
		if err := s.out.SetGain(ts.track.Channel, g); err != nil {
			s.logger.Debug("gain change failed", "track", ts.track.ID, "error", err)
			continue
		}
		ts.lastSent = g
	}
}

// Progress returns the percentage of the song played, measured against
// the real-time length implied by the current tempo.
func (s *Scheduler) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Scheduler) progressLocked() float64 {
	if s.song == nil || s.total <= 0 {
		return 0
	}
	elapsed := s.clock.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	remaining := math.Max(0, s.total-s.clock.Phase()) * 60 / s.clock.Tempo()
	if remaining == 0 {
		return 100
	}
	return math.Min(100, 100*elapsed/(elapsed+remaining))
}

// Playing reports whether the scheduler is started.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Song returns the queued song, or nil.
func (s *Scheduler) Song() *song.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.song
}

// Snapshot returns a read-only view for dashboards.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Playing:  s.playing,
		Phase:    s.clock.Phase(),
		Total:    s.total,
		Tempo:    s.clock.Tempo(),
		Progress: s.progressLocked(),
		Velocity: s.velocity,
		Pending:  len(s.queue),
	}
	if s.song != nil {
		snap.Song = s.song.Header.Name
	}
	now := s.clock.Now()
	for _, ts := range s.tracks {
		snap.Tracks = append(snap.Tracks, TrackSnapshot{
			ID:         ts.track.ID,
			Name:       ts.track.Name,
			Instrument: ts.track.Instrument,
			Active:     ts.active,
			Gain:       ts.gain(now, s.cfg.RampDuration),
		})
	}
	return snap
}

func midiVelocity(v float64) uint8 {
	n := uint8(math.Round(math.Max(0, math.Min(1, v)) * 127))
	if n == 0 {
		n = 1
	}
	return n
}
