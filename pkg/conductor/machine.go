// Package conductor runs a conducting performance. A Machine owns the
// session lifecycle and turns gesture events and UI actions into beat
// clock and scheduler control from a single control loop.
package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-semiconductor/internal/timeutil"
	"github.com/teslashibe/go-semiconductor/pkg/beatclock"
	"github.com/teslashibe/go-semiconductor/pkg/gesture"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/scheduler"
	"github.com/teslashibe/go-semiconductor/pkg/song"
)

type command int

const (
	cmdStartCalibration command = iota
	cmdRestart
	cmdStop
	cmdResume
	cmdLoad
)

func (c command) String() string {
	switch c {
	case cmdStartCalibration:
		return "start_calibration"
	case cmdRestart:
		return "restart"
	case cmdStop:
		return "stop"
	case cmdResume:
		return "resume"
	case cmdLoad:
		return "load"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

type request struct {
	cmd   command
	song  *song.Song
	reply chan error
}

// Machine is the conducting state machine.
type Machine struct {
	cfg      Config
	clock    timeutil.Clock
	beats    *beatclock.Clock
	sched    *scheduler.Scheduler
	analyzer *gesture.Analyzer
	render   Renderer
	logger   *slog.Logger

	samples  chan pose.Sample
	requests chan request
	dropped  atomic.Int64
	snap     atomic.Pointer[Snapshot]

	// Owned by the control loop
	session      *Session
	transitionAt time.Time
	countdown    <-chan struct{}
	lastProgress float64
}

// New creates a machine in StateIdle. The scheduler should already have
// a song queued; Load replaces it later.
func New(cfg Config, clock timeutil.Clock, beats *beatclock.Clock, sched *scheduler.Scheduler,
	analyzer *gesture.Analyzer, render Renderer, logger *slog.Logger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conductor config: %w", err)
	}
	if beats == nil || sched == nil || analyzer == nil {
		return nil, errors.New("conductor needs a beat clock, scheduler and analyzer")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if render == nil {
		render = NopRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		cfg:      cfg,
		clock:    clock,
		beats:    beats,
		sched:    sched,
		analyzer: analyzer,
		render:   render,
		logger:   logger,
		samples:  make(chan pose.Sample, cfg.SampleBuffer),
		requests: make(chan request, 8),
		session:  newSession(clock.Now()),
	}
	m.publish()
	return m, nil
}

// SetRenderer replaces the renderer. Call it before Run.
func (m *Machine) SetRenderer(r Renderer) {
	if r == nil {
		r = NopRenderer{}
	}
	m.render = r
}

// Run drives the machine until ctx is cancelled. All session, clock and
// scheduler mutations happen on this goroutine.
func (m *Machine) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.logger.Info("conductor started", "session", m.session.ID, "tick", m.cfg.TickInterval)
	if m.sched.Song() != nil {
		m.render.RenderLoadProgress(100)
	}
	m.publish()

	for {
		select {
		case <-ctx.Done():
			m.sched.Stop()
			m.logger.Info("conductor stopped", "session", m.session.ID)
			return ctx.Err()

		case s := <-m.samples:
			m.handleSample(s)

		case req := <-m.requests:
			req.reply <- m.handle(req)

		case now := <-ticker.C():
			m.tick(now)
		}
	}
}

// Submit hands a pose sample to the control loop. It never blocks: when
// the buffer is full the sample is dropped and false returned.
func (m *Machine) Submit(s pose.Sample) bool {
	select {
	case m.samples <- s:
		return true
	default:
		if n := m.dropped.Add(1); n%100 == 1 {
			m.logger.Warn("pose samples dropped", "total", n)
		}
		return false
	}
}

// StartCalibration begins looking for the calibration pose.
func (m *Machine) StartCalibration(ctx context.Context) error {
	return m.do(ctx, request{cmd: cmdStartCalibration})
}

// Restart abandons the performance and returns to StateIdle. It is valid
// in every state.
func (m *Machine) Restart(ctx context.Context) error {
	return m.do(ctx, request{cmd: cmdRestart})
}

// Stop pauses playback until Resume. Outside a performance it does nothing.
func (m *Machine) Stop(ctx context.Context) error {
	return m.do(ctx, request{cmd: cmdStop})
}

// Resume continues a paused performance.
func (m *Machine) Resume(ctx context.Context) error {
	return m.do(ctx, request{cmd: cmdResume})
}

// Load queues a different song. Only allowed before a performance starts
// or after it finished.
func (m *Machine) Load(ctx context.Context, sng *song.Song) error {
	if sng == nil {
		return scheduler.ErrNoSong
	}
	return m.do(ctx, request{cmd: cmdLoad, song: sng})
}

func (m *Machine) do(ctx context.Context, req request) error {
	req.reply = make(chan error, 1)
	select {
	case m.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published view. Safe from any goroutine.
func (m *Machine) Snapshot() Snapshot {
	var s Snapshot
	if p := m.snap.Load(); p != nil {
		s = *p
	}
	s.Dropped = m.dropped.Load()
	return s
}

func (m *Machine) handle(req request) error {
	m.logger.Debug("command", "cmd", req.cmd, "state", m.session.State)

	switch req.cmd {
	case cmdStartCalibration:
		switch m.session.State {
		case StateCalibrating:
			return nil
		case StateIdle:
			m.analyzer.SetMode(gesture.ModeCalibrating)
			m.transition(StateCalibrating)
			return nil
		}
		return fmt.Errorf("%w: start calibration while %s", ErrInvalidTransition, m.session.State)

	case cmdRestart:
		m.restart()
		return nil

	case cmdStop:
		switch m.session.State {
		case StateConducting:
			m.pause(true)
		case StatePaused:
			m.session.ManualPause = true
		}
		return nil

	case cmdResume:
		if m.session.State != StatePaused {
			return fmt.Errorf("%w: resume while %s", ErrInvalidTransition, m.session.State)
		}
		m.resume(m.clock.Now())
		return nil

	case cmdLoad:
		if m.session.State != StateIdle && m.session.State != StateFinished {
			return fmt.Errorf("%w: %s", ErrBusy, m.session.State)
		}
		if err := m.sched.Queue(req.song); err != nil {
			return err
		}
		m.restart()
		m.render.RenderLoadProgress(100)
		return nil
	}
	return fmt.Errorf("unknown command %v", req.cmd)
}

func (m *Machine) handleSample(s pose.Sample) {
	for _, ev := range m.analyzer.Analyze(s) {
		m.handleEvent(ev)
	}
}

func (m *Machine) handleEvent(ev gesture.Event) {
	now := m.clock.Now()
	st := m.session.State

	switch ev.Kind {
	case gesture.CalibrationPoseDetected:
		if st != StateCalibrating {
			return
		}
		m.analyzer.SetMode(gesture.ModeIdle)
		m.transitionAt = now.Add(m.cfg.SuccessDelay)
		m.transition(StateCalibrationSuccess)
		m.render.RenderCalibrationSuccess()

	case gesture.BeatDetected:
		if st != StateConducting && st != StatePaused {
			return
		}
		m.session.Beats++
		m.session.LastBeat = now
		if st == StatePaused && !m.session.ManualPause {
			m.logger.Info("beats resumed")
			m.resume(now)
			return
		}
		m.publish()

	case gesture.TempoChanged:
		if st != StateConducting {
			m.logger.Debug("tempo discarded", "bpm", ev.Tempo.BPM, "state", st)
			return
		}
		applied, ok := m.beats.SetTempo(ev.Tempo.BPM)
		if !ok {
			m.logger.Debug("tempo rejected", "bpm", ev.Tempo.BPM)
			return
		}
		m.sched.Retime()
		m.session.Tempo = applied
		m.session.Stability = ev.Tempo.Stability
		m.render.RenderTempo(applied)
		m.publish()

	case gesture.VelocityChanged:
		if st != StateConducting {
			return
		}
		m.sched.SetVelocity(ev.Velocity)
		m.session.Velocity = ev.Velocity
		m.publish()

	case gesture.GroupChanged:
		if st != StateConducting {
			return
		}
		m.setZone(ev.Zone)
	}
}

// setZone activates the song group named after the zone. Songs without
// such a group play in full.
func (m *Machine) setZone(zone string) {
	err := m.sched.SetGroup(zone)
	if errors.Is(err, song.ErrUnknownGroup) {
		err = m.sched.SetGroup(song.GroupAll)
	}
	if err != nil {
		m.logger.Warn("failed to switch instrument group", "zone", zone, "error", err)
		return
	}
	m.session.Zone = zone
	m.logger.Info("instrument group", "zone", zone)
	m.publish()
}

func (m *Machine) tick(now time.Time) {
	switch m.session.State {
	case StateCalibrationSuccess:
		if now.Before(m.transitionAt) {
			return
		}
		m.transitionAt = now.Add(m.cfg.ConductDelay)
		m.transition(StateCountdown)
		m.render.RenderConductPage()

	case StateCountdown:
		if m.countdown == nil {
			if now.Before(m.transitionAt) {
				return
			}
			if m.countdown = m.render.RenderCountdown(); m.countdown != nil {
				return
			}
		} else {
			select {
			case <-m.countdown:
			default:
				return
			}
		}
		m.countdown = nil
		m.beginConducting(now)

	case StateConducting:
		if since := now.Sub(m.session.LastBeat); since > m.stallThreshold() {
			m.logger.Info("no beats, pausing", "since", since.Round(time.Millisecond))
			m.pause(false)
			return
		}
		m.advance(now)
	}
}

func (m *Machine) beginConducting(now time.Time) {
	if err := m.sched.Start(); err != nil {
		m.logger.Error("cannot start playback", "error", err)
		m.restart()
		return
	}
	m.analyzer.SetMode(gesture.ModeConducting)
	m.session.Started = now
	m.session.LastBeat = now
	m.lastProgress = 0
	m.transition(StateConducting)
	m.render.RenderSongProgress(0)
	m.advance(now)
}

func (m *Machine) advance(now time.Time) {
	rep := m.sched.Tick(now)
	for _, t := range rep.Triggers {
		m.render.TriggerAnimation(t)
	}
	if rep.Progress-m.lastProgress >= m.cfg.ProgressStep || rep.Finished {
		m.lastProgress = rep.Progress
		m.render.RenderSongProgress(rep.Progress)
		m.publish()
	}
	if rep.Finished {
		m.finish()
	}
}

func (m *Machine) finish() {
	m.sched.Stop()
	m.analyzer.SetMode(gesture.ModeIdle)
	m.transition(StateFinished)
	m.render.RenderFinishPage()
}

func (m *Machine) pause(manual bool) {
	m.sched.Stop()
	m.session.ManualPause = manual
	m.transition(StatePaused)
}

func (m *Machine) resume(now time.Time) {
	if err := m.sched.Start(); err != nil {
		m.logger.Error("cannot resume playback", "error", err)
		return
	}
	m.session.ManualPause = false
	m.session.LastBeat = now
	m.transition(StateConducting)
}

func (m *Machine) restart() {
	m.sched.Restart()
	m.analyzer.Reset()
	m.session = newSession(m.clock.Now())
	m.transitionAt = time.Time{}
	m.countdown = nil
	m.lastProgress = 0
	m.logger.Info("session reset", "session", m.session.ID)
	m.render.RenderSongProgress(0)
	m.publish()
}

// stallThreshold is how long conducting may go without a down-beat.
// It scales with the live tempo, or the song's own beat length before
// the first estimate.
func (m *Machine) stallThreshold() time.Duration {
	beat := 60 / m.beats.Tempo()
	if m.session.Tempo == 0 {
		if s := m.sched.Song(); s != nil && s.Header.BeatLength > 0 {
			beat = s.Header.BeatLength
		}
	}
	d := time.Duration(m.cfg.StallBeats * beat * float64(time.Second))
	return time.Duration(math.Max(float64(d), float64(m.cfg.MinStall)))
}

func (m *Machine) transition(to State) {
	if from := m.session.State; from != to {
		m.logger.Info("state change", "from", from, "to", to, "session", m.session.ID)
	}
	m.session.State = to
	m.publish()
}

func (m *Machine) publish() {
	ss := m.sched.Snapshot()
	s := &Snapshot{
		SessionID: m.session.ID,
		State:     m.session.State,
		Song:      ss.Song,
		Tempo:     ss.Tempo,
		Stability: m.session.Stability,
		Velocity:  m.session.Velocity,
		Zone:      m.session.Zone,
		Beats:     m.session.Beats,
		Phase:     ss.Phase,
		Total:     ss.Total,
		Progress:  ss.Progress,
		Paused:    m.session.Paused(),
		Started:   m.session.Started,
		Dropped:   m.dropped.Load(),
	}
	m.snap.Store(s)
	m.render.RenderState(*s)
}
