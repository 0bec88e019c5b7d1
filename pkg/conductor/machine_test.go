package conductor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-semiconductor/internal/log"
	"github.com/teslashibe/go-semiconductor/internal/timeutil"
	"github.com/teslashibe/go-semiconductor/pkg/beatclock"
	"github.com/teslashibe/go-semiconductor/pkg/gesture"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/scheduler"
	"github.com/teslashibe/go-semiconductor/pkg/sink"
	"github.com/teslashibe/go-semiconductor/pkg/song"
)

type fakeRenderer struct {
	mu       sync.Mutex
	calls    []string
	tempos   []float64
	progress []float64
	triggers int
	hold     chan struct{} // Returned by RenderCountdown when set
}

func (f *fakeRenderer) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeRenderer) RenderCalibrationSuccess() { f.record("calibration_success") }
func (f *fakeRenderer) RenderConductPage() { f.record("conduct_page") }
func (f *fakeRenderer) RenderFinishPage() { f.record("finish_page") }
func (f *fakeRenderer) RenderLoadProgress(float64) { f.record("load_progress") }
func (f *fakeRenderer) RenderState(Snapshot) {}

func (f *fakeRenderer) RenderCountdown() <-chan struct{} {
	f.record("countdown")
	if f.hold != nil {
		return f.hold
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (f *fakeRenderer) RenderTempo(bpm float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tempos = append(f.tempos, bpm)
}

func (f *fakeRenderer) RenderSongProgress(pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, pct)
}

func (f *fakeRenderer) TriggerAnimation(scheduler.Trigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
}

func (f *fakeRenderer) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type rig struct {
	m      *Machine
	clock  *timeutil.MockClock
	beats  *beatclock.Clock
	sched  *scheduler.Scheduler
	sink   *sink.MockSink
	render *fakeRenderer
}

func newRig(t *testing.T, cfg Config, sng *song.Song) *rig {
	t.Helper()
	if sng == nil {
		var err error
		sng, err = song.LoadEmbedded(song.DefaultSong)
		require.NoError(t, err)
	}

	mc := timeutil.NewMockClock(time.Unix(5000, 0))
	beats := beatclock.New(mc, beatclock.DefaultConfig())
	ms := sink.NewMockSink(mc)
	sched, err := scheduler.New(beats, ms, scheduler.DefaultConfig(), log.Discard())
	require.NoError(t, err)
	require.NoError(t, sched.Queue(sng))

	analyzer, err := gesture.New(gesture.DefaultConfig(), log.Discard())
	require.NoError(t, err)

	fr := &fakeRenderer{}
	m, err := New(cfg, mc, beats, sched, analyzer, fr, log.Discard())
	require.NoError(t, err)
	return &rig{m: m, clock: mc, beats: beats, sched: sched, sink: ms, render: fr}
}

// feed delivers samples at their own timestamps, ticking after each.
func (r *rig) feed(samples []pose.Sample) {
	for _, s := range samples {
		if s.Timestamp.After(r.clock.Now()) {
			r.clock.Set(s.Timestamp)
		}
		r.m.handleSample(s)
		r.m.tick(r.clock.Now())
	}
}

// idle ticks every 10ms for d without any pose input.
func (r *rig) idle(d time.Duration) {
	end := r.clock.Now().Add(d)
	for r.clock.Now().Before(end) {
		r.clock.Advance(10 * time.Millisecond)
		r.m.tick(r.clock.Now())
	}
}

func (r *rig) next() time.Time {
	return r.clock.Now().Add(10 * time.Millisecond)
}

func (r *rig) toConducting(t *testing.T) {
	t.Helper()
	require.NoError(t, r.m.handle(request{cmd: cmdStartCalibration}))
	synth := pose.NewSynth(pose.DefaultSynthConfig())
	r.feed(synth.Calibration(r.next(), time.Second))
	r.idle(3500 * time.Millisecond)
	require.Equal(t, StateConducting, r.m.session.State)
}

func TestMachine_CalibrationToConducting(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)
	assert.Equal(t, StateIdle, r.m.Snapshot().State)

	require.NoError(t, r.m.handle(request{cmd: cmdStartCalibration}))
	assert.Equal(t, StateCalibrating, r.m.Snapshot().State)
	assert.Equal(t, gesture.ModeCalibrating, r.m.analyzer.Mode())

	synth := pose.NewSynth(pose.DefaultSynthConfig())
	r.feed(synth.Calibration(r.next(), time.Second))
	assert.Equal(t, StateCalibrationSuccess, r.m.Snapshot().State)
	assert.False(t, r.sched.Playing(), "no audio before the countdown")

	// Success feedback is shown for SuccessDelay
	r.idle(time.Second)
	assert.Equal(t, StateCalibrationSuccess, r.m.Snapshot().State)

	r.idle(2500 * time.Millisecond)
	assert.Equal(t, StateConducting, r.m.Snapshot().State)
	assert.True(t, r.sched.Playing())
	assert.Equal(t, gesture.ModeConducting, r.m.analyzer.Mode())
	assert.Equal(t, []string{"calibration_success", "conduct_page", "countdown"}, r.render.calls)
}

func TestMachine_WaitsForCountdown(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)
	r.render.hold = make(chan struct{})

	require.NoError(t, r.m.handle(request{cmd: cmdStartCalibration}))
	r.feed(pose.NewSynth(pose.DefaultSynthConfig()).Calibration(r.next(), time.Second))
	r.idle(10 * time.Second)
	assert.Equal(t, StateCountdown, r.m.Snapshot().State)
	assert.Equal(t, 1, r.render.count("countdown"))
	assert.False(t, r.sched.Playing())

	close(r.render.hold)
	r.idle(20 * time.Millisecond)
	assert.Equal(t, StateConducting, r.m.Snapshot().State)
}

func TestMachine_ForwardsTempoWhileConducting(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)
	r.toConducting(t)

	cfg := pose.DefaultSynthConfig()
	cfg.Period = 750 * time.Millisecond
	r.feed(pose.NewSynth(cfg).Conducting(r.next(), 6*time.Second))

	snap := r.m.Snapshot()
	assert.Equal(t, StateConducting, snap.State)
	assert.Greater(t, snap.Beats, 5)
	assert.InDelta(t, 80, r.beats.Tempo(), 4)
	assert.InDelta(t, 0.8, snap.Velocity, 0.05)
	assert.NotEmpty(t, r.render.tempos)
	assert.Greater(t, r.render.triggers, 0)
	for _, bpm := range r.render.tempos {
		assert.Greater(t, bpm, 0.0)
	}
}

func TestMachine_DiscardsTempoOutsideConducting(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)
	base := r.beats.Tempo()

	tempo := gesture.Event{Kind: gesture.TempoChanged, Tempo: gesture.TempoEstimate{BPM: 200}}
	r.m.handleEvent(tempo)
	assert.Equal(t, base, r.beats.Tempo())

	r.toConducting(t)
	require.NoError(t, r.m.handle(request{cmd: cmdStop}))
	r.m.handleEvent(tempo)
	assert.Equal(t, base, r.beats.Tempo(), "paused sessions ignore tempo")
	assert.Empty(t, r.render.tempos)
}

func TestMachine_StallPausesAndBeatResumes(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)
	r.toConducting(t)

	r.idle(3 * time.Second)
	assert.Equal(t, StatePaused, r.m.Snapshot().State)
	assert.True(t, r.m.Snapshot().Paused)
	assert.False(t, r.sched.Playing())
	assert.Equal(t, 0, r.sink.Stats().Held)

	phase := r.beats.Phase()
	r.idle(5 * time.Second)
	assert.Equal(t, phase, r.beats.Phase(), "paused time contributes no phase")

	r.m.handleEvent(gesture.Event{Kind: gesture.BeatDetected})
	assert.Equal(t, StateConducting, r.m.Snapshot().State)
	assert.True(t, r.sched.Playing())
}

func TestMachine_ManualStopNeedsResume(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)

	err := r.m.handle(request{cmd: cmdResume})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.NoError(t, r.m.handle(request{cmd: cmdStop}), "stop is safe in any state")

	r.toConducting(t)
	require.NoError(t, r.m.handle(request{cmd: cmdStop}))
	assert.Equal(t, StatePaused, r.m.Snapshot().State)

	r.m.handleEvent(gesture.Event{Kind: gesture.BeatDetected})
	assert.Equal(t, StatePaused, r.m.Snapshot().State, "beats do not override an explicit stop")

	require.NoError(t, r.m.handle(request{cmd: cmdResume}))
	assert.Equal(t, StateConducting, r.m.Snapshot().State)
	assert.True(t, r.sched.Playing())
}

func TestMachine_FinishesOnce(t *testing.T) {
	sng, err := song.ParseJSON("short", []byte(`{
		"header": {"bpm": 120},
		"tracks": [{"id": "a", "notes": [
			{"beat": 0, "duration": 0.5, "pitch": 60, "velocity": 0.8},
			{"beat": 1, "duration": 0.5, "pitch": 62, "velocity": 0.8},
			{"beat": 2, "duration": 0.5, "pitch": 64, "velocity": 0.8},
			{"beat": 3, "duration": 0.5, "pitch": 65, "velocity": 0.8}
		]}]
	}`))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MinStall = 10 * time.Second
	r := newRig(t, cfg, sng)
	r.toConducting(t)

	r.idle(5 * time.Second)
	assert.Equal(t, StateFinished, r.m.Snapshot().State)
	assert.Equal(t, 1, r.render.count("finish_page"))
	assert.False(t, r.sched.Playing())
	require.NotEmpty(t, r.render.progress)
	assert.GreaterOrEqual(t, r.render.progress[len(r.render.progress)-1], 99.9)
	assert.Len(t, r.sink.NotesOn(), 4)

	r.idle(time.Second)
	assert.Equal(t, 1, r.render.count("finish_page"))
}

func TestMachine_RestartResetsEverything(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)
	r.toConducting(t)
	r.feed(pose.NewSynth(pose.DefaultSynthConfig()).Conducting(r.next(), 3*time.Second))

	before := r.m.Snapshot()
	require.Greater(t, before.Beats, 0)

	require.NoError(t, r.m.handle(request{cmd: cmdRestart}))
	after := r.m.Snapshot()
	assert.Equal(t, StateIdle, after.State)
	assert.NotEqual(t, before.SessionID, after.SessionID)
	assert.Equal(t, 0, after.Beats)
	assert.Equal(t, 0.0, r.sched.Progress())
	assert.Equal(t, gesture.ModeIdle, r.m.analyzer.Mode())

	r.sink.Reset()
	r.idle(5 * time.Second)
	assert.Empty(t, r.sink.NotesOn(), "nothing from the abandoned run may fire")

	// The next performance calibrates again
	r.toConducting(t)
}

func TestMachine_VelocityAndZone(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)
	r.toConducting(t)

	r.m.handleEvent(gesture.Event{Kind: gesture.VelocityChanged, Velocity: 0.3})
	assert.Equal(t, 0.3, r.sched.Snapshot().Velocity)

	r.m.handleEvent(gesture.Event{Kind: gesture.GroupChanged, Zone: gesture.ZoneLeft})
	active := map[string]bool{}
	for _, tr := range r.sched.Snapshot().Tracks {
		active[tr.ID] = tr.Active
	}
	assert.Equal(t, map[string]bool{
		"violin": true, "viola": true, "cello": false, "flute": false, "timpani": false,
	}, active)
	assert.Equal(t, gesture.ZoneLeft, r.m.Snapshot().Zone)

	// Zones without a matching group fall back to the full ensemble
	r.m.handleEvent(gesture.Event{Kind: gesture.GroupChanged, Zone: "upstage"})
	for _, tr := range r.sched.Snapshot().Tracks {
		assert.True(t, tr.Active, tr.ID)
	}
}

func TestMachine_LoadOnlyBetweenPerformances(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)

	sng, err := song.LoadEmbedded(song.DefaultSong)
	require.NoError(t, err)
	require.NoError(t, r.m.handle(request{cmd: cmdLoad, song: sng}))
	assert.Equal(t, 1, r.render.count("load_progress"))

	r.toConducting(t)
	err = r.m.handle(request{cmd: cmdLoad, song: sng})
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, StateConducting, r.m.Snapshot().State)
}

func TestMachine_RunProcessesCommands(t *testing.T) {
	r := newRig(t, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.m.Run(ctx) }()

	require.NoError(t, r.m.StartCalibration(ctx))
	assert.Equal(t, StateCalibrating, r.m.Snapshot().State)

	err := r.m.StartCalibration(ctx)
	assert.NoError(t, err, "already calibrating")

	require.NoError(t, r.m.Restart(ctx))
	assert.Equal(t, StateIdle, r.m.Snapshot().State)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMachine_SubmitDropsWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleBuffer = 1
	r := newRig(t, cfg, nil)

	assert.True(t, r.m.Submit(pose.Sample{}))
	assert.False(t, r.m.Submit(pose.Sample{}))
	assert.Equal(t, int64(1), r.m.Snapshot().Dropped)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative delay", func(c *Config) { c.SuccessDelay = -time.Second }},
		{"zero stall beats", func(c *Config) { c.StallBeats = 0 }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"no buffer", func(c *Config) { c.SampleBuffer = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
