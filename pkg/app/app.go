// Package app wires the conducting pipeline together: keypoint source,
// gesture analyzer, conductor, beat clock, scheduler, note sink and the
// web UI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-semiconductor/internal/config"
	"github.com/teslashibe/go-semiconductor/internal/timeutil"
	"github.com/teslashibe/go-semiconductor/pkg/beatclock"
	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/gesture"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/pose/openpose"
	"github.com/teslashibe/go-semiconductor/pkg/scheduler"
	"github.com/teslashibe/go-semiconductor/pkg/sink"
	"github.com/teslashibe/go-semiconductor/pkg/song"
	"github.com/teslashibe/go-semiconductor/pkg/web"
)

// Options selects what Init builds.
type Options struct {
	Settings config.Settings

	// Song overrides Settings.Song when set
	Song *song.Song

	// Source feeds local pose samples (camera, replay, synth). Nil means
	// samples only arrive over the web socket.
	Source pose.Source

	// Headless skips the web server and logs renderer notifications.
	Headless bool

	// AutoCalibrate starts calibration as soon as Run begins.
	AutoCalibrate bool

	// Camera enables frame decoding with the configured pose model.
	Camera bool

	// Sink replaces the configured note sink, mainly for tests.
	Sink sink.Sink

	Clock timeutil.Clock
}

// App owns every component of one conducting process.
type App struct {
	opts   Options
	logger *slog.Logger

	song      *song.Song
	sink      sink.Sink
	beats     *beatclock.Clock
	sched     *scheduler.Scheduler
	analyzer  *gesture.Analyzer
	machine   *conductor.Machine
	webServer *web.Server
	estimator *openpose.Estimator
}

// New validates the options. Nothing is opened until Init.
func New(opts Options, logger *slog.Logger) (*App, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &App{opts: opts, logger: logger}, nil
}

// Init builds the pipeline. Call this after New() and before Run().
func (a *App) Init() error {
	s := a.opts.Settings

	a.song = a.opts.Song
	if a.song == nil {
		sng, err := s.LoadSong()
		if err != nil {
			return fmt.Errorf("song: %w", err)
		}
		a.song = sng
	}

	a.sink = a.opts.Sink
	if a.sink == nil {
		out, err := sink.New(s.Sink, a.logger.With("component", "sink"))
		if err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		a.sink = out
	}

	a.beats = beatclock.New(a.opts.Clock, s.BeatClock)

	sched, err := scheduler.New(a.beats, a.sink, s.Scheduler, a.logger.With("component", "scheduler"))
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := sched.Queue(a.song); err != nil {
		return fmt.Errorf("queue %q: %w", a.song.Header.Name, err)
	}
	a.sched = sched

	analyzer, err := gesture.New(s.Gesture, a.logger.With("component", "gesture"))
	if err != nil {
		return fmt.Errorf("gesture: %w", err)
	}
	a.analyzer = analyzer

	var render conductor.Renderer = conductor.NewLogRenderer(a.logger.With("component", "renderer"))
	if !a.opts.Headless {
		a.webServer = web.NewServer(s.Web, nil, a.logger.With("component", "web"))
		a.webServer.SetSongLoader(config.ResolveSong)
		render = a.webServer
	}

	machine, err := conductor.New(s.Conductor, a.opts.Clock, a.beats, a.sched, a.analyzer, render,
		a.logger.With("component", "conductor"))
	if err != nil {
		return fmt.Errorf("conductor: %w", err)
	}
	a.machine = machine

	if a.webServer != nil {
		a.webServer.SetController(machine)
	}

	if a.opts.Camera {
		est, err := openpose.New(estimatorConfig(s.Camera))
		if err != nil {
			return fmt.Errorf("pose model: %w", err)
		}
		a.estimator = est
		if a.webServer != nil {
			a.webServer.SetEstimator(est)
		}
		if a.opts.Source == nil {
			a.opts.Source = openpose.NewCameraSource(s.Camera.Device, est, a.logger.With("component", "camera"))
		}
	}

	a.logger.Info("pipeline ready",
		"song", a.song.Header.Name,
		"tracks", len(a.song.Tracks),
		"beats", a.song.TotalBeats(),
		"sink", a.sink.Name(),
		"web", a.webServer != nil)
	return nil
}

func estimatorConfig(c config.Camera) openpose.Config {
	return openpose.Config{
		ModelPath:     c.ModelPath,
		ConfigPath:    c.ConfigPath,
		HeatmapThresh: c.Threshold,
	}
}

// Run starts the conductor, the optional local source and the web
// server. Blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.machine == nil {
		return errors.New("app not initialized")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	spawn("conductor", a.machine.Run)
	if a.opts.Source != nil {
		spawn("source", a.pump)
	}
	if a.webServer != nil {
		spawn("web", a.webServer.Start)
	}

	if a.opts.AutoCalibrate {
		if err := a.machine.StartCalibration(ctx); err != nil {
			a.logger.Warn("auto calibration failed", "error", err)
		}
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
		a.logger.Error("component failed", "error", err)
	}
	cancel()
	wg.Wait()
	return err
}

// pump forwards local samples to the conductor until the source ends.
func (a *App) pump(ctx context.Context) error {
	samples := make(chan pose.Sample, a.opts.Settings.Conductor.SampleBuffer)
	done := make(chan error, 1)
	go func() {
		done <- a.opts.Source.Run(ctx, samples)
		close(samples)
	}()

	for s := range samples {
		a.machine.Submit(s)
	}
	err := <-done
	if err == nil {
		a.logger.Info("pose source finished")
	}
	return err
}

// Shutdown releases the sink and pose model.
func (a *App) Shutdown() {
	if a.sink != nil {
		if err := a.sink.Silence(); err != nil {
			a.logger.Warn("silence failed", "error", err)
		}
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("sink close failed", "error", err)
		}
	}
	if a.estimator != nil {
		a.estimator.Close()
	}
}

// Machine returns the conductor. Nil before Init.
func (a *App) Machine() *conductor.Machine { return a.machine }

// Song returns the song queued by Init.
func (a *App) Song() *song.Song { return a.song }

// Web returns the web server, nil when headless.
func (a *App) Web() *web.Server { return a.webServer }
