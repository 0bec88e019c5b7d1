package conductor

import (
	"log/slog"

	"github.com/teslashibe/go-semiconductor/pkg/scheduler"
)

// Renderer receives UI notifications from the machine. Every call is
// fire-and-forget and must not block the control loop; the only result
// the machine waits for is the channel returned by RenderCountdown.
type Renderer interface {
	RenderCalibrationSuccess()
	RenderConductPage()
	// RenderCountdown starts the countdown and returns a channel that is
	// closed when it has finished.
	RenderCountdown() <-chan struct{}
	RenderTempo(bpm float64)
	RenderLoadProgress(pct float64)
	RenderSongProgress(pct float64)
	RenderFinishPage()
	TriggerAnimation(t scheduler.Trigger)
	RenderState(s Snapshot)
}

// NopRenderer ignores every notification. Its countdown completes at once.
type NopRenderer struct{}

func (NopRenderer) RenderCalibrationSuccess() {}
func (NopRenderer) RenderConductPage() {}
func (NopRenderer) RenderTempo(float64) {}
func (NopRenderer) RenderLoadProgress(float64) {}
func (NopRenderer) RenderSongProgress(float64) {}
func (NopRenderer) RenderFinishPage() {}
func (NopRenderer) TriggerAnimation(scheduler.Trigger) {}
func (NopRenderer) RenderState(Snapshot) {}

func (NopRenderer) RenderCountdown() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

// LogRenderer writes notifications to a logger. Used by headless runs.
type LogRenderer struct {
	NopRenderer
	logger *slog.Logger
}

// NewLogRenderer creates a LogRenderer. A nil logger uses slog.Default.
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) RenderCalibrationSuccess() { r.logger.Info("calibration succeeded") }
func (r *LogRenderer) RenderConductPage() { r.logger.Info("ready to conduct") }
func (r *LogRenderer) RenderFinishPage() { r.logger.Info("song finished") }

func (r *LogRenderer) RenderTempo(bpm float64) {
	r.logger.Info("tempo", "bpm", bpm)
}

func (r *LogRenderer) RenderLoadProgress(pct float64) {
	r.logger.Debug("loading", "percent", pct)
}

func (r *LogRenderer) RenderSongProgress(pct float64) {
	r.logger.Info("progress", "percent", pct)
}

func (r *LogRenderer) TriggerAnimation(t scheduler.Trigger) {
	r.logger.Debug("note", "track", t.TrackID, "pitch", t.Pitch, "beat", t.Beat)
}
