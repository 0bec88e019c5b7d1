// Package gesture turns per-frame pose samples into conducting events:
// the calibration pose, down-beats, a smoothed tempo, stroke velocity
// and the zone the conductor is pointing at.
package gesture

import (
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

type windowPoint struct {
	at        time.Time
	y         float64
	offset    float64 // Wrist x from body center, in shoulder widths
	hasOffset bool
}

// Analyzer consumes pose samples and emits gesture events.
// It is driven from a single goroutine and is not safe for concurrent use.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger

	mode Mode
	last time.Time

	window []windowPoint

	calib *calibrator
	peaks *peakDetector
	tempo *tempoEstimator

	lastBeat      time.Time
	current       TempoEstimate
	emitted       TempoEstimate
	velocity      float64
	shoulderWidth float64

	zone          string
	candidate     string
	candidateFrom time.Time
}

// New creates an analyzer in ModeIdle.
func New(cfg Config, logger *slog.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{
		cfg:    cfg,
		logger: logger,
		calib:  newCalibrator(cfg),
		peaks:  newPeakDetector(cfg),
		tempo:  newTempoEstimator(cfg),
	}
	a.Reset()
	return a, nil
}

// Config returns the active configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Mode returns the current mode.
func (a *Analyzer) Mode() Mode { return a.mode }

// Tempo returns the latest estimate, emitted or not. ok is false before
// the first interval.
func (a *Analyzer) Tempo() (TempoEstimate, bool) {
	return a.current, a.current.BPM > 0
}

// SetMode switches which checks run. Entering a mode starts its checks
// from scratch; setting the current mode again is a no-op.
func (a *Analyzer) SetMode(m Mode) {
	if m == a.mode {
		return
	}
	a.mode = m
	switch m {
	case ModeCalibrating:
		a.calib.reset()
	case ModeConducting:
		a.resetMotion()
	}
}

// Reset clears all history and returns to ModeIdle.
func (a *Analyzer) Reset() {
	a.mode = ModeIdle
	a.last = time.Time{}
	a.calib.reset()
	a.resetMotion()
}

func (a *Analyzer) resetMotion() {
	a.window = a.window[:0]
	a.peaks.reset()
	a.tempo.reset()
	a.lastBeat = time.Time{}
	a.current = TempoEstimate{}
	a.emitted = TempoEstimate{}
	a.velocity = 0
	a.shoulderWidth = 0
	a.zone = ZoneCenter
	a.candidate = ZoneCenter
	a.candidateFrom = time.Time{}
}

// Analyze processes one sample. Frames that are malformed, stale or
// lack enough confident keypoints are skipped without any state change.
func (a *Analyzer) Analyze(s pose.Sample) []Event {
	if a.mode == ModeIdle {
		return nil
	}
	if err := s.Validate(); err != nil {
		a.logger.Debug("skipping malformed sample", "error", err)
		return nil
	}
	if !a.last.IsZero() && !s.Timestamp.After(a.last) {
		a.logger.Debug("skipping stale sample", "timestamp", s.Timestamp)
		return nil
	}
	n := s.CountConfident(a.cfg.MinConfidence,
		pose.LeftWrist, pose.RightWrist, pose.LeftShoulder, pose.RightShoulder)
	if n < a.cfg.MinKeypoints {
		return nil
	}
	a.last = s.Timestamp

	switch a.mode {
	case ModeCalibrating:
		if a.calib.update(s) {
			a.logger.Info("calibration pose detected")
			return []Event{{Kind: CalibrationPoseDetected, Timestamp: s.Timestamp}}
		}
	case ModeConducting:
		return a.conduct(s)
	}
	return nil
}

func (a *Analyzer) conduct(s pose.Sample) []Event {
	wrist, ok := s.Confident(a.cfg.Hand.Wrist(), a.cfg.MinConfidence)
	if !ok {
		return nil
	}

	pt := windowPoint{at: s.Timestamp, y: wrist.Y}
	ls, okL := s.Confident(pose.LeftShoulder, a.cfg.MinConfidence)
	rs, okR := s.Confident(pose.RightShoulder, a.cfg.MinConfidence)
	if okL && okR {
		if w := math.Abs(ls.X - rs.X); w > 0.01 {
			a.shoulderWidth = w
			pt.offset = (wrist.X - (ls.X+rs.X)/2) / w
			pt.hasOffset = true
		}
	}
	a.push(pt)

	var events []Event

	if at, beat := a.peaks.update(wrist.Y, s.Timestamp); beat {
		events = append(events, Event{Kind: BeatDetected, Timestamp: at})
		events = append(events, a.onBeat(at)...)
	}
	if ev, ok := a.updateZone(s.Timestamp); ok {
		events = append(events, ev)
	}
	return events
}

func (a *Analyzer) onBeat(at time.Time) []Event {
	var events []Event

	if !a.lastBeat.IsZero() {
		interval := at.Sub(a.lastBeat).Seconds()
		if a.tempo.add(interval) {
			if est, ok := a.tempo.estimate(); ok {
				a.current = est
				if a.emitted.BPM == 0 || math.Abs(est.BPM-a.emitted.BPM)/a.emitted.BPM > a.cfg.TempoHysteresis {
					a.emitted = est
					events = append(events, Event{Kind: TempoChanged, Timestamp: at, Tempo: est})
				}
			}
		} else {
			a.logger.Debug("inter-beat interval held as outlier", "interval", interval)
		}
	}
	a.lastBeat = at

	if a.shoulderWidth > 0 {
		level := a.peaks.lastStroke / a.shoulderWidth / a.cfg.FullScaleStroke
		level = math.Max(a.cfg.MinVelocity, math.Min(1, level))
		if a.velocity == 0 || math.Abs(level-a.velocity) > a.cfg.VelocityStep {
			a.velocity = level
			events = append(events, Event{Kind: VelocityChanged, Timestamp: at, Velocity: level})
		}
	}
	return events
}

func (a *Analyzer) push(pt windowPoint) {
	a.window = append(a.window, pt)
	cutoff := pt.at.Add(-a.cfg.Window)
	i := 0
	for i < len(a.window) && a.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		a.window = append(a.window[:0], a.window[i:]...)
	}
}

// updateZone averages the wrist offset over the window and switches zone
// once a different zone has persisted for GroupHold.
func (a *Analyzer) updateZone(now time.Time) (Event, bool) {
	var sum float64
	n := 0
	for _, p := range a.window {
		if p.hasOffset {
			sum += p.offset
			n++
		}
	}
	if n == 0 {
		return Event{}, false
	}

	zone := zoneFor(sum/float64(n), a.cfg.GroupZone)
	if zone == a.zone {
		a.candidate = zone
		return Event{}, false
	}
	if zone != a.candidate {
		a.candidate = zone
		a.candidateFrom = now
		return Event{}, false
	}
	if now.Sub(a.candidateFrom) < a.cfg.GroupHold {
		return Event{}, false
	}
	a.zone = zone
	return Event{Kind: GroupChanged, Timestamp: now, Zone: zone}, true
}

func zoneFor(offset, edge float64) string {
	switch {
	case offset < -edge:
		return ZoneLeft
	case offset > edge:
		return ZoneRight
	default:
		return ZoneCenter
	}
}
