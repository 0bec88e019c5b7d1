package pose

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// SynthConfig describes a synthetic conducting performance.
type SynthConfig struct {
	Period     time.Duration // Time between down-beats
	Amplitude  float64       // Half the vertical stroke, normalized units
	FrameRate  float64       // Samples per second
	Hand       Hand          // Conducting arm
	Offset     float64       // Horizontal wrist offset in shoulder widths (- = image left)
	Jitter     float64       // Uniform noise added to the wrist, normalized units
	Confidence float64       // Confidence reported for every keypoint
	Seed       int64         // Jitter seed
}

// DefaultSynthConfig returns a clean 60 BPM pattern at 30 fps.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		Period:     time.Second,
		Amplitude:  0.12,
		FrameRate:  30,
		Hand:       HandRight,
		Confidence: 0.9,
		Seed:       1,
	}
}

// Skeleton geometry used by the generator.
const (
	synthShoulderY      = 0.40
	synthLeftShoulderX  = 0.60
	synthRightShoulderX = 0.40
	synthStrokeCenterY  = 0.58
	synthRestY          = 0.80
	synthRaisedY        = 0.22
)

// Synth generates deterministic pose samples.
type Synth struct {
	cfg SynthConfig
	rng *rand.Rand
}

// NewSynth creates a generator.
func NewSynth(cfg SynthConfig) *Synth {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.9
	}
	if cfg.Hand == "" {
		cfg.Hand = HandRight
	}
	return &Synth{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// FrameInterval returns the spacing between generated samples.
func (g *Synth) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / g.cfg.FrameRate)
}

// Conducting returns samples covering d, starting at start. The wrist
// begins at the top of its stroke, so the first down-beat lands at
// start + Period/2 and every Period after that.
func (g *Synth) Conducting(start time.Time, d time.Duration) []Sample {
	var out []Sample
	step := g.FrameInterval()
	for t := time.Duration(0); t <= d; t += step {
		out = append(out, g.ConductingAt(start, t))
	}
	return out
}

// ConductingAt returns the sample at offset t from start.
func (g *Synth) ConductingAt(start time.Time, t time.Duration) Sample {
	phase := 2 * math.Pi * t.Seconds() / g.cfg.Period.Seconds()
	y := synthStrokeCenterY - g.cfg.Amplitude*math.Cos(phase)
	x := 0.5 + g.cfg.Offset*(synthLeftShoulderX-synthRightShoulderX)
	if g.cfg.Jitter > 0 {
		y += (g.rng.Float64()*2 - 1) * g.cfg.Jitter
		x += (g.rng.Float64()*2 - 1) * g.cfg.Jitter
	}

	kps := g.base()
	kps[g.cfg.Hand.Wrist()] = Keypoint{X: x, Y: y, Confidence: g.cfg.Confidence}
	other := LeftWrist
	if g.cfg.Hand == HandLeft {
		other = RightWrist
	}
	kps[other] = Keypoint{X: 0.5, Y: synthRestY, Confidence: g.cfg.Confidence}

	return Sample{Timestamp: start.Add(t), Keypoints: kps}
}

// Calibration returns samples holding both wrists above the shoulders.
func (g *Synth) Calibration(start time.Time, d time.Duration) []Sample {
	var out []Sample
	step := g.FrameInterval()
	for t := time.Duration(0); t <= d; t += step {
		kps := g.base()
		kps[LeftWrist] = Keypoint{X: synthLeftShoulderX + 0.05, Y: synthRaisedY, Confidence: g.cfg.Confidence}
		kps[RightWrist] = Keypoint{X: synthRightShoulderX - 0.05, Y: synthRaisedY, Confidence: g.cfg.Confidence}
		out = append(out, Sample{Timestamp: start.Add(t), Keypoints: kps})
	}
	return out
}

// Still returns samples with the conducting wrist resting motionless.
func (g *Synth) Still(start time.Time, d time.Duration) []Sample {
	var out []Sample
	step := g.FrameInterval()
	for t := time.Duration(0); t <= d; t += step {
		kps := g.base()
		kps[LeftWrist] = Keypoint{X: 0.5, Y: synthRestY, Confidence: g.cfg.Confidence}
		kps[RightWrist] = Keypoint{X: 0.5, Y: synthRestY, Confidence: g.cfg.Confidence}
		out = append(out, Sample{Timestamp: start.Add(t), Keypoints: kps})
	}
	return out
}

func (g *Synth) base() map[Name]Keypoint {
	c := g.cfg.Confidence
	return map[Name]Keypoint{
		Nose:          {X: 0.5, Y: 0.25, Confidence: c},
		Neck:          {X: 0.5, Y: synthShoulderY, Confidence: c},
		LeftShoulder:  {X: synthLeftShoulderX, Y: synthShoulderY, Confidence: c},
		RightShoulder: {X: synthRightShoulderX, Y: synthShoulderY, Confidence: c},
	}
}

// Run emits a calibration pose for calibrate, then conducts until ctx
// is cancelled. Timestamps are wall-clock.
func (g *Synth) Run(ctx context.Context, calibrate time.Duration, out chan<- Sample) error {
	ticker := time.NewTicker(g.FrameInterval())
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			var s Sample
			if elapsed < calibrate {
				s = g.Calibration(now, 0)[0]
			} else {
				s = g.ConductingAt(start.Add(calibrate), elapsed-calibrate)
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
