package gesture

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

// Config holds all tunable parameters for gesture analysis
type Config struct {
	// Keypoint filtering
	Hand          pose.Hand `yaml:"hand"`           // Conducting arm
	MinConfidence float64   `yaml:"min_confidence"` // Keypoints below this are ignored
	MinKeypoints  int       `yaml:"min_keypoints"`  // Frames with fewer confident wrists+shoulders are skipped

	// Rolling window
	Window time.Duration `yaml:"window"` // How much recent motion to keep

	// Calibration
	CalibrationHold   time.Duration `yaml:"calibration_hold"`   // Pose must be held this long
	CalibrationMargin float64       `yaml:"calibration_margin"` // Wrists must be this far above the shoulders

	// Beat detection
	NoiseFloor float64       `yaml:"noise_floor"` // Minimum trough-to-peak stroke (normalized units)
	Refractory time.Duration `yaml:"refractory"`  // Minimum time between emitted beats

	// Tempo estimation
	TempoHistory      int     `yaml:"tempo_history"`       // Inter-beat intervals kept for the median
	OutlierRatio      float64 `yaml:"outlier_ratio"`       // Intervals this many times off the median are outliers
	OutlierResetCount int     `yaml:"outlier_reset_count"` // Agreeing outliers in a row that replace the history
	TempoHysteresis   float64 `yaml:"tempo_hysteresis"`    // Relative change required to emit a new tempo

	// Velocity
	FullScaleStroke float64 `yaml:"full_scale_stroke"` // Stroke (in shoulder widths) that maps to full velocity
	MinVelocity     float64 `yaml:"min_velocity"`      // Velocity floor for tiny strokes
	VelocityStep    float64 `yaml:"velocity_step"`     // Change required to emit a new velocity

	// Instrument groups
	GroupZone float64       `yaml:"group_zone"` // Offset from body center (shoulder widths) that leaves the center zone
	GroupHold time.Duration `yaml:"group_hold"` // Zone must persist this long before switching
}

// DefaultConfig returns the recommended configuration for a webcam at arm's length
func DefaultConfig() Config {
	return Config{
		Hand:          pose.HandRight,
		MinConfidence: 0.3,
		MinKeypoints:  3, // Dominant wrist + both shoulders

		Window: 2 * time.Second,

		CalibrationHold:   500 * time.Millisecond,
		CalibrationMargin: 0.02,

		NoiseFloor: 0.04,                   // ~4% of frame height
		Refractory: 250 * time.Millisecond, // Caps detection at 240 BPM

		TempoHistory:      6,
		OutlierRatio:      1.5,
		OutlierResetCount: 3,
		TempoHysteresis:   0.02, // 2%

		FullScaleStroke: 1.5,
		MinVelocity:     0.2,
		VelocityStep:    0.05,

		GroupZone: 0.5,
		GroupHold: 500 * time.Millisecond,
	}
}

// RelaxedConfig returns a configuration tolerant of small, lazy gestures
func RelaxedConfig() Config {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.2
	cfg.NoiseFloor = 0.025
	cfg.CalibrationHold = 300 * time.Millisecond
	cfg.FullScaleStroke = 1.0 // Smaller strokes already sound loud
	cfg.OutlierRatio = 1.8
	return cfg
}

// StrictConfig returns a configuration for noisy estimators or busy backgrounds
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.5
	cfg.NoiseFloor = 0.07
	cfg.Refractory = 350 * time.Millisecond
	cfg.CalibrationHold = time.Second
	cfg.TempoHysteresis = 0.04
	return cfg
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.Hand != pose.HandLeft && c.Hand != pose.HandRight:
		return fmt.Errorf("%w: hand %q", ErrInvalidConfig, c.Hand)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("%w: min confidence %v outside [0, 1]", ErrInvalidConfig, c.MinConfidence)
	case c.MinKeypoints < 1 || c.MinKeypoints > 4:
		return fmt.Errorf("%w: min keypoints %d outside [1, 4]", ErrInvalidConfig, c.MinKeypoints)
	case c.Window <= 0:
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	case c.CalibrationHold < 0:
		return fmt.Errorf("%w: calibration hold must not be negative", ErrInvalidConfig)
	case c.NoiseFloor <= 0:
		return fmt.Errorf("%w: noise floor must be positive", ErrInvalidConfig)
	case c.Refractory < 0:
		return fmt.Errorf("%w: refractory interval must not be negative", ErrInvalidConfig)
	case c.TempoHistory < 1:
		return fmt.Errorf("%w: tempo history must hold at least one interval", ErrInvalidConfig)
	case c.OutlierRatio <= 1:
		return fmt.Errorf("%w: outlier ratio %v must exceed 1", ErrInvalidConfig, c.OutlierRatio)
	case c.OutlierResetCount < 1:
		return fmt.Errorf("%w: outlier reset count must be at least 1", ErrInvalidConfig)
	case c.TempoHysteresis < 0:
		return fmt.Errorf("%w: tempo hysteresis must not be negative", ErrInvalidConfig)
	case c.FullScaleStroke <= 0:
		return fmt.Errorf("%w: full scale stroke must be positive", ErrInvalidConfig)
	case c.MinVelocity < 0 || c.MinVelocity > 1:
		return fmt.Errorf("%w: min velocity %v outside [0, 1]", ErrInvalidConfig, c.MinVelocity)
	case c.GroupZone <= 0:
		return fmt.Errorf("%w: group zone must be positive", ErrInvalidConfig)
	}
	return nil
}
