package conductor

import (
	"fmt"
	"time"
)

// Config holds the state machine timing.
type Config struct {
	// Screen transitions after the calibration pose
	SuccessDelay time.Duration `yaml:"success_delay"` // Success feedback before the conduct page
	ConductDelay time.Duration `yaml:"conduct_delay"` // Conduct page before the countdown starts

	// Stall detection
	StallBeats float64       `yaml:"stall_beats"` // Beats without a down-beat before playback pauses
	MinStall   time.Duration `yaml:"min_stall"`   // Lower bound for the stall threshold

	TickInterval time.Duration `yaml:"tick_interval"` // Scheduler tick period
	ProgressStep float64       `yaml:"progress_step"` // Song progress change (percent) that is re-rendered
	SampleBuffer int           `yaml:"sample_buffer"` // Pose samples buffered before Submit drops
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		SuccessDelay: 2 * time.Second,
		ConductDelay: 1 * time.Second,

		StallBeats: 4,
		MinStall:   1500 * time.Millisecond,

		TickInterval: 10 * time.Millisecond,
		ProgressStep: 1,
		SampleBuffer: 64, // ~2s of frames at 30fps
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.SuccessDelay < 0 || c.ConductDelay < 0:
		return fmt.Errorf("screen delays must not be negative")
	case c.StallBeats <= 0:
		return fmt.Errorf("stall beats must be positive, got %v", c.StallBeats)
	case c.MinStall < 0:
		return fmt.Errorf("min stall must not be negative, got %v", c.MinStall)
	case c.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	case c.ProgressStep < 0:
		return fmt.Errorf("progress step must not be negative, got %v", c.ProgressStep)
	case c.SampleBuffer < 1:
		return fmt.Errorf("sample buffer must hold at least one sample, got %d", c.SampleBuffer)
	}
	return nil
}
