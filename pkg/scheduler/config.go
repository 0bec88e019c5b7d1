package scheduler

import (
	"fmt"
	"time"
)

// Config holds scheduler tuning.
type Config struct {
	Lookahead    time.Duration `yaml:"lookahead"`     // How far ahead of the playhead notes are queued
	RampDuration time.Duration `yaml:"ramp_duration"` // Time a velocity change takes to reach its gain
	MinGain      float64       `yaml:"min_gain"`      // Gain at velocity 0; 1 is always full gain
	CompleteAt   float64       `yaml:"complete_at"`   // Progress percentage that counts as finished
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Lookahead:    100 * time.Millisecond,
		RampDuration: 150 * time.Millisecond, // Long enough to avoid zipper noise
		MinGain:      0.25,
		CompleteAt:   99.9,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.Lookahead < 0:
		return fmt.Errorf("lookahead must not be negative, got %v", c.Lookahead)
	case c.RampDuration < 0:
		return fmt.Errorf("ramp duration must not be negative, got %v", c.RampDuration)
	case c.MinGain < 0 || c.MinGain > 1:
		return fmt.Errorf("min gain %v outside [0, 1]", c.MinGain)
	case c.CompleteAt <= 0 || c.CompleteAt > 100:
		return fmt.Errorf("complete threshold %v outside (0, 100]", c.CompleteAt)
	}
	return nil
}
