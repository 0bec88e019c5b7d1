package sink

import "fmt"

// Backend represents the sink backend type.
type Backend string

const (
	// BackendAuto uses MIDI when a port is configured and found, the log otherwise.
	BackendAuto Backend = "auto"
	// BackendMIDI sends to a MIDI output port.
	BackendMIDI Backend = "midi"
	// BackendLog writes notes to the logger.
	BackendLog Backend = "log"
	// BackendMock records calls for tests.
	BackendMock Backend = "mock"
)

// Config holds sink configuration.
type Config struct {
	// Backend specifies which sink backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// Port is the MIDI output port name, or a unique part of it.
	// Examples: "FluidSynth", "IAC Driver Bus 1", "Midi Through"
	Port string `yaml:"port" json:"port"`

	// VolumeController is the MIDI controller used for channel gain.
	// Default: 7 (channel volume)
	VolumeController uint8 `yaml:"volume_controller" json:"volume_controller"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		VolumeController: 7,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendMIDI, BackendLog, BackendMock:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.Backend)
	}
	if c.Backend == BackendMIDI && c.Port == "" {
		return fmt.Errorf("midi backend requires a port")
	}
	if c.VolumeController > 119 {
		return fmt.Errorf("volume_controller must be a regular controller (0-119), got %d", c.VolumeController)
	}
	return nil
}
