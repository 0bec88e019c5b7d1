// Package config loads semiconductor settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-semiconductor/pkg/beatclock"
	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/gesture"
	"github.com/teslashibe/go-semiconductor/pkg/scheduler"
	"github.com/teslashibe/go-semiconductor/pkg/sink"
	"github.com/teslashibe/go-semiconductor/pkg/song"
	"github.com/teslashibe/go-semiconductor/pkg/web"
)

// Environment variables read by Load.
const (
	EnvPort     = "SEMICONDUCTOR_PORT"
	EnvSong     = "SEMICONDUCTOR_SONG"
	EnvMIDIPort = "SEMICONDUCTOR_MIDI_PORT"
	EnvLogLevel = "LOG_LEVEL"
)

// DefaultPath is where serve and simulate look for settings.
const DefaultPath = "semiconductor.yaml"

// Camera selects the local capture device and pose model. Empty model
// fields fall back to the bundled COCO network.
type Camera struct {
	Device     int     `yaml:"device"`
	ModelPath  string  `yaml:"model_path"`
	ConfigPath string  `yaml:"config_path"` // Caffe prototxt, empty for ONNX
	Threshold  float64 `yaml:"threshold"`
}

// Settings is the root of the settings file.
type Settings struct {
	LogLevel string `yaml:"log_level"`

	// Song is a bundled song name or a path to a .json/.mid file
	Song string `yaml:"song"`

	// Gesture preset: default, relaxed or strict. Fields set under
	// gesture override the preset.
	Preset string `yaml:"preset"`

	Gesture   gesture.Config   `yaml:"gesture"`
	BeatClock beatclock.Config `yaml:"beatclock"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Conductor conductor.Config `yaml:"conductor"`
	Sink      sink.Config      `yaml:"sink"`
	Web       web.Config       `yaml:"web"`
	Camera    Camera           `yaml:"camera"`
}

// Default returns settings built from every component's defaults.
func Default() Settings {
	return Settings{
		LogLevel:  "info",
		Song:      song.DefaultSong,
		Preset:    "default",
		Gesture:   gesture.DefaultConfig(),
		BeatClock: beatclock.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Conductor: conductor.DefaultConfig(),
		Sink:      sink.DefaultConfig(),
		Web:       web.DefaultConfig(),
	}
}

// Preset returns the gesture configuration for a preset name.
func Preset(name string) (gesture.Config, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return gesture.DefaultConfig(), nil
	case "relaxed":
		return gesture.RelaxedConfig(), nil
	case "strict":
		return gesture.StrictConfig(), nil
	default:
		return gesture.Config{}, fmt.Errorf("unknown gesture preset %q", name)
	}
}

// Load reads settings from path and applies environment overrides.
// Priority (highest to lowest): Environment variables > Config file > Defaults.
// A missing file is not an error; CLI flags are applied by the caller.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults only
		case err != nil:
			return s, fmt.Errorf("read settings: %w", err)
		default:
			if err := s.decode(data); err != nil {
				return s, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	s.applyEnv()
	return s, s.Validate()
}

// decode layers the file over the preset chosen in it.
func (s *Settings) decode(data []byte) error {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.Preset != "" {
		g, err := Preset(head.Preset)
		if err != nil {
			return err
		}
		s.Gesture = g
	}
	return yaml.Unmarshal(data, s)
}

func (s *Settings) applyEnv() {
	if port := os.Getenv(EnvPort); port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		s.Web.Addr = port
	}
	if name := os.Getenv(EnvSong); name != "" {
		s.Song = name
	}
	if port := os.Getenv(EnvMIDIPort); port != "" {
		s.Sink.Port = port
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		s.LogLevel = level
	}
}

// Validate checks every component section.
func (s Settings) Validate() error {
	if err := s.Gesture.Validate(); err != nil {
		return fmt.Errorf("gesture: %w", err)
	}
	if s.BeatClock.MinBPM <= 0 || s.BeatClock.MaxBPM < s.BeatClock.MinBPM {
		return fmt.Errorf("beatclock: invalid tempo range [%v, %v]", s.BeatClock.MinBPM, s.BeatClock.MaxBPM)
	}
	if err := s.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := s.Conductor.Validate(); err != nil {
		return fmt.Errorf("conductor: %w", err)
	}
	if err := s.Sink.Validate(); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

// LoadSong resolves Song: a file path when it names an existing file,
// a bundled song otherwise.
func (s Settings) LoadSong() (*song.Song, error) {
	return ResolveSong(s.Song)
}

// ResolveSong loads a song by file path or bundled name.
func ResolveSong(name string) (*song.Song, error) {
	if _, err := os.Stat(name); err == nil {
		return song.Load(name)
	}
	return song.LoadEmbedded(name)
}
