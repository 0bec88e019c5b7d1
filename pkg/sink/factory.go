package sink

import (
	"errors"
	"fmt"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"
)

// New creates a sink with the given configuration.
// MIDI ports come from whichever gomidi driver the binary registered.
func New(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendLog
		if cfg.Port != "" {
			backend = BackendMIDI
		}
	}

	logger.Info("creating note sink", "backend", backend, "port", cfg.Port)

	switch backend {
	case BackendMock:
		return NewMockSink(nil), nil
	case BackendLog:
		return NewLogSink(logger), nil
	case BackendMIDI:
		s, err := OpenMIDI(cfg, logger)
		if err != nil && cfg.Backend == BackendAuto && errors.Is(err, ErrPortNotFound) {
			logger.Warn("midi port not found, falling back to log sink", "port", cfg.Port)
			return NewLogSink(logger), nil
		}
		return s, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, backend)
	}
}

// ListPorts returns the MIDI output ports the registered driver sees.
func ListPorts() []string {
	outs := midi.GetOutPorts()
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names
}
