package gesture

import (
	"fmt"
	"time"
)

// Mode selects which checks the analyzer runs.
type Mode int

const (
	ModeIdle Mode = iota
	ModeCalibrating
	ModeConducting
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeCalibrating:
		return "calibrating"
	case ModeConducting:
		return "conducting"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// EventKind identifies a gesture event.
type EventKind int

const (
	CalibrationPoseDetected EventKind = iota
	BeatDetected
	TempoChanged
	VelocityChanged
	GroupChanged
)

func (k EventKind) String() string {
	switch k {
	case CalibrationPoseDetected:
		return "calibration_pose_detected"
	case BeatDetected:
		return "beat_detected"
	case TempoChanged:
		return "tempo_changed"
	case VelocityChanged:
		return "velocity_changed"
	case GroupChanged:
		return "group_changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Zones a conducting wrist can point into. Sides follow the image, not
// the performer.
const (
	ZoneLeft   = "left"
	ZoneCenter = "center"
	ZoneRight  = "right"
)

// Event is a discrete gesture event. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Tempo     TempoEstimate // TempoChanged
	Velocity  float64       // VelocityChanged, 0-1
	Zone      string        // GroupChanged
}

// TempoEstimate is a smoothed tempo. BPM is always positive and finite.
type TempoEstimate struct {
	BPM       float64
	Stability float64 // 1 = perfectly regular intervals, 0 = unusable spread
	Intervals int     // Intervals the estimate is based on
}
