package conductor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle phase of a conducting session.
type State int

const (
	StateIdle State = iota
	StateCalibrating
	StateCalibrationSuccess // Success feedback, then the conduct page
	StateCountdown
	StateConducting
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalibrating:
		return "calibrating"
	case StateCalibrationSuccess:
		return "calibration_success"
	case StateCountdown:
		return "countdown"
	case StateConducting:
		return "conducting"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFinished; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Session is the single mutable record of one performance. Only the
// machine's control loop touches it.
type Session struct {
	ID      string
	State   State
	Created time.Time
	Started time.Time // Entered StateConducting, zero before

	Tempo     float64 // Last tempo forwarded to the beat clock, 0 before the first estimate
	Stability float64
	Velocity  float64
	Zone      string

	Beats       int
	LastBeat    time.Time
	ManualPause bool // Paused by Stop rather than by a stall
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:       uuid.New().String(),
		State:    StateIdle,
		Created:  now,
		Velocity: 1,
	}
}

// Paused reports whether playback is held.
func (s *Session) Paused() bool { return s.State == StatePaused }

// Snapshot is a read-only view of the session and playback position.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Song      string    `json:"song"`
	Tempo     float64   `json:"tempo"`
	Stability float64   `json:"stability"`
	Velocity  float64   `json:"velocity"`
	Zone      string    `json:"zone"`
	Beats     int       `json:"beats"`
	Phase     float64   `json:"phase"`
	Total     float64   `json:"total_beats"`
	Progress  float64   `json:"progress"`
	Paused    bool      `json:"paused"`
	Started   time.Time `json:"started,omitempty"`
	Dropped   int64     `json:"dropped_samples"`
}
