package web

import (
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/protocol"
	"github.com/teslashibe/go-semiconductor/pkg/scheduler"
)

var _ conductor.Renderer = (*Server)(nil)

func (s *Server) emit(msg *protocol.Message, err error) {
	if err == nil {
		err = s.statusHub.BroadcastMessage(msg)
	}
	if err != nil {
		s.logger.Warn("failed to broadcast", "error", err)
	}
}

// RenderCalibrationSuccess broadcasts the calibration success screen.
func (s *Server) RenderCalibrationSuccess() {
	s.emit(protocol.NewMessage(protocol.TypeCalibrationSuccess, nil))
}

// RenderConductPage broadcasts the switch to the conduct screen.
func (s *Server) RenderConductPage() {
	s.emit(protocol.NewMessage(protocol.TypeConductPage, nil))
}

// RenderCountdown broadcasts CountdownFrom..1 one step apart, then 0.
// The returned channel closes once 0 has been sent, or early when the
// server shuts down, another countdown starts, or the session leaves the
// countdown state.
func (s *Server) RenderCountdown() <-chan struct{} {
	stop := s.startCountdown()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := s.cfg.CountdownFrom; n > 0; n-- {
			s.emit(protocol.NewCountdownMessage(n))
			select {
			case <-time.After(s.cfg.CountdownStep):
			case <-stop:
				return
			case <-s.quit:
				return
			}
		}
		select {
		case <-stop:
			return
		default:
		}
		s.emit(protocol.NewCountdownMessage(0))
	}()
	return done
}

func (s *Server) startCountdown() <-chan struct{} {
	s.cdMu.Lock()
	defer s.cdMu.Unlock()
	if s.cdStop != nil {
		close(s.cdStop)
	}
	s.cdStop = make(chan struct{})
	return s.cdStop
}

func (s *Server) cancelCountdown() {
	s.cdMu.Lock()
	defer s.cdMu.Unlock()
	if s.cdStop != nil {
		close(s.cdStop)
		s.cdStop = nil
	}
}

func (s *Server) RenderTempo(bpm float64) {
	s.emit(protocol.NewTempoMessage(bpm))
}

func (s *Server) RenderLoadProgress(pct float64) {
	s.emit(protocol.NewProgressMessage(protocol.TypeLoadProgress, pct))
}

func (s *Server) RenderSongProgress(pct float64) {
	s.emit(protocol.NewProgressMessage(protocol.TypeSongProgress, pct))
}

func (s *Server) RenderFinishPage() {
	s.emit(protocol.NewMessage(protocol.TypeFinish, nil))
}

func (s *Server) TriggerAnimation(t scheduler.Trigger) {
	s.emit(protocol.NewMessage(protocol.TypeNote, protocol.NoteData{
		Track:      t.TrackID,
		Instrument: t.Instrument,
		Pitch:      t.Pitch,
		Velocity:   t.Velocity,
		Beat:       t.Beat,
	}))
}

// RenderState records the snapshot and broadcasts the latest one once a
// burst of updates settles. Any state but countdown abandons a running
// countdown, so a restart does not leave stale numbers on screen.
func (s *Server) RenderState(snap conductor.Snapshot) {
	if snap.State != conductor.StateCountdown {
		s.cancelCountdown()
	}
	s.latest.Store(&snap)
	s.debounceState(s.flushState)
}

func (s *Server) flushState() {
	if p := s.latest.Load(); p != nil {
		s.emit(protocol.NewMessage(protocol.TypeState, p))
	}
}
