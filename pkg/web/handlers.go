package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	contribws "github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/hub"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/protocol"
	"github.com/teslashibe/go-semiconductor/pkg/song"
)

// statusFor maps control errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, conductor.ErrInvalidTransition), errors.Is(err, conductor.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, song.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, song.ErrInvalidSong), errors.Is(err, song.ErrNoTracks):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) actionContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.cfg.ActionTimeout)
}

// handleStatus returns the current session snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "conductor not attached"})
	}
	return c.JSON(s.ctrl.Snapshot())
}

// handleListSongs returns the bundled song names
func (s *Server) handleListSongs(c *fiber.Ctx) error {
	names, err := song.ListEmbedded()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"songs": names})
}

// LoadSongRequest is the body of PUT /api/song
type LoadSongRequest struct {
	Name string `json:"name"`
}

// handleLoadSong queues another song between performances
func (s *Server) handleLoadSong(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "conductor not attached"})
	}
	var req LoadSongRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body must be {\"name\": \"<song>\"}"})
	}

	sng, err := s.loadSong(req.Name)
	if err != nil {
		return s.fail(c, err)
	}

	ctx, cancel := s.actionContext(c)
	defer cancel()
	if err := s.ctrl.Load(ctx, sng); err != nil {
		return s.fail(c, err)
	}
	s.logger.Info("song loaded", "name", sng.Header.Name)
	return c.JSON(s.ctrl.Snapshot())
}

// handleAction wraps a UI action such as start calibration or restart
func (s *Server) handleAction(action func(Controller, context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.ctrl == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "conductor not attached"})
		}
		ctx, cancel := s.actionContext(c)
		defer cancel()
		if err := action(s.ctrl, ctx); err != nil {
			return s.fail(c, err)
		}
		return c.JSON(s.ctrl.Snapshot())
	}
}

// handleStatusWS streams renderer messages, starting with the current state
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var greeting []hub.Message
	if s.ctrl != nil {
		if msg, err := protocol.NewMessage(protocol.TypeState, s.ctrl.Snapshot()); err == nil {
			if data, err := msg.Bytes(); err == nil {
				greeting = append(greeting, hub.NewJSONMessage(data))
			}
		}
	}
	hub.NewClient(s.statusHub, c, greeting...).Run()
}

// handlePoseWS reads pose and frame messages from one client
func (s *Server) handlePoseWS(c *contribws.Conn) {
	remote := c.RemoteAddr().String()
	s.logger.Info("pose client connected", "remote", remote)
	defer s.logger.Info("pose client disconnected", "remote", remote)

	var received, rejected int64
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("pose read ended", "remote", remote, "received", received, "rejected", rejected, "error", err)
			return
		}
		received++

		reply, err := s.handlePoseMessage(data, time.Now())
		if err != nil {
			rejected++
			if rejected%100 == 1 {
				s.logger.Warn("rejected pose message", "remote", remote, "rejected", rejected, "error", err)
			}
			reply, _ = protocol.NewErrorMessage(err)
		}
		if reply == nil {
			continue
		}
		out, err := reply.Bytes()
		if err != nil {
			continue
		}
		if err := c.WriteMessage(contribws.TextMessage, out); err != nil {
			return
		}
	}
}

// handlePoseMessage processes one inbound message and returns an optional reply.
func (s *Server) handlePoseMessage(data []byte, now time.Time) (*protocol.Message, error) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case protocol.TypePose:
		pd, err := msg.GetPoseData()
		if err != nil {
			return nil, err
		}
		sample := pd.Sample(now)
		if err := sample.Validate(); err != nil {
			return nil, err
		}
		s.submit(sample)
		return nil, nil

	case protocol.TypeFrame:
		if s.estimator == nil {
			return nil, errors.New("frame input not enabled")
		}
		fd, err := msg.GetFrameData()
		if err != nil {
			return nil, err
		}
		jpeg, err := fd.DecodeFrameData()
		if err != nil {
			return nil, err
		}
		s.estMu.Lock()
		sample, err := s.estimator.EstimateJPEG(jpeg, now)
		s.estMu.Unlock()
		if err != nil {
			return nil, err
		}
		s.submit(sample)
		return nil, nil

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return nil, err
		}
		return protocol.NewPongMessage(ping.ID, ping.Timestamp, now.UnixMilli())
	}
	return nil, errors.New("unexpected message type " + string(msg.Type))
}

func (s *Server) submit(sample pose.Sample) {
	if s.ctrl == nil {
		return
	}
	s.ctrl.Submit(sample)
}
