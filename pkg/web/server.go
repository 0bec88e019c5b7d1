// Package web serves the conducting UI: REST entry points for the user's
// actions, a status stream for dashboards and a websocket for pose input.
// The Server is also the conductor's Renderer, turning every notification
// into a broadcast message.
package web

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	contribws "github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/hub"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/song"
)

// Controller is the conductor surface the server drives.
type Controller interface {
	StartCalibration(ctx context.Context) error
	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
	Resume(ctx context.Context) error
	Load(ctx context.Context, sng *song.Song) error
	Submit(s pose.Sample) bool
	Snapshot() conductor.Snapshot
}

// FrameEstimator turns camera frames into pose samples.
type FrameEstimator interface {
	EstimateJPEG(jpeg []byte, ts time.Time) (pose.Sample, error)
}

// SongLoader resolves a song name from the API.
type SongLoader func(name string) (*song.Song, error)

// Config holds server settings.
type Config struct {
	Addr          string        `yaml:"addr"`
	StaticDir     string        `yaml:"static_dir"`     // Served at / when set
	CountdownFrom int           `yaml:"countdown_from"` // First number shown
	CountdownStep time.Duration `yaml:"countdown_step"`
	StateDebounce time.Duration `yaml:"state_debounce"` // Coalesces state bursts
	ActionTimeout time.Duration `yaml:"action_timeout"` // Wait for the control loop
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		CountdownFrom: 3,
		CountdownStep: time.Second,
		StateDebounce: 50 * time.Millisecond,
		ActionTimeout: 2 * time.Second,
	}
}

// Server is the web UI server
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	ctrl      Controller
	loadSong  SongLoader
	estimator FrameEstimator
	estMu     sync.Mutex // Estimators are not safe for concurrent use

	// Hub for websocket broadcast
	statusHub *hub.Hub

	latest        atomic.Pointer[conductor.Snapshot]
	debounceState func(f func())

	cdMu   sync.Mutex
	cdStop chan struct{} // Closed to abandon the running countdown

	quit     chan struct{}
	quitOnce sync.Once
}

// NewServer creates the server. ctrl may be nil until SetController.
func NewServer(cfg Config, ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CountdownStep <= 0 {
		cfg.CountdownStep = DefaultConfig().CountdownStep
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		ctrl:          ctrl,
		loadSong:      song.LoadEmbedded,
		statusHub:     hub.New("status", logger),
		debounceState: debounce.New(cfg.StateDebounce),
		quit:          make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "semiconductor",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/songs", s.handleListSongs)
	api.Put("/song", s.handleLoadSong)
	api.Post("/calibration", s.handleAction(Controller.StartCalibration))
	api.Post("/restart", s.handleAction(Controller.Restart))
	api.Post("/stop", s.handleAction(Controller.Stop))
	api.Post("/resume", s.handleAction(Controller.Resume))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/pose", contribws.New(s.handlePoseWS))

	s.app = app
	return s
}

// SetController attaches the conductor. Call before Start.
func (s *Server) SetController(ctrl Controller) { s.ctrl = ctrl }

// SetSongLoader replaces the loader used by PUT /api/song.
func (s *Server) SetSongLoader(l SongLoader) { s.loadSong = l }

// SetEstimator enables frame messages on /ws/pose.
func (s *Server) SetEstimator(e FrameEstimator) { s.estimator = e }

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// StatusHub returns the hub renderer messages are broadcast on.
func (s *Server) StatusHub() *hub.Hub { return s.statusHub }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go func() {
		<-ctx.Done()
		s.close()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("web shutdown failed", "error", err)
		}
	}()

	s.logger.Info("web server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) close() {
	s.quitOnce.Do(func() { close(s.quit) })
}
