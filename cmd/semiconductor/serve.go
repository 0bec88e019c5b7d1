package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-semiconductor/internal/log"
	"github.com/teslashibe/go-semiconductor/pkg/app"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

var serveFlags struct {
	addr     string
	song     string
	midiPort string
	static   string
	camera   bool
	device   int
	replay   string
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "listen address (overrides settings)")
	f.StringVar(&serveFlags.song, "song", "", "bundled song name or .json/.mid path")
	f.StringVar(&serveFlags.midiPort, "midi-port", "", "MIDI output port name")
	f.StringVar(&serveFlags.static, "static", "", "directory with the browser UI")
	f.BoolVar(&serveFlags.camera, "camera", false, "estimate poses from a local camera")
	f.IntVar(&serveFlags.device, "device", -1, "camera device index (overrides settings)")
	f.StringVar(&serveFlags.replay, "replay", "", "feed a recorded JSON Lines pose file instead of a camera")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conductor with the web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if serveFlags.addr != "" {
			s.Web.Addr = serveFlags.addr
		}
		if serveFlags.song != "" {
			s.Song = serveFlags.song
		}
		if serveFlags.midiPort != "" {
			s.Sink.Port = serveFlags.midiPort
		}
		if serveFlags.static != "" {
			s.Web.StaticDir = serveFlags.static
		}
		if serveFlags.device >= 0 {
			s.Camera.Device = serveFlags.device
		}

		opts := app.Options{Settings: s, Camera: serveFlags.camera}
		if serveFlags.replay != "" {
			opts.Source = pose.NewReplaySource(serveFlags.replay, 1)
		}

		a, err := app.New(opts, log.L())
		if err != nil {
			return err
		}
		if err := a.Init(); err != nil {
			return err
		}
		defer a.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return a.Run(ctx)
	},
}
