package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-semiconductor/internal/config"
	"github.com/teslashibe/go-semiconductor/internal/log"
	"github.com/teslashibe/go-semiconductor/pkg/app"
	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

var simFlags struct {
	song      string
	preset    string
	bpm       float64
	amplitude float64
	jitter    float64
	offset    float64
	calibrate time.Duration
	timeout   time.Duration
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simFlags.song, "song", "", "bundled song name or .json/.mid path")
	f.StringVar(&simFlags.preset, "preset", "", "gesture preset: default, relaxed or strict")
	f.Float64Var(&simFlags.bpm, "bpm", 90, "tempo of the synthetic conductor")
	f.Float64Var(&simFlags.amplitude, "amplitude", 0.12, "half stroke height, normalized")
	f.Float64Var(&simFlags.jitter, "jitter", 0.005, "wrist noise, normalized")
	f.Float64Var(&simFlags.offset, "offset", 0, "horizontal wrist offset in shoulder widths")
	f.DurationVar(&simFlags.calibrate, "calibrate", time.Second, "how long the calibration pose is held")
	f.DurationVar(&simFlags.timeout, "timeout", 5*time.Minute, "give up after this long")
	rootCmd.AddCommand(simulateCmd)
}

// synthSource holds the calibration pose, then conducts.
type synthSource struct {
	synth     *pose.Synth
	calibrate time.Duration
}

func (s synthSource) Run(ctx context.Context, out chan<- pose.Sample) error {
	return s.synth.Run(ctx, s.calibrate, out)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Conduct headless with a synthetic performer",
	Long: `simulate feeds a generated conducting motion through the full pipeline
and prints tempo and progress once a second. Useful for tuning.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if simFlags.song != "" {
			s.Song = simFlags.song
		}
		if simFlags.preset != "" {
			g, err := config.Preset(simFlags.preset)
			if err != nil {
				return err
			}
			s.Gesture = g
		}
		if simFlags.bpm <= 0 {
			return fmt.Errorf("bpm must be positive")
		}

		sc := pose.DefaultSynthConfig()
		sc.Period = time.Duration(float64(time.Minute) / simFlags.bpm)
		sc.Amplitude = simFlags.amplitude
		sc.Jitter = simFlags.jitter
		sc.Offset = simFlags.offset
		sc.Hand = s.Gesture.Hand
		sc.Seed = time.Now().UnixNano()

		a, err := app.New(app.Options{
			Settings:      s,
			Source:        synthSource{synth: pose.NewSynth(sc), calibrate: simFlags.calibrate},
			Headless:      true,
			AutoCalibrate: true,
		}, log.L())
		if err != nil {
			return err
		}
		if err := a.Init(); err != nil {
			return err
		}
		defer a.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		ctx, cancel = context.WithTimeout(ctx, simFlags.timeout)
		defer cancel()

		go report(ctx, cancel, a.Machine())
		return a.Run(ctx)
	},
}

// report prints the session once a second and ends the run on finish.
func report(ctx context.Context, cancel context.CancelFunc, m *conductor.Machine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.Snapshot()
			fmt.Printf("%-20s tempo %6.1f  stability %.2f  velocity %.2f  zone %-6s  progress %5.1f%%\n",
				snap.State, snap.Tempo, snap.Stability, snap.Velocity, snap.Zone, snap.Progress)
			if snap.State == conductor.StateFinished {
				cancel()
				return
			}
		}
	}
}
