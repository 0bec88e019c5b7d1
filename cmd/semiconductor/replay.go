package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-semiconductor/internal/log"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/protocol"
)

var replayFlags struct {
	url       string
	speed     float64
	synthetic bool
	bpm       float64
	duration  time.Duration
	record    string
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayFlags.url, "url", "ws://localhost:8080/ws/pose", "pose websocket of a running server")
	f.Float64Var(&replayFlags.speed, "speed", 1, "playback speed of a recording")
	f.BoolVar(&replayFlags.synthetic, "synthetic", false, "generate a conducting performance instead of reading a file")
	f.Float64Var(&replayFlags.bpm, "bpm", 90, "tempo of the synthetic performance")
	f.DurationVar(&replayFlags.duration, "duration", time.Minute, "length of the synthetic performance")
	f.StringVar(&replayFlags.record, "record", "", "write the synthetic performance to this file and exit")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay [recording.jsonl]",
	Short: "Stream pose samples to a running server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadSettings(); err != nil {
			return err
		}

		var src pose.Source
		switch {
		case replayFlags.synthetic:
			samples := synthesize()
			if replayFlags.record != "" {
				return record(replayFlags.record, samples)
			}
			f, err := os.CreateTemp("", "semiconductor-*.jsonl")
			if err != nil {
				return err
			}
			defer os.Remove(f.Name())
			if err := pose.WriteSamples(f, samples); err != nil {
				f.Close()
				return err
			}
			f.Close()
			src = pose.NewReplaySource(f.Name(), 1)
		case len(args) == 1:
			src = pose.NewReplaySource(args[0], replayFlags.speed)
		default:
			return fmt.Errorf("give a recording or --synthetic")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return stream(ctx, replayFlags.url, src)
	},
}

// synthesize builds a calibration hold followed by conducting.
func synthesize() []pose.Sample {
	cfg := pose.DefaultSynthConfig()
	cfg.Period = time.Duration(float64(time.Minute) / replayFlags.bpm)
	cfg.Jitter = 0.005
	g := pose.NewSynth(cfg)

	start := time.Now()
	samples := g.Calibration(start, time.Second)
	return append(samples, g.Conducting(start.Add(time.Second+g.FrameInterval()), replayFlags.duration)...)
}

func record(path string, samples []pose.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pose.WriteSamples(f, samples); err != nil {
		f.Close()
		return err
	}
	log.Info("recording written", "path", path, "samples", len(samples))
	return f.Close()
}

// stream sends every sample from src as a pose message.
func stream(ctx context.Context, url string, src pose.Source) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer conn.Close()

	id := uuid.NewString()
	logger := log.With("client", id, "url", url)
	logger.Info("connected")

	// Replies are pongs and rejections
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				continue
			}
			switch msg.Type {
			case protocol.TypePong:
				var pong protocol.PongData
				if msg.ParseData(&pong) == nil {
					logger.Info("pong", "latency_ms", pong.LatencyMs)
				}
			case protocol.TypeError:
				var e protocol.ErrorData
				if msg.ParseData(&e) == nil {
					logger.Warn("server rejected sample", "error", e.Message)
				}
			}
		}
	}()

	ping, err := protocol.NewPingMessage(id)
	if err != nil {
		return err
	}
	if err := send(conn, ping); err != nil {
		return err
	}

	samples := make(chan pose.Sample, 64)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, samples)
		close(samples)
	}()

	sent := 0
	for s := range samples {
		msg, err := protocol.NewPoseMessage(s)
		if err != nil {
			return err
		}
		if err := send(conn, msg); err != nil {
			return err
		}
		sent++
	}
	logger.Info("replay finished", "samples", sent)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err := <-done; err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func send(conn *websocket.Conn, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
