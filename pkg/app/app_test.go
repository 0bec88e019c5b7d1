package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-semiconductor/internal/config"
	"github.com/teslashibe/go-semiconductor/internal/log"
	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/sink"
)

type countingSource struct {
	n    int
	sent atomic.Int32
}

func (c *countingSource) Run(ctx context.Context, out chan<- pose.Sample) error {
	for i := 0; i < c.n; i++ {
		select {
		case out <- pose.Sample{Timestamp: time.Now()}:
			c.sent.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func headless(t *testing.T, src pose.Source) *App {
	t.Helper()
	a, err := New(Options{
		Settings:      config.Default(),
		Source:        src,
		Headless:      true,
		AutoCalibrate: true,
		Sink:          sink.NewMockSink(nil),
	}, log.Discard())
	require.NoError(t, err)
	require.NoError(t, a.Init())
	t.Cleanup(a.Shutdown)
	return a
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	s := config.Default()
	s.Scheduler.MinGain = 3

	_, err := New(Options{Settings: s}, log.Discard())
	assert.Error(t, err)
}

func TestRun_BeforeInit(t *testing.T) {
	a, err := New(Options{Settings: config.Default()}, log.Discard())
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestInit_Headless(t *testing.T) {
	a := headless(t, nil)

	assert.Nil(t, a.Web())
	require.NotNil(t, a.Machine())
	assert.Equal(t, "Ode to the Baton", a.Song().Header.Name)
	assert.Equal(t, conductor.StateIdle, a.Machine().Snapshot().State)
}

func TestInit_UnknownSong(t *testing.T) {
	s := config.Default()
	s.Song = "no-such-song"
	a, err := New(Options{Settings: s, Headless: true, Sink: sink.NewMockSink(nil)}, log.Discard())
	require.NoError(t, err)
	assert.Error(t, a.Init())
}

func TestRun_AutoCalibrateAndPump(t *testing.T) {
	src := &countingSource{n: 5}
	a := headless(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Run(ctx))
	assert.Equal(t, int32(5), src.sent.Load())
	assert.Equal(t, conductor.StateCalibrating, a.Machine().Snapshot().State)
}

func TestEstimatorConfig(t *testing.T) {
	cfg := estimatorConfig(config.Camera{Device: 1, ModelPath: "pose.onnx", Threshold: 0.2})
	assert.Equal(t, "pose.onnx", cfg.ModelPath)
	assert.Empty(t, cfg.ConfigPath)
	assert.Equal(t, 0.2, cfg.HeatmapThresh)

	assert.Empty(t, estimatorConfig(config.Default().Camera).ModelPath, "defaults resolve in openpose.New")
}
