package openpose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

var _ pose.Source = (*CameraSource)(nil)

// CameraSource captures frames from a local video device and runs them
// through an Estimator, one sample per frame.
type CameraSource struct {
	device    int
	estimator *Estimator
	logger    *slog.Logger
}

// NewCameraSource creates a source reading from device.
func NewCameraSource(device int, estimator *Estimator, logger *slog.Logger) *CameraSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CameraSource{device: device, estimator: estimator, logger: logger}
}

// Run captures until ctx is cancelled or the device stops delivering.
func (c *CameraSource) Run(ctx context.Context, out chan<- pose.Sample) error {
	webcam, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.device, err)
	}
	defer webcam.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	c.logger.Info("camera source started", "device", c.device)

	misses := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ok := webcam.Read(&frame); !ok || frame.Empty() {
			misses++
			if misses >= 30 {
				return fmt.Errorf("camera %d stopped delivering frames", c.device)
			}
			continue
		}
		misses = 0

		sample, err := c.estimator.Estimate(frame, time.Now())
		if err != nil {
			c.logger.Debug("pose estimation failed", "error", err)
			continue
		}

		select {
		case out <- sample:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
