// Package openpose estimates pose samples from camera frames with an
// OpenCV DNN OpenPose network. It links against OpenCV through gocv;
// everything else in the module depends only on the pose package.
package openpose

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

// Config holds OpenPose network configuration.
type Config struct {
	ModelPath     string  // Caffe weights or ONNX model
	ConfigPath    string  // Caffe prototxt, empty for ONNX
	InputWidth    int     // Network input width
	InputHeight   int     // Network input height
	HeatmapThresh float64 // Heatmap peaks below this are reported with zero confidence
}

// DefaultConfig returns defaults for the COCO 18-part body model.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/pose_iter_440000.caffemodel",
		ConfigPath:    "models/openpose_pose_coco.prototxt",
		InputWidth:    368,
		InputHeight:   368,
		HeatmapThresh: 0.1,
	}
}

// withDefaults fills unset fields from DefaultConfig. A custom model keeps
// its own ConfigPath, which is empty for ONNX.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ModelPath == "" {
		c.ModelPath = d.ModelPath
		c.ConfigPath = d.ConfigPath
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		c.InputWidth, c.InputHeight = d.InputWidth, d.InputHeight
	}
	if c.HeatmapThresh <= 0 {
		c.HeatmapThresh = d.HeatmapThresh
	}
	return c
}

// cocoParts maps COCO body-part heatmap indexes to landmark names.
var cocoParts = map[int]pose.Name{
	0:  pose.Nose,
	1:  pose.Neck,
	2:  pose.RightShoulder,
	3:  pose.RightElbow,
	4:  pose.RightWrist,
	5:  pose.LeftShoulder,
	6:  pose.LeftElbow,
	7:  pose.LeftWrist,
	8:  pose.RightHip,
	11: pose.LeftHip,
}

// Estimator turns camera frames into pose samples. Only the single most
// likely location of each part is kept, which assumes one person in frame.
type Estimator struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex
}

// New loads the pose network. Zero fields in cfg take their defaults.
func New(cfg Config) (*Estimator, error) {
	cfg = cfg.withDefaults()
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load pose model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Estimator{net: net, config: cfg}, nil
}

// EstimateJPEG decodes a JPEG frame and estimates its pose.
func (e *Estimator) EstimateJPEG(jpeg []byte, ts time.Time) (pose.Sample, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return pose.Sample{}, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	return e.Estimate(img, ts)
}

// Estimate runs the network on img.
func (e *Estimator) Estimate(img gocv.Mat, ts time.Time) (pose.Sample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if img.Empty() {
		return pose.Sample{}, fmt.Errorf("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(e.config.InputWidth, e.config.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	prob := e.net.Forward("")
	defer prob.Close()

	// Output shape: [1, parts+pafs, H, W]
	dims := prob.Size()
	if len(dims) != 4 {
		return pose.Sample{}, fmt.Errorf("unexpected output rank %d", len(dims))
	}
	h, w := dims[2], dims[3]

	sample := pose.Sample{Timestamp: ts, Keypoints: make(map[pose.Name]pose.Keypoint, len(cocoParts))}
	for idx, name := range cocoParts {
		heatmap, err := prob.FromPtr(h, w, gocv.MatTypeCV32F, 0, idx)
		if err != nil {
			return pose.Sample{}, fmt.Errorf("heatmap %d: %w", idx, err)
		}
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(heatmap)
		heatmap.Close()

		conf := float64(maxVal)
		if conf < e.config.HeatmapThresh {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		sample.Keypoints[name] = pose.Keypoint{
			X:          (float64(maxLoc.X) + 0.5) / float64(w),
			Y:          (float64(maxLoc.Y) + 0.5) / float64(h),
			Confidence: conf,
		}
	}
	return sample, nil
}

// Close releases the network.
func (e *Estimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}
