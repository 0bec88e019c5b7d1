package gesture

import (
	"math"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

// calibrator watches for the reference pose: both wrists raised above
// shoulder height, held for CalibrationHold. It fires once per reset.
type calibrator struct {
	minConf float64
	margin  float64
	hold    time.Duration

	since time.Time
	done  bool
}

func newCalibrator(cfg Config) *calibrator {
	return &calibrator{
		minConf: cfg.MinConfidence,
		margin:  cfg.CalibrationMargin,
		hold:    cfg.CalibrationHold,
	}
}

// update returns true on the frame the pose has been held long enough.
func (c *calibrator) update(s pose.Sample) bool {
	if c.done {
		return false
	}
	if !c.matches(s) {
		c.since = time.Time{}
		return false
	}
	if c.since.IsZero() {
		c.since = s.Timestamp
	}
	if s.Timestamp.Sub(c.since) < c.hold {
		return false
	}
	c.done = true
	return true
}

func (c *calibrator) matches(s pose.Sample) bool {
	ls, ok1 := s.Confident(pose.LeftShoulder, c.minConf)
	rs, ok2 := s.Confident(pose.RightShoulder, c.minConf)
	lw, ok3 := s.Confident(pose.LeftWrist, c.minConf)
	rw, ok4 := s.Confident(pose.RightWrist, c.minConf)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	line := math.Min(ls.Y, rs.Y) - c.margin
	return lw.Y < line && rw.Y < line
}

func (c *calibrator) reset() {
	c.since = time.Time{}
	c.done = false
}
