// Package pose defines the keypoint samples the gesture analyzer consumes
// and the sources that produce them.
//
// A pose estimator is treated as a black box: anything that can emit one
// Sample per video frame (a replay file, a synthetic generator, a gocv
// OpenPose network, a browser streaming over websocket) is a Source.
package pose

import (
	"fmt"
	"math"
	"time"
)

// Name identifies a body landmark.
type Name string

// Landmarks used by the conducting gestures. Coordinates are normalized
// to 0-1 with y growing downward (image convention).
const (
	Nose          Name = "nose"
	Neck          Name = "neck"
	LeftShoulder  Name = "left_shoulder"
	RightShoulder Name = "right_shoulder"
	LeftElbow     Name = "left_elbow"
	RightElbow    Name = "right_elbow"
	LeftWrist     Name = "left_wrist"
	RightWrist    Name = "right_wrist"
	LeftHip       Name = "left_hip"
	RightHip      Name = "right_hip"
)

// Hand selects the conducting arm.
type Hand string

const (
	HandRight Hand = "right"
	HandLeft  Hand = "left"
)

// Wrist returns the wrist landmark for the hand.
func (h Hand) Wrist() Name {
	if h == HandLeft {
		return LeftWrist
	}
	return RightWrist
}

// Keypoint is a single 2D landmark with the estimator's confidence.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Valid reports whether the coordinates and confidence are usable numbers.
func (k Keypoint) Valid() bool {
	return !math.IsNaN(k.X) && !math.IsNaN(k.Y) &&
		!math.IsInf(k.X, 0) && !math.IsInf(k.Y, 0) &&
		k.Confidence >= 0 && k.Confidence <= 1
}

// Sample is one frame's worth of keypoints for a single skeleton.
// Samples are immutable once produced.
type Sample struct {
	Timestamp time.Time         `json:"timestamp"`
	Keypoints map[Name]Keypoint `json:"keypoints"`
}

// Get returns the keypoint for name.
func (s Sample) Get(name Name) (Keypoint, bool) {
	kp, ok := s.Keypoints[name]
	return kp, ok
}

// Confident returns the keypoint when it exists, is valid and its
// confidence reaches min.
func (s Sample) Confident(name Name, min float64) (Keypoint, bool) {
	kp, ok := s.Keypoints[name]
	if !ok || !kp.Valid() || kp.Confidence < min {
		return Keypoint{}, false
	}
	return kp, true
}

// CountConfident counts how many of names pass the confidence threshold.
func (s Sample) CountConfident(min float64, names ...Name) int {
	n := 0
	for _, name := range names {
		if _, ok := s.Confident(name, min); ok {
			n++
		}
	}
	return n
}

// Validate checks the sample carries a timestamp and well-formed keypoints.
func (s Sample) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("sample has no timestamp")
	}
	for name, kp := range s.Keypoints {
		if !kp.Valid() {
			return fmt.Errorf("keypoint %s is malformed: %+v", name, kp)
		}
	}
	return nil
}
