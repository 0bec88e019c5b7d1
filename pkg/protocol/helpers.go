package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPoseMessage creates a pose message from a sample
func NewPoseMessage(s pose.Sample) (*Message, error) {
	data := PoseData{Keypoints: make(map[string]KeypointData, len(s.Keypoints))}
	if !s.Timestamp.IsZero() {
		data.Timestamp = s.Timestamp.UnixMilli()
	}
	for name, kp := range s.Keypoints {
		data.Keypoints[string(name)] = KeypointData{X: kp.X, Y: kp.Y, Confidence: kp.Confidence}
	}
	return NewMessage(TypePose, data)
}

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewCountdownMessage creates a countdown step message
func NewCountdownMessage(remaining int) (*Message, error) {
	return NewMessage(TypeCountdown, CountdownData{Remaining: remaining})
}

// NewTempoMessage creates a tempo message
func NewTempoMessage(bpm float64) (*Message, error) {
	return NewMessage(TypeTempo, TempoData{BPM: bpm})
}

// NewProgressMessage creates a load or song progress message
func NewProgressMessage(msgType MessageType, percent float64) (*Message, error) {
	if msgType != TypeLoadProgress && msgType != TypeSongProgress {
		return nil, fmt.Errorf("not a progress message type: %s", msgType)
	}
	return NewMessage(msgType, ProgressData{Percent: percent})
}

// NewErrorMessage creates an error report
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: err.Error()})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetPoseData extracts pose data from a message
func (m *Message) GetPoseData() (*PoseData, error) {
	var data PoseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Sample converts pose data into a pose sample. Samples without their
// own timestamp are stamped with received.
func (p *PoseData) Sample(received time.Time) pose.Sample {
	ts := received
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}
	kps := make(map[pose.Name]pose.Keypoint, len(p.Keypoints))
	for name, kp := range p.Keypoints {
		kps[pose.Name(name)] = pose.Keypoint{X: kp.X, Y: kp.Y, Confidence: kp.Confidence}
	}
	return pose.Sample{Timestamp: ts, Keypoints: kps}
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
