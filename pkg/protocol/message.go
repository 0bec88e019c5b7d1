// Package protocol defines the WebSocket messages exchanged with pose
// clients and dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → server
	TypePose  MessageType = "pose"  // Keypoints from an external estimator
	TypeFrame MessageType = "frame" // Camera frame for the built-in estimator

	// Server → client, one per renderer notification
	TypeState              MessageType = "state"
	TypeCalibrationSuccess MessageType = "calibration_success"
	TypeConductPage        MessageType = "conduct_page"
	TypeCountdown          MessageType = "countdown"
	TypeTempo              MessageType = "tempo"
	TypeLoadProgress       MessageType = "load_progress"
	TypeSongProgress       MessageType = "song_progress"
	TypeFinish             MessageType = "finish"
	TypeNote               MessageType = "note"
	TypeError              MessageType = "error"

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// KeypointData is one named landmark in normalized image coordinates.
type KeypointData struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"c"`
}

// PoseData is one frame of keypoints. Timestamp is optional; the server
// stamps samples on arrival when it is zero.
type PoseData struct {
	Timestamp int64                   `json:"ts,omitempty"` // Unix milliseconds
	Keypoints map[string]KeypointData `json:"keypoints"`
}

// FrameData contains a camera frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// CountdownData is one step of the pre-performance countdown.
type CountdownData struct {
	Remaining int `json:"remaining"` // 0 means "go"
}

// TempoData carries the tempo now driving playback.
type TempoData struct {
	BPM float64 `json:"bpm"`
}

// ProgressData carries a load or song progress percentage.
type ProgressData struct {
	Percent float64 `json:"percent"`
}

// NoteData describes a note that just started, for animations.
type NoteData struct {
	Track      string  `json:"track"`
	Instrument string  `json:"instrument"`
	Pitch      uint8   `json:"pitch"`
	Velocity   float64 `json:"velocity"`
	Beat       float64 `json:"beat"`
}

// ErrorData reports a rejected client message.
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
