package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/pose"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "tempo message",
			msgType: TypeTempo,
			data:    TempoData{BPM: 96},
		},
		{
			name:    "pose message",
			msgType: TypePose,
			data:    PoseData{Keypoints: map[string]KeypointData{"right_wrist": {X: 0.4, Y: 0.5, Confidence: 0.9}}},
		},
		{
			name:    "nil data",
			msgType: TypeFinish,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeState,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestPoseMessageToSample(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	in := pose.Sample{
		Timestamp: at,
		Keypoints: map[pose.Name]pose.Keypoint{
			pose.RightWrist:    {X: 0.41, Y: 0.52, Confidence: 0.9},
			pose.LeftShoulder:  {X: 0.6, Y: 0.4, Confidence: 0.8},
			pose.RightShoulder: {X: 0.4, Y: 0.4, Confidence: 0.7},
		},
	}

	msg, err := NewPoseMessage(in)
	if err != nil {
		t.Fatalf("NewPoseMessage() error = %v", err)
	}
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypePose {
		t.Fatalf("Type = %v, want %v", parsed.Type, TypePose)
	}
	data, err := parsed.GetPoseData()
	if err != nil {
		t.Fatalf("GetPoseData() error = %v", err)
	}

	out := data.Sample(time.Unix(0, 0))
	if !out.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, at)
	}
	if len(out.Keypoints) != 3 {
		t.Fatalf("got %d keypoints, want 3", len(out.Keypoints))
	}
	if kp := out.Keypoints[pose.RightWrist]; kp.X != 0.41 || kp.Confidence != 0.9 {
		t.Errorf("right wrist = %+v", kp)
	}
}

func TestPoseData_StampsOnArrival(t *testing.T) {
	var data PoseData
	if err := json.Unmarshal([]byte(`{"keypoints":{"nose":{"x":0.5,"y":0.2,"c":1}}}`), &data); err != nil {
		t.Fatal(err)
	}

	received := time.Unix(42, 0)
	s := data.Sample(received)
	if !s.Timestamp.Equal(received) {
		t.Errorf("Timestamp = %v, want arrival time %v", s.Timestamp, received)
	}
	if s.Keypoints[pose.Nose].Confidence != 1 {
		t.Errorf("nose confidence = %v, want 1", s.Keypoints[pose.Nose].Confidence)
	}
}

func TestFrameMessage(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10} // Fake JPEG header

	msg, err := NewFrameMessage(640, 480, jpegData, 1)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	frameData, err := msg.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frameData.Width != 640 || frameData.Format != "jpeg" {
		t.Errorf("frame = %+v", frameData)
	}

	decoded, err := frameData.DecodeFrameData()
	if err != nil {
		t.Fatalf("DecodeFrameData() error = %v", err)
	}
	if string(decoded) != string(jpegData) {
		t.Errorf("decoded frame differs")
	}
}

func TestNewProgressMessage(t *testing.T) {
	msg, err := NewProgressMessage(TypeSongProgress, 42.5)
	if err != nil {
		t.Fatalf("NewProgressMessage() error = %v", err)
	}
	var p ProgressData
	if err := msg.ParseData(&p); err != nil {
		t.Fatal(err)
	}
	if p.Percent != 42.5 {
		t.Errorf("Percent = %v, want 42.5", p.Percent)
	}

	if _, err := NewProgressMessage(TypeTempo, 1); err == nil {
		t.Error("expected error for non-progress type")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(errors.New("bad pose"))
	if err != nil {
		t.Fatal(err)
	}
	var e ErrorData
	if err := msg.ParseData(&e); err != nil {
		t.Fatal(err)
	}
	if e.Message != "bad pose" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestPingPong(t *testing.T) {
	ping, err := NewPingMessage("abc")
	if err != nil {
		t.Fatal(err)
	}
	pd, err := ping.GetPingData()
	if err != nil {
		t.Fatal(err)
	}
	if pd.ID != "abc" || pd.Timestamp == 0 {
		t.Errorf("ping = %+v", pd)
	}

	pong, err := NewPongMessage(pd.ID, 1000, 1025)
	if err != nil {
		t.Fatal(err)
	}
	var data PongData
	if err := pong.ParseData(&data); err != nil {
		t.Fatal(err)
	}
	if data.LatencyMs != 25 {
		t.Errorf("LatencyMs = %d, want 25", data.LatencyMs)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"missing type", `{"data":{}}`},
		{"wrong shape", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.input)); err == nil {
				t.Error("ParseMessage() expected error")
			}
		})
	}
}

func TestParseData_NilData(t *testing.T) {
	msg := &Message{Type: TypeFinish}
	var data TempoData
	if err := msg.ParseData(&data); err != nil {
		t.Errorf("ParseData() error = %v", err)
	}
}
