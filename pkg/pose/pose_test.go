package pose

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"
)

func TestSample_Confident(t *testing.T) {
	s := Sample{
		Timestamp: time.Unix(0, 0),
		Keypoints: map[Name]Keypoint{
			RightWrist:   {X: 0.4, Y: 0.5, Confidence: 0.9},
			LeftWrist:    {X: 0.6, Y: 0.5, Confidence: 0.2},
			LeftShoulder: {X: math.NaN(), Y: 0.4, Confidence: 0.9},
		},
	}

	if _, ok := s.Confident(RightWrist, 0.5); !ok {
		t.Error("expected right wrist to be confident")
	}
	if _, ok := s.Confident(LeftWrist, 0.5); ok {
		t.Error("expected low-confidence left wrist to be rejected")
	}
	if _, ok := s.Confident(LeftShoulder, 0.5); ok {
		t.Error("expected NaN keypoint to be rejected")
	}
	if _, ok := s.Confident(Nose, 0.0); ok {
		t.Error("expected missing keypoint to be rejected")
	}

	if got := s.CountConfident(0.5, RightWrist, LeftWrist, LeftShoulder, Nose); got != 1 {
		t.Errorf("CountConfident = %d, want 1", got)
	}
}

func TestSample_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sample  Sample
		wantErr bool
	}{
		{"ok", Sample{Timestamp: time.Unix(1, 0), Keypoints: map[Name]Keypoint{Nose: {0.5, 0.5, 1}}}, false},
		{"no timestamp", Sample{Keypoints: map[Name]Keypoint{}}, true},
		{"bad confidence", Sample{Timestamp: time.Unix(1, 0), Keypoints: map[Name]Keypoint{Nose: {0.5, 0.5, 2}}}, true},
		{"infinite coordinate", Sample{Timestamp: time.Unix(1, 0), Keypoints: map[Name]Keypoint{Nose: {math.Inf(1), 0.5, 1}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.sample.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSynth_DownBeatsAtHalfPeriod(t *testing.T) {
	g := NewSynth(DefaultSynthConfig())
	start := time.Unix(100, 0)

	top := g.ConductingAt(start, 0)
	bottom := g.ConductingAt(start, 500*time.Millisecond)

	topY := top.Keypoints[RightWrist].Y
	bottomY := bottom.Keypoints[RightWrist].Y
	if bottomY <= topY {
		t.Errorf("expected wrist lower (larger y) at half period: top=%.3f bottom=%.3f", topY, bottomY)
	}
	if d := bottomY - topY; math.Abs(d-0.24) > 1e-9 {
		t.Errorf("stroke = %.4f, want 0.24", d)
	}
}

func TestSynth_CalibrationRaisesWrists(t *testing.T) {
	g := NewSynth(DefaultSynthConfig())
	samples := g.Calibration(time.Unix(0, 0), 100*time.Millisecond)
	if len(samples) == 0 {
		t.Fatal("expected samples")
	}

	s := samples[0]
	for _, w := range []Name{LeftWrist, RightWrist} {
		if s.Keypoints[w].Y >= s.Keypoints[LeftShoulder].Y {
			t.Errorf("%s not above shoulders", w)
		}
	}
}

func TestReadWriteSamples(t *testing.T) {
	g := NewSynth(DefaultSynthConfig())
	in := g.Conducting(time.Unix(50, 0).UTC(), 200*time.Millisecond)

	var buf bytes.Buffer
	if err := WriteSamples(&buf, in); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	out, err := ReadSamples(&buf)
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d samples, want %d", len(out), len(in))
	}
	if !out[0].Timestamp.Equal(in[0].Timestamp) {
		t.Errorf("timestamp mismatch: %v vs %v", out[0].Timestamp, in[0].Timestamp)
	}
}

func TestReplay_PreservesOrder(t *testing.T) {
	g := NewSynth(DefaultSynthConfig())
	in := g.Conducting(time.Unix(0, 0), 100*time.Millisecond)

	out := make(chan Sample, len(in))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// 100x speed keeps the test fast
	if err := replay(ctx, in, 100, out); err != nil {
		t.Fatalf("replay: %v", err)
	}
	close(out)

	var prev time.Time
	n := 0
	for s := range out {
		if !prev.IsZero() && s.Timestamp.Before(prev) {
			t.Error("replayed timestamps went backwards")
		}
		prev = s.Timestamp
		n++
	}
	if n != len(in) {
		t.Errorf("replayed %d samples, want %d", n, len(in))
	}
}
