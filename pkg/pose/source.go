package pose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Source produces pose samples at its own cadence.
// Run blocks until ctx is cancelled or the source is exhausted.
type Source interface {
	Run(ctx context.Context, out chan<- Sample) error
}

// ReplaySource plays back a JSON Lines recording of samples, keeping the
// recorded spacing between frames. Timestamps are rebased onto now.
type ReplaySource struct {
	path  string
	speed float64
}

// NewReplaySource creates a source reading path. speed scales playback
// (2.0 = twice as fast); values <= 0 mean real time.
func NewReplaySource(path string, speed float64) *ReplaySource {
	if speed <= 0 {
		speed = 1.0
	}
	return &ReplaySource{path: path, speed: speed}
}

// Run streams the recording into out.
func (r *ReplaySource) Run(ctx context.Context, out chan<- Sample) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	samples, err := ReadSamples(f)
	if err != nil {
		return err
	}
	return replay(ctx, samples, r.speed, out)
}

// ReadSamples decodes JSON Lines samples from rd.
func ReadSamples(rd io.Reader) ([]Sample, error) {
	var samples []Sample
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return samples, nil
}

// WriteSamples encodes samples as JSON Lines.
func WriteSamples(w io.Writer, samples []Sample) error {
	enc := json.NewEncoder(w)
	for _, s := range samples {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}

func replay(ctx context.Context, samples []Sample, speed float64, out chan<- Sample) error {
	if len(samples) == 0 {
		return nil
	}

	origin := samples[0].Timestamp
	start := time.Now()

	for _, s := range samples {
		offset := time.Duration(float64(s.Timestamp.Sub(origin)) / speed)
		if wait := time.Until(start.Add(offset)); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		s.Timestamp = start.Add(offset)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- s:
		}
	}
	return nil
}
