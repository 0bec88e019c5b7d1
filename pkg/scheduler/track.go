package scheduler

import (
	"math"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/song"
)

// trackState is the runtime side of a track: its queue cursor, whether
// it is audible and its gain ramp. The note sequence itself is shared
// with the song and never modified.
type trackState struct {
	track  *song.Track
	next   int // Next note to queue
	active bool

	sounding map[uint8]int // Pitches started and not yet released

	rampFrom  float64
	target    float64
	rampStart time.Time
	lastSent  float64 // Last gain delivered to the sink, -1 = never
}

func newTrackState(t *song.Track) *trackState {
	ts := &trackState{track: t, sounding: make(map[uint8]int)}
	ts.rewind()
	return ts
}

func (ts *trackState) rewind() {
	ts.next = 0
	ts.active = true
	clear(ts.sounding)
	ts.rampFrom = 1
	ts.target = 1
	ts.rampStart = time.Time{}
	ts.lastSent = -1
}

// gain returns the ramped gain at now.
func (ts *trackState) gain(now time.Time, ramp time.Duration) float64 {
	if ramp <= 0 || ts.rampStart.IsZero() {
		return ts.target
	}
	f := float64(now.Sub(ts.rampStart)) / float64(ramp)
	if f >= 1 {
		return ts.target
	}
	f = math.Max(0, f)
	return ts.rampFrom + (ts.target-ts.rampFrom)*f
}

func (ts *trackState) setTarget(target float64, now time.Time, ramp time.Duration) {
	ts.rampFrom = ts.gain(now, ramp)
	ts.target = target
	ts.rampStart = now
}
