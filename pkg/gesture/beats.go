package gesture

import "time"

// peakDetector finds down-beats in the dominant wrist's vertical
// position. Image y grows downward, so the bottom of a stroke is a
// local maximum of y.
//
// It alternates between seeking a trough and seeking a peak. A turn is
// only believed once the wrist has come back by half the noise floor,
// and a peak only counts as a beat when the stroke leading into it
// spans the full noise floor.
type peakDetector struct {
	noiseFloor float64
	refractory time.Duration

	started     bool
	seekingPeak bool

	trough     float64
	peak       float64
	peakAt     time.Time
	lastBeat   time.Time
	lastStroke float64
}

func newPeakDetector(cfg Config) *peakDetector {
	return &peakDetector{noiseFloor: cfg.NoiseFloor, refractory: cfg.Refractory}
}

// update feeds one wrist position. It returns the peak time and true
// when a beat is confirmed.
func (p *peakDetector) update(y float64, ts time.Time) (time.Time, bool) {
	if !p.started {
		p.started = true
		p.trough = y
		return time.Time{}, false
	}

	turn := p.noiseFloor / 2

	if !p.seekingPeak {
		if y < p.trough {
			p.trough = y
		} else if y-p.trough >= turn {
			p.seekingPeak = true
			p.peak, p.peakAt = y, ts
		}
		return time.Time{}, false
	}

	if y > p.peak {
		p.peak, p.peakAt = y, ts
		return time.Time{}, false
	}
	if p.peak-y < turn {
		return time.Time{}, false
	}

	// Reversal confirmed
	stroke := p.peak - p.trough
	at := p.peakAt
	p.seekingPeak = false

	if stroke < p.noiseFloor {
		// Jitter: keep the deeper trough so the real stroke still measures right
		if y < p.trough {
			p.trough = y
		}
		return time.Time{}, false
	}

	p.trough = y
	if !p.lastBeat.IsZero() && at.Sub(p.lastBeat) < p.refractory {
		return time.Time{}, false
	}
	p.lastBeat = at
	p.lastStroke = stroke
	return at, true
}

func (p *peakDetector) reset() {
	*p = peakDetector{noiseFloor: p.noiseFloor, refractory: p.refractory}
}
