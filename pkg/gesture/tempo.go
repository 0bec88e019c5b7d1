package gesture

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// tempoEstimator turns inter-beat intervals into a tempo.
//
// Intervals further than OutlierRatio from the running median are held
// aside instead of entering the history. When OutlierResetCount of them
// arrive in a row and agree with each other, the performer really did
// change tempo and they replace the history.
type tempoEstimator struct {
	size       int
	ratio      float64
	resetCount int

	history []float64 // seconds, oldest first
	pending []float64
}

func newTempoEstimator(cfg Config) *tempoEstimator {
	return &tempoEstimator{
		size:       cfg.TempoHistory,
		ratio:      cfg.OutlierRatio,
		resetCount: cfg.OutlierResetCount,
	}
}

// add records an interval in seconds. It reports whether the history
// changed, in which case estimate() has a new value.
func (t *tempoEstimator) add(interval float64) (accepted bool) {
	if !(interval > 0) || math.IsInf(interval, 0) {
		return false
	}

	// Two intervals are too few to call anything an outlier
	if len(t.history) < 2 {
		t.push(interval)
		return true
	}

	if t.isOutlier(interval, median(t.history)) {
		if len(t.pending) > 0 && t.isOutlier(interval, median(t.pending)) {
			t.pending = t.pending[:0]
		}
		t.pending = append(t.pending, interval)
		if len(t.pending) < t.resetCount {
			return false
		}
		t.history = append(t.history[:0], t.pending...)
		t.pending = t.pending[:0]
		t.trim()
		return true
	}

	t.pending = t.pending[:0]
	t.push(interval)
	return true
}

func (t *tempoEstimator) isOutlier(interval, ref float64) bool {
	r := interval / ref
	return r > t.ratio || r < 1/t.ratio
}

func (t *tempoEstimator) push(interval float64) {
	t.history = append(t.history, interval)
	t.trim()
}

func (t *tempoEstimator) trim() {
	if over := len(t.history) - t.size; over > 0 {
		t.history = append(t.history[:0], t.history[over:]...)
	}
}

// estimate returns 60 / median interval. ok is false when there is no
// history or the result is not a usable tempo.
func (t *tempoEstimator) estimate() (TempoEstimate, bool) {
	if len(t.history) == 0 {
		return TempoEstimate{}, false
	}
	m := median(t.history)
	bpm := 60 / m
	if !(bpm > 0) || math.IsInf(bpm, 0) || math.IsNaN(bpm) {
		return TempoEstimate{}, false
	}
	return TempoEstimate{
		BPM:       bpm,
		Stability: stability(t.history),
		Intervals: len(t.history),
	}, true
}

func (t *tempoEstimator) reset() {
	t.history = t.history[:0]
	t.pending = t.pending[:0]
}

// median returns the lower middle value for even-length input.
func median(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// stability maps the coefficient of variation of the intervals onto
// [0, 1].
func stability(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(x, nil)
	if mean <= 0 || math.IsNaN(std) {
		return 0
	}
	return math.Max(0, 1-std/mean)
}
