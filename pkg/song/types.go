// Package song describes the fixed multi-track score that gets conducted.
//
// Songs are loaded once (from JSON, a Standard MIDI File or the bundled
// demo) and never mutated afterwards. Positions and durations are in
// beats, so the same score plays at any tempo.
package song

import (
	"fmt"
	"math"
	"sort"
)

// GroupAll names the implicit group containing every track.
const GroupAll = "all"

// Header carries song metadata.
type Header struct {
	Name        string  `json:"name"`
	BPM         float64 `json:"bpm"`         // Base tempo
	BeatLength  float64 `json:"beat_length"` // Seconds per beat at BPM
	BeatsPerBar int     `json:"beats_per_bar"`
}

// Note is a single note event, positioned in beats from the start.
type Note struct {
	Beat     float64 `json:"beat"`
	Duration float64 `json:"duration"`
	Pitch    uint8   `json:"pitch"`
	Velocity float64 `json:"velocity"` // 0-1, scaled by the track gain at play time
}

// End returns the beat the note releases at.
func (n Note) End() float64 { return n.Beat + n.Duration }

// Track is one instrument's note sequence.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Instrument string `json:"instrument"`
	Channel    uint8  `json:"channel"`
	Notes      []Note `json:"notes"`
}

// Song is a read-only score.
type Song struct {
	Header Header              `json:"header"`
	Tracks []Track             `json:"tracks"`
	Groups map[string][]string `json:"groups"`
}

// TotalBeats returns the song length: the last note release rounded up
// to a whole bar.
func (s *Song) TotalBeats() float64 {
	var end float64
	for _, t := range s.Tracks {
		for _, n := range t.Notes {
			end = math.Max(end, n.End())
		}
	}
	bar := float64(s.Header.BeatsPerBar)
	if bar <= 0 {
		return end
	}
	return math.Ceil(end/bar) * bar
}

// NoteCount returns the number of notes across all tracks.
func (s *Song) NoteCount() int {
	n := 0
	for _, t := range s.Tracks {
		n += len(t.Notes)
	}
	return n
}

// Track returns the track with id.
func (s *Song) Track(id string) (*Track, bool) {
	for i := range s.Tracks {
		if s.Tracks[i].ID == id {
			return &s.Tracks[i], true
		}
	}
	return nil, false
}

// TrackIDs returns every track id in song order.
func (s *Song) TrackIDs() []string {
	ids := make([]string, len(s.Tracks))
	for i, t := range s.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// Group returns the track ids belonging to a named instrument group.
func (s *Song) Group(name string) ([]string, error) {
	if name == GroupAll {
		return s.TrackIDs(), nil
	}
	ids, ok := s.Groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// GroupNames returns the defined group names, sorted, plus GroupAll.
func (s *Song) GroupNames() []string {
	names := make([]string, 0, len(s.Groups)+1)
	for name := range s.Groups {
		if name != GroupAll {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{GroupAll}, names...)
}

// normalize fills defaults, sorts notes and validates the song.
func (s *Song) normalize() error {
	if s.Header.BPM == 0 {
		s.Header.BPM = 120
	}
	if !(s.Header.BPM > 0) || math.IsInf(s.Header.BPM, 0) {
		return fmt.Errorf("%w: tempo %v", ErrInvalidSong, s.Header.BPM)
	}
	if s.Header.BeatLength <= 0 {
		s.Header.BeatLength = 60 / s.Header.BPM
	}
	if s.Header.BeatsPerBar <= 0 {
		s.Header.BeatsPerBar = 4
	}
	if len(s.Tracks) == 0 {
		return ErrNoTracks
	}

	seen := make(map[string]bool, len(s.Tracks))
	for i := range s.Tracks {
		t := &s.Tracks[i]
		if t.ID == "" {
			t.ID = fmt.Sprintf("track-%d", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate track id %q", ErrInvalidSong, t.ID)
		}
		seen[t.ID] = true
		if t.Name == "" {
			t.Name = t.ID
		}
		if t.Channel > 15 {
			return fmt.Errorf("%w: track %q channel %d", ErrInvalidSong, t.ID, t.Channel)
		}

		for j, n := range t.Notes {
			switch {
			case n.Beat < 0 || math.IsNaN(n.Beat) || math.IsInf(n.Beat, 0):
				return fmt.Errorf("%w: track %q note %d at beat %v", ErrInvalidSong, t.ID, j, n.Beat)
			case n.Duration < 0 || math.IsNaN(n.Duration) || math.IsInf(n.Duration, 0):
				return fmt.Errorf("%w: track %q note %d duration %v", ErrInvalidSong, t.ID, j, n.Duration)
			case n.Pitch > 127:
				return fmt.Errorf("%w: track %q note %d pitch %d", ErrInvalidSong, t.ID, j, n.Pitch)
			case !(n.Velocity > 0) || n.Velocity > 1:
				return fmt.Errorf("%w: track %q note %d velocity %v", ErrInvalidSong, t.ID, j, n.Velocity)
			}
		}
		sort.SliceStable(t.Notes, func(a, b int) bool { return t.Notes[a].Beat < t.Notes[b].Beat })
	}

	if s.NoteCount() == 0 {
		return fmt.Errorf("%w: no notes", ErrInvalidSong)
	}

	for name, ids := range s.Groups {
		for _, id := range ids {
			if !seen[id] {
				return fmt.Errorf("%w: group %q references track %q", ErrUnknownGroup, name, id)
			}
		}
	}
	return nil
}
