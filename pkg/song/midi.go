package song

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"
)

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// LoadMIDI imports a Standard MIDI File.
func LoadMIDI(path string) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read song file: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ReadMIDI(name, f)
}

// ReadMIDI converts an SMF stream into a Song. Tick positions become
// beats through the file's resolution, the first tempo event becomes the
// base tempo and every SMF track holding notes becomes one Track.
// Groups are not encoded in SMF, so only GroupAll exists.
func ReadMIDI(name string, r io.Reader) (*Song, error) {
	mf, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSong, err)
	}

	ticks, ok := mf.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: SMPTE time format is not supported", ErrInvalidSong)
	}
	res := float64(ticks.Resolution())
	if res == 0 {
		return nil, fmt.Errorf("%w: zero resolution", ErrInvalidSong)
	}

	s := &Song{Header: Header{Name: name}}

	for i, events := range mf.Tracks {
		track := Track{ID: fmt.Sprintf("track-%d", i)}
		open := make(map[uint16]openNote)
		var abs uint64
		var channelSet bool

		closeNote := func(key uint16, at uint64) {
			on, ok := open[key]
			if !ok {
				return
			}
			delete(open, key)
			track.Notes = append(track.Notes, Note{
				Beat:     float64(on.tick) / res,
				Duration: float64(at-on.tick) / res,
				Pitch:    uint8(key & 0x7f),
				Velocity: float64(on.velocity) / 127,
			})
		}

		for _, ev := range events {
			abs += uint64(ev.Delta)

			var ch, key, vel uint8
			var bpm float64
			var text string
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel):
				k := uint16(ch)<<8 | uint16(key)
				if vel == 0 {
					closeNote(k, abs)
					continue
				}
				// Retrigger without release
				closeNote(k, abs)
				open[k] = openNote{tick: abs, velocity: vel}
				if !channelSet {
					track.Channel, channelSet = ch, true
				}
			case ev.Message.GetNoteOff(&ch, &key, &vel):
				closeNote(uint16(ch)<<8|uint16(key), abs)
			case ev.Message.GetMetaTempo(&bpm):
				if s.Header.BPM == 0 && bpm > 0 {
					s.Header.BPM = bpm
				}
			case ev.Message.GetMetaTrackName(&text):
				if track.Name == "" {
					track.Name = strings.TrimSpace(text)
				}
			}
		}
		for k := range open {
			closeNote(k, abs)
		}

		if len(track.Notes) == 0 {
			continue
		}
		if track.Name != "" {
			if id := strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(track.Name), "-"), "-"); id != "" {
				if _, dup := s.Track(id); !dup {
					track.ID = id
				}
			}
		}
		if track.Channel == 9 {
			track.Instrument = "percussion"
		}
		s.Tracks = append(s.Tracks, track)
	}

	if err := s.normalize(); err != nil {
		return nil, fmt.Errorf("song %q: %w", name, err)
	}
	return s, nil
}

type openNote struct {
	tick     uint64
	velocity uint8
}
