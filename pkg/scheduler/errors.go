package scheduler

import "errors"

var (
	// ErrNoSong is returned when starting before a song is queued.
	ErrNoSong = errors.New("no song queued")

	// ErrUnknownTrack is returned when an instrument group names a track the song lacks.
	ErrUnknownTrack = errors.New("unknown track")
)
