package song

import "errors"

var (
	// ErrNoTracks is returned when a song has no tracks.
	ErrNoTracks = errors.New("song has no tracks")

	// ErrInvalidSong is returned when song data is malformed.
	ErrInvalidSong = errors.New("invalid song data")

	// ErrUnknownGroup is returned for an instrument group the song does not define.
	ErrUnknownGroup = errors.New("unknown instrument group")

	// ErrNotFound is returned when no bundled song has the requested name.
	ErrNotFound = errors.New("song not found")

	// ErrUnsupportedFormat is returned when a file extension has no loader.
	ErrUnsupportedFormat = errors.New("unsupported song format")
)
