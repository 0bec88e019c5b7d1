package song

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed data/*.json
var embeddedSongs embed.FS

// DefaultSong is the bundled song used when none is configured.
const DefaultSong = "demo"

// Load reads a song file, choosing the loader by extension.
func Load(path string) (*Song, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(path)
	case ".mid", ".midi", ".smf":
		return LoadMIDI(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadJSON loads a song from a JSON file on disk.
func LoadJSON(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read song file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseJSON(name, data)
}

// LoadEmbedded loads a bundled song by name.
func LoadEmbedded(name string) (*Song, error) {
	data, err := embeddedSongs.ReadFile(fmt.Sprintf("data/%s.json", name))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return ParseJSON(name, data)
}

// ListEmbedded returns the names of all bundled songs.
func ListEmbedded() ([]string, error) {
	entries, err := embeddedSongs.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded songs: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return names, nil
}

// ParseJSON decodes and validates a JSON song. name is used when the
// header carries none.
func ParseJSON(name string, data []byte) (*Song, error) {
	var s Song
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSong, err)
	}
	if s.Header.Name == "" {
		s.Header.Name = name
	}
	if err := s.normalize(); err != nil {
		return nil, fmt.Errorf("song %q: %w", s.Header.Name, err)
	}
	return &s, nil
}
