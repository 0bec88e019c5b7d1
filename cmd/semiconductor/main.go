// Command semiconductor conducts a multi-track song with arm gestures.
package main

import (
	"github.com/spf13/cobra"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver

	"github.com/teslashibe/go-semiconductor/internal/config"
	"github.com/teslashibe/go-semiconductor/internal/log"
)

var (
	settingsPath string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "semiconductor",
	Short: "Conduct a song with your arms",
	Long: `semiconductor turns arm gestures into tempo, volume and instrument
changes for a multi-track song played through MIDI.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", config.DefaultPath, "settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

// loadSettings reads the settings file and starts logging.
// Priority (highest to lowest): CLI flags > Environment variables > Config file > Defaults
func loadSettings() (config.Settings, error) {
	s, err := config.Load(settingsPath)
	if err != nil {
		return s, err
	}
	if logLevel != "" {
		s.LogLevel = logLevel
	}
	log.Init(s.LogLevel)
	return s, nil
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
