package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-semiconductor/internal/config"
	"github.com/teslashibe/go-semiconductor/pkg/sink"
	"github.com/teslashibe/go-semiconductor/pkg/song"
)

var listPorts bool

func init() {
	inspectCmd.Flags().BoolVar(&listPorts, "ports", false, "list MIDI output ports instead")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [song]",
	Short: "Print a song's header, tracks and groups",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPorts {
			for _, p := range sink.ListPorts() {
				fmt.Println(p)
			}
			return nil
		}

		name := song.DefaultSong
		if len(args) == 1 {
			name = args[0]
		}
		sng, err := config.ResolveSong(name)
		if err != nil {
			return err
		}
		inspect(sng)
		return nil
	},
}

func inspect(sng *song.Song) {
	h := sng.Header
	fmt.Printf("name:        %s\n", h.Name)
	fmt.Printf("tempo:       %.1f BPM (%.3fs per beat)\n", h.BPM, h.BeatLength)
	fmt.Printf("length:      %.0f beats, %d per bar\n", sng.TotalBeats(), h.BeatsPerBar)
	fmt.Printf("notes:       %d\n", sng.NoteCount())

	fmt.Println("tracks:")
	for _, t := range sng.Tracks {
		fmt.Printf("  %-12s ch %-2d %-12s %d notes\n", t.ID, t.Channel, t.Instrument, len(t.Notes))
	}

	fmt.Println("groups:")
	for _, g := range sng.GroupNames() {
		ids, _ := sng.Group(g)
		fmt.Printf("  %-8s %s\n", g, strings.Join(ids, ", "))
	}
}
