package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-semiconductor/internal/httpc"
)

var serverURL string

func init() {
	ctlCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL")
	ctlCmd.AddCommand(ctlStatusCmd, ctlLoadCmd)
	for _, name := range httpc.Actions() {
		ctlCmd.AddCommand(actionCmd(name))
	}
	rootCmd.AddCommand(ctlCmd)
}

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running server",
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		snap, err := httpc.New(serverURL).Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

var ctlLoadCmd = &cobra.Command{
	Use:   "load <song>",
	Short: "Queue another bundled song",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		snap, err := httpc.New(serverURL).LoadSong(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

func actionCmd(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: strings.ToUpper(name[:1]) + name[1:] + " the performance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			snap, err := httpc.New(serverURL).Action(ctx, name)
			if err != nil {
				return err
			}
			fmt.Println(snap.State)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
