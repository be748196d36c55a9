package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// statsOutput is the JSON shape for `librarycli stats --json`.
type statsOutput struct {
	Volumes    int `json:"volumes"`
	QueueDepth int `json:"queue_depth"`
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show volume counts and Circulation Desk queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			defer lib.Dispose(context.Background())

			out := statsOutput{
				Volumes:    lib.Count(),
				QueueDepth: lib.Desk().QueueDepth(),
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "volumes:     %d\nqueue depth: %d\n", out.Volumes, out.QueueDepth)
			return nil
		},
	}
	return cmd
}
