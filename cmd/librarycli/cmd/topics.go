package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics <topic>",
		Short: "List volumes filed under a topic and its descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			defer lib.Dispose(context.Background())

			volumes := lib.FilterByTopic(args[0])
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(volumes)
			}
			out := cmd.OutOrStdout()
			for _, v := range volumes {
				fmt.Fprintf(out, "%s  %s\n", v.ID, truncate(v.Text, 80))
			}
			fmt.Fprintf(out, "\n%d volume(s) under %q\n", len(volumes), args[0])
			return nil
		},
	}
	return cmd
}
