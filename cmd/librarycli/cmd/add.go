package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	var topic string
	var metaFlags []string

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Embed and store a volume of text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseMetaFlags(metaFlags)
			if err != nil {
				return err
			}
			if topic != "" {
				meta["topic"] = topic
			}

			lib, err := openLibrary()
			if err != nil {
				return err
			}
			defer lib.Dispose(context.Background())

			id, err := lib.Add(cmd.Context(), args[0], meta)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "topic path to file this volume under")
	cmd.Flags().StringArrayVar(&metaFlags, "meta", nil, "metadata key=value, repeatable")
	return cmd
}

// parseMetaFlags turns repeated --meta key=value flags into a metadata
// map.
func parseMetaFlags(flags []string) (map[string]string, error) {
	meta := make(map[string]string, len(flags))
	for _, f := range flags {
		key, val, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q, want key=value", f)
		}
		meta[key] = val
	}
	return meta, nil
}
