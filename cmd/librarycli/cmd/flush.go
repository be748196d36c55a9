package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newFlushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Force an immediate synchronous save to the storage backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			defer lib.Dispose(context.Background())

			if err := lib.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "flushed")
			return nil
		},
	}
	return cmd
}
