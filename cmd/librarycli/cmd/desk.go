package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDeskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "desk",
		Short: "Inspect or drain the Circulation Desk job queue",
	}
	cmd.AddCommand(newDeskDrainCmd())
	return cmd
}

func newDeskDrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Block until every pending Desk job has been processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			defer lib.Dispose(context.Background())

			if err := lib.Desk().Drain(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "drained")
			return nil
		},
	}
	return cmd
}
