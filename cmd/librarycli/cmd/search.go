package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/patronlib/librarystack/internal/stacks"
)

func newSearchCmd() *cobra.Command {
	var k int
	var threshold float64
	var useDSL bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored volumes by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			defer lib.Dispose(context.Background())

			var results []stacks.ScoredVolume
			if useDSL {
				results, err = lib.QuerySearch(cmd.Context(), args[0], k)
			} else {
				results, err = lib.Search(cmd.Context(), args[0], k, threshold)
			}
			if err != nil {
				return err
			}
			return printResults(cmd, results)
		},
	}

	cmd.Flags().IntVar(&k, "k", 10, "maximum results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum cosine similarity")
	cmd.Flags().BoolVar(&useDSL, "query", false, "interpret <query> as a text:/metadata:/topic: query expression")
	return cmd
}

func printResults(cmd *cobra.Command, results []stacks.ScoredVolume) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%.4f  %s  %s\n", r.Score, r.Volume.ID, truncate(r.Volume.Text, 80))
	}
	if isTTY(os.Stdout.Fd()) {
		fmt.Fprintf(out, "\n%d result(s)\n", len(results))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
