// Package cmd provides the librarycli command tree: one file per
// subcommand, a shared root with persistent flags, and a small set of
// helpers for opening a Library against the flags the user passed.
package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/patronlib/librarystack/internal/logging"
	"github.com/patronlib/librarystack/pkg/version"
)

var (
	dataDir    string
	jsonOutput bool
	debugMode  bool
)

// NewRootCmd builds the librarycli root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "librarycli",
		Short:   "Inspect and drive a librarystack store from the command line",
		Version: version.Version,
		Long: `librarycli is a thin reference host around the librarystack
engine: it opens a store on local disk, embeds text with a
deterministic offline embedder, and exposes add/search/stats/topics/
flush as plain subcommands.`,
	}
	root.SetVersionTemplate(version.String() + "\n")

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "librarystack-data", "storage directory for the file backend")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of plain text")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to stderr")

	root.AddCommand(newAddCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newTopicsCmd())
	root.AddCommand(newFlushCmd())
	root.AddCommand(newDeskCmd())

	return root
}

// cliLogger builds the logger handed to library.New: a discard handler
// unless --debug is set.
func cliLogger() *slog.Logger {
	if !debugMode {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger, _, err := logging.Setup(logging.Config{Level: "debug", WriteToStderr: true})
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
