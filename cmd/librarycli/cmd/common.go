package cmd

import (
	"context"

	"github.com/mattn/go-isatty"

	"github.com/patronlib/librarystack/internal/staticembed"
	"github.com/patronlib/librarystack/pkg/liberr"
	"github.com/patronlib/librarystack/pkg/library"
)

// openLibrary wires a library.Library against the --data-dir flag, the
// offline staticembed provider, and a generator that reports itself
// unavailable — librarycli never configures a live text-generation
// backend, so Circulation Desk jobs simply no-op and log.
func openLibrary() (*library.Library, error) {
	cfg := library.DefaultConfig()
	cfg.StorageDir = dataDir

	return library.New(cfg, staticembed.New(), noGenerator{}, cliLogger())
}

// noGenerator is a capability.TextGenerationProvider stub for hosts
// that have not wired a live text-generation backend.
type noGenerator struct{}

func (noGenerator) Generate(context.Context, string, string) (string, error) {
	return "", liberr.New(liberr.KindProviderUnavailable, liberr.CodeProviderUnavailable, "no text-generation provider configured", nil)
}

func (noGenerator) GenerateWithModel(context.Context, string, string, string) (string, error) {
	return "", liberr.New(liberr.KindProviderUnavailable, liberr.CodeProviderUnavailable, "no text-generation provider configured", nil)
}

// isTTY reports whether stdout is attached to a terminal, used to
// decide whether to print the decorative footer line.
func isTTY(fd uintptr) bool {
	return isatty.IsTerminal(fd)
}
