// Command librarycli is a thin reference host program for the
// librarystack engine: a local-storage, static-embedding demo CLI. It
// exists only to exercise pkg/library end-to-end from outside the
// module; the engine itself has no CLI surface of its own.
package main

import (
	"fmt"
	"os"

	"github.com/patronlib/librarystack/cmd/librarycli/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
