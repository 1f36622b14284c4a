package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/vvka-141/pgetl/internal/cli"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

func main() {
	// Recover from panics to ensure graceful exits with stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(pgetl.ExitPanic)
		}
	}()

	if err := cli.Execute(); err != nil {
		os.Exit(pgetl.ExitCodeForError(err))
	}
}
