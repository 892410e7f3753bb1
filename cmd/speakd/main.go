// Package main is the entry point for the speakd CLI.
//
// Usage:
//
//	speakd [flags] "text to speak"
//	speakd <command> [subcommand] [args]
//
// Commands:
//
//	daemon   - Daemon lifecycle (run, start, stop, status, restart)
//	queue    - Playback queue (list, watch, cancel)
//	cache    - Semantic cache (stats, purge)
//	config   - Configuration management (init, show)
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/speakd/cmd/speakd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
