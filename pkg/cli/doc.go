// Package cli provides common utilities for the speakd command-line tools.
//
// This package includes:
//   - Output formatting (JSON, YAML)
//   - Request file loading (YAML/JSON)
//   - Directory layout resolution (config and data dirs)
//   - TUI helpers for live views
//
// Example usage:
//
//	// Resolve the speakd directory layout
//	paths, err := cli.NewPaths("speakd")
//
//	// Output result
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
