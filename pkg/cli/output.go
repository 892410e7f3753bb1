package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how a structured result is rendered.
type OutputFormat string

const (
	// FormatYAML renders YAML. This is the default for terminal output.
	FormatYAML OutputFormat = "yaml"
	// FormatJSON renders indented JSON, for scripting.
	FormatJSON OutputFormat = "json"
)

// OutputOptions controls where and how Output writes a result.
type OutputOptions struct {
	Format OutputFormat

	// Indent is the JSON indentation string. Ignored for YAML.
	Indent string

	// File redirects output to a path instead of stdout.
	File string

	// Writer takes precedence over File when set. Used by tests.
	Writer io.Writer
}

// Output renders a result value and writes it to the configured
// destination. An empty format means YAML.
func Output(v any, opts OutputOptions) error {
	data, err := render(v, opts)
	if err != nil {
		return err
	}

	if opts.Writer != nil {
		_, err = opts.Writer.Write(data)
		return err
	}
	if opts.File != "" {
		return os.WriteFile(opts.File, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func render(v any, opts OutputOptions) ([]byte, error) {
	switch opts.Format {
	case FormatJSON:
		indent := opts.Indent
		if indent == "" {
			indent = "  "
		}
		data, err := json.MarshalIndent(v, "", indent)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML, "":
		data, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q", opts.Format)
	}
}

// OutputBytes writes raw binary data (synthesized audio, typically)
// to a file. Writing binary to stdout is never useful here, so a
// path is required.
func OutputBytes(data []byte, path string) error {
	if path == "" {
		return fmt.Errorf("output file path required for binary data")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// PrintSuccess prints a checkmarked message to stdout.
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

// PrintInfo prints an informational message to stdout.
func PrintInfo(format string, args ...any) {
	fmt.Printf("ℹ "+format+"\n", args...)
}

// PrintVerbose prints to stderr when verbose is enabled.
func PrintVerbose(verbose bool, format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}
