package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRequest decodes a YAML or JSON request file into v. The file
// extension picks the codec; with no recognized extension both are
// tried, YAML first.
func LoadRequest(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	default:
		return decodeEither(data, v, true)
	}
}

// LoadRequestFromStdin decodes a request piped on stdin into v.
// Piped input is usually machine-generated, so JSON is tried first.
func LoadRequestFromStdin(v any) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return decodeEither(data, v, false)
}

func decodeEither(data []byte, v any, yamlFirst bool) error {
	first, second := yaml.Unmarshal, json.Unmarshal
	if !yamlFirst {
		first, second = second, first
	}
	if err := first(data, v); err == nil {
		return nil
	}
	if err := second(data, v); err == nil {
		return nil
	}
	return fmt.Errorf("input is neither valid YAML nor valid JSON")
}
