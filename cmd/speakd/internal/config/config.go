// Package config loads the speakd configuration file.
//
// Configuration lives at ~/.config/speakd/config.yaml (os.UserConfigDir
// on other platforms) and is created by `speakd config init`. A .env
// file in the working directory is loaded best-effort before environment
// overrides are applied, so API keys can live outside the config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/haivivi/speakd/pkg/cli"
)

// Config is the root configuration for the speakd CLI and daemon.
type Config struct {
	// Provider is the default TTS provider for requests naming none.
	Provider string `yaml:"provider,omitempty"`

	// Voice is the default voice for requests naming none.
	Voice string `yaml:"voice,omitempty"`

	// Threshold is the default semantic similarity floor.
	Threshold float32 `yaml:"threshold,omitempty"`

	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Embedder  EmbedderConfig  `yaml:"embedder,omitempty"`
	Daemon    DaemonConfig    `yaml:"daemon,omitempty"`
	Artifacts ArtifactsConfig `yaml:"artifacts,omitempty"`
	Providers ProvidersConfig `yaml:"providers,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`

	// path the config was loaded from, empty when defaults only.
	path string
}

// CacheConfig controls the semantic cache.
type CacheConfig struct {
	// Dir overrides the data directory (~/.local/share/speakd).
	Dir string `yaml:"dir,omitempty"`

	// MaxTextLen is the uncacheable-text threshold in runes.
	MaxTextLen int `yaml:"max_text_len,omitempty"`

	// Disabled runs without any cache: every request synthesizes.
	Disabled bool `yaml:"disabled,omitempty"`
}

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	// Provider is "openai" or "gemini".
	Provider string `yaml:"provider,omitempty"`

	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// DaemonConfig controls the daemon process and its HTTP surface.
type DaemonConfig struct {
	// Socket is the unix socket path; empty means the default
	// runtime-dir location.
	Socket string `yaml:"socket,omitempty"`

	// HTTPHost and HTTPPort optionally add a loopback TCP listener.
	HTTPHost string `yaml:"http_host,omitempty"`
	HTTPPort int    `yaml:"http_port,omitempty"`

	// APIKey gates every non-status request when set.
	APIKey string `yaml:"api_key,omitempty"`

	// NoAudio replaces the audio device with a silent sink.
	NoAudio bool `yaml:"no_audio,omitempty"`

	// QueueKeep is how many finished jobs stay visible in queue output.
	QueueKeep int `yaml:"queue_keep,omitempty"`
}

// ArtifactsConfig selects where synthesized audio is kept.
type ArtifactsConfig struct {
	// Backend is "local" (default) or "s3".
	Backend string `yaml:"backend,omitempty"`

	S3 S3Config `yaml:"s3,omitempty"`
}

// S3Config configures the S3 artifact backend. Credentials come from
// the standard AWS environment unless AccessKey/SecretKey are set.
type S3Config struct {
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// ProvidersConfig holds per-provider TTS settings.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `yaml:"openai,omitempty"`
	Gemini GeminiConfig `yaml:"gemini,omitempty"`
	Piper  PiperConfig  `yaml:"piper,omitempty"`
}

// OpenAIConfig configures the OpenAI TTS provider.
type OpenAIConfig struct {
	APIKey string  `yaml:"api_key,omitempty"`
	Model  string  `yaml:"model,omitempty"`
	Voice  string  `yaml:"voice,omitempty"`
	Speed  float64 `yaml:"speed,omitempty"`
}

// GeminiConfig configures the Gemini TTS provider.
type GeminiConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
	Voice  string `yaml:"voice,omitempty"`
}

// PiperConfig configures the Piper (Wyoming protocol) provider.
type PiperConfig struct {
	Addr  string `yaml:"addr,omitempty"`
	Voice string `yaml:"voice,omitempty"`
}

// LogConfig controls daemon logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty"`

	// Format is text or json.
	Format string `yaml:"format,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Provider:  "system",
		Threshold: 0.95,
		Cache:     CacheConfig{MaxTextLen: 500},
		Embedder:  EmbedderConfig{Provider: "openai"},
		Daemon:    DaemonConfig{QueueKeep: 64},
		Artifacts: ArtifactsConfig{Backend: "local"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config file from the default location, falling back
// to defaults when it does not exist, then applies env overrides.
func Load() (*Config, error) {
	paths, err := cli.NewPaths("speakd")
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads the config from an explicit path. A missing file is
// not an error; defaults apply.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, nil
}

// Path returns where the config was loaded from (or would be written).
func (c *Config) Path() string { return c.path }

// applyEnv layers environment variables over the file values.
// SPEAKD_* variables always win; provider API keys fill blanks only.
func (c *Config) applyEnv() {
	if v := os.Getenv("SPEAKD_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("SPEAKD_VOICE"); v != "" {
		c.Voice = v
	}
	if v := os.Getenv("SPEAKD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.Threshold = float32(f)
		}
	}
	if v := os.Getenv("SPEAKD_SOCKET"); v != "" {
		c.Daemon.Socket = v
	}
	if v := os.Getenv("SPEAKD_API_KEY"); v != "" {
		c.Daemon.APIKey = v
	}
	if v := os.Getenv("SPEAKD_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Providers.OpenAI.APIKey == "" {
			c.Providers.OpenAI.APIKey = v
		}
		if c.Embedder.APIKey == "" && strings.EqualFold(c.Embedder.Provider, "openai") {
			c.Embedder.APIKey = v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if c.Providers.Gemini.APIKey == "" {
			c.Providers.Gemini.APIKey = v
		}
		if c.Embedder.APIKey == "" && strings.EqualFold(c.Embedder.Provider, "gemini") {
			c.Embedder.APIKey = v
		}
	}
	if v := os.Getenv("PIPER_ADDR"); v != "" {
		c.Providers.Piper.Addr = v
	}
}

// HTTPAddr returns the optional TCP listen address, empty when the
// daemon should serve the unix socket only.
func (c *Config) HTTPAddr() string {
	if c.Daemon.HTTPPort == 0 {
		return ""
	}
	host := c.Daemon.HTTPHost
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, c.Daemon.HTTPPort)
}

// Write renders the config as YAML to path, creating parent dirs.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
