package cli

import (
	"os"
	"path/filepath"
)

// Paths resolves the per-application directory layout.
//
// Configuration lives under os.UserConfigDir() and mutable state
// (cache database, audio artifacts, logs) under the user data
// directory, honoring XDG_DATA_HOME on Linux.
type Paths struct {
	// AppName is the application name
	AppName string

	// ConfigBase is the base configuration directory
	ConfigBase string

	// DataBase is the base data directory
	DataBase string
}

// DefaultConfigFile is the default configuration filename
const DefaultConfigFile = "config.yaml"

// NewPaths creates a new Paths instance for the given app
func NewPaths(appName string) (*Paths, error) {
	cfgBase, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	dataBase := os.Getenv("XDG_DATA_HOME")
	if dataBase == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dataBase = filepath.Join(home, ".local", "share")
	}
	return &Paths{
		AppName:    appName,
		ConfigBase: cfgBase,
		DataBase:   dataBase,
	}, nil
}

// ConfigDir returns the app configuration directory (~/.config/<app>)
func (p *Paths) ConfigDir() string {
	return filepath.Join(p.ConfigBase, p.AppName)
}

// ConfigFile returns the config file path (~/.config/<app>/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir(), DefaultConfigFile)
}

// DataDir returns the app data directory (~/.local/share/<app>)
func (p *Paths) DataDir() string {
	return filepath.Join(p.DataBase, p.AppName)
}

// CacheDir returns the cache database directory
func (p *Paths) CacheDir() string {
	return filepath.Join(p.DataDir(), "cache")
}

// ArtifactDir returns the audio artifact directory
func (p *Paths) ArtifactDir() string {
	return filepath.Join(p.DataDir(), "artifacts")
}

// LogDir returns the log directory
func (p *Paths) LogDir() string {
	return filepath.Join(p.DataDir(), "logs")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func (p *Paths) EnsureConfigDir() error {
	return os.MkdirAll(p.ConfigDir(), 0o755)
}

// EnsureDataDirs creates the data, cache, artifact and log directories
func (p *Paths) EnsureDataDirs() error {
	for _, dir := range []string{p.DataDir(), p.CacheDir(), p.ArtifactDir(), p.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// LogPath returns a path within the log directory
func (p *Paths) LogPath(name string) string {
	return filepath.Join(p.LogDir(), name)
}
