package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewPaths(t *testing.T) {
	paths, err := NewPaths("testapp")
	if err != nil {
		t.Fatalf("NewPaths error: %v", err)
	}

	if paths.AppName != "testapp" {
		t.Errorf("AppName = %q, want %q", paths.AppName, "testapp")
	}

	if paths.ConfigBase == "" {
		t.Error("ConfigBase should not be empty")
	}
	if paths.DataBase == "" {
		t.Error("DataBase should not be empty")
	}
}

func TestNewPaths_XDGDataHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmpDir)

	paths, err := NewPaths("testapp")
	if err != nil {
		t.Fatalf("NewPaths error: %v", err)
	}

	if paths.DataBase != tmpDir {
		t.Errorf("DataBase = %q, want %q", paths.DataBase, tmpDir)
	}
}

func TestPaths_Layout(t *testing.T) {
	paths := &Paths{AppName: "testapp", ConfigBase: "/cfg", DataBase: "/data"}

	cases := []struct {
		got  string
		want string
	}{
		{paths.ConfigDir(), filepath.Join("/cfg", "testapp")},
		{paths.ConfigFile(), filepath.Join("/cfg", "testapp", "config.yaml")},
		{paths.DataDir(), filepath.Join("/data", "testapp")},
		{paths.CacheDir(), filepath.Join("/data", "testapp", "cache")},
		{paths.ArtifactDir(), filepath.Join("/data", "testapp", "artifacts")},
		{paths.LogDir(), filepath.Join("/data", "testapp", "logs")},
		{paths.LogPath("daemon.log"), filepath.Join("/data", "testapp", "logs", "daemon.log")},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestPaths_EnsureDataDirs(t *testing.T) {
	tmpDir := t.TempDir()
	paths := &Paths{AppName: "testapp", ConfigBase: tmpDir, DataBase: tmpDir}

	if err := paths.EnsureDataDirs(); err != nil {
		t.Fatalf("EnsureDataDirs error: %v", err)
	}
	for _, dir := range []string{paths.CacheDir(), paths.ArtifactDir(), paths.LogDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	if err := paths.EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir error: %v", err)
	}
	if _, err := os.Stat(paths.ConfigDir()); err != nil {
		t.Fatalf("stat config dir: %v", err)
	}
}
