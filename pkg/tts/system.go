package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// System synthesizes speech with the operating system's own voice: say
// on darwin (AIFF output), espeak on linux (WAV output). Quality is
// robotic next to the cloud voices, but it needs no keys and works
// offline.
type System struct {
	goos string
}

var _ Synthesizer = (*System)(nil)

// NewSystem creates a System synthesizer for the current platform.
func NewSystem() *System {
	return &System{goos: runtime.GOOS}
}

// Synthesize implements the Synthesizer interface.
func (s *System) Synthesize(ctx context.Context, req Request) (*Result, error) {
	dir, err := os.MkdirTemp("", "speakd-tts-*")
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}
	defer os.RemoveAll(dir)

	var (
		bin  string
		args []string
		out  string
		mime string
	)
	switch s.goos {
	case "darwin":
		bin = "say"
		out = filepath.Join(dir, "out.aiff")
		args = []string{"-o", out}
		mime = MIMEAIFF
	case "linux":
		bin = "espeak"
		out = filepath.Join(dir, "out.wav")
		args = []string{"-w", out}
		mime = MIMEWAV
	default:
		return nil, fmt.Errorf("system: %w: unsupported platform %s", ErrProviderUnavailable, s.goos)
	}
	if req.Voice != "" {
		args = append(args, "-v", req.Voice)
	}
	args = append(args, req.Text)

	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("system: %w: %s not installed", ErrProviderUnavailable, bin)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if msg, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("system: %w: %s: %s", ErrSynthesisFailed, err, bytes.TrimSpace(msg))
	}

	audio, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("system: %w: %v", ErrSynthesisFailed, err)
	}
	return &Result{Audio: audio, MIME: mime}, nil
}
