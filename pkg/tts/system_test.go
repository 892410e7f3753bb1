package tts

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
)

func TestSystem_Synthesize(t *testing.T) {
	var bin string
	switch runtime.GOOS {
	case "darwin":
		bin = "say"
	case "linux":
		bin = "espeak"
	default:
		t.Skipf("no system voice on %s", runtime.GOOS)
	}
	if _, err := exec.LookPath(bin); err != nil {
		t.Skipf("%s not installed", bin)
	}

	res, err := NewSystem().Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Audio) == 0 {
		t.Fatal("empty audio")
	}
	switch runtime.GOOS {
	case "darwin":
		if res.MIME != MIMEAIFF {
			t.Fatalf("MIME = %q, want %q", res.MIME, MIMEAIFF)
		}
		if string(res.Audio[0:4]) != "FORM" {
			t.Fatalf("expected AIFF container, got %q", res.Audio[0:4])
		}
	case "linux":
		if res.MIME != MIMEWAV {
			t.Fatalf("MIME = %q, want %q", res.MIME, MIMEWAV)
		}
		if string(res.Audio[0:4]) != "RIFF" {
			t.Fatalf("expected WAV container, got %q", res.Audio[0:4])
		}
	}
}

func TestSystem_UnsupportedPlatform(t *testing.T) {
	s := &System{goos: "plan9"}
	_, err := s.Synthesize(context.Background(), Request{Text: "hello"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("error = %v, want ErrProviderUnavailable", err)
	}
}
