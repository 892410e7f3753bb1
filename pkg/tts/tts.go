// Package tts turns text into encoded audio clips.
//
// A [Synthesizer] wraps one synthesis backend and produces a complete
// encoded clip per request. [Mux] routes a provider name such as
// "openai" or "piper" to a registered synthesizer; patterns follow
// [trie] syntax, so "piper/*" can serve a whole family of names.
//
// Four backends ship in this package: OpenAI and Gemini cloud voices, a
// local Piper server speaking the Wyoming protocol, and the operating
// system voice (say on darwin, espeak on linux).
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/haivivi/speakd/pkg/trie"
)

var (
	// ErrProviderUnknown means no synthesizer is registered under the
	// requested name.
	ErrProviderUnknown = errors.New("tts: unknown provider")

	// ErrProviderUnavailable means the backend cannot be reached at all:
	// missing API key, missing binary, refused connection.
	ErrProviderUnavailable = errors.New("tts: provider unavailable")

	// ErrSynthesisFailed means the backend was reached but rejected or
	// botched the request.
	ErrSynthesisFailed = errors.New("tts: synthesis failed")
)

// MIME types produced by the built-in providers.
const (
	MIMEMP3  = "audio/mpeg"
	MIMEWAV  = "audio/wav"
	MIMEAIFF = "audio/aiff"
)

// Request is a single synthesis request.
type Request struct {
	// Text to speak.
	Text string

	// Voice is the provider-specific voice name. Empty selects the
	// provider default.
	Voice string
}

// Result is a complete encoded audio clip.
type Result struct {
	Audio []byte
	MIME  string
}

// Synthesizer produces a complete audio clip for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// SynthesizeFunc is a function that implements the Synthesizer interface.
type SynthesizeFunc func(ctx context.Context, req Request) (*Result, error)

// Synthesize implements the Synthesizer interface.
func (f SynthesizeFunc) Synthesize(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Mux routes provider names to synthesizers.
type Mux struct {
	reg *trie.Trie[Synthesizer]
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{reg: trie.New[Synthesizer]()}
}

// Handle registers a synthesizer under the given pattern. Re-registering
// a pattern logs a warning and replaces the previous synthesizer.
func (m *Mux) Handle(pattern string, s Synthesizer) error {
	return m.reg.Set(pattern, func(ptr *Synthesizer, existed bool) error {
		*ptr = s
		if existed {
			slog.Warn("tts: provider already registered, replacing", "pattern", pattern)
		}
		return nil
	})
}

// HandleFunc registers a synthesizer function under the given pattern.
func (m *Mux) HandleFunc(pattern string, f SynthesizeFunc) error {
	return m.Handle(pattern, f)
}

// Synthesize routes the request to the synthesizer registered for the
// provider name.
func (m *Mux) Synthesize(ctx context.Context, provider string, req Request) (*Result, error) {
	s, ok := m.reg.GetValue(provider)
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: %q", ErrProviderUnknown, provider)
	}
	return s.Synthesize(ctx, req)
}

// Providers returns the registered patterns, sorted.
func (m *Mux) Providers() []string {
	var out []string
	m.reg.Walk(func(pattern string, _ Synthesizer) {
		out = append(out, pattern)
	})
	sort.Strings(out)
	return out
}
