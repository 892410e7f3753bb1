// Package engine is the request pipeline: one Speak call takes text all
// the way from "does cached audio exist for this?" through synthesis to
// a seat in the playback queue. It returns as soon as the job is
// enqueued; playback happens behind the caller's back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/cache"
	"github.com/haivivi/speakd/pkg/queue"
	"github.com/haivivi/speakd/pkg/tts"
)

// DefaultThreshold is the semantic similarity floor used when a request
// does not set one. 0.95 only accepts close paraphrases.
const DefaultThreshold = 0.95

// ErrBadThreshold is returned for an explicit threshold outside (0, 1].
var ErrBadThreshold = errors.New("engine: threshold must be in (0, 1]")

// Request is one speech request.
type Request struct {
	// Text to speak. Required.
	Text string

	// Provider and Voice select the synthesizer; empty values fall back
	// to the engine defaults.
	Provider string
	Voice    string

	// NoCache skips both cache lookup and store. The text is always
	// synthesized fresh.
	NoCache bool

	// Threshold is the semantic match floor, valid in (0, 1]. Nil
	// means the engine default; an explicit low value is honored, so
	// a caller can ask for a permissive 0.1 as well as a strict 0.99.
	Threshold *float32

	// SkipQueue plays this clip ahead of queued jobs (after the one
	// currently playing).
	SkipQueue bool

	// SubmittedBy identifies the caller in status output.
	SubmittedBy string
}

// Receipt reports what happened to a request up to the moment its job
// entered the queue.
type Receipt struct {
	// Job is the enqueued playback job, including the cancel token.
	Job queue.Job `json:"job"`

	// CacheHit reports whether cached audio was reused.
	CacheHit bool `json:"cache_hit"`

	// Similarity is set on a cache hit: 1.0 for exact, the cosine
	// similarity for semantic matches. Nil on a miss.
	Similarity *float32 `json:"similarity"`

	// MatchedText is the cached phrase that matched, when it differs
	// from the request text.
	MatchedText string `json:"matched_text,omitempty"`

	// Uncacheable is set when the text was too long for the cache and
	// was synthesized without it.
	Uncacheable bool `json:"uncacheable,omitempty"`

	// Provider and Voice are the resolved values actually used.
	Provider string `json:"provider"`
	Voice    string `json:"voice"`
}

// Options configures an Engine.
type Options struct {
	// DefaultProvider is used when a request names none. Required.
	DefaultProvider string

	// DefaultVoice is used when a request names none. May be empty,
	// meaning the provider's own default voice.
	DefaultVoice string

	// DefaultThreshold replaces DefaultThreshold when positive.
	DefaultThreshold float32

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine wires the semantic cache, the provider router and the playback
// queue together. All fields are long-lived handles created once at
// daemon startup.
type Engine struct {
	cache     *cache.Cache
	router    *tts.Mux
	queue     *queue.Queue
	artifacts artifact.Store
	opts      Options
	log       *slog.Logger
}

// New creates an Engine. cache may be nil, which disables caching for
// every request (the --no-cache daemon mode).
func New(c *cache.Cache, router *tts.Mux, q *queue.Queue, artifacts artifact.Store, opts Options) (*Engine, error) {
	if router == nil || q == nil || artifacts == nil {
		return nil, errors.New("engine: router, queue and artifacts are required")
	}
	if opts.DefaultProvider == "" {
		return nil, errors.New("engine: Options.DefaultProvider is required")
	}
	if opts.DefaultThreshold <= 0 {
		opts.DefaultThreshold = DefaultThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		cache:     c,
		router:    router,
		queue:     q,
		artifacts: artifacts,
		opts:      opts,
		log:       opts.Logger,
	}, nil
}

// Speak resolves a request against the cache, synthesizes on a miss,
// and enqueues the audio. It returns once the job is queued (or seated
// in the urgent lane); it never waits for playback.
func (e *Engine) Speak(ctx context.Context, req Request) (*Receipt, error) {
	if cache.Normalize(req.Text) == "" {
		return nil, cache.ErrEmptyText
	}
	provider := req.Provider
	if provider == "" {
		provider = e.opts.DefaultProvider
	}
	voice := req.Voice
	if voice == "" {
		voice = e.opts.DefaultVoice
	}
	threshold := e.opts.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
		if threshold <= 0 || threshold > 1 {
			return nil, fmt.Errorf("%w: got %v", ErrBadThreshold, threshold)
		}
	}

	receipt := &Receipt{Provider: provider, Voice: voice}
	useCache := e.cache != nil && !req.NoCache

	var source queue.Source
	if useCache {
		hit, err := e.cache.Lookup(ctx, cache.LookupRequest{
			Text:      req.Text,
			Provider:  provider,
			Voice:     voice,
			Threshold: threshold,
		})
		switch {
		case errors.Is(err, cache.ErrUncacheable):
			receipt.Uncacheable = true
			useCache = false
		case err != nil:
			return nil, err
		case hit != nil:
			sim := hit.Similarity
			receipt.CacheHit = true
			receipt.Similarity = &sim
			if hit.MatchedText != req.Text {
				receipt.MatchedText = hit.MatchedText
			}
			source = queue.FromStore(e.artifacts, hit.ArtifactRef)
			e.log.Debug("cache hit",
				"text", req.Text,
				"similarity", sim,
				"exact", hit.Exact)
		}
	}

	if source == nil {
		result, err := e.router.Synthesize(ctx, provider, tts.Request{Text: req.Text, Voice: voice})
		if err != nil {
			return nil, fmt.Errorf("engine: synthesizing with %s: %w", provider, err)
		}
		if useCache {
			// A store failure fails the whole request; nothing plays
			// from a cache that could not record it.
			if _, err := e.cache.Store(ctx, cache.StoreRequest{
				Text:     req.Text,
				Provider: provider,
				Voice:    voice,
				Audio:    result.Audio,
			}); err != nil {
				return nil, err
			}
		}
		source = queue.Bytes(result.Audio)
	}

	submit := queue.Submit{
		Source:      source,
		Text:        req.Text,
		SubmittedBy: req.SubmittedBy,
	}
	var (
		job queue.Job
		err error
	)
	if req.SkipQueue {
		job, err = e.queue.EnqueueNext(submit)
	} else {
		job, err = e.queue.Enqueue(submit)
	}
	if err != nil {
		return nil, err
	}
	receipt.Job = job
	return receipt, nil
}

// Synthesize runs the router directly, bypassing cache and queue. The
// CLI's --output mode uses it to write audio to a file.
func (e *Engine) Synthesize(ctx context.Context, provider, voice, text string) (*tts.Result, error) {
	if provider == "" {
		provider = e.opts.DefaultProvider
	}
	if voice == "" {
		voice = e.opts.DefaultVoice
	}
	return e.router.Synthesize(ctx, provider, tts.Request{Text: text, Voice: voice})
}
