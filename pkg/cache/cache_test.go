package cache_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/cache"
	"github.com/haivivi/speakd/pkg/kv"
)

// vecEmbedder maps exact texts to preset vectors and counts calls.
// Unknown texts get an orthogonal fallback vector so they never match
// anything by accident.
type vecEmbedder struct {
	dim   int
	vecs  map[string][]float32
	calls atomic.Int64
}

func (e *vecEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	v := make([]float32, e.dim)
	v[e.dim-1] = 1
	return v, nil
}

func (e *vecEmbedder) Dimension() int { return e.dim }

func newTestCache(t *testing.T, emb *vecEmbedder) (*cache.Cache, kv.Store, *artifact.Local) {
	t.Helper()
	store, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	artifacts, err := artifact.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c, err := cache.Open(context.Background(), cache.Options{
		KV:        store,
		Artifacts: artifacts,
		Embedder:  emb,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, store, artifacts
}

func TestExactHitSkipsEmbedder(t *testing.T) {
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"deploy complete": {1, 0, 0},
	}}
	c, _, _ := newTestCache(t, emb)
	ctx := context.Background()

	if _, err := c.Store(ctx, cache.StoreRequest{
		Text: "deploy complete", Provider: "system", Audio: []byte("mp3"),
	}); err != nil {
		t.Fatal(err)
	}
	storeCalls := emb.calls.Load()

	// Same text with different surrounding whitespace normalizes to the
	// same exact key.
	hit, err := c.Lookup(ctx, cache.LookupRequest{
		Text: "  deploy   complete ", Provider: "system", Threshold: 0.95,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil || !hit.Exact || hit.Similarity != 1 {
		t.Fatalf("hit = %+v, want exact with similarity 1", hit)
	}
	if got := emb.calls.Load(); got != storeCalls {
		t.Fatalf("embedder called %d times during exact lookup, want 0", got-storeCalls)
	}
}

func TestSemanticHitAboveThreshold(t *testing.T) {
	// cos(v1, v2) ≈ 0.948
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"Deploy complete":     {1, 0, 0},
		"Deployment complete": {0.948, 0.316, 0},
	}}
	c, _, artifacts := newTestCache(t, emb)
	ctx := context.Background()

	e, err := c.Store(ctx, cache.StoreRequest{
		Text: "Deploy complete", Provider: "system", Audio: []byte("audio-1"),
	})
	if err != nil {
		t.Fatal(err)
	}

	hit, err := c.Lookup(ctx, cache.LookupRequest{
		Text: "Deployment complete", Provider: "system", Threshold: 0.90,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil {
		t.Fatal("want semantic hit, got miss")
	}
	if hit.Exact {
		t.Fatal("hit took the exact path for a paraphrase")
	}
	if hit.Similarity < 0.90 {
		t.Fatalf("similarity = %v, want >= 0.90", hit.Similarity)
	}
	if hit.ArtifactRef != e.ArtifactRef {
		t.Fatalf("hit references %s, want %s", hit.ArtifactRef, e.ArtifactRef)
	}
	if hit.MatchedText != "Deploy complete" {
		t.Fatalf("matched text = %q", hit.MatchedText)
	}

	audio, err := artifacts.Get(ctx, hit.ArtifactRef)
	if err != nil || string(audio) != "audio-1" {
		t.Fatalf("artifact = %q, %v", audio, err)
	}
}

func TestMissBelowThreshold(t *testing.T) {
	// True similarity ≈ 0.948, threshold 0.99.
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"Deploy complete":     {1, 0, 0},
		"Deployment complete": {0.948, 0.316, 0},
	}}
	c, _, _ := newTestCache(t, emb)
	ctx := context.Background()

	if _, err := c.Store(ctx, cache.StoreRequest{
		Text: "Deploy complete", Provider: "system", Audio: []byte("x"),
	}); err != nil {
		t.Fatal(err)
	}
	hit, err := c.Lookup(ctx, cache.LookupRequest{
		Text: "Deployment complete", Provider: "system", Threshold: 0.99,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Fatalf("want miss at threshold 0.99, got hit with similarity %v", hit.Similarity)
	}
}

func TestVoiceAndProviderIsolation(t *testing.T) {
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"hello": {1, 0, 0},
	}}
	c, _, _ := newTestCache(t, emb)
	ctx := context.Background()

	if _, err := c.Store(ctx, cache.StoreRequest{
		Text: "hello", Provider: "openai", Voice: "nova", Audio: []byte("x"),
	}); err != nil {
		t.Fatal(err)
	}

	// Identical text, identical embedding, different voice: no hit on
	// either path. A match in the wrong voice is worse than a miss.
	hit, err := c.Lookup(ctx, cache.LookupRequest{
		Text: "hello", Provider: "openai", Voice: "onyx", Threshold: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Fatalf("cross-voice lookup hit: %+v", hit)
	}

	hit, err = c.Lookup(ctx, cache.LookupRequest{
		Text: "hello", Provider: "system", Voice: "nova", Threshold: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Fatalf("cross-provider lookup hit: %+v", hit)
	}
}

func TestUncacheableText(t *testing.T) {
	emb := &vecEmbedder{dim: 3}
	c, _, _ := newTestCache(t, emb)
	ctx := context.Background()
	long := strings.Repeat("word ", 200)

	if _, err := c.Lookup(ctx, cache.LookupRequest{Text: long, Provider: "system"}); !errors.Is(err, cache.ErrUncacheable) {
		t.Fatalf("Lookup(long) error = %v, want ErrUncacheable", err)
	}
	if _, err := c.Store(ctx, cache.StoreRequest{Text: long, Provider: "system", Audio: []byte("x")}); !errors.Is(err, cache.ErrUncacheable) {
		t.Fatalf("Store(long) error = %v, want ErrUncacheable", err)
	}
	if _, err := c.Lookup(ctx, cache.LookupRequest{Text: "   ", Provider: "system"}); !errors.Is(err, cache.ErrEmptyText) {
		t.Fatalf("Lookup(blank) error = %v, want ErrEmptyText", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"restart me": {0, 1, 0},
	}}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	artifacts, err := artifact.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c1, err := cache.Open(ctx, cache.Options{KV: store, Artifacts: artifacts, Embedder: emb})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c1.Store(ctx, cache.StoreRequest{
		Text: "restart me", Provider: "system", Audio: []byte("persisted"),
	}); err != nil {
		t.Fatal(err)
	}

	// Reopen over the same stores, as a daemon restart would.
	c2, err := cache.Open(ctx, cache.Options{KV: store, Artifacts: artifacts, Embedder: emb})
	if err != nil {
		t.Fatal(err)
	}
	embedCalls := emb.calls.Load()
	hit, err := c2.Lookup(ctx, cache.LookupRequest{
		Text: "restart me", Provider: "system", Threshold: 0.95,
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil || hit.Similarity != 1 {
		t.Fatalf("post-restart lookup = %+v, want exact hit", hit)
	}
	// The rebuild came from persisted embeddings, and the exact hit
	// needed none either.
	if got := emb.calls.Load(); got != embedCalls {
		t.Fatalf("reopen lookup called embedder %d times", got-embedCalls)
	}
}

func TestOpenFailsOnMissingArtifact(t *testing.T) {
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"doomed": {0, 0, 1},
	}}
	store, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	artifacts, err := artifact.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c, err := cache.Open(ctx, cache.Options{KV: store, Artifacts: artifacts, Embedder: emb})
	if err != nil {
		t.Fatal(err)
	}
	e, err := c.Store(ctx, cache.StoreRequest{Text: "doomed", Provider: "system", Audio: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	// Simulate external damage: the audio file disappears.
	if err := artifacts.Delete(ctx, e.ArtifactRef); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Open(ctx, cache.Options{KV: store, Artifacts: artifacts, Embedder: emb}); !errors.Is(err, cache.ErrCorrupted) {
		t.Fatalf("Open over damaged state: error = %v, want ErrCorrupted", err)
	}
}

func TestPurge(t *testing.T) {
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
	}}
	c, _, artifacts := newTestCache(t, emb)
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		if _, err := c.Store(ctx, cache.StoreRequest{Text: text, Provider: "system", Audio: []byte("audio-" + text)}); err != nil {
			t.Fatal(err)
		}
	}
	if got := c.Stats().Entries; got != 2 {
		t.Fatalf("entries = %d, want 2", got)
	}

	if err := c.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Fatalf("entries after purge = %d, want 0", got)
	}
	hit, err := c.Lookup(ctx, cache.LookupRequest{Text: "a", Provider: "system", Threshold: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Fatalf("lookup after purge hit: %+v", hit)
	}
	for range artifacts.Refs(ctx) {
		t.Fatal("artifacts remain after purge")
	}
}

func TestDedupSameAudioBytes(t *testing.T) {
	emb := &vecEmbedder{dim: 3, vecs: map[string][]float32{
		"one": {1, 0, 0},
		"two": {0, 1, 0},
	}}
	c, _, _ := newTestCache(t, emb)
	ctx := context.Background()

	e1, err := c.Store(ctx, cache.StoreRequest{Text: "one", Provider: "system", Audio: []byte("same bytes")})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := c.Store(ctx, cache.StoreRequest{Text: "two", Provider: "system", Audio: []byte("same bytes")})
	if err != nil {
		t.Fatal(err)
	}
	if e1.ArtifactRef != e2.ArtifactRef {
		t.Fatalf("identical audio stored under two refs: %s vs %s", e1.ArtifactRef, e2.ArtifactRef)
	}
}
