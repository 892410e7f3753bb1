// Package cache is the semantic speech cache: it answers "do I already
// have audio for text that means roughly this?" before anyone pays for
// synthesis.
//
// Two match paths exist. The exact path hashes the normalized text
// together with the provider and voice; a hit there costs one map probe
// and never touches the embedder. The semantic path embeds the text and
// searches a cosine index for the nearest stored phrase, accepting it
// only when the similarity clears the caller's threshold and the stored
// entry was synthesized with the same provider and voice, so a match
// never comes back in the wrong voice.
//
// Entries persist in a key-value store with their embeddings inline, and
// audio bytes live in a content-addressed artifact store. [Open] rebuilds
// the in-memory index from the persisted entries, so a restart loses
// nothing and never re-embeds.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/embed"
	"github.com/haivivi/speakd/pkg/kv"
	"github.com/haivivi/speakd/pkg/vecstore"
)

var (
	// ErrEmptyText is returned for requests with no text after
	// normalization.
	ErrEmptyText = errors.New("cache: empty text")

	// ErrUncacheable is returned when the text exceeds the cache's
	// length limit. The caller should synthesize without the cache.
	ErrUncacheable = errors.New("cache: text too long to cache")

	// ErrCorrupted means the persisted cache state is inconsistent: an
	// entry cannot be decoded, or it references an artifact that no
	// longer exists. Serving from such a cache risks playing the wrong
	// audio, so Open fails instead.
	ErrCorrupted = errors.New("cache: persisted state corrupted")
)

// DefaultMaxTextLen bounds the length of cacheable text, in runes.
// Longer texts (document reads, not notification phrases) gain little
// from semantic matching and bloat the index.
const DefaultMaxTextLen = 500

// searchK is how many nearest neighbors one lookup scans. Candidates
// beyond the first matter only when closer ones carry a different
// provider or voice.
const searchK = 10

// Entry is one cached phrase. Entries are created on a cache miss after
// successful synthesis and never mutated.
type Entry struct {
	// Key is the exact-dedupe key: sha256 of provider, voice and
	// normalized text.
	Key string `msgpack:"key"`

	// Text is the original text, kept for match tracing.
	Text string `msgpack:"text"`

	Provider string `msgpack:"provider"`
	Voice    string `msgpack:"voice"`

	// ArtifactRef addresses the audio bytes in the artifact store.
	ArtifactRef string `msgpack:"artifact_ref"`

	// Embedding is persisted so the index rebuilds on open without
	// calling the embedder again.
	Embedding []float32 `msgpack:"embedding"`

	// CreatedAt is unix milliseconds. No eviction reads it today.
	CreatedAt int64 `msgpack:"created_at"`
}

// Hit is a successful lookup.
type Hit struct {
	// ArtifactRef addresses the matched audio.
	ArtifactRef string

	// MatchedText is the stored text that matched; on a semantic hit it
	// differs from the query.
	MatchedText string

	// Similarity is the cosine similarity of the match. Exact hits
	// report 1.0.
	Similarity float32

	// Exact reports whether the exact path matched (no embedding was
	// computed).
	Exact bool
}

// LookupRequest asks whether cached audio exists for a text.
type LookupRequest struct {
	Text     string
	Provider string
	Voice    string

	// Threshold is the minimum cosine similarity a semantic candidate
	// must reach. Per request, not fixed at cache construction.
	Threshold float32
}

// StoreRequest records freshly synthesized audio.
type StoreRequest struct {
	Text     string
	Provider string
	Voice    string
	Audio    []byte
}

// Options configures Open.
type Options struct {
	// KV stores entries under "entry/<key>". Required.
	KV kv.Store

	// Artifacts stores the audio bytes. Required.
	Artifacts artifact.Store

	// Embedder computes vectors for the semantic path. Required.
	Embedder embed.Embedder

	// MaxTextLen bounds cacheable text in runes. Zero means
	// DefaultMaxTextLen; negative disables the limit.
	MaxTextLen int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats describes the cache contents for status reporting.
type Stats struct {
	Entries   int `json:"entries"`
	Dimension int `json:"dimension"`

	// OrphanArtifacts counts artifacts present in the store but not
	// referenced by any entry, detected at open time.
	OrphanArtifacts int `json:"orphan_artifacts"`
}

var entryPrefix = kv.Key{"entry"}

// Cache composes the vector index, the entry store, the artifact store
// and the embedder. Safe for concurrent use: Store holds the write lock
// across index insert and entry write, so a concurrent Lookup sees a new
// entry completely or not at all.
type Cache struct {
	store      kv.Store
	artifacts  artifact.Store
	embedder   embed.Embedder
	index      *vecstore.Flat
	maxTextLen int
	log        *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry // exact key -> entry
	orphans int
}

// Open loads the persisted entries, rebuilds the vector index from their
// embeddings and cross-validates the artifact store. An undecodable
// entry, a dimension mismatch or a missing artifact is ErrCorrupted:
// the daemon must fail startup rather than answer from a cache that
// might play the wrong audio. Orphaned artifacts are counted and
// logged, not fatal.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	if opts.KV == nil || opts.Artifacts == nil || opts.Embedder == nil {
		return nil, errors.New("cache: KV, Artifacts and Embedder are all required")
	}
	maxLen := opts.MaxTextLen
	if maxLen == 0 {
		maxLen = DefaultMaxTextLen
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		store:      opts.KV,
		artifacts:  opts.Artifacts,
		embedder:   opts.Embedder,
		index:      vecstore.NewFlat(opts.Embedder.Dimension()),
		maxTextLen: maxLen,
		log:        logger,
		entries:    make(map[string]*Entry),
	}

	referenced := make(map[string]bool)
	for item, err := range opts.KV.List(ctx, entryPrefix) {
		if err != nil {
			return nil, fmt.Errorf("cache: reading entries: %w", err)
		}
		var e Entry
		if err := msgpack.Unmarshal(item.Value, &e); err != nil {
			return nil, fmt.Errorf("%w: entry %s: %v", ErrCorrupted, item.Key, err)
		}
		ok, err := opts.Artifacts.Exists(ctx, e.ArtifactRef)
		if err != nil {
			return nil, fmt.Errorf("cache: checking artifact %s: %w", e.ArtifactRef, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: entry %q references missing artifact %s", ErrCorrupted, e.Text, e.ArtifactRef)
		}
		if err := c.index.Insert(e.Key, e.Embedding); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrCorrupted, e.Text, err)
		}
		c.entries[e.Key] = &e
		referenced[e.ArtifactRef] = true
	}

	for ref, err := range opts.Artifacts.Refs(ctx) {
		if err != nil {
			return nil, fmt.Errorf("cache: scanning artifacts: %w", err)
		}
		if !referenced[ref] {
			c.orphans++
			logger.Warn("cache: orphaned artifact", "ref", ref)
		}
	}

	logger.Info("cache opened",
		"entries", len(c.entries),
		"dimension", c.index.Dimension(),
		"orphan_artifacts", c.orphans)
	return c, nil
}

// Normalize collapses runs of whitespace to single spaces and trims the
// ends. "Deploy  complete " and "Deploy complete" share one cache entry;
// casing is preserved because some voices pronounce acronyms by case.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ExactKey computes the exact-dedupe key for a provider, voice and text.
// Provider and voice participate so identical text in a different voice
// is a different entry.
func ExactKey(provider, voice, text string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// checkText validates a request text against the cacheability rules.
func (c *Cache) checkText(text string) error {
	n := Normalize(text)
	if n == "" {
		return ErrEmptyText
	}
	if c.maxTextLen > 0 && len([]rune(n)) > c.maxTextLen {
		return fmt.Errorf("%w: %d runes, limit %d", ErrUncacheable, len([]rune(n)), c.maxTextLen)
	}
	return nil
}

// Lookup resolves a text against the cache. A nil Hit with a nil error
// is a miss. The exact path runs first and never calls the embedder;
// only on an exact miss is the text embedded and the index searched.
func (c *Cache) Lookup(ctx context.Context, req LookupRequest) (*Hit, error) {
	if err := c.checkText(req.Text); err != nil {
		return nil, err
	}

	key := ExactKey(req.Provider, req.Voice, req.Text)
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return &Hit{
			ArtifactRef: e.ArtifactRef,
			MatchedText: e.Text,
			Similarity:  1,
			Exact:       true,
		}, nil
	}

	vec, err := c.embedder.Embed(ctx, Normalize(req.Text))
	if err != nil {
		return nil, fmt.Errorf("cache: embedding query: %w", err)
	}
	matches, err := c.index.Search(vec, searchK)
	if err != nil {
		return nil, fmt.Errorf("cache: searching index: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range matches {
		if m.Similarity < req.Threshold {
			break // matches are ordered, nothing further can qualify
		}
		e, ok := c.entries[m.ID]
		if !ok || e.Provider != req.Provider || e.Voice != req.Voice {
			continue
		}
		c.log.Debug("cache: semantic hit",
			"query", req.Text,
			"matched", e.Text,
			"similarity", m.Similarity)
		return &Hit{
			ArtifactRef: e.ArtifactRef,
			MatchedText: e.Text,
			Similarity:  m.Similarity,
		}, nil
	}
	return nil, nil
}

// Store records freshly synthesized audio: the bytes go to the artifact
// store, the text is embedded, and the entry plus its index vector
// become visible under one write lock. The embed call usually costs
// nothing because the preceding Lookup warmed the embedder's LRU.
func (c *Cache) Store(ctx context.Context, req StoreRequest) (*Entry, error) {
	if err := c.checkText(req.Text); err != nil {
		return nil, err
	}
	if len(req.Audio) == 0 {
		return nil, errors.New("cache: empty audio")
	}

	ref, err := c.artifacts.Put(ctx, req.Audio)
	if err != nil {
		return nil, fmt.Errorf("cache: storing audio: %w", err)
	}
	vec, err := c.embedder.Embed(ctx, Normalize(req.Text))
	if err != nil {
		return nil, fmt.Errorf("cache: embedding text: %w", err)
	}

	e := &Entry{
		Key:         ExactKey(req.Provider, req.Voice, req.Text),
		Text:        req.Text,
		Provider:    req.Provider,
		Voice:       req.Voice,
		ArtifactRef: ref,
		Embedding:   vec,
		CreatedAt:   time.Now().UnixMilli(),
	}
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cache: encoding entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.index.Insert(e.Key, vec); err != nil {
		return nil, fmt.Errorf("cache: indexing entry: %w", err)
	}
	if err := c.store.Set(ctx, append(entryPrefix, e.Key), raw); err != nil {
		// Undo the index insert so memory and disk stay in step.
		_ = c.index.Delete(e.Key)
		return nil, fmt.Errorf("cache: persisting entry: %w", err)
	}
	c.entries[e.Key] = e
	return e, nil
}

// Stats reports the cache contents.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:         len(c.entries),
		Dimension:       c.index.Dimension(),
		OrphanArtifacts: c.orphans,
	}
}

// Purge drops every entry, index vector and artifact. This is the
// manual remediation for unbounded growth; nothing triggers it
// automatically.
func (c *Cache) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []kv.Key
	for k := range c.entries {
		keys = append(keys, append(entryPrefix, k))
	}
	if err := c.store.BatchDelete(ctx, keys); err != nil {
		return fmt.Errorf("cache: purging entries: %w", err)
	}
	for _, e := range c.entries {
		if err := c.artifacts.Delete(ctx, e.ArtifactRef); err != nil {
			return fmt.Errorf("cache: purging artifact %s: %w", e.ArtifactRef, err)
		}
		_ = c.index.Delete(e.Key)
	}
	c.entries = make(map[string]*Entry)
	c.orphans = 0
	c.log.Info("cache purged")
	return nil
}
