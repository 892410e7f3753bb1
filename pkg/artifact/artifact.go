// Package artifact provides content-addressed storage for synthesized audio.
//
// Every artifact is addressed by the sha256 hex digest of its bytes, so
// identical audio produced for different source texts is stored once. The
// [Store] interface abstracts the backend: [Local] keeps artifacts as files
// under a root directory, [S3] keeps them in an S3-compatible bucket.
//
// Writes must be atomic: a reader never observes a partially-written
// artifact. Local achieves this with a temp-file-and-rename; S3 object
// puts are atomic by the service's own semantics.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"iter"
)

var (
	// ErrNotFound is returned when the requested ref is not in the store.
	ErrNotFound = errors.New("artifact: not found")

	// ErrBadRef is returned for refs that are not lowercase sha256 hex.
	ErrBadRef = errors.New("artifact: malformed ref")
)

// Store is the interface for content-addressed artifact storage.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data and returns its ref. Storing the same bytes twice
	// is a no-op returning the same ref.
	Put(ctx context.Context, data []byte) (ref string, err error)

	// Get returns the bytes for ref. Returns ErrNotFound if absent.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Exists reports whether ref is present.
	Exists(ctx context.Context, ref string) (bool, error)

	// Delete removes ref. No error if the ref does not exist.
	Delete(ctx context.Context, ref string) error

	// Refs iterates over all stored refs, in no particular order. Used to
	// cross-validate the store against cache entries on startup.
	Refs(ctx context.Context) iter.Seq2[string, error]
}

// Ref computes the content address of data: the sha256 hex digest.
func Ref(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// checkRef validates that ref looks like a sha256 hex digest before it is
// used as a filename or object key.
func checkRef(ref string) error {
	if len(ref) != sha256.Size*2 {
		return ErrBadRef
	}
	for _, c := range ref {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return ErrBadRef
		}
	}
	return nil
}
