// Package kv provides the durable key-value layer under the speech cache.
// Keys are hierarchical string slices (e.g., ["entry", "<hash>"]) encoded
// with a '/' separator; segments must not contain '/'.
//
// The only production backend is BadgerDB. For tests, open Badger in
// in-memory mode; it exercises the same engine without touching disk.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// separator joins key segments in the encoded representation.
const separator = '/'

// Key is a hierarchical path represented as a slice of string segments.
type Key []string

// String returns the encoded form, e.g. "entry/3fe0a1". Used both for
// storage encoding and for logs.
func (k Key) String() string {
	return strings.Join(k, string(separator))
}

func (k Key) encode() []byte {
	return []byte(k.String())
}

func decodeKey(b []byte) Key {
	parts := strings.Split(string(b), string(separator))
	return Key(parts)
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries whose key starts with the given prefix
	// segments, in lexicographic order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchDelete atomically removes multiple keys.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases any resources held by the store.
	Close() error
}
