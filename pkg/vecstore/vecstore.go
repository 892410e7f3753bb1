// Package vecstore provides nearest-neighbor search over dense float32
// vectors, used as the similarity side of the semantic speech cache.
//
// The [Index] interface defines the contract for vector storage and search.
// The built-in implementation is [Flat], an exact brute-force cosine index:
// cache workloads are thousands of short phrases, not millions of documents,
// so exact search is both simpler and strictly more accurate than ANN.
//
// Vectors are L2-normalized once on insert and once per query, inside the
// index. Callers never normalize; this keeps insert-time and query-time
// normalization consistent by construction.
package vecstore

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimensionality the index was created with.
	ErrDimensionMismatch = errors.New("vecstore: vector dimension mismatch")

	// ErrZeroVector is returned for vectors with zero norm, which have no
	// direction and cannot participate in cosine similarity.
	ErrZeroVector = errors.New("vecstore: zero vector")
)

// Index is the interface for nearest-neighbor search over dense float32
// vectors.
//
// All implementations must be safe for concurrent use. Writers are
// serialized; readers may proceed concurrently and never observe a
// partially-inserted vector.
type Index interface {
	// Insert adds or updates a vector with the given ID.
	Insert(id string, vector []float32) error

	// BatchInsert adds or updates multiple vectors at once.
	// ids and vectors must have the same length.
	BatchInsert(ids []string, vectors [][]float32) error

	// Search returns the top-k most similar vectors to the query,
	// ordered by descending similarity (best first).
	Search(query []float32, topK int) ([]Match, error)

	// Delete removes a vector by ID. No error if ID does not exist.
	Delete(id string) error

	// Len returns the number of vectors in the index.
	Len() int
}

// Match is a single result from a similarity search.
type Match struct {
	// ID is the identifier of the matched vector.
	ID string

	// Similarity is the cosine similarity between the query and the
	// matched vector, in [-1, 1]. Higher values indicate closer meaning.
	Similarity float32
}
