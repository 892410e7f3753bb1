package vecstore

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Flat is an exact brute-force cosine similarity index with a fixed
// dimensionality. Vectors are stored L2-normalized, so similarity reduces
// to a dot product at query time.
//
// It follows single-writer/multi-reader discipline: Insert, BatchInsert and
// Delete take the write lock; Search takes the read lock. It is safe for
// concurrent use.
type Flat struct {
	dim int

	mu   sync.RWMutex
	ids  []string    // slot -> id, insertion order preserved across updates
	vecs [][]float32 // slot -> normalized vector
	slot map[string]int
}

var _ Index = (*Flat)(nil)

// NewFlat creates an empty index for vectors of the given dimensionality.
// Panics if dim is not positive; the dimension comes from the embedder and
// a non-positive value is a programming error, not a runtime condition.
func NewFlat(dim int) *Flat {
	if dim <= 0 {
		panic(fmt.Sprintf("vecstore: invalid dimension %d", dim))
	}
	return &Flat{
		dim:  dim,
		slot: make(map[string]int),
	}
}

// Dimension returns the fixed vector dimensionality of the index.
func (f *Flat) Dimension() int { return f.dim }

func (f *Flat) Insert(id string, vector []float32) error {
	nv, err := f.normalized(vector)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertLocked(id, nv)
	return nil
}

func (f *Flat) BatchInsert(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("vecstore: BatchInsert length mismatch: %d ids, %d vectors", len(ids), len(vectors))
	}
	// Normalize outside the lock; reject the whole batch before any write
	// so readers never see a partial batch followed by an error.
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		nv, err := f.normalized(v)
		if err != nil {
			return fmt.Errorf("vecstore: batch item %d (%s): %w", i, ids[i], err)
		}
		normalized[i] = nv
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range ids {
		f.insertLocked(id, normalized[i])
	}
	return nil
}

func (f *Flat) insertLocked(id string, nv []float32) {
	if s, ok := f.slot[id]; ok {
		f.vecs[s] = nv
		return
	}
	f.slot[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, nv)
}

func (f *Flat) Search(query []float32, topK int) ([]Match, error) {
	nq, err := f.normalized(query)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.ids) == 0 || topK <= 0 {
		return nil, nil
	}

	matches := make([]Match, len(f.ids))
	for s, vec := range f.vecs {
		matches[s] = Match{ID: f.ids[s], Similarity: dot(nq, vec)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *Flat) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.slot[id]
	if !ok {
		return nil
	}
	last := len(f.ids) - 1
	if s != last {
		f.ids[s] = f.ids[last]
		f.vecs[s] = f.vecs[last]
		f.slot[f.ids[s]] = s
	}
	f.ids = f.ids[:last]
	f.vecs = f.vecs[:last]
	delete(f.slot, id)
	return nil
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// normalized validates dimensionality and returns an L2-normalized copy.
func (f *Flat) normalized(v []float32) ([]float32, error) {
	if len(v) != f.dim {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(v), f.dim)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return nil, ErrZeroVector
	}
	inv := float32(1 / math.Sqrt(norm))
	nv := make([]float32, len(v))
	for i, x := range v {
		nv[i] = x * inv
	}
	return nv, nil
}

// dot computes the inner product of two normalized vectors, which equals
// their cosine similarity. Accumulates in float64 and clamps the result to
// [-1, 1] to absorb floating point drift.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if sum > 1 {
		sum = 1
	}
	if sum < -1 {
		sum = -1
	}
	return float32(sum)
}
