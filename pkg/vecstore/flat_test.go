package vecstore

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

func TestFlatInsertAndSearch(t *testing.T) {
	idx := NewFlat(4)

	if err := idx.Insert("a", []float32{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert("b", []float32{0, 1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert("c", []float32{0.9, 0.1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Search([]float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("top match = %q, want 'a'", matches[0].ID)
	}
	if matches[0].Similarity < 0.999 {
		t.Errorf("top similarity = %v, want ~1.0", matches[0].Similarity)
	}
	if matches[1].ID != "c" {
		t.Errorf("second match = %q, want 'c'", matches[1].ID)
	}
	if matches[1].Similarity >= matches[0].Similarity {
		t.Errorf("results not in descending similarity order: %v", matches)
	}
}

func TestFlatSimilarityIsCosine(t *testing.T) {
	idx := NewFlat(2)
	// Unnormalized insert; the index normalizes internally.
	if err := idx.Insert("diag", []float32{3, 3}); err != nil {
		t.Fatal(err)
	}
	matches, err := idx.Search([]float32{5, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := float32(math.Sqrt2 / 2) // cos 45°
	if diff := matches[0].Similarity - want; diff > 1e-5 || diff < -1e-5 {
		t.Errorf("similarity = %v, want %v", matches[0].Similarity, want)
	}
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := NewFlat(3)
	if err := idx.Insert("a", []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Insert error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := idx.Search([]float32{1, 0, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search error = %v, want ErrDimensionMismatch", err)
	}
}

func TestFlatZeroVector(t *testing.T) {
	idx := NewFlat(3)
	if err := idx.Insert("z", []float32{0, 0, 0}); !errors.Is(err, ErrZeroVector) {
		t.Errorf("Insert error = %v, want ErrZeroVector", err)
	}
}

func TestFlatBatchInsert(t *testing.T) {
	idx := NewFlat(3)
	ids := []string{"a", "b", "c"}
	vecs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	if err := idx.BatchInsert(ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 3 {
		t.Errorf("Len = %d, want 3", idx.Len())
	}

	// Mismatched lengths and invalid items reject the whole batch.
	if err := idx.BatchInsert([]string{"x"}, vecs); err == nil {
		t.Error("expected length mismatch error")
	}
	err := idx.BatchInsert([]string{"x", "y"}, [][]float32{{1, 0, 0}, {0, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("batch error = %v, want ErrDimensionMismatch", err)
	}
	if idx.Len() != 3 {
		t.Errorf("Len after rejected batch = %d, want 3", idx.Len())
	}
}

func TestFlatUpdateExisting(t *testing.T) {
	idx := NewFlat(2)
	_ = idx.Insert("a", []float32{1, 0})
	_ = idx.Insert("a", []float32{0, 1})
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}
	matches, err := idx.Search([]float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Similarity < 0.999 {
		t.Errorf("updated vector not in effect: similarity = %v", matches[0].Similarity)
	}
}

func TestFlatDelete(t *testing.T) {
	idx := NewFlat(2)
	_ = idx.Insert("a", []float32{1, 0})
	_ = idx.Insert("b", []float32{0, 1})
	if err := idx.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len after delete = %d, want 1", idx.Len())
	}
	matches, err := idx.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.ID == "a" {
			t.Error("deleted id still returned by Search")
		}
	}
	// Delete nonexistent should not error.
	if err := idx.Delete("nonexistent"); err != nil {
		t.Fatal(err)
	}
}

func TestFlatSearchEmpty(t *testing.T) {
	idx := NewFlat(3)
	matches, err := idx.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if matches != nil {
		t.Errorf("expected nil for empty index, got %v", matches)
	}
}

func TestFlatConcurrentReadWrite(t *testing.T) {
	idx := NewFlat(8)
	vec := func(seed int) []float32 {
		v := make([]float32, 8)
		for i := range v {
			v[i] = float32((seed+i)%7) + 1
		}
		return v
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if err := idx.Insert(id, vec(w*100+i)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				matches, err := idx.Search(vec(i), 3)
				if err != nil {
					t.Error(err)
					return
				}
				// Every observed vector must be whole: similarity of a
				// torn read would fall outside the valid range.
				for _, m := range matches {
					if m.Similarity < -1 || m.Similarity > 1 {
						t.Errorf("similarity out of range: %v", m.Similarity)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if idx.Len() != 400 {
		t.Errorf("Len = %d, want 400", idx.Len())
	}
}
