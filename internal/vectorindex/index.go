// Package vectorindex holds entity embeddings in memory and answers
// nearest-neighbor queries by exact cosine similarity over unit vectors.
package vectorindex

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// parallelThreshold is the candidate count above which Query splits the
// scan across goroutine shards instead of scanning inline. Below it the
// goroutine setup cost outweighs the saving.
const parallelThreshold = 2000

// Entry is a single (id, vector) pair, used to seed the index from
// storage on Engine open.
type Entry struct {
	ID     string
	Vector []float32
}

// Result is a scored match returned by Query, in descending score order.
type Result struct {
	ID    string
	Score float64
}

// Index is a single-owner, in-memory linear-scan vector index. It holds
// no reference to storage; the caller is responsible for keeping Insert
// and Delete in step with entity row writes/deletes (the Engine in package
// mama inserts a vector after its entity row has been committed, outside
// the storage transaction).
type Index struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// New returns an empty index.
func New() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Load replaces the index contents with entries, used to rebuild the
// index from storage on process start (spec allows rebuild-on-open in
// place of a persisted index).
func (idx *Index) Load(entries []Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = make(map[string][]float32, len(entries))
	for _, e := range entries {
		idx.vectors[e.ID] = e.Vector
	}
}

// Insert adds or replaces the vector for id.
func (idx *Index) Insert(id string, vector []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors[id] = vector
}

// Delete removes id from the index. A no-op if id is absent.
func (idx *Index) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, id)
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Query returns the top-k entity ids with cosine similarity >= tau
// against query, excluding any id present in exclude. Results are sorted
// by descending score; ties break by id for determinism.
func (idx *Index) Query(ctx context.Context, query []float32, k int, tau float64, exclude map[string]struct{}) ([]Result, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	candidates := make([]Entry, 0, len(idx.vectors))
	for id, v := range idx.vectors {
		if _, skip := exclude[id]; skip {
			continue
		}
		candidates = append(candidates, Entry{ID: id, Vector: v})
	}
	idx.mu.RUnlock()

	var scored []Result
	if len(candidates) >= parallelThreshold {
		var err error
		scored, err = scanParallel(ctx, candidates, query, tau)
		if err != nil {
			return nil, err
		}
	} else {
		scored = scanSerial(candidates, query, tau)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func scanSerial(candidates []Entry, query []float32, tau float64) []Result {
	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		sim := cosineSimilarity(query, c.Vector)
		if sim >= tau {
			out = append(out, Result{ID: c.ID, Score: sim})
		}
	}
	return out
}

// scanParallel splits candidates across min(GOMAXPROCS, len(candidates))
// goroutine shards via errgroup, a realistic Go substitute for the "SIMD for
// N<=10^5" guidance the linear-scan contract allows.
func scanParallel(ctx context.Context, candidates []Entry, query []float32, tau float64) ([]Result, error) {
	shards := runtime.GOMAXPROCS(0)
	if shards > len(candidates) {
		shards = len(candidates)
	}
	if shards < 1 {
		shards = 1
	}
	chunk := (len(candidates) + shards - 1) / shards

	results := make([][]Result, shards)
	g, gCtx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		start, end := s*chunk, (s+1)*chunk
		if start >= len(candidates) {
			break
		}
		if end > len(candidates) {
			end = len(candidates)
		}
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}
			results[start/chunk] = scanSerial(candidates[start:end], query, tau)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Result
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

// cosineSimilarity computes dot(a,b)/(|a||b|), returning 0 for empty or
// mismatched-length inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		normA += da * da
		normB += db * db
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
