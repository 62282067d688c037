package vectorindex_test

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/vectorindex"
)

func TestQuery_ReturnsTopKAboveThreshold(t *testing.T) {
	idx := vectorindex.New()
	idx.Insert("a", []float32{1, 0})
	idx.Insert("b", []float32{0.9, 0.1})
	idx.Insert("c", []float32{0, 1})

	results, err := idx.Query(context.Background(), []float32{1, 0}, 2, 0.5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "b", results[1].ID)
}

func TestQuery_ExcludesIDs(t *testing.T) {
	idx := vectorindex.New()
	idx.Insert("a", []float32{1, 0})
	idx.Insert("b", []float32{1, 0})

	results, err := idx.Query(context.Background(), []float32{1, 0}, 5, 0.5, map[string]struct{}{"a": {}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestQuery_FiltersBelowThreshold(t *testing.T) {
	idx := vectorindex.New()
	idx.Insert("a", []float32{1, 0})
	idx.Insert("b", []float32{0, 1})

	results, err := idx.Query(context.Background(), []float32{1, 0}, 5, 0.9, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestDelete_RemovesFromResults(t *testing.T) {
	idx := vectorindex.New()
	idx.Insert("a", []float32{1, 0})
	idx.Delete("a")

	results, err := idx.Query(context.Background(), []float32{1, 0}, 5, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLoad_ReplacesContents(t *testing.T) {
	idx := vectorindex.New()
	idx.Insert("stale", []float32{1, 0})

	idx.Load([]vectorindex.Entry{{ID: "fresh", Vector: []float32{0, 1}}})
	assert.Equal(t, 1, idx.Len())

	results, err := idx.Query(context.Background(), []float32{0, 1}, 5, 0.5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fresh", results[0].ID)
}

func TestQuery_ParallelMatchesSerialScan(t *testing.T) {
	idx := vectorindex.New()
	entries := make([]vectorindex.Entry, 3000)
	for i := range entries {
		v := []float32{float32(i % 7), float32((i + 3) % 5)}
		entries[i] = vectorindex.Entry{ID: fmt.Sprintf("e%d", i), Vector: v}
	}
	idx.Load(entries)

	results, err := idx.Query(context.Background(), []float32{1, 0}, 10, 0.0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	// The same entries in chunks of 1000 stay below the parallel threshold
	// and go through the serial scan; their merged top 10 must match.
	var want []vectorindex.Result
	for start := 0; start < len(entries); start += 1000 {
		chunk := vectorindex.New()
		chunk.Load(entries[start : start+1000])
		part, err := chunk.Query(context.Background(), []float32{1, 0}, 10, 0.0, nil)
		require.NoError(t, err)
		want = append(want, part...)
	}
	sort.Slice(want, func(i, j int) bool {
		if want[i].Score != want[j].Score {
			return want[i].Score > want[j].Score
		}
		return want[i].ID < want[j].ID
	})
	assert.Equal(t, want[:10], results)
}
