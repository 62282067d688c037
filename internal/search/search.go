// Package search implements semantic retrieval over the entity store: embed
// the query, ask the vector index for candidates, rescore with a type-boost
// and recency decay, and return the top-k.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mama-core/mama/internal/embedding"
	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/vectorindex"
)

// defaultThreshold and defaultRecencyWeight are the spec's documented
// defaults for Options fields left unset by the caller.
const (
	defaultThreshold     = 0.7
	defaultRecencyWeight = 0.3
)

// boostTable is the fixed cross-type affinity table: boost(contextType,
// candidateType). Pairs absent from the table default to 1.0 (neutral).
var boostTable = map[model.EntityType]map[model.EntityType]float64{
	model.EntityTypeDecision: {
		model.EntityTypeCheckpoint: 1.2,
	},
	model.EntityTypeCheckpoint: {
		model.EntityTypeCheckpoint: 0.8,
	},
	model.EntityTypeInsight: {
		model.EntityTypeDecision: 1.1,
	},
}

func boost(contextType *model.EntityType, candidateType model.EntityType) float64 {
	if contextType == nil {
		return 1.0
	}
	if byCandidate, ok := boostTable[*contextType]; ok {
		if b, ok := byCandidate[candidateType]; ok {
			return b
		}
	}
	return 1.0
}

// Result is one scored hit: the hydrated entity plus the final score S and
// the raw cosine similarity it was derived from.
type Result struct {
	Entity     model.Entity
	Score      float64
	Similarity float64
}

// Options configures a semantic Search call. Zero values take the spec's
// documented defaults.
type Options struct {
	K             int
	Threshold     float64 // τ; defaults to 0.7
	TypeFilter    *model.EntityType
	RecencyWeight float64           // defaults to 0.3
	ContextType   *model.EntityType // type_of(query_ctx); nil disables boosting
}

// EntityGetter is the storage dependency Search hydrates candidates
// through; satisfied by *storage.DB.
type EntityGetter interface {
	GetEntity(ctx context.Context, id string) (model.Entity, error)
}

// Engine ties an embedding provider, the in-memory vector index, and
// storage together to answer semantic and topic queries.
type Engine struct {
	embedder embedding.Provider
	index    *vectorindex.Index
	store    EntityGetter
}

// New builds a search Engine.
func New(embedder embedding.Provider, index *vectorindex.Index, store EntityGetter) *Engine {
	return &Engine{embedder: embedder, index: index, store: store}
}

// Search embeds queryText, retrieves candidates from the vector index, and
// returns up to opts.K hits scored by S = sim * boost * (1 + recency_weight * r).
func (e *Engine) Search(ctx context.Context, queryText string, opts Options) ([]Result, error) {
	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: search: k must be positive", mamaerr.ErrValidation)
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	recencyWeight := opts.RecencyWeight
	if recencyWeight == 0 {
		recencyWeight = defaultRecencyWeight
	}

	queryVec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	candidateK := opts.K * 4
	if candidateK < 20 {
		candidateK = 20
	}
	candidates, err := e.index.Query(ctx, queryVec, candidateK, threshold, nil)
	if err != nil {
		return nil, fmt.Errorf("search: query index: %w", err)
	}

	now := time.Now()
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		ent, err := e.store.GetEntity(ctx, c.ID)
		if err != nil {
			continue // deleted between index scan and hydration
		}
		if opts.TypeFilter != nil && ent.Type != *opts.TypeFilter {
			continue
		}

		ageDays := math.Max(0, now.Sub(time.UnixMilli(ent.CreatedAt)).Hours()/24.0)
		r := math.Exp(-ageDays / 30.0)
		b := boost(opts.ContextType, ent.Type)
		score := c.Score * b * (1 + recencyWeight*r)
		if score > 1 {
			score = 1
		}

		results = append(results, Result{Entity: ent, Score: score, Similarity: c.Score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// TopicStore is the storage dependency SearchByTopic reads through.
type TopicStore interface {
	ListByTopic(ctx context.Context, topic string) ([]model.Entity, error)
}

// SearchByTopic returns every entity with an exact, case-sensitive match on
// topic, ordered by created_at descending, ties in insertion order. Storage
// already returns the rows in that order; this re-asserts the created_at
// order with a stable sort, which keeps the store's order for ties.
func SearchByTopic(ctx context.Context, store TopicStore, topic string) ([]model.Entity, error) {
	entities, err := store.ListByTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("search: topic lookup: %w", err)
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].CreatedAt > entities[j].CreatedAt
	})
	return entities, nil
}
