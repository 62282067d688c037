// Package graph implements bounded breadth-first expansion over approved
// (or, optionally, all) entity links, with an LRU+TTL result cache and a
// reverse index for targeted invalidation on link mutation.
package graph

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mama-core/mama/internal/model"
)

// MaxDepth is the hard cap on traversal depth; callers supply a depth and
// the expander clamps to it.
const MaxDepth = 5

// Per-caller depth defaults named in spec.
const (
	DefaultDepthTopicSearch     = 3
	DefaultDepthSemanticContext = 5
	DefaultDepthCheckpointLoad  = 2
)

const (
	cacheSize = 100
	cacheTTL  = 5 * time.Minute
)

// Visit is one node reached by Expand via at least one traversed edge: the
// entity id, its shortest-path depth from the nearest start id, and the
// edge that first reached it. Start ids themselves are never visits — only
// nodes they lead to (spec: expand([D1], depth=1) before any approved edge
// from D1 returns [], not [D1]).
type Visit struct {
	ID         string
	Depth      int
	IncomingBy *model.Link
}

// LinkLister is the storage dependency Expand traverses through.
type LinkLister interface {
	// ListApprovedFrom returns approved outgoing links (approved_only=true path).
	ListApprovedFrom(ctx context.Context, fromID string) ([]model.Link, error)
	// ListLinksFrom returns every outgoing link regardless of approval
	// status (approved_only=false path).
	ListLinksFrom(ctx context.Context, fromID string) ([]model.Link, error)
}

// Expander runs bounded BFS over a LinkLister, caching results keyed by
// the traversal parameters and invalidating affected cache entries when a
// link touching a cached node changes.
type Expander struct {
	store LinkLister

	cache        *lru.LRU[string, []Visit]
	reverseIndex map[string]map[string]struct{} // node -> cache keys touching it
	mu           sync.Mutex
}

// New builds an Expander backed by store.
func New(store LinkLister) *Expander {
	return &Expander{
		store:        store,
		cache:        lru.NewLRU[string, []Visit](cacheSize, nil, cacheTTL),
		reverseIndex: make(map[string]map[string]struct{}),
	}
}

// Expand performs bounded BFS from startIDs out to depth (clamped to
// [0, MaxDepth]), traversing approved-only edges unless approvedOnly is
// false. Start ids are seeds, not results: a missing or edgeless start id
// contributes no visits rather than erroring. categories, if non-empty,
// restricts traversal to links whose derived Category is in the set.
func (e *Expander) Expand(ctx context.Context, startIDs []string, depth int, approvedOnly bool, categories []model.LinkCategory) ([]Visit, error) {
	if depth > MaxDepth {
		depth = MaxDepth
	}
	if depth < 0 {
		depth = 0
	}

	key := cacheKey(startIDs, categories, depth, approvedOnly)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	visits, touched, err := e.bfs(ctx, startIDs, depth, approvedOnly, categories)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache.Add(key, visits)
	for node := range touched {
		if e.reverseIndex[node] == nil {
			e.reverseIndex[node] = make(map[string]struct{})
		}
		e.reverseIndex[node][key] = struct{}{}
	}
	e.mu.Unlock()

	return visits, nil
}

type queueItem struct {
	id    string
	depth int
	via   *model.Link
	seed  bool
}

func (e *Expander) bfs(ctx context.Context, startIDs []string, depth int, approvedOnly bool, categories []model.LinkCategory) ([]Visit, map[string]struct{}, error) {
	visited := make(map[string]struct{})
	touched := make(map[string]struct{})
	var visits []Visit

	queue := list.New()
	for _, id := range startIDs {
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		touched[id] = struct{}{}
		queue.PushBack(queueItem{id: id, depth: 0, seed: true})
	}

	for queue.Len() > 0 {
		front := queue.Remove(queue.Front()).(queueItem)
		if !front.seed {
			visits = append(visits, Visit{ID: front.id, Depth: front.depth, IncomingBy: front.via})
		}

		if front.depth >= depth {
			continue
		}

		links, err := e.outgoing(ctx, front.id, approvedOnly)
		if err != nil {
			return nil, nil, fmt.Errorf("graph: expand: %w", err)
		}

		for i := range links {
			l := links[i]
			if len(categories) > 0 && !categoryIn(l.Category(), categories) {
				continue
			}
			touched[l.ToID] = struct{}{}
			if _, ok := visited[l.ToID]; ok {
				continue
			}
			visited[l.ToID] = struct{}{}
			queue.PushBack(queueItem{id: l.ToID, depth: front.depth + 1, via: &l})
		}
	}

	return visits, touched, nil
}

func (e *Expander) outgoing(ctx context.Context, id string, approvedOnly bool) ([]model.Link, error) {
	if approvedOnly {
		return e.store.ListApprovedFrom(ctx, id)
	}
	return e.store.ListLinksFrom(ctx, id)
}

func categoryIn(c model.LinkCategory, categories []model.LinkCategory) bool {
	for _, want := range categories {
		if c == want {
			return true
		}
	}
	return false
}

// Invalidate evicts every cached traversal whose start set or visited
// nodes included node — called after a link insert/approve/reject/
// deprecate touching node (spec §4.6 cache section).
func (e *Expander) Invalidate(node string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.reverseIndex[node] {
		e.cache.Remove(key)
	}
	delete(e.reverseIndex, node)
}

func cacheKey(startIDs []string, categories []model.LinkCategory, depth int, approvedOnly bool) string {
	starts := append([]string(nil), startIDs...)
	sort.Strings(starts)

	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = string(c)
	}
	sort.Strings(cats)

	var b strings.Builder
	b.WriteString(strings.Join(starts, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(cats, ","))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(depth))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(approvedOnly))
	return b.String()
}
