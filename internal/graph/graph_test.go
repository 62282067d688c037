package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/graph"
	"github.com/mama-core/mama/internal/model"
)

type fakeLinks struct {
	approved map[string][]model.Link
	all      map[string][]model.Link
}

func (f *fakeLinks) ListApprovedFrom(_ context.Context, fromID string) ([]model.Link, error) {
	return f.approved[fromID], nil
}

func (f *fakeLinks) ListLinksFrom(_ context.Context, fromID string) ([]model.Link, error) {
	return f.all[fromID], nil
}

func link(from, to, relationship string, approved bool) model.Link {
	return model.Link{FromID: from, ToID: to, Relationship: relationship, Reason: "r", ApprovedByUser: approved, CreatedAt: 1}
}

func TestExpand_BFSVisitsEachNodeOnceWithShortestDepth(t *testing.T) {
	store := &fakeLinks{approved: map[string][]model.Link{
		"a": {link("a", "b", "refines", true), link("a", "c", "refines", true)},
		"b": {link("b", "d", "refines", true)},
		"c": {link("c", "d", "refines", true)},
	}}
	e := graph.New(store)

	visits, err := e.Expand(context.Background(), []string{"a"}, 5, true, nil)
	require.NoError(t, err)

	depthByID := map[string]int{}
	for _, v := range visits {
		depthByID[v.ID] = v.Depth
	}
	_, startIsVisit := depthByID["a"]
	assert.False(t, startIsVisit, "the start id is a seed, not a visit")
	assert.Equal(t, 1, depthByID["b"])
	assert.Equal(t, 1, depthByID["c"])
	assert.Equal(t, 2, depthByID["d"], "d must be visited once at its shortest-path depth")
	assert.Len(t, visits, 3)
}

func TestExpand_ClampsDepthToHardCap(t *testing.T) {
	store := &fakeLinks{approved: map[string][]model.Link{}}
	e := graph.New(store)

	_, err := e.Expand(context.Background(), []string{"a"}, 999, true, nil)
	require.NoError(t, err)
}

func TestExpand_MissingStartReturnsEmptyNotError(t *testing.T) {
	store := &fakeLinks{approved: map[string][]model.Link{}}
	e := graph.New(store)

	visits, err := e.Expand(context.Background(), []string{"ghost"}, 3, true, nil)
	require.NoError(t, err)
	assert.Empty(t, visits, "a start id with no qualifying edges contributes no visits")
}

func TestExpand_UnapprovedExcludedByDefault(t *testing.T) {
	store := &fakeLinks{
		approved: map[string][]model.Link{"a": {}},
		all:      map[string][]model.Link{"a": {link("a", "b", "refines", false)}},
	}
	e := graph.New(store)

	approvedOnly, err := e.Expand(context.Background(), []string{"a"}, 2, true, nil)
	require.NoError(t, err)
	assert.Empty(t, approvedOnly, "D1 has no approved outgoing link yet")

	all, err := e.Expand(context.Background(), []string{"a"}, 2, false, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestExpand_FiltersByCategory(t *testing.T) {
	store := &fakeLinks{approved: map[string][]model.Link{
		"a": {link("a", "b", "implements", true), link("a", "c", "relates_to", true)},
	}}
	e := graph.New(store)

	visits, err := e.Expand(context.Background(), []string{"a"}, 2, true, []model.LinkCategory{model.CategoryImplementation})
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, v := range visits {
		ids[v.ID] = true
	}
	assert.False(t, ids["a"], "the start id is a seed, not a visit")
	assert.True(t, ids["b"])
	assert.False(t, ids["c"])
}

func TestInvalidate_EvictsCachedTraversalsTouchingNode(t *testing.T) {
	store := &fakeLinks{approved: map[string][]model.Link{
		"a": {link("a", "b", "refines", true)},
	}}
	e := graph.New(store)

	first, err := e.Expand(context.Background(), []string{"a"}, 2, true, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	store.approved["a"] = append(store.approved["a"], link("a", "c", "refines", true))
	e.Invalidate("b")

	second, err := e.Expand(context.Background(), []string{"a"}, 2, true, nil)
	require.NoError(t, err)
	assert.Len(t, second, 2, "invalidating a touched node must force a fresh traversal")
}
