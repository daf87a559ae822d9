package engine

import (
	"context"
	"testing"

	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/internal/storage/sqlite"
	"github.com/stratumhq/stratum/pkg/types"
)

func newTestGraph(t *testing.T) (*GraphQuery, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewGraphQuery(store), store
}

func addNode(t *testing.T, store *sqlite.Store, owner string, nt types.NodeType, payload string, weight float64) string {
	t.Helper()
	id, err := store.UpsertNode(context.Background(), &types.GraphNode{
		OwnerID:  owner,
		NodeType: nt,
		Payload:  payload,
		Weight:   weight,
	})
	if err != nil {
		t.Fatalf("UpsertNode %q failed: %v", payload, err)
	}
	return id
}

func link(t *testing.T, store *sqlite.Store, from, to string) {
	t.Helper()
	err := store.Link(context.Background(), &types.GraphEdge{
		FromID: from, ToID: to, RelationKind: types.RelationMentions, Strength: 1,
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
}

func TestQueryAnchorsOnTopicHint(t *testing.T) {
	q, store := newTestGraph(t)

	gardening := addNode(t, store, "owner-1", types.NodeTopic, "gardening", 8)
	tomatoes := addNode(t, store, "owner-1", types.NodeEntity, "tomatoes", 3)
	cooking := addNode(t, store, "owner-1", types.NodeTopic, "cooking", 5)
	link(t, store, gardening, tomatoes)
	link(t, store, tomatoes, cooking)

	results, err := q.Query(context.Background(), "owner-1", "gardening", storage.GraphBounds{MaxHops: 2, MaxNodes: 10})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(results))
	}
	if results[0].Node.Payload != "gardening" || results[0].HopDistance != 0 {
		t.Errorf("anchor should rank first, got %s at hop %d", results[0].Node.Payload, results[0].HopDistance)
	}
	if results[1].Node.Payload != "tomatoes" || results[1].HopDistance != 1 {
		t.Errorf("expected tomatoes at hop 1, got %s at hop %d", results[1].Node.Payload, results[1].HopDistance)
	}
	if results[2].Node.Payload != "cooking" || results[2].HopDistance != 2 {
		t.Errorf("expected cooking at hop 2, got %s at hop %d", results[2].Node.Payload, results[2].HopDistance)
	}
}

func TestQueryRespectsMaxHops(t *testing.T) {
	q, store := newTestGraph(t)

	a := addNode(t, store, "owner-1", types.NodeTopic, "start", 5)
	b := addNode(t, store, "owner-1", types.NodeEntity, "near", 5)
	c := addNode(t, store, "owner-1", types.NodeEntity, "far", 5)
	link(t, store, a, b)
	link(t, store, b, c)

	results, err := q.Query(context.Background(), "owner-1", "start", storage.GraphBounds{MaxHops: 1, MaxNodes: 10})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, rn := range results {
		if rn.Node.Payload == "far" {
			t.Error("node beyond MaxHops should not be visited")
		}
	}
	if len(results) != 2 {
		t.Errorf("expected anchor plus one neighbor, got %d", len(results))
	}
}

func TestQueryRanksByDistanceThenWeight(t *testing.T) {
	q, store := newTestGraph(t)

	anchor := addNode(t, store, "owner-1", types.NodeTopic, "travel", 5)
	light := addNode(t, store, "owner-1", types.NodeEntity, "hostel", 1)
	heavy := addNode(t, store, "owner-1", types.NodeEntity, "japan", 9)
	link(t, store, anchor, light)
	link(t, store, anchor, heavy)

	results, err := q.Query(context.Background(), "owner-1", "travel", storage.GraphBounds{MaxHops: 2, MaxNodes: 10})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(results))
	}
	if results[1].Node.Payload != "japan" {
		t.Errorf("heavier node should rank first at equal distance, got %s", results[1].Node.Payload)
	}
}

func TestQueryFallsBackToLatestSummary(t *testing.T) {
	q, store := newTestGraph(t)

	addNode(t, store, "owner-1", types.NodeSummary, "older summary", 2)
	latest := addNode(t, store, "owner-1", types.NodeSummary, "latest summary", 2)

	results, err := q.Query(context.Background(), "owner-1", "no-such-topic-anywhere", storage.GraphBounds{MaxHops: 2, MaxNodes: 10})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected the fallback anchor in the results")
	}
	if results[0].Node.NodeID != latest {
		t.Errorf("expected the most recent summary as anchor, got %s", results[0].Node.Payload)
	}
}

func TestQueryEmptyOwnerYieldsEmptyResult(t *testing.T) {
	q, _ := newTestGraph(t)

	results, err := q.Query(context.Background(), "nobody", "anything", storage.GraphBounds{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestQuerySkipsOtherOwnersNodes(t *testing.T) {
	q, store := newTestGraph(t)

	mine := addNode(t, store, "owner-1", types.NodeTopic, "music", 5)
	theirs := addNode(t, store, "owner-2", types.NodeEntity, "piano", 5)
	// Cross-owner edges should never exist, but traversal must not
	// leak even if one shows up.
	link(t, store, mine, theirs)

	results, err := q.Query(context.Background(), "owner-1", "music", storage.GraphBounds{MaxHops: 2, MaxNodes: 10})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, rn := range results {
		if rn.Node.OwnerID != "owner-1" {
			t.Errorf("leaked node from %s", rn.Node.OwnerID)
		}
	}
}
