package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stratumhq/stratum/internal/archive"
	"github.com/stratumhq/stratum/internal/scoring"
	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/internal/storage/sqlite"
	"github.com/stratumhq/stratum/pkg/types"
)

func newTestController(t *testing.T, cfg Config) (*TierController, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	chain := archive.NewChain(store, nil)
	tc, err := NewTierController(store, chain, cfg, nil)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	return tc, store
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.HotCapacity = 2
	return cfg
}

// Signal presets that land in known importance bands under the default
// weights: high >= 5 promotes warm, mid in [2.5, 5) archives cold, low
// below 2.5 evicts.
var (
	highSignals = types.Signals{SemanticNovelty: 10, SentimentIntensity: 10, UserFeedback: 10}
	midSignals  = types.Signals{SemanticNovelty: 5, SentimentIntensity: 3}
	lowSignals  = types.Signals{SemanticNovelty: 1}
)

func recordTurn(t *testing.T, tc *TierController, owner, content string, sig types.Signals, entities ...string) *types.MemoryItem {
	t.Helper()
	item, err := tc.RecordTurn(context.Background(), TurnInput{
		OwnerID:   owner,
		SessionID: "session-1",
		Content:   content,
		Entities:  entities,
		Signals:   sig,
	})
	if err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}
	return item
}

func TestRecordTurnEntersHotTier(t *testing.T) {
	tc, _ := newTestController(t, smallConfig())

	item := recordTurn(t, tc, "owner-1", "we talked about the garden", midSignals)
	if item.Tier != types.TierHot {
		t.Errorf("new turns must enter hot, got %s", item.Tier)
	}
	if item.Importance <= 0 {
		t.Errorf("importance not scored: %f", item.Importance)
	}

	stats, err := tc.Stats(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.HotItems != 1 {
		t.Errorf("expected 1 hot item, got %d", stats.HotItems)
	}
	if stats.WarmItems != 0 || stats.ColdChunks != 0 {
		t.Error("nothing should be durable yet")
	}
}

func TestRecordTurnValidatesInput(t *testing.T) {
	tc, _ := newTestController(t, smallConfig())
	ctx := context.Background()

	if _, err := tc.RecordTurn(ctx, TurnInput{Content: "x", Signals: midSignals}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("missing owner should fail, got %v", err)
	}
	if _, err := tc.RecordTurn(ctx, TurnInput{OwnerID: "o", Content: "  "}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("blank content should fail, got %v", err)
	}
	bad := types.Signals{SemanticNovelty: 99}
	if _, err := tc.RecordTurn(ctx, TurnInput{OwnerID: "o", Content: "x", Signals: bad}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("out-of-range signals should fail, got %v", err)
	}
}

func TestEvictionPromotesImportantItemToWarm(t *testing.T) {
	tc, store := newTestController(t, smallConfig())
	ctx := context.Background()

	promoted := recordTurn(t, tc, "owner-1", "Dana is allergic to peanuts", highSignals, "Dana", "peanuts")
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals) // evicts the first

	got, err := store.GetItem(ctx, promoted.ID)
	if err != nil {
		t.Fatalf("promoted item not persisted: %v", err)
	}
	if got.Tier != types.TierWarm {
		t.Errorf("expected warm tier, got %s", got.Tier)
	}

	// Tier exclusivity: the promoted item no longer lives in hot.
	if _, ok := tc.hot.Get("owner-1", promoted.ID, time.Now()); ok {
		t.Error("promoted item still present in hot cache")
	}

	stats, err := tc.Stats(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.WarmItems != 1 {
		t.Errorf("expected 1 warm item, got %d", stats.WarmItems)
	}
	if stats.GraphNodes < 3 {
		t.Errorf("expected summary plus entity nodes, got %d", stats.GraphNodes)
	}
	if stats.GraphEdges < 2 {
		t.Errorf("expected mention edges, got %d", stats.GraphEdges)
	}
}

func TestEvictionArchivesMidImportanceToCold(t *testing.T) {
	tc, store := newTestController(t, smallConfig())
	ctx := context.Background()

	archived := recordTurn(t, tc, "owner-1", "mentioned the weather in passing", midSignals)
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals)

	got, err := store.GetItem(ctx, archived.ID)
	if err != nil {
		t.Fatalf("archived item not persisted: %v", err)
	}
	if got.Tier != types.TierCold {
		t.Errorf("expected cold tier, got %s", got.Tier)
	}

	chunks, err := store.ListChunks(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	report, err := tc.VerifyIntegrity(ctx, "owner-1")
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if !report.Valid {
		t.Errorf("chain should verify: %s", report.Reason)
	}
}

func TestEvictionDropsLowImportance(t *testing.T) {
	tc, store := newTestController(t, smallConfig())
	ctx := context.Background()

	dropped := recordTurn(t, tc, "owner-1", "uh huh", lowSignals)
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals)

	if _, err := store.GetItem(ctx, dropped.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("low-importance item should leave no trace, got %v", err)
	}

	chunks, err := store.ListChunks(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("nothing should be archived, got %d chunks", len(chunks))
	}
}

func TestSweepDemotesAgedWarmItemsToCold(t *testing.T) {
	cfg := smallConfig()
	cfg.WarmRetention = time.Hour
	tc, store := newTestController(t, cfg)
	ctx := context.Background()

	stale := &types.MemoryItem{
		ID:               "item:stale-warm",
		OwnerID:          "owner-1",
		Content:          "an old but once-important fact",
		Importance:       6,
		Tier:             types.TierWarm,
		CreatedAt:        time.Now().Add(-3 * time.Hour),
		LastReferencedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := store.PutItem(ctx, stale); err != nil {
		t.Fatalf("PutItem failed: %v", err)
	}

	if err := tc.Sweep(ctx, "owner-1"); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, err := store.GetItem(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Tier != types.TierCold {
		t.Errorf("aged warm item should be cold, got %s", got.Tier)
	}

	chunks, err := store.ListChunks(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 archived chunk, got %d", len(chunks))
	}
	if chunks[0].Importance != 6 {
		t.Errorf("chunk should carry the item's importance, got %f", chunks[0].Importance)
	}
}

func TestSweepKeepsFreshWarmItems(t *testing.T) {
	cfg := smallConfig()
	cfg.WarmRetention = time.Hour
	tc, store := newTestController(t, cfg)
	ctx := context.Background()

	fresh := &types.MemoryItem{
		ID:               "item:fresh-warm",
		OwnerID:          "owner-1",
		Content:          "recently referenced fact",
		Importance:       6,
		Tier:             types.TierWarm,
		CreatedAt:        time.Now().Add(-30 * time.Minute),
		LastReferencedAt: time.Now().Add(-10 * time.Minute),
	}
	if err := store.PutItem(ctx, fresh); err != nil {
		t.Fatalf("PutItem failed: %v", err)
	}

	if err := tc.Sweep(ctx, "owner-1"); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, err := store.GetItem(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Tier != types.TierWarm {
		t.Errorf("fresh warm item should stay warm, got %s", got.Tier)
	}
}

func TestRecallContextShallowAndDeep(t *testing.T) {
	tc, _ := newTestController(t, smallConfig())
	ctx := context.Background()

	// Force one item all the way to cold, one to warm, keep two hot.
	recordTurn(t, tc, "owner-1", "a cold archived remark", midSignals)
	recordTurn(t, tc, "owner-1", "Maya started a pottery class", highSignals, "Maya", "pottery")
	recordTurn(t, tc, "owner-1", "hot item one", midSignals)
	recordTurn(t, tc, "owner-1", "hot item two", midSignals)

	shallow, err := tc.RecallContext(ctx, "owner-1", "pottery", DepthShallow)
	if err != nil {
		t.Fatalf("shallow recall failed: %v", err)
	}
	counts := map[types.Tier]int{}
	for _, e := range shallow.Entries {
		counts[e.Source]++
		if e.Source == types.TierCold {
			t.Error("shallow recall must not reach the cold tier")
		}
	}
	if counts[types.TierHot] != 2 {
		t.Errorf("expected 2 hot entries, got %d", counts[types.TierHot])
	}
	if counts[types.TierWarm] == 0 {
		t.Error("expected warm graph entries for the pottery hint")
	}

	deep, err := tc.RecallContext(ctx, "owner-1", "pottery", DepthDeep)
	if err != nil {
		t.Fatalf("deep recall failed: %v", err)
	}
	foundCold := false
	for _, e := range deep.Entries {
		if e.Source == types.TierCold && e.Content == "a cold archived remark" {
			foundCold = true
		}
	}
	if !foundCold {
		t.Error("deep recall should surface the archived payload")
	}

	for i := 1; i < len(deep.Entries); i++ {
		if deep.Entries[i-1].Score < deep.Entries[i].Score {
			t.Fatal("entries must be sorted by score descending")
		}
	}
}

func TestRecallTouchesHotItems(t *testing.T) {
	tc, _ := newTestController(t, smallConfig())
	ctx := context.Background()

	item := recordTurn(t, tc, "owner-1", "remember the milk", midSignals)
	before := item.LastReferencedAt

	time.Sleep(5 * time.Millisecond)
	if _, err := tc.RecallContext(ctx, "owner-1", "", DepthShallow); err != nil {
		t.Fatalf("recall failed: %v", err)
	}

	got, ok := tc.hot.Get("owner-1", item.ID, time.Now())
	if !ok {
		t.Fatal("item should still be hot")
	}
	if !got.LastReferencedAt.After(before) {
		t.Error("recall should refresh LastReferencedAt")
	}
}

// flakyArchiveStore refuses chunk appends while tripped. Everything
// else passes through to the underlying store.
type flakyArchiveStore struct {
	storage.Store
	refuse bool
}

var errArchiveRefused = errors.New("archive store refused append")

func (s *flakyArchiveStore) AppendChunk(ctx context.Context, chunk *types.ArchiveChunk) error {
	if s.refuse {
		return errArchiveRefused
	}
	return s.Store.AppendChunk(ctx, chunk)
}

func newFlakyController(t *testing.T, cfg Config) (*TierController, *flakyArchiveStore) {
	t.Helper()
	base, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { base.Close() })

	store := &flakyArchiveStore{Store: base}
	chain := archive.NewChain(store, nil)
	tc, err := NewTierController(store, chain, cfg, nil)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	return tc, store
}

func TestRecordTurnFailedRoutingRestoresCache(t *testing.T) {
	tc, store := newFlakyController(t, smallConfig())
	ctx := context.Background()

	first := recordTurn(t, tc, "owner-1", "first fact", midSignals)
	second := recordTurn(t, tc, "owner-1", "second fact", midSignals)

	store.refuse = true
	_, err := tc.RecordTurn(ctx, TurnInput{OwnerID: "owner-1", Content: "third fact", Signals: midSignals})
	if !errors.Is(err, errArchiveRefused) {
		t.Fatalf("expected the archive failure to surface, got %v", err)
	}

	// The failed turn recorded nothing: both prior items are still hot
	// and the re-insert did not displace a second victim.
	if n := tc.hot.Len("owner-1"); n != 2 {
		t.Fatalf("expected 2 hot items, got %d", n)
	}
	now := time.Now()
	for _, item := range []*types.MemoryItem{first, second} {
		if _, ok := tc.hot.Get("owner-1", item.ID, now); !ok {
			t.Errorf("item %s should still be hot", item.ID)
		}
	}
	chunks, err := store.ListChunks(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("failed append must not advance the chain, got %d chunks", len(chunks))
	}

	store.refuse = false
	recordTurn(t, tc, "owner-1", "third fact retried", midSignals)
	if _, err := store.GetItem(ctx, first.ID); err != nil {
		t.Errorf("oldest item should archive once the store recovers: %v", err)
	}
}

func TestSweepFailedRoutingKeepsExpiredItemsHot(t *testing.T) {
	cfg := smallConfig()
	cfg.HotWindow = 5 * time.Millisecond
	tc, store := newFlakyController(t, cfg)
	ctx := context.Background()

	a := recordTurn(t, tc, "owner-1", "expired fact a", midSignals)
	b := recordTurn(t, tc, "owner-1", "expired fact b", midSignals)
	time.Sleep(20 * time.Millisecond)

	store.refuse = true
	if err := tc.Sweep(ctx, "owner-1"); !errors.Is(err, errArchiveRefused) {
		t.Fatalf("expected the archive failure to surface, got %v", err)
	}

	// No item is durable yet, so every expired item must return to the
	// cache for the next sweep to retry. Losing any of them here would
	// leave it in no tier at all.
	now := time.Now()
	for _, item := range []*types.MemoryItem{a, b} {
		if _, ok := tc.hot.Get("owner-1", item.ID, now); !ok {
			t.Errorf("unrouted item %s must stay hot", item.ID)
		}
	}
	chunks, err := store.ListChunks(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("failed sweep must not advance the chain, got %d chunks", len(chunks))
	}

	// The retry drains both items once the store recovers.
	time.Sleep(20 * time.Millisecond)
	store.refuse = false
	if err := tc.Sweep(ctx, "owner-1"); err != nil {
		t.Fatalf("retry sweep failed: %v", err)
	}
	if n := tc.hot.Len("owner-1"); n != 0 {
		t.Errorf("expected an empty hot cache after retry, got %d items", n)
	}
	chunks, err = store.ListChunks(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Errorf("expected both items archived after retry, got %d chunks", len(chunks))
	}
}

func TestRecallTouchesWarmItems(t *testing.T) {
	tc, store := newTestController(t, smallConfig())
	ctx := context.Background()

	promoted := recordTurn(t, tc, "owner-1", "Ravi is training for a marathon", highSignals, "Ravi", "marathon")
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals)

	// Backdate the warm item, then confirm recall pulls it forward so
	// it stays inside the retention window.
	stale := time.Now().Add(-time.Hour)
	if err := store.TouchItem(ctx, []string{promoted.ID}, stale); err != nil {
		t.Fatalf("TouchItem failed: %v", err)
	}

	if _, err := tc.RecallContext(ctx, "owner-1", "marathon", DepthShallow); err != nil {
		t.Fatalf("recall failed: %v", err)
	}

	got, err := store.GetItem(ctx, promoted.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !got.LastReferencedAt.After(stale.Add(30 * time.Minute)) {
		t.Errorf("recall should refresh the warm item, still at %s", got.LastReferencedAt)
	}
}

// linkRecordingStore captures every edge the controller writes.
type linkRecordingStore struct {
	storage.Store
	edges []*types.GraphEdge
}

func (s *linkRecordingStore) Link(ctx context.Context, edge *types.GraphEdge) error {
	s.edges = append(s.edges, edge)
	return s.Store.Link(ctx, edge)
}

func TestPromotionEdgeStrengthIsUnitScaled(t *testing.T) {
	base, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { base.Close() })

	store := &linkRecordingStore{Store: base}
	chain := archive.NewChain(store, nil)
	tc, err := NewTierController(store, chain, smallConfig(), nil)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}

	promoted := recordTurn(t, tc, "owner-1", "Lena keeps bees in Vermont", highSignals, "Lena", "bees")
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals)

	if len(store.edges) == 0 {
		t.Fatal("promotion should create graph edges")
	}
	want := promoted.Importance / scoring.SignalMax
	for _, edge := range store.edges {
		if edge.Strength < 0 || edge.Strength > 1 {
			t.Errorf("edge strength outside the unit range: %f", edge.Strength)
		}
		if math.Abs(edge.Strength-want) > 1e-9 {
			t.Errorf("edge strength %f, want %f", edge.Strength, want)
		}
	}
}

func TestRedactChunkKeepsChainValid(t *testing.T) {
	tc, store := newTestController(t, smallConfig())
	ctx := context.Background()

	recordTurn(t, tc, "owner-1", "reach me at bob@example.com about the invoice", midSignals)
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals)

	chunks, err := store.ListChunks(ctx, "owner-1")
	if err != nil || len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d (err %v)", len(chunks), err)
	}

	redacted, err := tc.RedactChunk(ctx, "owner-1", chunks[0].ChunkID)
	if err != nil {
		t.Fatalf("RedactChunk failed: %v", err)
	}
	if !redacted.Redacted {
		t.Error("chunk not marked redacted")
	}

	report, err := tc.VerifyIntegrity(ctx, "owner-1")
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if !report.Valid {
		t.Errorf("chain must verify after redaction: %s", report.Reason)
	}

	export, err := tc.ExportForAudit(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ExportForAudit failed: %v", err)
	}
	if len(export.Chunks) != 1 {
		t.Fatalf("expected 1 exported chunk, got %d", len(export.Chunks))
	}
	if export.Chunks[0].Payload == "reach me at bob@example.com about the invoice" {
		t.Error("export should reflect the redaction")
	}
}

func TestPurgeWarmItemOrphansNodes(t *testing.T) {
	tc, store := newTestController(t, smallConfig())
	ctx := context.Background()

	promoted := recordTurn(t, tc, "owner-1", "Sam adopted a greyhound", highSignals, "Sam", "greyhound")
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals)

	if err := tc.PurgeItem(ctx, "owner-1", promoted.ID); err != nil {
		t.Fatalf("PurgeItem failed: %v", err)
	}
	if _, err := store.GetItem(ctx, promoted.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("purged item should be gone, got %v", err)
	}

	// The nodes survive but are orphaned and invisible to recall.
	result, err := tc.RecallContext(ctx, "owner-1", "greyhound", DepthShallow)
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	for _, e := range result.Entries {
		if e.Source == types.TierWarm && e.Content == "Sam adopted a greyhound" {
			t.Error("orphaned summary node should not be recalled")
		}
	}
}

func TestPurgeColdItemRejected(t *testing.T) {
	tc, store := newTestController(t, smallConfig())
	ctx := context.Background()

	archived := recordTurn(t, tc, "owner-1", "archived fact", midSignals)
	recordTurn(t, tc, "owner-1", "filler one", midSignals)
	recordTurn(t, tc, "owner-1", "filler two", midSignals)

	got, err := store.GetItem(ctx, archived.ID)
	if err != nil || got.Tier != types.TierCold {
		t.Fatalf("setup: expected cold item, got %v (err %v)", got, err)
	}

	err = tc.PurgeItem(ctx, "owner-1", archived.ID)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("cold items are immutable, expected ErrInvalidInput, got %v", err)
	}
}

func TestStatsAcrossTiers(t *testing.T) {
	tc, _ := newTestController(t, smallConfig())
	ctx := context.Background()

	recordTurn(t, tc, "owner-1", "to the archive", midSignals)
	recordTurn(t, tc, "owner-1", "to the graph eventually", highSignals, "thing")
	recordTurn(t, tc, "owner-1", "stays hot a", midSignals)
	recordTurn(t, tc, "owner-1", "stays hot b", midSignals)

	stats, err := tc.Stats(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.HotItems != 2 {
		t.Errorf("expected 2 hot, got %d", stats.HotItems)
	}
	if stats.WarmItems != 1 {
		t.Errorf("expected 1 warm, got %d", stats.WarmItems)
	}
	if stats.ColdChunks != 1 {
		t.Errorf("expected 1 cold chunk, got %d", stats.ColdChunks)
	}
	if stats.ChainTail == "" {
		t.Error("chain tail hash should be reported")
	}
}
