package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/archive"
	"github.com/stratumhq/stratum/internal/notify"
	"github.com/stratumhq/stratum/internal/scoring"
	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/pkg/types"
)

// TierController orchestrates the memory hierarchy for all owners.
//
// Every turn enters the hot tier. Items leave hot by capacity eviction
// or recency expiry, at which point their importance decides the exit:
// promotion to the warm graph, direct archival to cold, or eviction.
// Warm items age out to cold after the retention window. Cold is
// terminal.
//
// All mutations for one owner are serialized through a striped mutex,
// which keeps the chain tail single-writer and guarantees tier
// exclusivity without a global lock. A failed promotion or append
// leaves the prior state intact: the item is re-inserted hot and the
// chain is unchanged.
type TierController struct {
	config Config

	store  storage.Store
	chain  *archive.Chain
	hot    *HotCache
	scorer *scoring.Scorer
	query  *GraphQuery

	events *notify.EventWriter

	locks []sync.Mutex
}

// NewTierController creates a controller over the given store and
// chain. The events writer may be nil to disable notifications.
func NewTierController(store storage.Store, chain *archive.Chain, cfg Config, events *notify.EventWriter) (*TierController, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if chain == nil {
		return nil, fmt.Errorf("archive chain is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &TierController{
		config: cfg,
		store:  store,
		chain:  chain,
		hot:    NewHotCache(cfg.HotCapacity, cfg.HotWindow),
		scorer: scoring.NewScorer(scoring.DefaultWeights()),
		query:  NewGraphQuery(store),
		events: events,
		locks:  make([]sync.Mutex, cfg.LockStripes),
	}, nil
}

// RecordTurn scores one conversational turn and inserts it into the
// owner's hot tier. If the insert evicts an older item, the evicted
// item is routed through the demotion state machine before RecordTurn
// returns.
func (tc *TierController) RecordTurn(ctx context.Context, turn TurnInput) (*types.MemoryItem, error) {
	if turn.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(turn.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}

	importance, err := tc.scorer.Score(turn.Signals)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	item := &types.MemoryItem{
		ID:               "item:" + uuid.New().String(),
		OwnerID:          turn.OwnerID,
		SessionID:        turn.SessionID,
		Content:          turn.Content,
		Entities:         turn.Entities,
		Signals:          turn.Signals,
		Importance:       importance,
		Tier:             types.TierHot,
		CreatedAt:        now,
		LastReferencedAt: now,
	}

	lock := tc.ownerLock(turn.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	evicted := tc.hot.Put(item)
	if evicted != nil {
		if err := tc.routeEvicted(ctx, evicted, now); err != nil {
			// Restore the prior state exactly: the failed turn is
			// withdrawn and the evicted item returns to the slot that
			// withdrawal freed. Re-inserting while the new item still
			// occupied the cache would evict a second victim.
			tc.hot.Remove(turn.OwnerID, item.ID)
			tc.hot.Put(evicted)
			return nil, fmt.Errorf("route evicted item %s: %w", evicted.ID, err)
		}
	}
	return item, nil
}

// RecallContext assembles a ranked context window for an owner. Shallow
// depth reads the hot cache and the warm graph; deep depth additionally
// reconstructs the cold archive. Recalled hot and warm items have
// their LastReferencedAt refreshed, which defers their aging out.
func (tc *TierController) RecallContext(ctx context.Context, ownerID, hint string, depth Depth) (*RecallResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	result := &RecallResult{OwnerID: ownerID, Depth: depth, Entries: []ContextEntry{}}

	for _, item := range tc.hot.GetRecent(ownerID, 0, now) {
		result.Entries = append(result.Entries, ContextEntry{
			Source:  types.TierHot,
			Ref:     item.ID,
			Content: item.Content,
			Score:   recallScore(item.Importance, now.Sub(item.CreatedAt)),
		})
	}

	bounds := storage.GraphBounds{MaxHops: tc.config.MaxHops, MaxNodes: tc.config.MaxNodes}
	ranked, err := tc.query.Query(ctx, ownerID, hint, bounds)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ranked))
	touched := make([]string, 0, len(ranked))
	for _, rn := range ranked {
		result.Entries = append(result.Entries, ContextEntry{
			Source:  types.TierWarm,
			Ref:     rn.Node.NodeID,
			Content: rn.Node.Payload,
			Score:   rn.Score,
		})
		if id := rn.Node.ItemID; id != "" {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				touched = append(touched, id)
			}
		}
	}
	// Recalled warm items stay inside the retention window.
	if err := tc.store.TouchItem(ctx, touched, now); err != nil {
		return nil, fmt.Errorf("recall %s: touch warm items: %w", ownerID, err)
	}

	if depth == DepthDeep {
		chunks, err := tc.store.ListChunks(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		payloads, err := tc.chain.Reconstruct(ctx, ownerID, "")
		if err != nil {
			return nil, err
		}
		for i, chunk := range chunks {
			result.Entries = append(result.Entries, ContextEntry{
				Source:  types.TierCold,
				Ref:     chunk.ChunkID,
				Content: payloads[i],
				Score:   recallScore(chunk.Importance, now.Sub(chunk.CreatedAt)),
			})
		}
	}

	sort.SliceStable(result.Entries, func(i, j int) bool {
		return result.Entries[i].Score > result.Entries[j].Score
	})
	return result, nil
}

// Sweep runs the demotion state machine for one owner: expired hot
// items are routed by importance, and warm items past the retention
// window age out to the cold archive. Returns ErrOwnerBusy when the
// owner's lock is held, so periodic sweeps skip instead of queueing
// behind live traffic.
func (tc *TierController) Sweep(ctx context.Context, ownerID string) error {
	lock := tc.ownerLock(ownerID)
	if !lock.TryLock() {
		return fmt.Errorf("%w: %s", storage.ErrOwnerBusy, ownerID)
	}
	defer lock.Unlock()

	now := time.Now()
	expired := tc.hot.EvictExpired(ownerID, now)
	for i, item := range expired {
		if err := tc.routeEvicted(ctx, item, now); err != nil {
			// Every item not yet durable goes back into the cache. The
			// eviction just freed their slots and the owner lock is
			// held, so the puts cannot displace anything else. The next
			// sweep retries.
			for _, unrouted := range expired[i:] {
				tc.hot.Put(unrouted)
			}
			return fmt.Errorf("sweep %s: %w", ownerID, err)
		}
	}

	cutoff := now.Add(-tc.config.WarmRetention)
	warm, err := tc.store.ListItems(ctx, ownerID, types.TierWarm, storage.ListOptions{})
	if err != nil {
		return fmt.Errorf("sweep %s: list warm items: %w", ownerID, err)
	}
	for _, item := range warm {
		if item.LastReferencedAt.After(cutoff) {
			continue
		}
		if err := tc.demoteWarmToCold(ctx, item); err != nil {
			return fmt.Errorf("sweep %s: %w", ownerID, err)
		}
	}
	return nil
}

// SweepAll sweeps every owner with a hot cache. Busy owners are skipped
// and logged, not treated as failures.
func (tc *TierController) SweepAll(ctx context.Context) {
	for _, ownerID := range tc.hot.Owners() {
		if err := tc.Sweep(ctx, ownerID); err != nil {
			log.Printf("engine: sweep %s: %v", ownerID, err)
		}
	}
}

// VerifyIntegrity checks the owner's hash chain and reports the result.
// A broken chain yields Valid=false with the reason; it is not an
// error.
func (tc *TierController) VerifyIntegrity(ctx context.Context, ownerID string) (*IntegrityReport, error) {
	chunks, err := tc.store.ListChunks(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		OwnerID:    ownerID,
		Chunks:     len(chunks),
		Valid:      true,
		VerifiedAt: time.Now(),
	}
	if err := tc.chain.Verify(ctx, ownerID); err != nil {
		report.Valid = false
		report.Reason = err.Error()
	}
	return report, nil
}

// ExportForAudit reconstructs the owner's full cold history with chain
// metadata attached to every payload.
func (tc *TierController) ExportForAudit(ctx context.Context, ownerID string) (*AuditExport, error) {
	chunks, err := tc.store.ListChunks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	payloads, err := tc.chain.Reconstruct(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}

	export := &AuditExport{
		OwnerID:    ownerID,
		Chunks:     make([]AuditChunk, len(chunks)),
		ExportedAt: time.Now(),
	}
	for i, chunk := range chunks {
		export.Chunks[i] = AuditChunk{
			ChunkID:      chunk.ChunkID,
			Seq:          chunk.Seq,
			ContentHash:  chunk.ContentHash,
			PreviousHash: chunk.PreviousHash,
			Redacted:     chunk.Redacted,
			RedactedAt:   chunk.RedactedAt,
			Importance:   chunk.Importance,
			CreatedAt:    chunk.CreatedAt,
			Payload:      payloads[i],
		}
	}
	return export, nil
}

// RedactChunk scrubs personal identifiers from an archived chunk's
// display payload. The chain verifies identically afterwards.
func (tc *TierController) RedactChunk(ctx context.Context, ownerID, chunkID string, identifiers ...string) (*types.ArchiveChunk, error) {
	lock := tc.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	chunk, err := tc.chain.Redact(ctx, ownerID, chunkID, identifiers...)
	if err != nil {
		return nil, err
	}
	tc.notify(notify.Event{Type: notify.EventChunkRedacted, OwnerID: ownerID, Ref: chunkID})
	return chunk, nil
}

// PurgeItem removes an item outright. Hot items vanish from the cache;
// warm items lose their row and their originating graph nodes are
// orphaned. Cold chunks are immutable and cannot be purged, only
// redacted.
func (tc *TierController) PurgeItem(ctx context.Context, ownerID, itemID string) error {
	lock := tc.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := tc.hot.Remove(ownerID, itemID); ok {
		tc.notify(notify.Event{Type: notify.EventItemPurged, OwnerID: ownerID, Ref: itemID})
		return nil
	}

	item, err := tc.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.OwnerID != ownerID {
		return fmt.Errorf("%w: item %s", storage.ErrNotFound, itemID)
	}
	if item.Tier == types.TierCold {
		return fmt.Errorf("%w: cold items are immutable, redact instead", storage.ErrInvalidInput)
	}

	if err := tc.store.PurgeItem(ctx, itemID); err != nil {
		return err
	}
	orphaned, err := tc.store.OrphanNodesForItem(ctx, itemID)
	if err != nil {
		return err
	}
	if orphaned > 0 {
		log.Printf("engine: purge %s orphaned %d warm nodes", itemID, orphaned)
	}
	tc.notify(notify.Event{Type: notify.EventItemPurged, OwnerID: ownerID, Ref: itemID})
	return nil
}

// Stats reports the owner's footprint across all three tiers.
func (tc *TierController) Stats(ctx context.Context, ownerID string) (*storage.OwnerStats, error) {
	stats, err := tc.store.Stats(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stats.HotItems = tc.hot.Len(ownerID)
	return stats, nil
}

// routeEvicted decides what happens to an item leaving the hot tier.
// Caller holds the owner lock.
func (tc *TierController) routeEvicted(ctx context.Context, item *types.MemoryItem, now time.Time) error {
	switch {
	case item.Importance >= tc.config.WarmThreshold:
		return tc.promoteToWarm(ctx, item, now)
	case item.Importance >= tc.config.RetentionFloor:
		return tc.archiveToCold(ctx, item, types.TierHot)
	default:
		tc.notify(notify.Event{
			Type: notify.EventTierTransition, OwnerID: item.OwnerID, Ref: item.ID,
			From: types.TierHot.String(), To: types.TierEvicted.String(),
		})
		return nil
	}
}

// promoteToWarm persists the item and projects it into the graph: a
// summary node carrying the content, entity nodes de-duplicated by
// upsert, and mentions edges binding them together. Co-mentioned
// entities are linked pairwise so traversal can cross between topics.
func (tc *TierController) promoteToWarm(ctx context.Context, item *types.MemoryItem, now time.Time) error {
	item.Tier = types.TierWarm
	if err := tc.store.PutItem(ctx, item); err != nil {
		item.Tier = types.TierHot
		return fmt.Errorf("promote %s: %w", item.ID, err)
	}

	summary := &types.GraphNode{
		OwnerID:  item.OwnerID,
		NodeType: types.NodeSummary,
		Payload:  item.Content,
		Weight:   item.Importance,
		ItemID:   item.ID,
	}
	summaryID, err := tc.store.UpsertNode(ctx, summary)
	if err != nil {
		return fmt.Errorf("promote %s: summary node: %w", item.ID, err)
	}

	// Edge strength lives on a unit scale, importance on the signal
	// scale.
	strength := item.Importance / scoring.SignalMax

	entityIDs := make([]string, 0, len(item.Entities))
	for _, entity := range item.Entities {
		nodeID, err := tc.store.UpsertNode(ctx, &types.GraphNode{
			OwnerID:  item.OwnerID,
			NodeType: types.NodeEntity,
			Payload:  entity,
			Weight:   item.Importance,
			ItemID:   item.ID,
		})
		if err != nil {
			return fmt.Errorf("promote %s: entity node %q: %w", item.ID, entity, err)
		}
		if err := tc.store.Link(ctx, &types.GraphEdge{
			FromID: summaryID, ToID: nodeID,
			RelationKind: types.RelationMentions, Strength: strength,
		}); err != nil {
			return fmt.Errorf("promote %s: mention edge: %w", item.ID, err)
		}
		entityIDs = append(entityIDs, nodeID)
	}

	for i := 0; i < len(entityIDs); i++ {
		for j := i + 1; j < len(entityIDs); j++ {
			if err := tc.store.Link(ctx, &types.GraphEdge{
				FromID: entityIDs[i], ToID: entityIDs[j],
				RelationKind: types.RelationRelatesTo, Strength: strength,
			}); err != nil {
				return fmt.Errorf("promote %s: relation edge: %w", item.ID, err)
			}
		}
	}

	tc.notify(notify.Event{
		Type: notify.EventTierTransition, OwnerID: item.OwnerID, Ref: item.ID,
		From: types.TierHot.String(), To: types.TierWarm.String(),
	})
	return nil
}

// archiveToCold appends the item's content to the owner's hash chain
// and records the terminal tier. The chunk is durable before the item
// record moves, so a crash between the two steps leaves a cold chunk
// and a stale item row, never a lost payload.
func (tc *TierController) archiveToCold(ctx context.Context, item *types.MemoryItem, from types.Tier) error {
	chunk, err := tc.chain.Append(ctx, item.OwnerID, item.Content, item.Importance)
	if err != nil {
		return fmt.Errorf("archive %s: %w", item.ID, err)
	}

	item.Tier = types.TierCold
	if from == types.TierWarm {
		// The warm row already exists; only its tier moves.
		if err := tc.store.UpdateItemTier(ctx, item.ID, types.TierCold); err != nil {
			return fmt.Errorf("archive %s: move tier: %w", item.ID, err)
		}
	} else if err := tc.store.PutItem(ctx, item); err != nil {
		return fmt.Errorf("archive %s: record item: %w", item.ID, err)
	}

	tc.notify(notify.Event{
		Type: notify.EventTierTransition, OwnerID: item.OwnerID, Ref: item.ID,
		From: from.String(), To: types.TierCold.String(),
	})
	tc.notify(notify.Event{Type: notify.EventChunkArchived, OwnerID: item.OwnerID, Ref: chunk.ChunkID})
	return nil
}

// demoteWarmToCold ages a warm item out to the archive. The item's
// graph nodes stay behind: aging out is not a purge, so nothing is
// orphaned.
func (tc *TierController) demoteWarmToCold(ctx context.Context, item *types.MemoryItem) error {
	return tc.archiveToCold(ctx, item, types.TierWarm)
}

func (tc *TierController) notify(evt notify.Event) {
	if tc.events == nil {
		return
	}
	if err := tc.events.Notify(evt); err != nil {
		log.Printf("engine: notify %s for %s: %v", evt.Type, evt.Ref, err)
	}
}

func (tc *TierController) ownerLock(ownerID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ownerID))
	return &tc.locks[h.Sum32()%uint32(len(tc.locks))]
}

// recallScore blends importance with recency: a fresh low-importance
// item can outrank a stale high-importance one inside the window.
func recallScore(importance float64, age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	return importance / (1 + hours/24)
}
