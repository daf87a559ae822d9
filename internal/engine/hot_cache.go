package engine

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stratumhq/stratum/pkg/types"
)

// HotCache holds each owner's most recent items in a bounded LRU.
// Owners are self-initializing: the first Put for an unknown owner
// creates its cache. Inserting beyond capacity evicts the least
// recently used item, which Put hands back to the caller so the tier
// controller can decide whether it is promoted or dropped.
//
// The hot tier is in-process only. Nothing here touches storage.
type HotCache struct {
	mu       sync.RWMutex
	capacity int
	window   time.Duration
	owners   map[string]*lru.Cache[string, *types.MemoryItem]
}

// NewHotCache creates a cache with the given per-owner capacity and
// recency window.
func NewHotCache(capacity int, window time.Duration) *HotCache {
	return &HotCache{
		capacity: capacity,
		window:   window,
		owners:   make(map[string]*lru.Cache[string, *types.MemoryItem]),
	}
}

// Put inserts an item into its owner's cache. If the insert pushes the
// cache past capacity, the least recently used item is evicted and
// returned; otherwise the return is nil.
func (h *HotCache) Put(item *types.MemoryItem) *types.MemoryItem {
	cache := h.ownerCache(item.OwnerID)

	var evicted *types.MemoryItem
	if cache.Len() >= h.capacity && !cache.Contains(item.ID) {
		if _, oldest, ok := cache.GetOldest(); ok {
			cache.Remove(oldest.ID)
			evicted = oldest
		}
	}
	cache.Add(item.ID, item)
	return evicted
}

// Get returns an item and refreshes both its LRU position and its
// LastReferencedAt timestamp.
func (h *HotCache) Get(ownerID, itemID string, now time.Time) (*types.MemoryItem, bool) {
	h.mu.RLock()
	cache, ok := h.owners[ownerID]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}

	item, ok := cache.Get(itemID)
	if !ok {
		return nil, false
	}
	item.Touch(now)
	return item, true
}

// GetRecent returns up to limit items most-recent-first and touches
// each returned item's LastReferencedAt. A limit <= 0 returns all hot
// items for the owner.
func (h *HotCache) GetRecent(ownerID string, limit int, now time.Time) []*types.MemoryItem {
	h.mu.RLock()
	cache, ok := h.owners[ownerID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	keys := cache.Keys() // oldest to newest
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}

	out := make([]*types.MemoryItem, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		if item, ok := cache.Peek(keys[i]); ok {
			item.Touch(now)
			out = append(out, item)
		}
	}
	return out
}

// Remove drops an item without treating it as an eviction. Used by
// promotion and purge paths once the item has a home elsewhere.
func (h *HotCache) Remove(ownerID, itemID string) (*types.MemoryItem, bool) {
	h.mu.RLock()
	cache, ok := h.owners[ownerID]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}

	item, ok := cache.Peek(itemID)
	if !ok {
		return nil, false
	}
	cache.Remove(itemID)
	return item, true
}

// EvictExpired removes items untouched for longer than the recency
// window and returns them for the controller to route.
func (h *HotCache) EvictExpired(ownerID string, now time.Time) []*types.MemoryItem {
	h.mu.RLock()
	cache, ok := h.owners[ownerID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	var expired []*types.MemoryItem
	for _, key := range cache.Keys() {
		item, ok := cache.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(item.LastReferencedAt) > h.window {
			expired = append(expired, item)
		}
	}
	for _, item := range expired {
		cache.Remove(item.ID)
	}
	return expired
}

// Len returns the number of hot items for an owner.
func (h *HotCache) Len(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cache, ok := h.owners[ownerID]; ok {
		return cache.Len()
	}
	return 0
}

// Owners returns the IDs of all owners with a hot cache.
func (h *HotCache) Owners() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.owners))
	for id := range h.owners {
		out = append(out, id)
	}
	return out
}

func (h *HotCache) ownerCache(ownerID string) *lru.Cache[string, *types.MemoryItem] {
	h.mu.RLock()
	cache, ok := h.owners[ownerID]
	h.mu.RUnlock()
	if ok {
		return cache
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if cache, ok := h.owners[ownerID]; ok {
		return cache
	}
	// Capacity is enforced in Put so evictions surface to the caller;
	// the LRU's own limit is a backstop that must never trigger first.
	cache, err := lru.New[string, *types.MemoryItem](h.capacity + 1)
	if err != nil {
		panic(err) // only fails for capacity < 1, rejected by Config.Validate
	}
	h.owners[ownerID] = cache
	return cache
}
