package engine

import (
	"container/list"
	"sync"
)

// DedupeStore is the durable tier of command deduplication. The
// persistence layer backs it with the idempotency table.
type DedupeStore interface {
	IsDuplicate(command, requestID string) (bool, error)
}

// DedupeStats is a point-in-time view of deduper activity.
type DedupeStats struct {
	HitsLRU   int64
	HitsStore int64
	StoreErrs int64
	Size      int
	Evictions int64
}

// Deduper rejects replayed commands with a two-tier lookup: an
// in-memory LRU for the hot path and the durable store for keys that
// aged out of it. A store error degrades to "not a duplicate" so a
// database blip cannot stall ingestion; the unique constraint on the
// idempotency table still catches the write.
type Deduper struct {
	mu sync.Mutex

	lru   *dedupeLRU
	store DedupeStore

	hitsLRU   int64
	hitsStore int64
	storeErrs int64
}

func NewDeduper(capacity int, store DedupeStore) *Deduper {
	return &Deduper{
		lru:   newDedupeLRU(capacity),
		store: store,
	}
}

// IsDuplicate reports whether the command was already processed.
func (d *Deduper) IsDuplicate(command, requestID string) bool {
	dup, _ := d.Check(command, requestID)
	return dup
}

// Check is IsDuplicate plus the tier that caught the key, "lru" or
// "store", for callers that label metrics by tier.
func (d *Deduper) Check(command, requestID string) (bool, string) {
	if requestID == "" {
		return false, ""
	}
	key := command + ":" + requestID

	d.mu.Lock()
	if d.lru.Contains(key) {
		d.hitsLRU++
		d.mu.Unlock()
		return true, "lru"
	}
	d.mu.Unlock()

	if d.store == nil {
		return false, ""
	}

	// Store lookup outside the lock; a concurrent duplicate of the
	// same key is resolved by the persistence unique constraint.
	isDup, err := d.store.IsDuplicate(command, requestID)
	if err != nil {
		d.mu.Lock()
		d.storeErrs++
		d.mu.Unlock()
		return false, ""
	}
	if !isDup {
		return false, ""
	}

	d.mu.Lock()
	d.hitsStore++
	d.lru.Add(key)
	d.mu.Unlock()
	return true, "store"
}

// MarkProcessed records the command key after its event is sealed.
func (d *Deduper) MarkProcessed(command, requestID string) {
	if requestID == "" {
		return
	}
	d.mu.Lock()
	d.lru.Add(command + ":" + requestID)
	d.mu.Unlock()
}

// WarmFromKeys preloads composite keys, newest last, after a restart.
func (d *Deduper) WarmFromKeys(keys []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range keys {
		d.lru.Add(key)
	}
}

// Stats snapshots the counters.
func (d *Deduper) Stats() DedupeStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DedupeStats{
		HitsLRU:   d.hitsLRU,
		HitsStore: d.hitsStore,
		StoreErrs: d.storeErrs,
		Size:      d.lru.Size(),
		Evictions: d.lru.evictions,
	}
}

// dedupeLRU is the fixed-capacity hot tier. Callers hold the Deduper
// mutex.
type dedupeLRU struct {
	capacity  int
	cache     map[string]*list.Element
	order     *list.List
	evictions int64
}

func newDedupeLRU(capacity int) *dedupeLRU {
	return &dedupeLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (l *dedupeLRU) Contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

func (l *dedupeLRU) Add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.cache[key] = l.order.PushFront(key)
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.cache, oldest.Value.(string))
		l.evictions++
	}
}

func (l *dedupeLRU) Size() int {
	return l.order.Len()
}
