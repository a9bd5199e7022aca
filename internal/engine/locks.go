package engine

import "sync"

// paramsKey is the entity-lock key for an engine's parameter block.
// Setters hold it across mutate and record so parameter events land in
// the log in the order the mutations took effect.
const paramsKey = "params"

// createKey serializes entity creation where ordering against a shared
// counter must survive replay.
const createKey = "create"

// entityLocks serializes operations per entity id. Entries are never
// removed: entities are retained forever, so the table is bounded by
// the entity count.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the named lock and returns its release func.
func (el *entityLocks) Lock(key string) func() {
	el.mu.Lock()
	l, ok := el.locks[key]
	if !ok {
		l = &sync.Mutex{}
		el.locks[key] = l
	}
	el.mu.Unlock()

	l.Lock()
	return l.Unlock
}
