package cacheinfra

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Table is one per-class slot table of a scope. Slot keys are serialized
// cache keys. Implementations other than the shared table expect their
// caller to serialize access.
type Table interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	// Delete removes key and reports whether it was present.
	Delete(key string) bool
	Len() int
	// Clear drops every slot without reporting reclamation.
	Clear()
}

// strongTable holds its entries until they are deleted or cleared.
type strongTable struct {
	entries map[string]any
}

// NewStrongTable returns an unbounded table.
func NewStrongTable() Table {
	return &strongTable{entries: make(map[string]any)}
}

func (t *strongTable) Get(key string) (any, bool) {
	v, ok := t.entries[key]
	return v, ok
}

func (t *strongTable) Set(key string, value any) {
	t.entries[key] = value
}

func (t *strongTable) Delete(key string) bool {
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

func (t *strongTable) Len() int {
	return len(t.entries)
}

func (t *strongTable) Clear() {
	t.entries = make(map[string]any)
}

// ReclaimFunc is told about entries a reclaimable table dropped on its own.
type ReclaimFunc func(key string, value any)

// lruTable drops its least recently used entry when full.
type lruTable struct {
	cache *lru.Cache[string, any]
	// explicit is set while the table itself removes entries so the
	// eviction callback only reports capacity driven drops.
	explicit  bool
	onReclaim ReclaimFunc
}

// NewLRUTable returns a table holding at most capacity entries. onReclaim
// may be nil.
func NewLRUTable(capacity int, onReclaim ReclaimFunc) (Table, error) {
	t := &lruTable{onReclaim: onReclaim}
	c, err := lru.NewWithEvict[string, any](capacity, t.evicted)
	if err != nil {
		return nil, err
	}
	t.cache = c
	return t, nil
}

func (t *lruTable) evicted(key string, value any) {
	if t.explicit || t.onReclaim == nil {
		return
	}
	t.onReclaim(key, value)
}

func (t *lruTable) Get(key string) (any, bool) {
	return t.cache.Get(key)
}

func (t *lruTable) Set(key string, value any) {
	t.cache.Add(key, value)
}

func (t *lruTable) Delete(key string) bool {
	t.explicit = true
	defer func() { t.explicit = false }()
	return t.cache.Remove(key)
}

func (t *lruTable) Len() int {
	return t.cache.Len()
}

func (t *lruTable) Clear() {
	t.explicit = true
	defer func() { t.explicit = false }()
	t.cache.Purge()
}
