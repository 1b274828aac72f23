package identitymap

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-identitymap/cache"
	"github.com/goliatone/go-identitymap/internal/cacheinfra"
)

var _ cache.Store = (*Scope)(nil)

// Scope is one unit of work: a request, a job, a command. It holds one
// table per entity class, created on first registration. A Scope may be
// shared by the goroutines of its unit of work.
//
// None of the Scope methods fail. Unknown keys, unregistered types, nil
// scopes and ended scopes turn lookups into misses and writes into no-ops.
type Scope struct {
	id      string
	manager *Manager

	mu     sync.Mutex
	tables map[*cache.Descriptor]cacheinfra.Table
	ended  bool
}

func newScope(m *Manager) *Scope {
	return &Scope{
		id:      uuid.NewString(),
		manager: m,
		tables:  make(map[*cache.Descriptor]cacheinfra.Table),
	}
}

// ID returns the scope identifier.
func (s *Scope) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Manager returns the manager that began the scope.
func (s *Scope) Manager() *Manager {
	if s == nil {
		return nil
	}
	return s.manager
}

// End ends the scope through its manager.
func (s *Scope) End(ctx context.Context) {
	if s == nil {
		return
	}
	s.manager.End(ctx, s)
}

// Ended reports whether the scope was ended.
func (s *Scope) Ended() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Lookup returns the instance cached for key.
func (s *Scope) Lookup(d *cache.Descriptor, key any) (any, bool) {
	if s == nil || d == nil {
		return nil, false
	}
	k, ok := d.NormalizeKey(key)
	if !ok {
		return nil, false
	}
	slot := s.manager.serializer.SerializeKey(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.getLocked(d, slot)
	if ok {
		s.manager.hooks.hit(d.Table, slot)
	} else {
		s.manager.hooks.miss(d.Table, slot)
	}
	return v, ok
}

// Register stores instance under key, replacing whatever the slot held.
// instance must be a non-nil pointer to the descriptor's type.
func (s *Scope) Register(d *cache.Descriptor, key any, instance any) {
	if s == nil || d == nil || !instanceOf(d, instance) {
		return
	}
	k, ok := d.NormalizeKey(key)
	if !ok {
		return
	}
	slot := s.manager.serializer.SerializeKey(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.tableLocked(d).Set(slot, instance)
	s.manager.hooks.register(d.Table, slot)
}

// RegisterInstance registers instance under its own primary key. It reports
// false for unregistered types and unassigned keys.
func (s *Scope) RegisterInstance(instance any) bool {
	d, key, ok := s.identify(instance)
	if !ok {
		return false
	}
	s.Register(d, key, instance)
	return true
}

// Evict empties the slot of key. Absent keys are ignored.
func (s *Scope) Evict(d *cache.Descriptor, key any) {
	if s == nil || d == nil {
		return
	}
	k, ok := d.NormalizeKey(key)
	if !ok {
		return
	}
	slot := s.manager.serializer.SerializeKey(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[d]
	if !ok {
		return
	}
	if t.Delete(slot) {
		s.manager.hooks.evict(d.Table, slot, EvictReasonExplicit)
	}
}

// EvictInstance evicts instance's slot. It reports false for unregistered
// types and unassigned keys.
func (s *Scope) EvictInstance(instance any) bool {
	d, key, ok := s.identify(instance)
	if !ok {
		return false
	}
	s.Evict(d, key)
	return true
}

// AdoptInstance canonicalizes an instance loaded outside the identity map:
// the cached instance for its key wins, otherwise instance is registered.
// Instances that cannot be identified are returned unchanged.
func (s *Scope) AdoptInstance(instance any) any {
	d, key, ok := s.identify(instance)
	if !ok {
		return instance
	}
	return s.adopt(d, key, instance)
}

// Reset discards the table of d. With cascade, the tables of every entity
// embedding d are discarded too.
func (s *Scope) Reset(d *cache.Descriptor, cascade bool) {
	if s == nil || d == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked(d, cascade)
}

// ResetAll resets every registered root class with cascade, in name order,
// then discards tables of descriptors from other registries.
func (s *Scope) ResetAll() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.manager.registry.Roots() {
		s.resetLocked(d, true)
	}
	for d := range s.tables {
		s.dropLocked(d)
	}
}

// Len returns the number of instances held for d.
func (s *Scope) Len(d *cache.Descriptor) int {
	if s == nil || d == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[d]; ok {
		return t.Len()
	}
	return 0
}

func (s *Scope) identify(instance any) (*cache.Descriptor, any, bool) {
	if s == nil {
		return nil, nil, false
	}
	d, ok := s.manager.registry.DescriptorOf(instance)
	if !ok {
		return nil, nil, false
	}
	key, ok := d.KeyOf(instance)
	if !ok {
		return nil, nil, false
	}
	return d, key, true
}

// adopt registers instance unless the slot already holds one, and returns
// the instance that ends up in the slot.
func (s *Scope) adopt(d *cache.Descriptor, key any, instance any) any {
	if !instanceOf(d, instance) {
		return instance
	}
	slot := s.manager.serializer.SerializeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return instance
	}
	if existing, ok := s.getLocked(d, slot); ok {
		return existing
	}
	s.tableLocked(d).Set(slot, instance)
	s.manager.hooks.register(d.Table, slot)
	return instance
}

func (s *Scope) getLocked(d *cache.Descriptor, slot string) (any, bool) {
	if s.ended {
		return nil, false
	}
	t, ok := s.tables[d]
	if !ok {
		return nil, false
	}
	v, ok := t.Get(slot)
	if !ok {
		return nil, false
	}
	if !instanceOf(d, v) {
		s.manager.logger.Warn("identity map table held a foreign value, resetting it", cache.Fields{
			"scope": s.id,
			"table": d.Table,
			"slot":  slot,
			"type":  fmt.Sprintf("%T", v),
		})
		s.dropLocked(d)
		return nil, false
	}
	return v, true
}

func (s *Scope) tableLocked(d *cache.Descriptor) cacheinfra.Table {
	if t, ok := s.tables[d]; ok {
		return t
	}
	t := s.manager.newTable(s, d)
	s.tables[d] = t
	return t
}

func (s *Scope) resetLocked(d *cache.Descriptor, cascade bool) {
	s.dropLocked(d)
	if !cascade {
		return
	}
	for _, child := range d.Children() {
		s.resetLocked(child, true)
	}
}

func (s *Scope) dropLocked(d *cache.Descriptor) {
	t, ok := s.tables[d]
	if !ok {
		return
	}
	dropped := t.Len()
	t.Clear()
	delete(s.tables, d)

	s.manager.hooks.reset(d.Table, dropped)
	s.manager.logger.Debug("identity map table reset", cache.Fields{
		"scope":   s.id,
		"table":   d.Table,
		"dropped": dropped,
	})
}

func (s *Scope) markEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

func instanceOf(d *cache.Descriptor, v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem() == d.Type
}
