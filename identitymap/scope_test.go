package identitymap

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identitymap/cache"
)

func TestScope_RegisterLookupEvict(t *testing.T) {
	f := newFixture(t, cache.DefaultConfig())
	_, scope := f.begin(t)

	if _, ok := scope.Lookup(f.items, 1); ok {
		t.Fatal("Lookup() on a class never cached should miss")
	}

	sword := &Item{ItemID: 1, Name: "sword"}
	scope.Register(f.items, 1, sword)

	if v, ok := scope.Lookup(f.items, int64(1)); !ok || v != sword {
		t.Errorf("Lookup() = %v, %v, want sword", v, ok)
	}
	if v, ok := scope.Lookup(f.items, "1"); !ok || v != sword {
		t.Errorf("Lookup(\"1\") = %v, %v, want sword", v, ok)
	}

	replacement := &Item{ItemID: 1, Name: "replacement"}
	scope.Register(f.items, 1, replacement)
	if v, _ := scope.Lookup(f.items, 1); v != replacement {
		t.Error("Register() should overwrite the slot")
	}

	scope.Evict(f.items, 1)
	if _, ok := scope.Lookup(f.items, 1); ok {
		t.Error("Lookup() after Evict() should miss")
	}

	// absent keys and never cached classes are no-ops
	scope.Evict(f.items, 1)
	scope.Evict(f.owners, 42)
	scope.Evict(f.items, nil)
}

func TestScope_RegisterIgnoresInvalidInput(t *testing.T) {
	f := newFixture(t, cache.DefaultConfig())
	_, scope := f.begin(t)

	scope.Register(f.items, 1, Item{ItemID: 1})    // not a pointer
	scope.Register(f.items, 1, &Owner{ID: 1})      // foreign type
	scope.Register(f.items, 1, (*Item)(nil))       // nil pointer
	scope.Register(f.items, 0, &Item{})            // zero key
	scope.Register(nil, 1, &Item{ItemID: 1})       // no descriptor
	scope.Register(f.items, nil, &Item{ItemID: 1}) // no key

	if got := scope.Len(f.items); got != 0 {
		t.Errorf("Len(items) = %d, want 0", got)
	}
}

func TestScope_InstanceHelpers(t *testing.T) {
	f := newFixture(t, cache.DefaultConfig())
	_, scope := f.begin(t)

	item := &Item{ItemID: 2, Name: "bow"}
	if !scope.RegisterInstance(item) {
		t.Fatal("RegisterInstance() = false, want true")
	}
	if v, ok := scope.Lookup(f.items, 2); !ok || v != item {
		t.Error("RegisterInstance() should cache under the instance's key")
	}

	if scope.RegisterInstance(&Item{Name: "unsaved"}) {
		t.Error("RegisterInstance() of an unkeyed instance should report false")
	}
	if scope.RegisterInstance(&Widget{ID: 1}) {
		t.Error("RegisterInstance() of an unregistered type should report false")
	}
	if scope.EvictInstance(&Widget{ID: 1}) {
		t.Error("EvictInstance() of an unregistered type should report false")
	}

	if !scope.EvictInstance(&Item{ItemID: 2}) {
		t.Error("EvictInstance() = false, want true")
	}
	if _, ok := scope.Lookup(f.items, 2); ok {
		t.Error("EvictInstance() should empty the slot")
	}
}

func TestScope_NamedKeyTypeSharesSlot(t *testing.T) {
	f := newFixture(t, cache.DefaultConfig())
	codes := cache.MustRegister[Code](f.registry)
	_, scope := f.begin(t)

	code := &Code{ID: CodeID(1), Label: "first"}
	if !scope.RegisterInstance(code) {
		t.Fatal("RegisterInstance() = false, want true")
	}

	for _, key := range []any{"1", 1, int64(1), CodeID(1)} {
		if v, ok := scope.Lookup(codes, key); !ok || v != code {
			t.Errorf("Lookup(%T(%v)) = %v, %v, want the registered code", key, key, v, ok)
		}
	}

	loads := 0
	got, _ := Fetch(scope, codes, "1", func() (any, error) {
		loads++
		return &Code{ID: CodeID(1), Label: "reloaded"}, nil
	})
	if got != code || loads != 0 {
		t.Errorf("Fetch() = %v after %d loads, want the registered code without loading", got, loads)
	}
}

func TestScope_ResetCascade(t *testing.T) {
	f := newFixture(t, cache.DefaultConfig())
	_, scope := f.begin(t)

	fill := func() {
		scope.RegisterInstance(&Item{ItemID: 1})
		scope.RegisterInstance(&Weapon{Item: Item{ItemID: 2}})
		scope.RegisterInstance(&Owner{ID: 3})
	}

	fill()
	scope.Reset(f.items, false)
	if scope.Len(f.items) != 0 {
		t.Error("Reset() should empty the class table")
	}
	if scope.Len(f.weapons) != 1 {
		t.Error("Reset() without cascade must keep subclass tables")
	}

	fill()
	scope.Reset(f.items, true)
	if scope.Len(f.items) != 0 || scope.Len(f.weapons) != 0 {
		t.Error("Reset() with cascade should empty subclass tables")
	}
	if scope.Len(f.owners) != 1 {
		t.Error("Reset() must not touch unrelated classes")
	}

	// reset of a table that was never created
	scope.Reset(f.profiles, true)

	scope.RegisterInstance(&Item{ItemID: 4})
	if scope.Len(f.items) != 1 {
		t.Error("a reset table should accept new registrations")
	}

	scope.ResetAll()
	for _, d := range []*cache.Descriptor{f.items, f.weapons, f.owners} {
		if got := scope.Len(d); got != 0 {
			t.Errorf("Len(%s) after ResetAll() = %d, want 0", d.Table, got)
		}
	}
}

func TestScope_ResetAllWalksRootsInOrder(t *testing.T) {
	var order []string
	hooks := &Hooks{}
	hooks.AddOnReset(func(table string, _ int) { order = append(order, table) })

	f := newFixture(t, cache.DefaultConfig(), WithHooks(hooks))
	_, scope := f.begin(t)

	scope.RegisterInstance(&Setting{Key: "theme"})
	scope.RegisterInstance(&Weapon{Item: Item{ItemID: 2}})
	scope.RegisterInstance(&Owner{ID: 3})
	scope.RegisterInstance(&Item{ItemID: 1})

	other := cache.MustRegister[Item](cache.NewRegistry(), cache.WithTable("foreign_items"))
	scope.Register(other, 9, &Item{ItemID: 9})

	scope.ResetAll()

	want := []string{"items", "weapons", "owners", "settings", "foreign_items"}
	if len(order) != len(want) {
		t.Fatalf("reset order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("reset order = %v, want %v", order, want)
			break
		}
	}
}

func TestScope_Retention(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.Reclaim.Capacity = 2

	hooks, rec := newRecordingHooks()
	f := newFixture(t, cfg, WithHooks(hooks))
	_, scope := f.begin(t)

	for i := int64(1); i <= 3; i++ {
		scope.RegisterInstance(&Item{ItemID: i})
		scope.RegisterInstance(&Setting{Key: string(rune('a' + i - 1))})
	}

	if got := scope.Len(f.items); got != 2 {
		t.Errorf("Len(items) = %d, want 2 (reclaimable, capacity 2)", got)
	}
	if _, ok := scope.Lookup(f.items, 1); ok {
		t.Error("oldest reclaimable entry should have been reclaimed")
	}
	if got := scope.Len(f.settings); got != 3 {
		t.Errorf("Len(settings) = %d, want 3 (strong)", got)
	}

	want := "items/1/reclaimed"
	if len(rec.evicts) != 1 || rec.evicts[0] != want {
		t.Errorf("evict hooks = %v, want [%s]", rec.evicts, want)
	}
}

func TestScope_SharedBackend(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.Reclaim.Backend = cache.ReclaimShared
	cfg.Shared.Capacity = 100
	cfg.Shared.NumShards = 2
	cfg.Shared.TTL = time.Minute

	f := newFixture(t, cfg)
	ctxA, a := f.manager.Begin(context.Background())
	_, b := f.begin(t)

	sword := &Item{ItemID: 1, Name: "sword"}
	a.Register(f.items, 1, sword)
	b.Register(f.items, 1, &Item{ItemID: 1, Name: "other"})

	if v, ok := a.Lookup(f.items, 1); !ok || v != sword {
		t.Error("shared backend should keep scopes apart")
	}
	if got := a.Len(f.items); got != 1 {
		t.Errorf("Len(items) = %d, want 1", got)
	}

	f.manager.End(ctxA, a)

	if _, ok := b.Lookup(f.items, 1); !ok {
		t.Error("ending one scope must not clear another")
	}
	if got := f.manager.shared.Len(); got != 1 {
		t.Errorf("shared slots after End() = %d, want 1", got)
	}
}

func TestScope_SharedBackendSeparatesClassesWithOneTable(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.Reclaim.Backend = cache.ReclaimShared
	cfg.Shared.Capacity = 100
	cfg.Shared.NumShards = 2
	cfg.Shared.TTL = time.Minute

	f := newFixture(t, cfg)
	gadgets := cache.MustRegister[Gadget](f.registry, cache.WithTable("items"))
	_, scope := f.begin(t)

	sword := &Item{ItemID: 1, Name: "sword"}
	gadget := &Gadget{ID: 1}
	scope.Register(f.items, 1, sword)
	scope.Register(gadgets, 1, gadget)

	if v, ok := scope.Lookup(f.items, 1); !ok || v != sword {
		t.Errorf("Lookup(items, 1) = %v, %v, want sword", v, ok)
	}
	if v, ok := scope.Lookup(gadgets, 1); !ok || v != gadget {
		t.Errorf("Lookup(gadgets, 1) = %v, %v, want gadget", v, ok)
	}

	scope.Reset(gadgets, false)
	if _, ok := scope.Lookup(f.items, 1); !ok {
		t.Error("resetting one class must not clear another with the same table label")
	}
}

func TestScope_SelfHealsForeignValues(t *testing.T) {
	logger := &recordingLogger{}
	f := newFixture(t, cache.DefaultConfig(), WithLogger(logger))
	_, scope := f.begin(t)

	scope.RegisterInstance(&Item{ItemID: 1})
	scope.RegisterInstance(&Item{ItemID: 2})

	// corrupt the table behind the scope's back
	scope.mu.Lock()
	scope.tables[f.items].Set("1", "not an item")
	scope.mu.Unlock()

	if _, ok := scope.Lookup(f.items, 1); ok {
		t.Error("Lookup() of a foreign value should miss")
	}
	if got := scope.Len(f.items); got != 0 {
		t.Errorf("Len(items) = %d, want 0 after self-heal", got)
	}
	if logger.count("warn") != 1 {
		t.Errorf("expected one warning, got %v", logger.entries)
	}
}

func TestScope_EndedScopeStopsCaching(t *testing.T) {
	f := newFixture(t, cache.DefaultConfig())
	ctx, scope := f.manager.Begin(context.Background())

	scope.RegisterInstance(&Item{ItemID: 1})
	scope.End(ctx)

	if !scope.Ended() {
		t.Fatal("Ended() = false after End()")
	}
	if _, ok := scope.Lookup(f.items, 1); ok {
		t.Error("Lookup() on an ended scope should miss")
	}

	scope.RegisterInstance(&Item{ItemID: 2})
	if got := scope.Len(f.items); got != 0 {
		t.Errorf("Len(items) = %d, want 0 on an ended scope", got)
	}

	a, _ := New[Item](ctx, cache.Pos(3))
	b, _ := New[Item](ctx, cache.Pos(3))
	if a == b {
		t.Error("an ended scope should not cache constructions")
	}
}

func TestScope_Hooks(t *testing.T) {
	hooks, rec := newRecordingHooks()
	f := newFixture(t, cache.DefaultConfig(), WithHooks(hooks))
	_, scope := f.begin(t)

	scope.Lookup(f.items, 1)
	scope.Register(f.items, 1, &Item{ItemID: 1})
	scope.Lookup(f.items, 1)
	scope.Evict(f.items, 1)
	scope.Evict(f.items, 1)
	scope.Register(f.items, 2, &Item{ItemID: 2})
	scope.Reset(f.items, false)

	check := func(name string, got []string, want ...string) {
		t.Helper()
		if len(got) != len(want) {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s = %v, want %v", name, got, want)
				return
			}
		}
	}

	check("misses", rec.misses, "items/1")
	check("hits", rec.hits, "items/1")
	check("register", rec.register, "items/1", "items/2")
	check("evicts", rec.evicts, "items/1/explicit")
	if rec.resets["items"] != 1 {
		t.Errorf("resets[items] = %d, want 1", rec.resets["items"])
	}
}

func TestScope_NilSafe(t *testing.T) {
	var scope *Scope
	f := newFixture(t, cache.DefaultConfig())

	if _, ok := scope.Lookup(f.items, 1); ok {
		t.Error("nil scope Lookup() should miss")
	}
	scope.Register(f.items, 1, &Item{ItemID: 1})
	scope.Evict(f.items, 1)
	scope.Reset(f.items, true)
	scope.ResetAll()
	scope.End(context.Background())

	if scope.Len(f.items) != 0 || scope.ID() != "" || !scope.Ended() {
		t.Error("nil scope should behave as an empty ended scope")
	}
	if scope.RegisterInstance(&Item{ItemID: 1}) {
		t.Error("nil scope RegisterInstance() should report false")
	}
}

func TestEvictReason_String(t *testing.T) {
	if EvictReasonExplicit.String() != "explicit" || EvictReasonReclaimed.String() != "reclaimed" {
		t.Error("unexpected EvictReason strings")
	}
	if EvictReason(9).String() != "unknown" {
		t.Error("unexpected string for unknown EvictReason")
	}
}
