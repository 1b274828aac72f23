package identitymap

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-identitymap/cache"
)

type Item struct {
	bun.BaseModel `bun:"table:items"`

	ItemID int64  `bun:"item_id,pk,autoincrement"`
	Name   string `bun:"name"`
}

// Weapon embeds Item, which makes it a subclass of Item for cascading
// resets.
type Weapon struct {
	Item

	Damage int
}

type Owner struct {
	ID   int64 `bun:",pk"`
	Name string
}

type Profile struct {
	OwnerID int64  `bun:"owner_id,pk"`
	Owner   *Owner `bun:"rel:belongs-to,join:owner_id=id"`
	Bio     string
}

type Setting struct {
	Key   string `bun:"key,pk"`
	Value string
}

// CodeID prints differently from the number it stores.
type CodeID int64

func (c CodeID) String() string { return fmt.Sprintf("code-%d", int64(c)) }

type Code struct {
	ID    CodeID `bun:"id,pk"`
	Label string
}

// Gadget is registered under the table label of Item.
type Gadget struct {
	ID int64 `bun:",pk"`
}

// Widget is never registered.
type Widget struct {
	ID int64
}

type fixture struct {
	registry *cache.Registry
	manager  *Manager
	items    *cache.Descriptor
	weapons  *cache.Descriptor
	owners   *cache.Descriptor
	profiles *cache.Descriptor
	settings *cache.Descriptor
}

func newFixture(t *testing.T, cfg cache.Config, opts ...ManagerOption) *fixture {
	t.Helper()

	f := &fixture{registry: cache.NewRegistry()}
	f.items = cache.MustRegister[Item](f.registry)
	f.weapons = cache.MustRegister[Weapon](f.registry)
	f.owners = cache.MustRegister[Owner](f.registry)
	f.profiles = cache.MustRegister[Profile](f.registry)
	f.settings = cache.MustRegister[Setting](f.registry, cache.WithRetention(cache.RetentionStrong))

	m, err := NewManager(f.registry, cfg, opts...)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	f.manager = m
	return f
}

func (f *fixture) begin(t *testing.T) (context.Context, *Scope) {
	t.Helper()
	ctx, scope := f.manager.Begin(context.Background())
	t.Cleanup(func() { f.manager.End(ctx, scope) })
	return ctx, scope
}

// recordingHooks collects hook invocations.
type recordingHooks struct {
	mu       sync.Mutex
	hits     []string
	misses   []string
	register []string
	evicts   []string
	resets   map[string]int
}

func newRecordingHooks() (*Hooks, *recordingHooks) {
	rec := &recordingHooks{resets: map[string]int{}}
	h := &Hooks{}
	h.AddOnHit(func(table, key string) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.hits = append(rec.hits, table+"/"+key)
	})
	h.AddOnMiss(func(table, key string) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.misses = append(rec.misses, table+"/"+key)
	})
	h.AddOnRegister(func(table, key string) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.register = append(rec.register, table+"/"+key)
	})
	h.AddOnEvict(func(table, key string, reason EvictReason) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.evicts = append(rec.evicts, table+"/"+key+"/"+reason.String())
	})
	h.AddOnReset(func(table string, dropped int) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.resets[table] += dropped
	})
	return h, rec
}

// recordingLogger collects log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ cache.Fields) { l.log("debug", msg) }
func (l *recordingLogger) Info(msg string, _ cache.Fields)  { l.log("info", msg) }
func (l *recordingLogger) Warn(msg string, _ cache.Fields)  { l.log("warn", msg) }
func (l *recordingLogger) Error(msg string, _ cache.Fields) { l.log("error", msg) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if len(e) > len(level) && e[:len(level)] == level {
			n++
		}
	}
	return n
}
