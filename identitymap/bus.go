package identitymap

import (
	"context"
	"sync"
)

type (
	// SavedHandler observes persisted instances.
	SavedHandler func(ctx context.Context, instance any)
	// PreDeleteHandler observes instances about to be deleted.
	PreDeleteHandler func(ctx context.Context, instance any)
	// ScopeEndedHandler observes scopes as they end.
	ScopeEndedHandler func(ctx context.Context, scope *Scope)
	// SchemaChangedHandler observes schema changes of the backing store.
	SchemaChangedHandler func(ctx context.Context)
)

// Notifier is the publishing side of the bus, the part persistence code
// depends on.
type Notifier interface {
	Saved(ctx context.Context, instances ...any)
	PreDelete(ctx context.Context, instances ...any)
	SchemaChanged(ctx context.Context)
}

var _ Notifier = (*Bus)(nil)

// Bus delivers lifecycle notifications to explicit subscribers. Delivery is
// synchronous, in subscription order. Handlers may subscribe or unsubscribe
// from within a delivery; the change applies to the next publication.
type Bus struct {
	mu            sync.RWMutex
	seq           uint64
	saved         []subscription[SavedHandler]
	preDelete     []subscription[PreDeleteHandler]
	scopeEnded    []subscription[ScopeEndedHandler]
	schemaChanged []subscription[SchemaChangedHandler]
}

type subscription[H any] struct {
	id uint64
	fn H
}

func NewBus() *Bus {
	return &Bus{}
}

// SubscribeSaved registers h and returns a function removing it.
func (b *Bus) SubscribeSaved(h SavedHandler) func() {
	return subscribe(b, &b.saved, h)
}

// SubscribePreDelete registers h and returns a function removing it.
func (b *Bus) SubscribePreDelete(h PreDeleteHandler) func() {
	return subscribe(b, &b.preDelete, h)
}

// SubscribeScopeEnded registers h and returns a function removing it.
func (b *Bus) SubscribeScopeEnded(h ScopeEndedHandler) func() {
	return subscribe(b, &b.scopeEnded, h)
}

// SubscribeSchemaChanged registers h and returns a function removing it.
func (b *Bus) SubscribeSchemaChanged(h SchemaChangedHandler) func() {
	return subscribe(b, &b.schemaChanged, h)
}

// Saved publishes each instance to the saved subscribers.
func (b *Bus) Saved(ctx context.Context, instances ...any) {
	handlers := snapshot(b, &b.saved)
	for _, instance := range instances {
		for _, h := range handlers {
			h(ctx, instance)
		}
	}
}

// PreDelete publishes each instance to the pre-delete subscribers.
func (b *Bus) PreDelete(ctx context.Context, instances ...any) {
	handlers := snapshot(b, &b.preDelete)
	for _, instance := range instances {
		for _, h := range handlers {
			h(ctx, instance)
		}
	}
}

// ScopeEnded publishes scope to the scope-ended subscribers.
func (b *Bus) ScopeEnded(ctx context.Context, scope *Scope) {
	for _, h := range snapshot(b, &b.scopeEnded) {
		h(ctx, scope)
	}
}

// SchemaChanged notifies the schema-changed subscribers.
func (b *Bus) SchemaChanged(ctx context.Context) {
	for _, h := range snapshot(b, &b.schemaChanged) {
		h(ctx)
	}
}

func subscribe[H any](b *Bus, list *[]subscription[H], h H) func() {
	b.mu.Lock()
	b.seq++
	id := b.seq
	*list = append(*list, subscription[H]{id: id, fn: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			kept := (*list)[:0:0]
			for _, sub := range *list {
				if sub.id != id {
					kept = append(kept, sub)
				}
			}
			*list = kept
		})
	}
}

func snapshot[H any](b *Bus, list *[]subscription[H]) []H {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]H, len(*list))
	for i, sub := range *list {
		out[i] = sub.fn
	}
	return out
}
