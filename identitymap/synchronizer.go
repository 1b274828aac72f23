package identitymap

import (
	"context"
	"fmt"

	"github.com/goliatone/go-identitymap/cache"
)

// Synchronizer keeps the scopes of a manager coherent with persistence
// events. Notifications whose context carries no scope are ignored.
type Synchronizer struct {
	manager *Manager
	logger  cache.Logger
}

func NewSynchronizer(m *Manager) *Synchronizer {
	return &Synchronizer{manager: m, logger: m.logger}
}

// Attach subscribes the synchronizer to the four notifications of bus and
// returns a function detaching it.
func (s *Synchronizer) Attach(bus *Bus) func() {
	unsubscribe := []func(){
		bus.SubscribeSaved(s.OnSaved),
		bus.SubscribePreDelete(s.OnPreDelete),
		bus.SubscribeScopeEnded(s.OnScopeEnded),
		bus.SubscribeSchemaChanged(s.OnSchemaChanged),
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}

// OnSaved registers the saved instance in the context's scope, replacing
// any instance already cached for its key.
func (s *Synchronizer) OnSaved(ctx context.Context, instance any) {
	scope := ScopeFromContext(ctx)
	if scope == nil {
		return
	}
	if !scope.RegisterInstance(instance) {
		s.logger.Debug("saved instance not cached", cache.Fields{
			"scope": scope.ID(),
			"type":  fmt.Sprintf("%T", instance),
		})
	}
}

// OnPreDelete evicts the instance from the context's scope. Instances of
// unregistered types, as produced by cascades, are ignored.
func (s *Synchronizer) OnPreDelete(ctx context.Context, instance any) {
	scope := ScopeFromContext(ctx)
	if scope == nil {
		return
	}
	scope.EvictInstance(instance)
}

// OnScopeEnded discards every table of the ended scope.
func (s *Synchronizer) OnScopeEnded(_ context.Context, scope *Scope) {
	scope.ResetAll()
}

// OnSchemaChanged discards every table of every live scope.
func (s *Synchronizer) OnSchemaChanged(_ context.Context) {
	s.logger.Info("schema changed, resetting identity maps", cache.Fields{"scopes": s.manager.Live()})
	s.manager.ResetAll()
}
