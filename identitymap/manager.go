package identitymap

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-identitymap/cache"
	"github.com/goliatone/go-identitymap/internal/cacheinfra"
)

// Manager owns the live scopes of a process and the storage they share.
type Manager struct {
	registry   *cache.Registry
	config     cache.Config
	logger     cache.Logger
	hooks      *Hooks
	serializer cache.KeySerializer
	bus        *Bus

	shared *cacheinfra.SharedBackend
	scopes *xsync.MapOf[string, *Scope]
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger cache.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHooks sets the event hooks.
func WithHooks(hooks *Hooks) ManagerOption {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithKeySerializer replaces the default slot key serializer.
func WithKeySerializer(serializer cache.KeySerializer) ManagerOption {
	return func(m *Manager) {
		if serializer != nil {
			m.serializer = serializer
		}
	}
}

// WithBus makes End publish ScopeEnded on bus.
func WithBus(bus *Bus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// NewManager validates cfg and builds a manager for the entities of
// registry. A nil registry gets a fresh one.
func NewManager(registry *cache.Registry, cfg cache.Config, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = cache.NewRegistry()
	}

	m := &Manager{
		registry:   registry,
		config:     cfg,
		logger:     cache.NopLogger{},
		serializer: cache.NewDefaultKeySerializer(),
		scopes:     xsync.NewMapOf[string, *Scope](),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.Reclaim.Backend == cache.ReclaimShared {
		shared, err := cacheinfra.NewSharedBackend(cfg.Shared.ToInternal())
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to start shared backend").
				WithTextCode(cache.TextCodeInvalidConfig)
		}
		m.shared = shared
	}

	return m, nil
}

func (m *Manager) Registry() *cache.Registry { return m.registry }
func (m *Manager) Config() cache.Config      { return m.config }
func (m *Manager) Logger() cache.Logger      { return m.logger }

// Begin opens a scope and returns a context carrying it.
func (m *Manager) Begin(ctx context.Context) (context.Context, *Scope) {
	s := newScope(m)
	m.scopes.Store(s.id, s)
	m.logger.Debug("identity map scope started", cache.Fields{"scope": s.id})
	return WithScope(ctx, s), s
}

// End publishes ScopeEnded, discards every table of s and stops it from
// caching. Ending a scope twice is a no-op.
func (m *Manager) End(ctx context.Context, s *Scope) {
	if s == nil {
		return
	}
	if _, live := m.scopes.LoadAndDelete(s.id); !live {
		return
	}

	if m.bus != nil {
		m.bus.ScopeEnded(ctx, s)
	}

	s.markEnded()
	s.ResetAll()
	if m.shared != nil {
		m.shared.DeleteByPrefix(cache.JoinKey(s.id, ""))
	}

	m.logger.Debug("identity map scope ended", cache.Fields{"scope": s.id})
}

// Scope returns the live scope with the given id.
func (m *Manager) Scope(id string) (*Scope, bool) {
	return m.scopes.Load(id)
}

// Live returns the number of scopes begun and not yet ended.
func (m *Manager) Live() int {
	return m.scopes.Size()
}

// ResetAll discards every table of every live scope.
func (m *Manager) ResetAll() {
	reset := 0
	m.scopes.Range(func(_ string, s *Scope) bool {
		s.ResetAll()
		reset++
		return true
	})
	m.logger.Debug("identity map reset", cache.Fields{"scopes": reset})
}

func (m *Manager) newTable(s *Scope, d *cache.Descriptor) cacheinfra.Table {
	if d.Retention == cache.RetentionStrong {
		return cacheinfra.NewStrongTable()
	}

	if m.shared != nil {
		return m.shared.Table(cache.JoinKey(s.id, d.Class()))
	}

	table, err := cacheinfra.NewLRUTable(m.config.Reclaim.Capacity, func(key string, _ any) {
		m.hooks.evict(d.Table, key, EvictReasonReclaimed)
	})
	if err != nil {
		m.logger.Error("failed to create reclaimable table, holding entries strongly", cache.Fields{
			"table": d.Table,
			"error": err.Error(),
		})
		return cacheinfra.NewStrongTable()
	}
	return table
}
