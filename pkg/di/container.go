package di

import (
	"context"
	"net/http"

	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-identitymap/cache"
	"github.com/goliatone/go-identitymap/identitymap"
	"github.com/goliatone/go-identitymap/pkg/metrics"
	"github.com/goliatone/go-identitymap/repositorycache"
)

// Container wires the identity map components of an application: one
// registry, one manager, one bus with a synchronizer attached, and the hooks
// and logger they share. Cached repositories built from the container keep
// the manager's scopes coherent.
type Container struct {
	config       cache.Config
	registry     *cache.Registry
	manager      *identitymap.Manager
	bus          *identitymap.Bus
	synchronizer *identitymap.Synchronizer
	hooks        *identitymap.Hooks
	logger       cache.Logger
	detach       func()
}

type options struct {
	registry   *cache.Registry
	logger     cache.Logger
	hooks      *identitymap.Hooks
	recorders  []metrics.Recorder
	serializer cache.KeySerializer
}

// Option customizes a Container.
type Option func(*options)

// WithRegistry uses an existing registry instead of a new one.
func WithRegistry(registry *cache.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithLogger sets the logger shared by the manager and synchronizer.
func WithLogger(logger cache.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHooks sets the hooks the manager fires. Recorders are added to them.
func WithHooks(hooks *identitymap.Hooks) Option {
	return func(o *options) { o.hooks = hooks }
}

// WithRecorder feeds identity map events to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

// WithKeySerializer replaces the default slot key serializer.
func WithKeySerializer(serializer cache.KeySerializer) Option {
	return func(o *options) { o.serializer = serializer }
}

// NewContainer creates a container from config. The configuration is
// validated by the manager.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.registry == nil {
		o.registry = cache.NewRegistry()
	}
	if o.logger == nil {
		o.logger = cache.NopLogger{}
	}
	if o.hooks == nil {
		o.hooks = &identitymap.Hooks{}
	}
	for _, r := range o.recorders {
		metrics.Attach(o.hooks, r)
	}

	bus := identitymap.NewBus()
	managerOpts := []identitymap.ManagerOption{
		identitymap.WithLogger(o.logger),
		identitymap.WithHooks(o.hooks),
		identitymap.WithBus(bus),
	}
	if o.serializer != nil {
		managerOpts = append(managerOpts, identitymap.WithKeySerializer(o.serializer))
	}

	manager, err := identitymap.NewManager(o.registry, config, managerOpts...)
	if err != nil {
		return nil, err
	}

	synchronizer := identitymap.NewSynchronizer(manager)

	return &Container{
		config:       config,
		registry:     o.registry,
		manager:      manager,
		bus:          bus,
		synchronizer: synchronizer,
		hooks:        o.hooks,
		logger:       o.logger,
		detach:       synchronizer.Attach(bus),
	}, nil
}

// NewContainerWithDefaults creates a container using cache.DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

func (c *Container) Config() cache.Config                    { return c.config }
func (c *Container) Registry() *cache.Registry               { return c.registry }
func (c *Container) Manager() *identitymap.Manager           { return c.manager }
func (c *Container) Bus() *identitymap.Bus                   { return c.bus }
func (c *Container) Synchronizer() *identitymap.Synchronizer { return c.synchronizer }
func (c *Container) Hooks() *identitymap.Hooks               { return c.hooks }
func (c *Container) Logger() cache.Logger                    { return c.logger }

// Begin opens a scope on the container's manager.
func (c *Container) Begin(ctx context.Context) (context.Context, *identitymap.Scope) {
	return c.manager.Begin(ctx)
}

// Middleware returns the HTTP middleware opening one scope per request.
func (c *Container) Middleware() func(http.Handler) http.Handler {
	return identitymap.Middleware(c.manager)
}

// SchemaHook returns a bun query hook publishing schema changes on the
// container's bus. Add it with db.AddQueryHook.
func (c *Container) SchemaHook() *identitymap.SchemaHook {
	return identitymap.NewSchemaHook(c.bus)
}

// Close detaches the synchronizer and clears every live scope. Scopes stay
// usable but are no longer kept coherent by notifications.
func (c *Container) Close() {
	c.detach()
	c.manager.ResetAll()
}

// Register registers T with the container's registry.
func Register[T any](c *Container, opts ...cache.Option) (*cache.Descriptor, error) {
	return cache.Register[T](c.registry, opts...)
}

// NewCachedRepository wraps base with the container's identity map. T must be
// a pointer to a struct.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[*User](container, baseUserRepository)
func NewCachedRepository[T any](c *Container, base repository.Repository[T], opts ...cache.Option) (*repositorycache.CachedRepository[T], error) {
	return repositorycache.New(base, c.registry, c.bus, opts...)
}
