package cache

import (
	"reflect"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry holds one Descriptor per entity type. It is safe for concurrent
// use; registration is serialized, lookups are lock free.
type Registry struct {
	mu          sync.Mutex
	descriptors *xsync.MapOf[reflect.Type, *Descriptor]
}

func NewRegistry() *Registry {
	return &Registry{descriptors: xsync.NewMapOf[reflect.Type, *Descriptor]()}
}

// Option customizes a registration.
type Option func(*registerConfig)

type registerConfig struct {
	retention    Retention
	retentionSet bool
	table        string
}

// WithRetention sets the retention policy of the class. Retention is fixed
// at first registration.
func WithRetention(r Retention) Option {
	return func(c *registerConfig) {
		c.retention = r
		c.retentionSet = true
	}
}

// WithTable overrides the table name used as the class label.
func WithTable(name string) Option {
	return func(c *registerConfig) {
		c.table = name
	}
}

// Register describes model's type and stores the descriptor. model may be a
// struct value, a pointer (typed nil works) or a reflect.Type. Registering a
// type again returns the existing descriptor; asking for a different
// retention is a conflict.
func (r *Registry) Register(model any, opts ...Option) (*Descriptor, error) {
	typ, err := entityType(model)
	if err != nil {
		return nil, err
	}

	cfg := registerConfig{retention: RetentionReclaimable}
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.descriptors.Load(typ); ok {
		if cfg.retentionSet && cfg.retention != d.Retention {
			return nil, errRetentionConflict(d.Name, d.Retention, cfg.retention)
		}
		return d, nil
	}

	d, err := describe(typ, cfg)
	if err != nil {
		return nil, err
	}
	d.registry = r
	r.descriptors.Store(typ, d)
	return d, nil
}

// Register is the generic form of Registry.Register.
func Register[T any](r *Registry, opts ...Option) (*Descriptor, error) {
	return r.Register((*T)(nil), opts...)
}

// MustRegister panics when registration fails. Meant for package level
// setup.
func MustRegister[T any](r *Registry, opts ...Option) *Descriptor {
	d, err := Register[T](r, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup returns the descriptor for typ. Pointer types resolve to their
// element type.
func (r *Registry) Lookup(typ reflect.Type) (*Descriptor, bool) {
	if typ == nil {
		return nil, false
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return r.descriptors.Load(typ)
}

// DescriptorOf returns the descriptor for the dynamic type of v.
func (r *Registry) DescriptorOf(v any) (*Descriptor, bool) {
	if v == nil {
		return nil, false
	}
	return r.Lookup(reflect.TypeOf(v))
}

// Roots returns the descriptors without a registered parent.
func (r *Registry) Roots() []*Descriptor {
	var out []*Descriptor
	r.descriptors.Range(func(_ reflect.Type, d *Descriptor) bool {
		if _, ok := d.Parent(); !ok {
			out = append(out, d)
		}
		return true
	})
	sortDescriptors(out)
	return out
}

// Children returns the registered descriptors that embed d directly.
func (r *Registry) Children(d *Descriptor) []*Descriptor {
	var out []*Descriptor
	r.descriptors.Range(func(_ reflect.Type, c *Descriptor) bool {
		if p, ok := c.Parent(); ok && p == d {
			out = append(out, c)
		}
		return true
	})
	sortDescriptors(out)
	return out
}

func sortDescriptors(ds []*Descriptor) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Type.String() < ds[j].Type.String() })
}

func entityType(model any) (reflect.Type, error) {
	typ, ok := model.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(model)
	}
	if typ == nil {
		return nil, errInvalidEntity("<nil>", "no type information")
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, errInvalidEntity(typ.String(), "not a struct type")
	}
	if typ.Name() == "" {
		return nil, errInvalidEntity(typ.String(), "anonymous struct types are not supported")
	}
	return typ, nil
}
