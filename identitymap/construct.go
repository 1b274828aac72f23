package identitymap

import (
	"context"
	"fmt"
	"reflect"

	"github.com/goliatone/go-identitymap/cache"
)

// GetOrConstruct returns the instance a construction request identifies.
// When the key cannot be inferred from args, or s is nil, construct runs and
// its result is returned uncached. On a hit construct is not called. On a
// miss the constructed instance is registered, unless another goroutine
// registered one first, in which case that one is returned.
//
// Errors come from construct only; nothing is registered when it fails.
func GetOrConstruct(s *Scope, d *cache.Descriptor, args cache.Args, construct cache.ConstructFn) (any, error) {
	key, ok := cache.InferKey(d, args)
	if !ok || s == nil {
		return construct()
	}
	return s.fetch(d, key, construct)
}

// Fetch is GetOrConstruct for callers that already hold the key.
func Fetch(s *Scope, d *cache.Descriptor, key any, construct cache.ConstructFn) (any, error) {
	if s == nil || d == nil {
		return construct()
	}
	k, ok := d.NormalizeKey(key)
	if !ok {
		return construct()
	}
	return s.fetch(d, k, construct)
}

func (s *Scope) fetch(d *cache.Descriptor, key any, construct cache.ConstructFn) (any, error) {
	if v, ok := s.Lookup(d, key); ok {
		return v, nil
	}

	v, err := construct()
	if err != nil {
		return v, err
	}
	// the loaded record's own key wins over the one it was asked for
	if own, ok := d.KeyOf(v); ok {
		key = own
	}
	return s.adopt(d, key, v), nil
}

// New constructs a *T from args through the scope carried by ctx, the way a
// call to T's constructor would: New[Item](ctx, cache.Pos(1, "sword")) twice
// in the same scope returns the same pointer, and the second set of values
// is ignored.
func New[T any](ctx context.Context, args cache.Args) (*T, error) {
	s := ScopeFromContext(ctx)
	if s == nil {
		return nil, cache.ErrNoScope()
	}
	return NewIn[T](s, args)
}

// NewIn is New with an explicit scope.
func NewIn[T any](s *Scope, args cache.Args) (*T, error) {
	if s == nil {
		return nil, cache.ErrNoScope()
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, cache.ErrInvalidEntity(typ.String(), "not a struct type")
	}
	d, ok := s.manager.registry.Lookup(typ)
	if !ok {
		return nil, cache.ErrNotRegistered(typ.String())
	}

	v, err := GetOrConstruct(s, d, args, func() (any, error) {
		return d.Build(args)
	})
	if err != nil {
		return nil, err
	}
	typed, ok := v.(*T)
	if !ok {
		return nil, cache.ErrInvalidEntity(typ.String(), fmt.Sprintf("constructed %T", v))
	}
	return typed, nil
}

// Adopt canonicalizes a record loaded by a backing store: if the scope
// already holds an instance with the same identity, that instance is
// returned, otherwise record is registered and returned.
func Adopt[T any](s *Scope, record T) T {
	if s == nil {
		return record
	}
	if typed, ok := s.AdoptInstance(record).(T); ok {
		return typed
	}
	return record
}

// AdoptAll applies Adopt to every record in place and returns the slice.
func AdoptAll[T any](s *Scope, records []T) []T {
	if s == nil {
		return records
	}
	for i := range records {
		records[i] = Adopt(s, records[i])
	}
	return records
}
