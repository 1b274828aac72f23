package repositorycache

import (
	"context"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-identitymap/cache"
	"github.com/goliatone/go-identitymap/identitymap"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// CachedRepository decorates a base repository with an identity map. Reads
// return the scope's canonical instance for every loaded record; writes keep
// the scope coherent through the notifier. Without a scope in the context
// every call passes straight through.
type CachedRepository[T any] struct {
	base       repository.Repository[T]
	descriptor *cache.Descriptor
	notifier   identitymap.Notifier
}

// New wraps base. T must be a pointer to a struct; the struct is registered
// in registry with opts. registry must be the one the scopes' manager uses.
// notifier may be nil, in which case writes only evict.
func New[T any](base repository.Repository[T], registry *cache.Registry, notifier identitymap.Notifier, opts ...cache.Option) (*CachedRepository[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, goerrors.New(typ.String()+" is not a pointer to a struct", goerrors.CategoryBadInput).
			WithTextCode(cache.TextCodeInvalidEntity)
	}

	d, err := registry.Register(typ, opts...)
	if err != nil {
		return nil, err
	}

	return &CachedRepository[T]{
		base:       base,
		descriptor: d,
		notifier:   notifier,
	}, nil
}

// Descriptor returns the descriptor of the decorated entity.
func (c *CachedRepository[T]) Descriptor() *cache.Descriptor {
	return c.descriptor
}

// Get retrieves a single record and returns its canonical instance
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	record, err := c.base.Get(ctx, criteria...)
	if err != nil {
		return record, err
	}
	return identitymap.Adopt(identitymap.ScopeFromContext(ctx), record), nil
}

// GetByID returns the cached instance for id when the scope holds one and
// loads it otherwise. Criteria may change what a load returns, so calls with
// criteria always load and then canonicalize.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	scope := identitymap.ScopeFromContext(ctx)
	if scope == nil || len(criteria) > 0 {
		record, err := c.base.GetByID(ctx, id, criteria...)
		if err != nil {
			return record, err
		}
		return identitymap.Adopt(scope, record), nil
	}

	v, err := identitymap.Fetch(scope, c.descriptor, id, func() (any, error) {
		return c.base.GetByID(ctx, id)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	record, _ := v.(T)
	return record, nil
}

// List retrieves multiple records and canonicalizes each of them
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	records, total, err := c.base.List(ctx, criteria...)
	if err != nil {
		return records, total, err
	}
	return identitymap.AdoptAll(identitymap.ScopeFromContext(ctx), records), total, nil
}

// Count returns the number of records matching the criteria
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

// GetByIdentifier retrieves a record by identifier and returns its canonical instance
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	record, err := c.base.GetByIdentifier(ctx, identifier, criteria...)
	if err != nil {
		return record, err
	}
	return identitymap.Adopt(identitymap.ScopeFromContext(ctx), record), nil
}

// Create creates a new record and caches it
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.evict(ctx, result)
	}
	return result, err
}

// CreateMany creates multiple records and caches them
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.saved(ctx, result...)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.evict(ctx, result...)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.evict(ctx, result)
	}
	return result, err
}

// Update updates a record and caches the result
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.evict(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records and caches the results
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.saved(ctx, result...)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.evict(ctx, result...)
	}
	return result, err
}

// Upsert inserts or updates a record and caches the result
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.saved(ctx, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.evict(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records and caches the results
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.saved(ctx, result...)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.evict(ctx, result...)
	}
	return result, err
}

// Delete announces the deletion, then deletes the record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	c.preDelete(ctx, record)
	return c.base.Delete(ctx, record)
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	c.evict(ctx, record)
	return c.base.DeleteTx(ctx, tx, record)
}

// DeleteMany deletes the records matching the criteria. The affected keys
// are unknown, so the class table is reset first.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	c.resetClass(ctx)
	return c.base.DeleteMany(ctx, criteria...)
}

// DeleteManyTx deletes the records matching the criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	c.resetClass(ctx)
	return c.base.DeleteManyTx(ctx, tx, criteria...)
}

// DeleteWhere deletes the records matching the criteria after resetting the class table
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	c.resetClass(ctx)
	return c.base.DeleteWhere(ctx, criteria...)
}

// DeleteWhereTx deletes the records matching the criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	c.resetClass(ctx)
	return c.base.DeleteWhereTx(ctx, tx, criteria...)
}

// ForceDelete announces the deletion, then hard deletes the record
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	c.preDelete(ctx, record)
	return c.base.ForceDelete(ctx, record)
}

// ForceDeleteTx hard deletes a record within a transaction
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	c.evict(ctx, record)
	return c.base.ForceDeleteTx(ctx, tx, record)
}

// GetTx retrieves a single record within a transaction, bypassing the identity map
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID within a transaction, bypassing the identity map
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records within a transaction, bypassing the identity map
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier within a transaction, bypassing the identity map
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and canonicalizes the results
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	records, err := c.base.Raw(ctx, sql, args...)
	if err != nil {
		return records, err
	}
	return identitymap.AdoptAll(identitymap.ScopeFromContext(ctx), records), nil
}

// RawTx executes a raw SQL query within a transaction
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

func (c *CachedRepository[T]) saved(ctx context.Context, records ...T) {
	if c.notifier == nil {
		c.evict(ctx, records...)
		return
	}
	c.notifier.Saved(ctx, toAny(records)...)
}

func (c *CachedRepository[T]) preDelete(ctx context.Context, record T) {
	if c.notifier == nil {
		c.evict(ctx, record)
		return
	}
	c.notifier.PreDelete(ctx, record)
}

// evict keeps uncommitted or unannounced state out of the scope.
func (c *CachedRepository[T]) evict(ctx context.Context, records ...T) {
	scope := identitymap.ScopeFromContext(ctx)
	if scope == nil {
		return
	}
	for _, record := range records {
		scope.EvictInstance(record)
	}
}

func (c *CachedRepository[T]) resetClass(ctx context.Context) {
	identitymap.ScopeFromContext(ctx).Reset(c.descriptor, true)
}

func toAny[T any](records []T) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}
