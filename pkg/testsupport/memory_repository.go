package testsupport

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-identitymap/cache"
)

var _ repository.Repository[any] = (*MemoryRepository[any])(nil)

// MemoryRepository is an in-memory repository.Repository for tests. Records
// are stored by primary key and every read returns a fresh copy, the way rows
// loaded from a database would be. Criteria are accepted but not
// interpreted; transactional variants behave like their plain counterparts.
type MemoryRepository[T any] struct {
	mu         sync.Mutex
	descriptor *cache.Descriptor
	records    map[string]T
	nextID     int64
	calls      map[string]int
}

// NewMemoryRepository creates an empty repository for the entity described
// by d. T must be a pointer to d's struct type.
func NewMemoryRepository[T any](d *cache.Descriptor) *MemoryRepository[T] {
	return &MemoryRepository[T]{
		descriptor: d,
		records:    make(map[string]T),
		calls:      make(map[string]int),
	}
}

// Seed stores records without counting calls. Records without a key get one.
func (m *MemoryRepository[T]) Seed(records ...T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.storeLocked(r)
	}
}

// Calls returns how many times method was invoked.
func (m *MemoryRepository[T]) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// ResetCalls clears the call counters.
func (m *MemoryRepository[T]) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// Len returns the number of stored records.
func (m *MemoryRepository[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Get"]++

	if ids := m.sortedIDsLocked(); len(ids) > 0 {
		return m.clone(m.records[ids[0]]), nil
	}
	var zero T
	return zero, errNotFound(m.descriptor.Name, "")
}

func (m *MemoryRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByID"]++
	return m.getLocked(id)
}

func (m *MemoryRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["List"]++
	records := m.allLocked()
	return records, len(records), nil
}

func (m *MemoryRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Count"]++
	return len(m.records), nil
}

// GetByIdentifier resolves identifier against the primary key.
func (m *MemoryRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetByIdentifier"]++
	return m.getLocked(identifier)
}

func (m *MemoryRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return m.Get(ctx, criteria...)
}

func (m *MemoryRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return m.GetByID(ctx, id, criteria...)
}

func (m *MemoryRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return m.List(ctx, criteria...)
}

func (m *MemoryRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return m.Count(ctx, criteria...)
}

func (m *MemoryRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return m.GetByIdentifier(ctx, identifier, criteria...)
}

func (m *MemoryRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Create"]++
	m.storeLocked(record)
	return record, nil
}

func (m *MemoryRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return m.Create(ctx, record, criteria...)
}

func (m *MemoryRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CreateMany"]++
	for _, r := range records {
		m.storeLocked(r)
	}
	return records, nil
}

func (m *MemoryRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return m.CreateMany(ctx, records, criteria...)
}

func (m *MemoryRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetOrCreate"]++

	if id, ok := m.idOf(record); ok {
		if existing, found := m.records[id]; found {
			return m.clone(existing), nil
		}
	}
	m.storeLocked(record)
	return record, nil
}

func (m *MemoryRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return m.GetOrCreate(ctx, record)
}

func (m *MemoryRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Update"]++
	return m.updateLocked(record)
}

func (m *MemoryRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.Update(ctx, record, criteria...)
}

func (m *MemoryRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["UpdateMany"]++
	for _, r := range records {
		if _, err := m.updateLocked(r); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (m *MemoryRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.UpdateMany(ctx, records, criteria...)
}

func (m *MemoryRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Upsert"]++
	m.storeLocked(record)
	return record, nil
}

func (m *MemoryRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.Upsert(ctx, record, criteria...)
}

func (m *MemoryRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["UpsertMany"]++
	for _, r := range records {
		m.storeLocked(r)
	}
	return records, nil
}

func (m *MemoryRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.UpsertMany(ctx, records, criteria...)
}

func (m *MemoryRepository[T]) Delete(ctx context.Context, record T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Delete"]++
	return m.deleteLocked(record)
}

func (m *MemoryRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return m.Delete(ctx, record)
}

// DeleteMany removes every record.
func (m *MemoryRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DeleteMany"]++
	m.records = make(map[string]T)
	return nil
}

func (m *MemoryRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.DeleteMany(ctx, criteria...)
}

// DeleteWhere removes every record.
func (m *MemoryRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DeleteWhere"]++
	m.records = make(map[string]T)
	return nil
}

func (m *MemoryRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.DeleteWhere(ctx, criteria...)
}

func (m *MemoryRepository[T]) ForceDelete(ctx context.Context, record T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ForceDelete"]++
	return m.deleteLocked(record)
}

func (m *MemoryRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return m.ForceDelete(ctx, record)
}

// Raw ignores the query and returns every record.
func (m *MemoryRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Raw"]++
	return m.allLocked(), nil
}

func (m *MemoryRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return m.Raw(ctx, sql, args...)
}

func (m *MemoryRepository[T]) Handlers() repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{}
}

func (m *MemoryRepository[T]) getLocked(id string) (T, error) {
	record, ok := m.records[id]
	if !ok {
		var zero T
		return zero, errNotFound(m.descriptor.Name, id)
	}
	return m.clone(record), nil
}

func (m *MemoryRepository[T]) updateLocked(record T) (T, error) {
	id, ok := m.idOf(record)
	if !ok {
		return record, errNotFound(m.descriptor.Name, "")
	}
	if _, found := m.records[id]; !found {
		return record, errNotFound(m.descriptor.Name, id)
	}
	m.records[id] = m.clone(record)
	return record, nil
}

func (m *MemoryRepository[T]) deleteLocked(record T) error {
	id, ok := m.idOf(record)
	if !ok {
		return errNotFound(m.descriptor.Name, "")
	}
	if _, found := m.records[id]; !found {
		return errNotFound(m.descriptor.Name, id)
	}
	delete(m.records, id)
	return nil
}

// storeLocked keeps a private copy so later mutations of record are not
// visible to readers until saved again.
func (m *MemoryRepository[T]) storeLocked(record T) {
	id, ok := m.idOf(record)
	if !ok {
		id = m.assignKey(record)
	}
	m.records[id] = m.clone(record)
}

func (m *MemoryRepository[T]) assignKey(record T) string {
	field := reflect.ValueOf(record).Elem().FieldByIndex(m.descriptor.PK.Index)

	switch {
	case field.Type() == reflect.TypeOf(uuid.UUID{}):
		field.Set(reflect.ValueOf(uuid.New()))
	case field.Kind() == reflect.String:
		field.SetString(uuid.NewString())
	case field.CanInt():
		m.nextID++
		field.SetInt(m.nextID)
	case field.CanUint():
		m.nextID++
		field.SetUint(uint64(m.nextID))
	default:
		panic(fmt.Sprintf("testsupport: cannot assign a key of type %s", field.Type()))
	}

	id, _ := m.idOf(record)
	return id
}

func (m *MemoryRepository[T]) idOf(record T) (string, bool) {
	key, ok := m.descriptor.KeyOf(record)
	if !ok {
		return "", false
	}
	return fmt.Sprint(key), true
}

func (m *MemoryRepository[T]) clone(record T) T {
	v := reflect.ValueOf(record)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return record
	}
	c := reflect.New(v.Elem().Type())
	c.Elem().Set(v.Elem())
	return c.Interface().(T)
}

func (m *MemoryRepository[T]) allLocked() []T {
	ids := m.sortedIDsLocked()
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.clone(m.records[id]))
	}
	return out
}

func (m *MemoryRepository[T]) sortedIDsLocked() []string {
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func errNotFound(entity, id string) error {
	msg := entity + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", entity, id)
	}
	return goerrors.New(msg, goerrors.CategoryNotFound).WithTextCode("NOT_FOUND")
}
