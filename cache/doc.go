// Package cache describes cacheable entities and derives their identity.
//
// # Overview
//
// The package holds the pieces of the identity map that do not depend on a
// scope:
//
//   - Registry / Descriptor: one descriptor per entity struct, built from
//     bun struct tags (primary key, columns, belongs-to relations, table)
//   - InferKey: the cache key a construction request would produce, derived
//     from its arguments alone
//   - KeySerializer: maps keys to the slot strings tables are indexed by
//   - Config: retention backends and their options
//
// Scoped storage lives in the identitymap package.
//
// # Registering Entities
//
//	type Item struct {
//		bun.BaseModel `bun:"table:items"`
//		ID   int64  `bun:"id,pk,autoincrement"`
//		Name string `bun:"name"`
//	}
//
//	registry := cache.NewRegistry()
//	items, err := cache.Register[Item](registry)
//	users, err := cache.Register[User](registry, cache.WithRetention(cache.RetentionStrong))
//
// The constructor field order is the declaration order of the column fields.
// Embedded structs are flattened; a registered struct embedding another
// registered struct is treated as its subclass when tables are reset with
// cascade.
//
// # Key Inference
//
// InferKey looks at the primary key's positional slot first, then at the
// keyword argument named after its column, then at the keyword argument
// named after the relation joined on it:
//
//	cache.InferKey(items, cache.Pos(1, "sword"))               // 1, true
//	cache.InferKey(items, cache.Kw(map[string]any{"id": 1}))   // 1, true
//	cache.InferKey(items, cache.Kw(map[string]any{"name": "x"})) // nil, false
//
// An entity passed as key candidate is replaced by its own primary key.
// Nil and zero keys are unknown: a zero primary key has not been assigned by
// the database yet.
//
// Composite primary keys are reduced to their first field. Two rows sharing
// that field share a slot.
//
// # Errors
//
// Errors are go-errors values carrying one of the TextCode constants, so
// callers can branch with HasTextCode.
package cache
