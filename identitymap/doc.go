// Package identitymap keeps at most one live instance per entity identity
// inside a unit of work.
//
// # Overview
//
// A Manager begins and ends Scopes. A Scope travels in a context.Context and
// holds one table per entity class. Construction and loading go through the
// scope so that two requests for the same identity return the same pointer:
//
//	manager, err := identitymap.NewManager(registry, cache.DefaultConfig())
//	ctx, scope := manager.Begin(ctx)
//	defer manager.End(ctx, scope)
//
//	a, _ := identitymap.New[Item](ctx, cache.Pos(1, "sword"))
//	b, _ := identitymap.New[Item](ctx, cache.Pos(1, "axe"))
//	// a == b, a.Name == "sword"
//
// When the key of a request cannot be inferred (no primary key among the
// arguments, or a zero key) the request bypasses the identity map entirely.
//
// # Keeping Scopes Coherent
//
// The Bus carries four notifications. A Synchronizer attached to it reacts
// to each one:
//
//   - Saved: the instance replaces whatever its slot held
//   - PreDelete: the slot is emptied
//   - ScopeEnded: every table of the scope is discarded
//   - SchemaChanged: every table of every live scope is discarded
//
// repositorycache publishes Saved and PreDelete around repository writes.
// SchemaHook publishes SchemaChanged from bun. Middleware begins and ends a
// scope per HTTP request.
//
// # Retention
//
// Strong classes keep their instances until evicted or reset. Reclaimable
// classes may lose them at any time, either to a per-table LRU or to the
// TTL and capacity of the shared sturdyc backend. A reclaimed instance is
// simply a miss on the next lookup.
//
// # Concurrency
//
// Scopes do not share state with each other. Every Scope method takes the
// scope's lock, so a scope may be used by several goroutines. Two goroutines
// racing to construct the same identity both run their constructor; the
// first to register wins and the other receives the winner's instance.
package identitymap
