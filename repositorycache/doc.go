// Package repositorycache adds an identity map to go-repository-bun repositories.
//
// # Overview
//
// CachedRepository wraps a repository.Repository[T] and routes its results
// through the identity map scope carried by the context. Within a scope every
// record with the same primary key resolves to one instance, so changes made
// through one reference are visible through all of them.
//
//	registry := cache.NewRegistry()
//	bus := identitymap.NewBus()
//	manager, _ := identitymap.NewManager(registry, cache.DefaultConfig(), identitymap.WithBus(bus))
//	identitymap.NewSynchronizer(manager).Attach(bus)
//
//	users, err := repositorycache.New[*User](base, registry, bus)
//
//	ctx, scope := manager.Begin(ctx)
//	defer scope.End(ctx)
//
//	a, _ := users.GetByID(ctx, "42")
//	b, _ := users.GetByID(ctx, "42") // same pointer, no query
//
// # Reads
//
// GetByID without criteria is served from the scope when the key is cached
// and loads it otherwise. Get, GetByIdentifier, List, Raw and GetByID with
// criteria always query the base repository, then replace each loaded
// record with the instance the scope already holds for its key. Count,
// Handlers and the transactional reads pass straight through.
//
// # Writes
//
// Successful Create, Update, Upsert and GetOrCreate calls, and their Many
// variants, publish Saved through the notifier so the written instance
// becomes the cached one. Delete and ForceDelete publish PreDelete before
// calling the base repository. DeleteMany and DeleteWhere cannot tell which
// keys they remove and reset the entity's table, including the tables of
// entities embedding it.
//
// Transactional writes evict the written keys instead of registering them:
// the scope never holds state a rollback could undo.
//
// # Without a Scope
//
// When the context carries no scope the decorator adds nothing; every call
// behaves like the base repository.
package repositorycache
