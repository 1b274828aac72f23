package cache

// Store is the per-scope identity map: at most one instance per
// (descriptor, key). None of its operations fail; unknown descriptors and
// absent keys are no-ops or misses.
type Store interface {
	Lookup(d *Descriptor, key any) (any, bool)
	Register(d *Descriptor, key any, instance any)
	Evict(d *Descriptor, key any)
	Reset(d *Descriptor, cascade bool)
}

// ConstructFn builds a fresh instance on a cache miss.
type ConstructFn func() (any, error)
