package cacheinfra

import (
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration of the shared sturdyc backend.
type Config struct {
	// Capacity is the maximum number of slots across every scope.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Default: 256
	NumShards int

	// TTL bounds how long an instance may stay in a slot without being
	// re-registered. Expired slots read as misses.
	TTL time.Duration

	// EvictionPercentage is the share of slots dropped when Capacity is
	// reached. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired slots are swept. Zero uses
	// the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns the defaults of the shared backend.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the Config to sturdyc options. Capacity,
// NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// SharedBackend is one sturdyc client shared by every scope of a manager.
// Scopes address it through namespaced tables.
type SharedBackend struct {
	client *sturdyc.Client[any]
}

// NewSharedBackend validates cfg and starts a sturdyc client.
func NewSharedBackend(cfg Config) (*SharedBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SharedBackend{client: client}, nil
}

// Table returns a view of the backend whose slots all start with namespace.
func (b *SharedBackend) Table(namespace string) Table {
	return &sharedTable{backend: b, prefix: namespace + separator}
}

// Len returns the number of live slots across all namespaces.
func (b *SharedBackend) Len() int {
	return b.client.Size()
}

// DeleteByPrefix removes every slot whose key starts with prefix and
// returns how many were removed.
func (b *SharedBackend) DeleteByPrefix(prefix string) int {
	removed := 0
	for _, key := range b.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			b.client.Delete(key)
			removed++
		}
	}
	return removed
}

func (b *SharedBackend) keysWithPrefix(prefix string) []string {
	var keys []string
	for _, key := range b.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, strings.TrimPrefix(key, prefix))
		}
	}
	return keys
}

const separator = "::"

type sharedTable struct {
	backend *SharedBackend
	prefix  string

	mu sync.Mutex
}

func (t *sharedTable) Get(key string) (any, bool) {
	return t.backend.client.Get(t.prefix + key)
}

func (t *sharedTable) Set(key string, value any) {
	t.backend.client.Set(t.prefix+key, value)
}

func (t *sharedTable) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.backend.client.Get(t.prefix + key); !ok {
		return false
	}
	t.backend.client.Delete(t.prefix + key)
	return true
}

func (t *sharedTable) Len() int {
	return len(t.backend.keysWithPrefix(t.prefix))
}

func (t *sharedTable) Clear() {
	t.backend.DeleteByPrefix(t.prefix)
}
