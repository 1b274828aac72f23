package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-identitymap/internal/cacheinfra"
)

// ReclaimBackend selects where reclaimable classes keep their instances.
type ReclaimBackend string

const (
	// ReclaimLRU gives every scope a bounded LRU table per class.
	ReclaimLRU ReclaimBackend = "lru"
	// ReclaimShared stores every scope in one sturdyc client, namespaced by
	// scope id and table.
	ReclaimShared ReclaimBackend = "shared"
)

// Config exposes the identity map options.
type Config struct {
	Reclaim ReclaimConfig
	Shared  SharedConfig
}

// ReclaimConfig configures reclaimable retention.
type ReclaimConfig struct {
	Backend ReclaimBackend
	// Capacity bounds each per-class LRU table. Ignored by the shared
	// backend.
	Capacity int
}

// SharedConfig mirrors the options of the shared sturdyc backend.
type SharedConfig struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Reclaim: ReclaimConfig{
			Backend:  ReclaimLRU,
			Capacity: 1024,
		},
		Shared: sharedFromInternal(cacheinfra.DefaultConfig()),
	}
}

// Validate checks whether the configuration values are valid. The shared
// options are only checked when the shared backend is selected.
func (c Config) Validate() error {
	rules := []*validation.FieldRules{validation.Field(&c.Reclaim)}
	if c.Reclaim.Backend == ReclaimShared {
		rules = append(rules, validation.Field(&c.Shared))
	}

	if err := validation.ValidateStruct(&c, rules...); err != nil {
		return goerrors.FromOzzoValidation(err, "invalid identity map configuration").
			WithTextCode(TextCodeInvalidConfig)
	}
	return nil
}

func (r ReclaimConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Backend, validation.Required, validation.In(ReclaimLRU, ReclaimShared)),
		validation.Field(&r.Capacity, validation.When(r.Backend == ReclaimLRU, validation.Required, validation.Min(1))),
	)
}

func (s SharedConfig) Validate() error {
	return s.ToInternal().Validate()
}

// ToInternal converts the shared options to the backend configuration.
func (s SharedConfig) ToInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           s.Capacity,
		NumShards:          s.NumShards,
		TTL:                s.TTL,
		EvictionPercentage: s.EvictionPercentage,
		EvictionInterval:   s.EvictionInterval,
	}
}

func sharedFromInternal(cfg cacheinfra.Config) SharedConfig {
	return SharedConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
