package metrics

import (
	"github.com/goliatone/go-identitymap/identitymap"
)

// Recorder receives identity map events. Implementations must be safe for
// concurrent use and must not block: they run inside identity map hooks.
type Recorder interface {
	Hit(table string)
	Miss(table string)
	Register(table string)
	Evict(table string, reason identitymap.EvictReason)
	Reset(table string, dropped int)
}

// Labels represents key-value pairs applied to every metric
type Labels map[string]string

// MetricNames defines the metric names used across recorders
type MetricNames struct {
	HitsTotal          string
	MissesTotal        string
	RegistrationsTotal string
	EvictionsTotal     string
	ResetsTotal        string
	ResetEntriesTotal  string
	LiveScopes         string
}

// DefaultMetricNames returns the metric names prefixed with namespace
func DefaultMetricNames(namespace string) MetricNames {
	if namespace == "" {
		namespace = "identitymap"
	}
	return MetricNames{
		HitsTotal:          namespace + "_hits_total",
		MissesTotal:        namespace + "_misses_total",
		RegistrationsTotal: namespace + "_registrations_total",
		EvictionsTotal:     namespace + "_evictions_total",
		ResetsTotal:        namespace + "_resets_total",
		ResetEntriesTotal:  namespace + "_reset_entries_total",
		LiveScopes:         namespace + "_live_scopes",
	}
}

// Config holds configuration shared by recorders
type Config struct {
	// Namespace prefixes the default metric names
	Namespace string

	// Labels are applied to all metrics
	Labels Labels

	// MetricNames overrides the generated names when set
	MetricNames *MetricNames
}

// NewDefaultConfig creates a default metrics configuration
func NewDefaultConfig() *Config {
	return &Config{
		Namespace: "identitymap",
		Labels:    make(Labels),
	}
}

func (c *Config) names() MetricNames {
	if c.MetricNames != nil {
		return *c.MetricNames
	}
	return DefaultMetricNames(c.Namespace)
}

// Attach registers r on hooks. hooks must not be shared with scopes yet.
func Attach(hooks *identitymap.Hooks, r Recorder) {
	hooks.AddOnHit(func(table, _ string) { r.Hit(table) })
	hooks.AddOnMiss(func(table, _ string) { r.Miss(table) })
	hooks.AddOnRegister(func(table, _ string) { r.Register(table) })
	hooks.AddOnEvict(func(table, _ string, reason identitymap.EvictReason) { r.Evict(table, reason) })
	hooks.AddOnReset(func(table string, dropped int) { r.Reset(table, dropped) })
}

// MultiRecorder fans events out to several recorders
type MultiRecorder []Recorder

func (m MultiRecorder) Hit(table string) {
	for _, r := range m {
		r.Hit(table)
	}
}

func (m MultiRecorder) Miss(table string) {
	for _, r := range m {
		r.Miss(table)
	}
}

func (m MultiRecorder) Register(table string) {
	for _, r := range m {
		r.Register(table)
	}
}

func (m MultiRecorder) Evict(table string, reason identitymap.EvictReason) {
	for _, r := range m {
		r.Evict(table, reason)
	}
}

func (m MultiRecorder) Reset(table string, dropped int) {
	for _, r := range m {
		r.Reset(table, dropped)
	}
}
