package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-identitymap/identitymap"
)

var _ Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder counts identity map events with Prometheus counters
// labelled by table.
type PrometheusRecorder struct {
	config   *Config
	names    MetricNames
	registry prometheus.Registerer
	labels   prometheus.Labels

	hitsTotal          *prometheus.CounterVec
	missesTotal        *prometheus.CounterVec
	registrationsTotal *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec
	resetsTotal        *prometheus.CounterVec
	resetEntriesTotal  *prometheus.CounterVec
}

// PrometheusConfig holds Prometheus-specific configuration
type PrometheusConfig struct {
	// Registry is the Prometheus registry to use (optional, uses default if nil)
	Registry prometheus.Registerer
}

// NewPrometheusRecorder creates the counters and registers them
func NewPrometheusRecorder(config *Config, promConfig *PrometheusConfig) (*PrometheusRecorder, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if promConfig == nil {
		promConfig = &PrometheusConfig{}
	}

	registry := promConfig.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	labels := make(prometheus.Labels, len(config.Labels))
	for k, v := range config.Labels {
		labels[k] = v
	}

	p := &PrometheusRecorder{
		config:   config,
		names:    config.names(),
		registry: registry,
		labels:   labels,
	}

	if err := p.createCounters(); err != nil {
		return nil, fmt.Errorf("failed to create identity map metrics: %w", err)
	}
	return p, nil
}

func (p *PrometheusRecorder) createCounters() error {
	table := []string{"table"}
	var err error

	if p.hitsTotal, err = p.createCounterVec(p.names.HitsTotal, "Total number of identity map hits", table); err != nil {
		return err
	}
	if p.missesTotal, err = p.createCounterVec(p.names.MissesTotal, "Total number of identity map misses", table); err != nil {
		return err
	}
	if p.registrationsTotal, err = p.createCounterVec(p.names.RegistrationsTotal, "Total number of instances stored in a slot", table); err != nil {
		return err
	}
	if p.evictionsTotal, err = p.createCounterVec(p.names.EvictionsTotal, "Total number of emptied slots", []string{"table", "reason"}); err != nil {
		return err
	}
	if p.resetsTotal, err = p.createCounterVec(p.names.ResetsTotal, "Total number of discarded tables", table); err != nil {
		return err
	}
	if p.resetEntriesTotal, err = p.createCounterVec(p.names.ResetEntriesTotal, "Total number of instances dropped by table resets", table); err != nil {
		return err
	}
	return nil
}

func (p *PrometheusRecorder) createCounterVec(name, help string, labelNames []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: p.labels,
		},
		labelNames,
	)

	if err := p.registry.Register(counter); err != nil {
		return nil, err
	}
	return counter, nil
}

// ObserveManager exports the number of live scopes of m as a gauge.
func (p *PrometheusRecorder) ObserveManager(m *identitymap.Manager) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        p.names.LiveScopes,
			Help:        "Current number of live identity map scopes",
			ConstLabels: p.labels,
		},
		func() float64 { return float64(m.Live()) },
	)
	return p.registry.Register(gauge)
}

func (p *PrometheusRecorder) Hit(table string) {
	p.hitsTotal.WithLabelValues(table).Inc()
}

func (p *PrometheusRecorder) Miss(table string) {
	p.missesTotal.WithLabelValues(table).Inc()
}

func (p *PrometheusRecorder) Register(table string) {
	p.registrationsTotal.WithLabelValues(table).Inc()
}

func (p *PrometheusRecorder) Evict(table string, reason identitymap.EvictReason) {
	p.evictionsTotal.WithLabelValues(table, reason.String()).Inc()
}

func (p *PrometheusRecorder) Reset(table string, dropped int) {
	p.resetsTotal.WithLabelValues(table).Inc()
	p.resetEntriesTotal.WithLabelValues(table).Add(float64(dropped))
}
