package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/goliatone/go-identitymap/identitymap"
)

var _ Recorder = (*OpenTelemetryRecorder)(nil)

// OpenTelemetryRecorder counts identity map events with OpenTelemetry
// instruments. The table is recorded as the "table" attribute.
type OpenTelemetryRecorder struct {
	config *Config
	meter  metric.Meter
	ctx    context.Context
	attrs  []attribute.KeyValue

	hitsCounter          metric.Int64Counter
	missesCounter        metric.Int64Counter
	registrationsCounter metric.Int64Counter
	evictionsCounter     metric.Int64Counter
	resetsCounter        metric.Int64Counter
	resetEntriesCounter  metric.Int64Counter
}

// OpenTelemetryConfig holds OpenTelemetry-specific configuration
type OpenTelemetryConfig struct {
	// Meter is the OpenTelemetry meter to use
	Meter metric.Meter

	// Context is the context to use for metric operations
	Context context.Context
}

// NewOpenTelemetryRecorder creates the instruments on the configured meter
func NewOpenTelemetryRecorder(config *Config, otelConfig *OpenTelemetryConfig) (*OpenTelemetryRecorder, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if otelConfig == nil || otelConfig.Meter == nil {
		return nil, fmt.Errorf("OpenTelemetry meter is required")
	}

	ctx := otelConfig.Context
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := make([]attribute.KeyValue, 0, len(config.Labels))
	for k, v := range config.Labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	o := &OpenTelemetryRecorder{
		config: config,
		meter:  otelConfig.Meter,
		ctx:    ctx,
		attrs:  attrs,
	}
	if err := o.createInstruments(config.names()); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OpenTelemetryRecorder) createInstruments(names MetricNames) error {
	instruments := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&o.hitsCounter, names.HitsTotal, "Total number of identity map hits"},
		{&o.missesCounter, names.MissesTotal, "Total number of identity map misses"},
		{&o.registrationsCounter, names.RegistrationsTotal, "Total number of instances stored in a slot"},
		{&o.evictionsCounter, names.EvictionsTotal, "Total number of emptied slots"},
		{&o.resetsCounter, names.ResetsTotal, "Total number of discarded tables"},
		{&o.resetEntriesCounter, names.ResetEntriesTotal, "Total number of instances dropped by table resets"},
	}

	for _, in := range instruments {
		counter, err := o.meter.Int64Counter(in.name,
			metric.WithDescription(in.desc),
			metric.WithUnit("1"),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", in.name, err)
		}
		*in.target = counter
	}
	return nil
}

func (o *OpenTelemetryRecorder) options(extra ...attribute.KeyValue) metric.AddOption {
	attrs := make([]attribute.KeyValue, 0, len(o.attrs)+len(extra))
	attrs = append(attrs, o.attrs...)
	attrs = append(attrs, extra...)
	return metric.WithAttributes(attrs...)
}

func (o *OpenTelemetryRecorder) Hit(table string) {
	o.hitsCounter.Add(o.ctx, 1, o.options(attribute.String("table", table)))
}

func (o *OpenTelemetryRecorder) Miss(table string) {
	o.missesCounter.Add(o.ctx, 1, o.options(attribute.String("table", table)))
}

func (o *OpenTelemetryRecorder) Register(table string) {
	o.registrationsCounter.Add(o.ctx, 1, o.options(attribute.String("table", table)))
}

func (o *OpenTelemetryRecorder) Evict(table string, reason identitymap.EvictReason) {
	o.evictionsCounter.Add(o.ctx, 1, o.options(
		attribute.String("table", table),
		attribute.String("reason", reason.String()),
	))
}

func (o *OpenTelemetryRecorder) Reset(table string, dropped int) {
	attrs := o.options(attribute.String("table", table))
	o.resetsCounter.Add(o.ctx, 1, attrs)
	o.resetEntriesCounter.Add(o.ctx, int64(dropped), attrs)
}
