// Package metric holds the Prometheus metrics of the schema catalog: binding
// results, registry lookups, codec traffic and catalog store publications.
//
// Every Record method is safe to call on a nil *Metrics, so packages take
// metrics as an optional dependency.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sciencejournal"

// Metrics contains the catalog metrics.
type Metrics struct {
	// Registry metrics
	SchemasRegistered prometheus.Gauge
	Registrations     *prometheus.CounterVec
	Lookups           *prometheus.CounterVec
	UnresolvedSchemas *prometheus.CounterVec

	// Codec metrics
	CodecOperations *prometheus.CounterVec
	CodecDuration   *prometheus.HistogramVec

	// Catalog store metrics
	StoreOperations *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance. The collectors are not
// registered; MetricsRegistry does that.
func NewMetrics() *Metrics {
	return &Metrics{
		SchemasRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "schemas",
				Help:      "Number of catalog schemas with a registered message type",
			},
		),

		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "registrations_total",
				Help:      "Registration attempts by outcome (new, repeat, rejected)",
			},
			[]string{"status"},
		),

		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "lookups_total",
				Help:      "Message factory lookups by schema and result (hit, miss)",
			},
			[]string{"schema", "result"},
		),

		UnresolvedSchemas: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "unresolved_total",
				Help:      "Schemas reported missing by bind or verify",
			},
			[]string{"schema"},
		),

		CodecOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "codec",
				Name:      "operations_total",
				Help:      "Encode and decode operations by format and status",
			},
			[]string{"operation", "format", "status"},
		),

		CodecDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "codec",
				Name:      "duration_seconds",
				Help:      "Encode and decode duration in seconds",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"operation", "format"},
		),

		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Catalog store operations by kind and status",
			},
			[]string{"operation", "status"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Errors by component and class",
			},
			[]string{"component", "class"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SchemasRegistered,
		m.Registrations,
		m.Lookups,
		m.UnresolvedSchemas,
		m.CodecOperations,
		m.CodecDuration,
		m.StoreOperations,
		m.ErrorsTotal,
	}
}

// RecordSchemasRegistered sets the registered schema gauge.
func (m *Metrics) RecordSchemasRegistered(n int) {
	if m == nil {
		return
	}
	m.SchemasRegistered.Set(float64(n))
}

// RecordRegistration counts a registration attempt.
func (m *Metrics) RecordRegistration(status string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(status).Inc()
}

// RecordLookup counts a factory lookup.
func (m *Metrics) RecordLookup(schema string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.Lookups.WithLabelValues(schema, result).Inc()
}

// RecordUnresolved counts a schema that failed to resolve.
func (m *Metrics) RecordUnresolved(schema string) {
	if m == nil {
		return
	}
	m.UnresolvedSchemas.WithLabelValues(schema).Inc()
}

// RecordCodec counts a codec operation and observes its duration.
func (m *Metrics) RecordCodec(operation, format string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CodecOperations.WithLabelValues(operation, format, status).Inc()
	m.CodecDuration.WithLabelValues(operation, format).Observe(duration.Seconds())
}

// RecordStore counts a catalog store operation.
func (m *Metrics) RecordStore(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(operation, status).Inc()
}

// RecordError counts an error for a component.
func (m *Metrics) RecordError(component, class string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}
