package exporter

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stellarexporter/internal/core"
	"stellarexporter/internal/metrics"
)

const selfNamespace = "stellar_core_exporter"

// selfMetrics tracks exporter health on its own registry.
// Node series never go through client_golang: the scrape registry must keep repeated HELP/TYPE lines.
type selfMetrics struct {
	registry    *prometheus.Registry
	scrapes     *prometheus.CounterVec
	phaseErrors *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	duration    prometheus.Histogram
	records     prometheus.Gauge
}

func newSelfMetrics() *selfMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &selfMetrics{
		registry: registry,
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: selfNamespace,
			Name:      "scrapes_total",
			Help:      "Scrapes served, by result.",
		}, []string{"result"}),
		phaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: selfNamespace,
			Name:      "phase_errors_total",
			Help:      "Failed scrape phases, by phase and error kind.",
		}, []string{"phase", "kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: selfNamespace,
			Name:      "dropped_metrics_total",
			Help:      "Node metrics left out of a scrape because they could not be translated.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: selfNamespace,
			Name:      "scrape_duration_seconds",
			Help:      "Time spent fetching and translating one scrape.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: selfNamespace,
			Name:      "records",
			Help:      "Records rendered by the last scrape.",
		}),
	}
	registry.MustRegister(m.scrapes, m.phaseErrors, m.dropped, m.duration, m.records)
	return m
}

func (m *selfMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *selfMetrics) observeScrape(started time.Time, records int, failed bool) {
	m.duration.Observe(time.Since(started).Seconds())
	if failed {
		m.scrapes.WithLabelValues("failure").Inc()
		return
	}
	m.scrapes.WithLabelValues("success").Inc()
	m.records.Set(float64(records))
}

func (m *selfMetrics) observePhaseError(phase string, err error) {
	m.phaseErrors.WithLabelValues(phase, errorKind(err)).Inc()
}

func (m *selfMetrics) observeDrop(err error) {
	var unitErr *metrics.UnsupportedUnitError
	switch {
	case errors.As(err, &unitErr):
		m.dropped.WithLabelValues("unsupported_unit").Inc()
	default:
		m.dropped.WithLabelValues(errorKind(err)).Inc()
	}
}

// errorKind classifies an error for labels and status codes.
func errorKind(err error) string {
	var fetchErr *core.FetchError
	var shapeErr *metrics.ShapeError
	switch {
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &shapeErr):
		return "shape"
	default:
		return "other"
	}
}
