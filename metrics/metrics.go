// Package metrics exports repository and listener activity as Prometheus
// metrics. A Metrics value is both a repository.Observer and a
// stream.Observer:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	cfg := repository.DefaultConfig()
//	cfg.Observer = m
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacentio/docrepo/repository"
	"github.com/jacentio/docrepo/store"
	"github.com/jacentio/docrepo/stream"
)

const namespace = "docrepo"

// Metrics holds the collectors registered by New.
type Metrics struct {
	writes       *prometheus.CounterVec
	saves        *prometheus.CounterVec
	saveDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	reconnects   *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps the collectors usable without exporting them.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		writes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "repository",
				Name:      "writes_total",
				Help:      "Total number of document writes by kind and outcome",
			},
			[]string{"collection", "kind", "status"},
		),
		saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "repository",
				Name:      "saves_total",
				Help:      "Total number of Save passes by outcome",
			},
			[]string{"collection", "status"},
		),
		saveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "repository",
				Name:      "save_duration_seconds",
				Help:      "Duration of Save passes in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collection"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "events_total",
				Help:      "Total number of change events dispatched by operation",
			},
			[]string{"collection", "operation"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "deliveries_total",
				Help:      "Total number of handler invocations by outcome",
			},
			[]string{"collection", "status"},
		),
		reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "reconnects_total",
				Help:      "Total number of change streams reopened after a failure",
			},
			[]string{"collection"},
		),
	}
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics of g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveWrite implements repository.Observer.
func (m *Metrics) ObserveWrite(collection string, insert bool, err error) {
	kind := "replace"
	if insert {
		kind = "insert"
	}
	m.writes.WithLabelValues(collection, kind, status(err)).Inc()
}

// ObserveSave implements repository.Observer.
func (m *Metrics) ObserveSave(collection string, written int, elapsed time.Duration, err error) {
	m.saves.WithLabelValues(collection, status(err)).Inc()
	if written > 0 || err != nil {
		m.saveDuration.WithLabelValues(collection).Observe(elapsed.Seconds())
	}
}

// ObserveEvent implements stream.Observer.
func (m *Metrics) ObserveEvent(collection string, op store.Operation) {
	m.events.WithLabelValues(collection, string(op)).Inc()
}

// ObserveDelivery implements stream.Observer.
func (m *Metrics) ObserveDelivery(collection string, err error) {
	m.deliveries.WithLabelValues(collection, status(err)).Inc()
}

// ObserveReconnect implements stream.Observer.
func (m *Metrics) ObserveReconnect(collection string) {
	m.reconnects.WithLabelValues(collection).Inc()
}

// status labels an outcome. Store sentinel errors get their own label so
// conflicts are distinguishable from outages.
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

var (
	_ repository.Observer = (*Metrics)(nil)
	_ stream.Observer     = (*Metrics)(nil)
)
