// Package metrics exposes Prometheus collectors for catalog fetches, bundle
// syncs and registry loads. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nebula"

// Result and outcome label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultHit     = "hit"
	ResultMiss    = "miss"

	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Catalog metrics
	FetchTotal    *prometheus.CounterVec
	FetchDuration prometheus.Histogram

	// Sync metrics
	SyncBundles *prometheus.CounterVec
	SyncBytes   prometheus.Counter

	// Registry metrics
	Loads         *prometheus.CounterVec
	StorageReads  prometheus.Counter
	LoadedBundles prometheus.Gauge
	Unloads       prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "fetch_total",
				Help:      "Total number of catalog fetches",
			},
			[]string{"result"},
		),

		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of catalog fetches",
				Buckets:   prometheus.DefBuckets,
			},
		),

		SyncBundles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "bundles_total",
				Help:      "Total number of bundle sync attempts by outcome",
			},
			[]string{"outcome"},
		),

		SyncBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "bytes_total",
				Help:      "Total payload and manifest bytes written to storage",
			},
		),

		Loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "loads_total",
				Help:      "Total number of bundle load calls",
			},
			[]string{"result"},
		),

		StorageReads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "storage_reads_total",
				Help:      "Total number of payload reads from storage",
			},
		),

		LoadedBundles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "loaded_bundles",
				Help:      "Number of bundles currently loaded",
			},
		),

		Unloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "unloads_total",
				Help:      "Total number of bundles released",
			},
		),
	}
}

// ObserveFetch records one catalog fetch.
func (m *Metrics) ObserveFetch(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.FetchTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// SyncOutcome counts one per-bundle outcome.
func (m *Metrics) SyncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SyncBundles.WithLabelValues(outcome).Inc()
}

// AddSyncBytes counts bytes written to storage.
func (m *Metrics) AddSyncBytes(n int) {
	if m == nil {
		return
	}
	m.SyncBytes.Add(float64(n))
}

// Load counts one registry Load call.
func (m *Metrics) Load(result string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(result).Inc()
}

// StorageRead counts one payload read.
func (m *Metrics) StorageRead() {
	if m == nil {
		return
	}
	m.StorageReads.Inc()
}

// SetLoaded sets the number of live bundles.
func (m *Metrics) SetLoaded(n int) {
	if m == nil {
		return
	}
	m.LoadedBundles.Set(float64(n))
}

// Unloaded counts released bundles.
func (m *Metrics) Unloaded(n int) {
	if m == nil {
		return
	}
	m.Unloads.Add(float64(n))
}
