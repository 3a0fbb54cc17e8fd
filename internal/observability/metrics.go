package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline and the dataset cache.
type Metrics struct {
	RowsLoaded   prometheus.Counter
	RowsRejected prometheus.Counter
	RowsDropped  *prometheus.CounterVec // label: reason
	RowsMerged   prometheus.Counter

	BuildsTotal   *prometheus.CounterVec // label: outcome={success,error}
	BuildDuration prometheus.Histogram

	CacheLookups *prometheus.CounterVec // label: result={hit,miss}

	DatasetRecords prometheus.Gauge
	LastBuildTime  prometheus.Gauge // unix seconds of the last successful build
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsLoaded,
		m.RowsRejected,
		m.RowsDropped,
		m.RowsMerged,
		m.BuildsTotal,
		m.BuildDuration,
		m.CacheLookups,
		m.DatasetRecords,
		m.LastBuildTime,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry,
// avoiding "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irve_etl",
			Name:      "rows_loaded_total",
			Help:      "Raw rows read from the source extract.",
		}),
		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irve_etl",
			Name:      "rows_rejected_total",
			Help:      "Rows rejected at normalization for lacking identity material.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irve_etl",
			Name:      "rows_dropped_total",
			Help:      "Rows dropped at validation, by reason.",
		}, []string{"reason"}),
		RowsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irve_etl",
			Name:      "rows_merged_total",
			Help:      "Duplicate rows collapsed into another record.",
		}),
		BuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irve_etl",
			Name:      "builds_total",
			Help:      "Pipeline builds by outcome.",
		}, []string{"outcome"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "irve_etl",
			Name:      "build_duration_seconds",
			Help:      "Duration of a complete load-clean-dedupe-categorize run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irve_etl",
			Name:      "cache_lookups_total",
			Help:      "Clean dataset cache lookups by result.",
		}, []string{"result"}),
		DatasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "irve_etl",
			Name:      "dataset_records",
			Help:      "Records in the most recently published clean dataset.",
		}),
		LastBuildTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "irve_etl",
			Name:      "last_build_timestamp_seconds",
			Help:      "Unix time of the last successful build.",
		}),
	}
}
