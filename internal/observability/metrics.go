package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// cleaning pipeline and the trip loader.
type Metrics struct {
	RowsRead          prometheus.Counter
	DuplicatesRemoved prometheus.Counter
	RowsDropped       *prometheus.CounterVec // label: cause={missing_required_value,unparseable_timestamp}
	RowsExcluded      *prometheus.CounterVec // label: reason, one of the five exclusion reasons
	RowsCleaned       prometheus.Counter
	PipelineRunning   prometheus.Gauge

	// Stage timings for the batch run.
	StageDuration *prometheus.HistogramVec // label: stage={load,transform,write}

	// Relational load metrics.
	TripsLoaded prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taxi_etl",
			Name:      "rows_read_total",
			Help:      "Total raw rows read from the input file.",
		}),
		DuplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taxi_etl",
			Name:      "duplicates_removed_total",
			Help:      "Total exact duplicate rows removed.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taxi_etl",
			Name:      "rows_dropped_total",
			Help:      "Structurally invalid rows dropped before classification, by cause.",
		}, []string{"cause"}),
		RowsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taxi_etl",
			Name:      "rows_excluded_total",
			Help:      "Rows routed to the exclusion log, by reason.",
		}, []string{"reason"}),
		RowsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taxi_etl",
			Name:      "rows_cleaned_total",
			Help:      "Rows written to the cleaned output.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taxi_etl",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is active, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taxi_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		TripsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taxi_etl",
			Name:      "trips_loaded_total",
			Help:      "Cleaned trips inserted into the relational store.",
		}),
	}

	prometheus.MustRegister(
		m.RowsRead,
		m.DuplicatesRemoved,
		m.RowsDropped,
		m.RowsExcluded,
		m.RowsCleaned,
		m.PipelineRunning,
		m.StageDuration,
		m.TripsLoaded,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RowsRead:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "taxi_etl", Name: "rows_read_total"}),
		DuplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "taxi_etl", Name: "duplicates_removed_total"}),
		RowsDropped:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "taxi_etl", Name: "rows_dropped_total"}, []string{"cause"}),
		RowsExcluded:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "taxi_etl", Name: "rows_excluded_total"}, []string{"reason"}),
		RowsCleaned:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "taxi_etl", Name: "rows_cleaned_total"}),
		PipelineRunning:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "taxi_etl", Name: "pipeline_running"}),
		StageDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "taxi_etl", Name: "stage_duration_seconds"}, []string{"stage"}),
		TripsLoaded:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "taxi_etl", Name: "trips_loaded_total"}),
	}
}
