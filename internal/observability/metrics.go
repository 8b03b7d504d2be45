package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// privacy pipeline.
type Metrics struct {
	RecordsIn       *prometheus.CounterVec // labels: stage
	RecordsOut      *prometheus.CounterVec // labels: stage
	StageDuration   *prometheus.HistogramVec
	PipelineRuns    *prometheus.CounterVec // labels: outcome={success,error}
	PipelineRunning prometheus.Gauge

	// Spatial join quality.
	JoinFailures    prometheus.Counter
	JoinFailureRate prometheus.Gauge
	JoinThreshold   prometheus.Gauge

	// Geocoding.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,not_found,error}
	GeocodeDuration prometheus.Histogram

	// Sink.
	SinkMessages prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsIn,
		m.RecordsOut,
		m.StageDuration,
		m.PipelineRuns,
		m.PipelineRunning,
		m.JoinFailures,
		m.JoinFailureRate,
		m.JoinThreshold,
		m.GeocodeRequests,
		m.GeocodeDuration,
		m.SinkMessages,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sr_etl",
			Name:      "records_in_total",
			Help:      "Records entering each pipeline stage.",
		}, []string{"stage"}),
		RecordsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sr_etl",
			Name:      "records_out_total",
			Help:      "Records leaving each pipeline stage.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sr_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sr_etl",
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sr_etl",
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		JoinFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sr_etl",
			Name:      "join_failures_total",
			Help:      "Records assigned the sentinel hex index.",
		}),
		JoinFailureRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sr_etl",
			Name:      "join_failure_rate",
			Help:      "Failure rate of the most recent spatial join.",
		}),
		JoinThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sr_etl",
			Name:      "join_failure_threshold",
			Help:      "Acceptance threshold derived from the most recent batch.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sr_etl",
			Name:      "geocode_requests_total",
			Help:      "Reference-point geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sr_etl",
			Name:      "geocode_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SinkMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sr_etl",
			Name:      "sink_messages_total",
			Help:      "Anonymized records published to the sink topic.",
		}),
	}
}
