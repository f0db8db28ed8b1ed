package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RecordsConsumed    prometheus.Counter
	RecordsRejected    *prometheus.CounterVec // labels: reason={decode,mapping,timestamp,duplicate,required,bounds,schema,conflict,write}
	ConversionWarnings prometheus.Counter
	RecordsUpserted    *prometheus.CounterVec // labels: outcome={inserted,updated}
	RangeViolations    *prometheus.CounterVec // labels: field
	PipelineRunning    prometheus.Gauge

	// Run metrics.
	Runs        *prometheus.CounterVec // labels: status={completed,aborted}
	RunDuration prometheus.Histogram

	// Batch extraction metrics.
	BatchSize     prometheus.Histogram
	ExtractErrors prometheus.Counter
	PublishErrors prometheus.Counter
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		RecordsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consumed_total",
			Help:      help("Total raw records entering the pipeline, after bundle expansion."),
		}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      help("Records excluded from a run, by rejection reason."),
		}, []string{"reason"}),
		ConversionWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_warnings_total",
			Help:      help("Present field values that could not be parsed and were nulled."),
		}),
		RecordsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      help("Observations written to the store, by outcome."),
		}, []string{"outcome"}),
		RangeViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_violations_total",
			Help:      help("Pre-load values outside the declared field bounds."),
		}, []string{"field"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      help("Pipeline runs by terminal status."),
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      help("Duration of a complete transform-validate-load run."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of raw records per extracted batch."),
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		}),
		ExtractErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_errors_total",
			Help:      help("Failed batch extractions."),
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_publish_errors_total",
			Help:      help("Run reports that could not be published."),
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.RecordsConsumed,
		m.RecordsRejected,
		m.ConversionWarnings,
		m.RecordsUpserted,
		m.RangeViolations,
		m.PipelineRunning,
		m.Runs,
		m.RunDuration,
		m.BatchSize,
		m.ExtractErrors,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
