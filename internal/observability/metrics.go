package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lake_raster"

// Metrics holds the Prometheus counters, histograms, and gauges for the raster engine.
type Metrics struct {
	FramesRead        *prometheus.CounterVec // labels: mode={single,multi,pixel}
	FilesSkipped      *prometheus.CounterVec // labels: reason
	Observations      prometheus.Counter
	PublishedMessages prometheus.Counter
	EngineReady       prometheus.Gauge

	StackBuildDuration prometheus.Histogram
	AnalysisDuration   *prometheus.HistogramVec // labels: kind={occurrence,average,samples,enhance,reference}

	// Memoization layer.
	MemoLookups *prometheus.CounterVec // labels: result={hit,miss,bypass}
}

var (
	stackBuckets    = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	analysisBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}
)

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		FramesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_read_total",
			Help:      help("Raster frames read by ingestion mode."),
		}, []string{"mode"}),
		FilesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      help("Files and points skipped by reason."),
		}, []string{"reason"}),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      help("Sample observations extracted at sampling points."),
		}),
		PublishedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_messages_total",
			Help:      help("Sampling results written to the sink topic."),
		}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_ready",
			Help:      help("1 once the engine has completed a probe or an analysis."),
		}),
		StackBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stack_build_duration_seconds",
			Help:      help("Duration of building a raster stack from a dataset folder."),
			Buckets:   stackBuckets,
		}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      help("Duration of an engine operation by kind."),
			Buckets:   analysisBuckets,
		}, []string{"kind"}),
		MemoLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memo_lookups_total",
			Help:      help("Memoization lookups by result."),
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.FramesRead,
		m.FilesSkipped,
		m.Observations,
		m.PublishedMessages,
		m.EngineReady,
		m.StackBuildDuration,
		m.AnalysisDuration,
		m.MemoLookups,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
