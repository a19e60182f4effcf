// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accidentwatch"

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	articlesCollected *prometheus.CounterVec
	crawlerErrors     *prometheus.CounterVec
	articlesMerged    *prometheus.CounterVec
	extractionBlocks  *prometheus.CounterVec
	articlesFailed    prometheus.Counter
	recordsStored     *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	stageDuration     *prometheus.HistogramVec
	running           prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		articlesCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_collected_total",
			Help:      "Articles returned by crawlers, by source.",
		}, []string{"source"}),
		crawlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawler_errors_total",
			Help:      "Crawlers that stopped with an error.",
		}, []string{"stage"}),
		articlesMerged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_merged_total",
			Help:      "Merge results per article: kept, url_duplicate, irrelevant or near_duplicate.",
		}, []string{"result"}),
		extractionBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_blocks_total",
			Help:      "Fenced JSON blocks in model replies: record, malformed or dropped.",
		}, []string{"result"}),
		articlesFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Articles whose model call failed.",
		}),
		recordsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Accident records stored, by duplicate flag.",
		}, []string{"duplicate"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 18),
		}, []string{"stage"}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a pipeline run is in flight.",
		}),
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Collected(source string, n int) {
	if m == nil {
		return
	}
	m.articlesCollected.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) CrawlerFailed(stage string) {
	if m == nil {
		return
	}
	m.crawlerErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Merged(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.articlesMerged.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) Blocks(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.extractionBlocks.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) ExtractionFailed(n int) {
	if m == nil {
		return
	}
	m.articlesFailed.Add(float64(n))
}

// Stored counts stored records split by their duplicate flag.
func (m *Metrics) Stored(unique, duplicates int) {
	if m == nil {
		return
	}
	m.recordsStored.WithLabelValues("false").Add(float64(unique))
	m.recordsStored.WithLabelValues("true").Add(float64(duplicates))
}

// StageTimer returns a func that observes the time since StageTimer was
// called.
func (m *Metrics) StageTimer(stage string) func() {
	if m == nil {
		return func() {}
	}
	t := prometheus.NewTimer(m.stageDuration.WithLabelValues(stage))
	return func() { t.ObserveDuration() }
}

// RunStarted marks a run as in flight.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.running.Set(1)
}

// RunFinished records a finished run.
func (m *Metrics) RunFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}
