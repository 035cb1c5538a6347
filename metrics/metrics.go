// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/quorum/filestore"
	"github.com/danielhkuo/quorum/models"
)

const namespace = "quorum"

// Compile sources
const (
	SourceInline = "inline"
	SourceScope  = "scope"
)

// Metrics holds the service collectors. Each instance registers against its
// own registry so tests and servers never share counters.
type Metrics struct {
	registry *prometheus.Registry

	compiles      *prometheus.CounterVec
	configErrors  prometheus.Counter
	duration      prometheus.Histogram
	diagnostics   *prometheus.CounterVec
	entries       *prometheus.CounterVec
	cacheFetched  prometheus.Counter
	cacheRemoved  prometheus.Counter
	cacheBytes    prometheus.Counter
	snapshots     *prometheus.CounterVec
	filesUploaded prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compiles_total",
			Help:      "Compilations run, by input source.",
		}, []string{"source"}),
		configErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_errors_total",
			Help:      "Compilations aborted by an invalid config.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Time spent compiling consensus.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics reported, by severity and kind.",
		}, []string{"severity", "kind"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_entries_total",
			Help:      "Consensus entries produced, by outcome.",
		}, []string{"reached"}),
		cacheFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetched_files_total",
			Help:      "Files fetched into the raw-file cache.",
		}),
		cacheRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evicted_files_total",
			Help:      "Files evicted from the raw-file cache.",
		}),
		cacheBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetched_bytes_total",
			Help:      "Bytes fetched into the raw-file cache.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot lookups on scope compiles, by result.",
		}, []string{"result"}),
		filesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_stored_total",
			Help:      "Raw annotation files written to the repository store.",
		}),
	}

	m.registry.MustRegister(
		m.compiles, m.configErrors, m.duration, m.diagnostics, m.entries,
		m.cacheFetched, m.cacheRemoved, m.cacheBytes, m.snapshots, m.filesUploaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCompile records a finished compilation.
func (m *Metrics) ObserveCompile(source string, elapsed time.Duration, report *models.CompileReport) {
	m.compiles.WithLabelValues(source).Inc()
	m.duration.Observe(elapsed.Seconds())

	for _, d := range report.Diagnostics {
		m.diagnostics.WithLabelValues(string(d.Severity), string(d.Kind)).Inc()
	}
	reached := report.Stats.ConsensusCount
	m.entries.WithLabelValues("true").Add(float64(reached))
	m.entries.WithLabelValues("false").Add(float64(len(report.Entries) - reached))
}

func (m *Metrics) ObserveConfigError(diags []models.Diagnostic) {
	m.configErrors.Inc()
	for _, d := range diags {
		m.diagnostics.WithLabelValues(string(d.Severity), string(d.Kind)).Inc()
	}
}

func (m *Metrics) ObserveRefresh(stats filestore.RefreshStats) {
	m.cacheFetched.Add(float64(stats.Fetched))
	m.cacheRemoved.Add(float64(stats.Removed))
	m.cacheBytes.Add(float64(stats.Bytes))
}

func (m *Metrics) ObserveSnapshot(reused bool) {
	if reused {
		m.snapshots.WithLabelValues("reused").Inc()
		return
	}
	m.snapshots.WithLabelValues("new").Inc()
}

func (m *Metrics) ObserveFileStored() {
	m.filesUploaded.Inc()
}
