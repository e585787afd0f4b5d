// Package metrics defines the Prometheus collectors used by the annotation
// store and the staging pipeline, and exposes an HTTP handler for scraping.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	EntriesAdmittedTotal    *prometheus.CounterVec
	DuplicateAdmissions     *prometheus.CounterVec
	CoverageBuildsTotal     *prometheus.CounterVec
	CoverageBuildDuration   prometheus.Histogram
	CoverageLookupsTotal    *prometheus.CounterVec
	QueryDuration           prometheus.Histogram
	ErrorsTotal             *prometheus.CounterVec
	DocumentsStagedTotal    *prometheus.CounterVec
	RecordsExtractedTotal   prometheus.Counter
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	StructuralIndexesActive *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		EntriesAdmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapack_entries_admitted_total",
				Help: "Entries admitted into a data pack by kind.",
			},
			[]string{"kind"},
		),
		DuplicateAdmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapack_duplicate_admissions_total",
				Help: "Admissions resolved to an already stored equal entry, by kind.",
			},
			[]string{"kind"},
		),
		CoverageBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapack_coverage_builds_total",
				Help: "Coverage index builds by outer and inner type.",
			},
			[]string{"outer", "inner"},
		),
		CoverageBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "datapack_coverage_build_duration_seconds",
				Help:    "Coverage index build latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		CoverageLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapack_coverage_lookups_total",
				Help: "Coverage index lookups by the resolution tier that answered them.",
			},
			[]string{"tier"},
		),
		QueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "datapack_query_duration_seconds",
				Help:    "GetEntries id-set resolution latency in seconds.",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapack_errors_total",
				Help: "Errors surfaced to callers by error code.",
			},
			[]string{"code"},
		),
		DocumentsStagedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stager_documents_total",
				Help: "Documents processed by the staging pipeline by status.",
			},
			[]string{"status"},
		),
		RecordsExtractedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stager_records_extracted_total",
				Help: "Flat records extracted from data packs.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stager_cache_hits_total",
				Help: "Total number of record cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stager_cache_misses_total",
				Help: "Total number of record cache misses.",
			},
		),
		StructuralIndexesActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "datapack_structural_indexes_active",
				Help: "Structural indexes activated across live packs, by index.",
			},
			[]string{"index"},
		),
	}

	reg.MustRegister(
		m.EntriesAdmittedTotal,
		m.DuplicateAdmissions,
		m.CoverageBuildsTotal,
		m.CoverageBuildDuration,
		m.CoverageLookupsTotal,
		m.QueryDuration,
		m.ErrorsTotal,
		m.DocumentsStagedTotal,
		m.RecordsExtractedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.StructuralIndexesActive,
	)

	return m
}

func (m *Metrics) EntryAdmitted(kind string) {
	if m == nil {
		return
	}
	m.EntriesAdmittedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) DuplicateAdmission(kind string) {
	if m == nil {
		return
	}
	m.DuplicateAdmissions.WithLabelValues(kind).Inc()
}

func (m *Metrics) CoverageBuilt(outer, inner string, d time.Duration) {
	if m == nil {
		return
	}
	m.CoverageBuildsTotal.WithLabelValues(outer, inner).Inc()
	m.CoverageBuildDuration.Observe(d.Seconds())
}

func (m *Metrics) CoverageLookup(tier string) {
	if m == nil {
		return
	}
	m.CoverageLookupsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) QueryResolved(d time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.Observe(d.Seconds())
}

func (m *Metrics) Error(code string) {
	if m == nil || code == "" {
		return
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) DocumentStaged(status string) {
	if m == nil {
		return
	}
	m.DocumentsStagedTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordsExtracted(n int) {
	if m == nil {
		return
	}
	m.RecordsExtractedTotal.Add(float64(n))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) IndexActivated(index string) {
	if m == nil {
		return
	}
	m.StructuralIndexesActive.WithLabelValues(index).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
