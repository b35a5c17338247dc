// Package metrics defines the Prometheus collectors for index builds and
// retrieval, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	BlocksInvertedTotal *prometheus.CounterVec
	BlockDuration       prometheus.Histogram
	MergeDuration       prometheus.Histogram
	PostingsWritten     prometheus.Counter
	DocsIndexedTotal    prometheus.Counter
	IndexTerms          prometheus.Gauge
	IndexDocuments      prometheus.Gauge
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram
	UnknownTermsTotal   prometheus.Counter
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
}

// New creates all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BlocksInvertedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bsbi_blocks_inverted_total",
				Help: "Blocks inverted and written to an intermediate index, by status.",
			},
			[]string{"status"},
		),
		BlockDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bsbi_block_duration_seconds",
				Help:    "Time to invert and write one block.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bsbi_merge_duration_seconds",
				Help:    "Time to merge all block indices into the final index.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
		PostingsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_postings_written_total",
				Help: "Postings written to the final index.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_docs_indexed_total",
				Help: "Documents parsed from the collection.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bsbi_index_terms",
				Help: "Distinct terms in the last built or opened index.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bsbi_index_documents",
				Help: "Documents in the last built or opened index.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bsbi_search_queries_total",
				Help: "Queries by scoring scheme and result type (results, zero_result, error).",
			},
			[]string{"scheme", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bsbi_search_latency_seconds",
				Help:    "Query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"scheme"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bsbi_search_results_count",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
		),
		UnknownTermsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_unknown_query_terms_total",
				Help: "Query terms skipped because they are not in the term map.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
	}

	m.registry.MustRegister(
		m.BlocksInvertedTotal,
		m.BlockDuration,
		m.MergeDuration,
		m.PostingsWritten,
		m.DocsIndexedTotal,
		m.IndexTerms,
		m.IndexDocuments,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.UnknownTermsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for m.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBlock(seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BlocksInvertedTotal.WithLabelValues(status).Inc()
	m.BlockDuration.Observe(seconds)
}

func (m *Metrics) ObserveMerge(seconds float64, postings int) {
	if m == nil {
		return
	}
	m.MergeDuration.Observe(seconds)
	m.PostingsWritten.Add(float64(postings))
}

func (m *Metrics) AddDocs(n int) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Add(float64(n))
}

func (m *Metrics) SetIndexSize(terms, docs int) {
	if m == nil {
		return
	}
	m.IndexTerms.Set(float64(terms))
	m.IndexDocuments.Set(float64(docs))
}

// ObserveQuery records one query. results < 0 marks a failed query.
func (m *Metrics) ObserveQuery(scheme string, seconds float64, results, unknownTerms int) {
	if m == nil {
		return
	}
	resultType := "results"
	switch {
	case results < 0:
		resultType = "error"
	case results == 0:
		resultType = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(scheme, resultType).Inc()
	m.SearchLatency.WithLabelValues(scheme).Observe(seconds)
	if results >= 0 {
		m.SearchResultsCount.Observe(float64(results))
	}
	m.UnknownTermsTotal.Add(float64(unknownTerms))
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
