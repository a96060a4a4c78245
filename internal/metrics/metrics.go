// Package metrics provides Prometheus metrics for legalrag
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for legalrag. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Session metrics
	TurnsTotal    *prometheus.CounterVec
	TurnDuration  *prometheus.HistogramVec
	SessionsTotal prometheus.Counter

	// Router metrics
	ClassificationsTotal *prometheus.CounterVec

	// Retrieval metrics
	RetrievalDuration    prometheus.Histogram
	RetrievalHits        prometheus.Histogram
	RetrievalErrorsTotal *prometheus.CounterVec

	// Embedding cache metrics
	EmbeddingCacheTotal *prometheus.CounterVec

	// Corpus metrics
	CorpusChunks prometheus.Gauge
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.TurnsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalrag_turns_total",
			Help: "Total number of session turns by path taken",
		},
		[]string{"path"},
	)

	m.TurnDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "legalrag_turn_duration_seconds",
			Help:    "Duration of session turns in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"path"},
	)

	m.SessionsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "legalrag_sessions_total",
			Help: "Total number of sessions opened",
		},
	)

	m.ClassificationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalrag_classifications_total",
			Help: "Total number of question classifications by outcome",
		},
		[]string{"outcome"},
	)

	m.RetrievalDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legalrag_retrieval_duration_seconds",
			Help:    "Duration of embed plus vector search in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.RetrievalHits = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legalrag_retrieval_hits",
			Help:    "Number of hits returned per search",
			Buckets: []float64{0, 1, 5, 10, 15, 20, 50},
		},
	)

	m.RetrievalErrorsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalrag_retrieval_errors_total",
			Help: "Total number of failed retrieval stages",
		},
		[]string{"stage"},
	)

	m.EmbeddingCacheTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalrag_embedding_cache_total",
			Help: "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	m.CorpusChunks = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "legalrag_corpus_chunks",
			Help: "Number of chunks in the current corpus snapshot",
		},
	)

	return m
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(path).Inc()
	m.TurnDuration.WithLabelValues(path).Observe(d.Seconds())
}

// SessionOpened counts a new session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
}

// ObserveClassification records a classification outcome.
func (m *Metrics) ObserveClassification(outcome string) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetrieval records a successful search.
func (m *Metrics) ObserveRetrieval(d time.Duration, hits int) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Observe(d.Seconds())
	m.RetrievalHits.Observe(float64(hits))
}

// RetrievalFailed counts a failure in the embed or search stage.
func (m *Metrics) RetrievalFailed(stage string) {
	if m == nil {
		return
	}
	m.RetrievalErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveCache records embedding cache hits and misses.
func (m *Metrics) ObserveCache(hits, misses int) {
	if m == nil {
		return
	}
	m.EmbeddingCacheTotal.WithLabelValues("hit").Add(float64(hits))
	m.EmbeddingCacheTotal.WithLabelValues("miss").Add(float64(misses))
}

// SetCorpusChunks updates the corpus size gauge.
func (m *Metrics) SetCorpusChunks(n int) {
	if m == nil {
		return
	}
	m.CorpusChunks.Set(float64(n))
}
