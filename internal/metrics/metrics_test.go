package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOnOwnRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTurn("structural", 10*time.Millisecond)
	m.ObserveTurn("structural", 20*time.Millisecond)
	m.ObserveClassification("general")
	m.ObserveCache(3, 1)
	m.SetCorpusChunks(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("structural")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("general")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EmbeddingCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.CorpusChunks))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("follow_up", time.Second)
		m.SessionOpened()
		m.ObserveClassification("parse_error")
		m.ObserveRetrieval(time.Second, 3)
		m.RetrievalFailed("embed")
		m.ObserveCache(1, 1)
		m.SetCorpusChunks(1)
	})
}
