package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
)

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i] * b[i])
	}
	return s
}

func TestEmbedBeforePrepareFails(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), []string{"x"}, domain.ModeQuery)
	assert.Error(t, err)
}

func TestEmbedRanksRelevantPassageFirst(t *testing.T) {
	corpus := []string{
		"La libertà personale è inviolabile.",
		"La Camera elegge il Presidente.",
		"La stampa non può essere soggetta ad autorizzazioni o censure.",
	}
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	assert.Positive(t, e.Dimension())

	docs, err := e.Embed(context.Background(), corpus, domain.ModeDocument)
	require.NoError(t, err)
	q, err := e.Embed(context.Background(), []string{"censure della stampa"}, domain.ModeQuery)
	require.NoError(t, err)

	best, bestScore := -1, -1.0
	for i, d := range docs {
		if s := dot(d, q[0]); s > bestScore {
			best, bestScore = i, s
		}
	}
	assert.Equal(t, 2, best)
	assert.InDelta(t, 1.0, math.Sqrt(dot(docs[0], docs[0])), 1e-5)
}

func TestEmbedUnknownWordsIsZeroVector(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"quorum"}))
	v, err := e.Embed(context.Background(), []string{"zzz"}, domain.ModeQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{0}, v[0])
}

func TestPrepareRejectsStopwordOnlyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare([]string{"il la di"}))
	assert.Error(t, NewEmbedder().Prepare(nil))
}
