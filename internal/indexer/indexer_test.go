package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
	"legalrag/internal/embedding/tfidf"
	"legalrag/internal/vectorstore/memory"
)

type fakeEmbedder struct {
	calls    int
	modes    []domain.EmbedMode
	failOn   map[int]bool
	prepared []string
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Prepare(corpus []string) error {
	f.prepared = corpus
	return nil
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	f.calls++
	f.modes = append(f.modes, mode)
	if f.failOn[f.calls] {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func chunks(docType string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{
			DocumentType: docType,
			ArticleID:    string(rune('1' + i)),
			ParagraphID:  "1",
			Text:         "testo",
		}
	}
	return out
}

func TestIndexBatchesPerDocument(t *testing.T) {
	emb := &fakeEmbedder{}
	store := memory.NewStorage()
	ix := New(emb, store, Options{BatchSize: 2}, zerolog.Nop())

	all := append(chunks("costituzione", 3), chunks("regolamento_parlamentare", 2)...)
	report, err := ix.Index(context.Background(), all)
	require.NoError(t, err)

	assert.Equal(t, Report{Documents: 2, Chunks: 5}, report)
	assert.Equal(t, 3, emb.calls)
	for _, m := range emb.modes {
		assert.Equal(t, domain.ModeDocument, m)
	}
	assert.Len(t, emb.prepared, 5)
	assert.Equal(t, 5, store.Len())
}

func TestIndexIsIdempotent(t *testing.T) {
	store := memory.NewStorage()
	ix := New(&fakeEmbedder{}, store, Options{}, zerolog.Nop())
	c := chunks("costituzione", 4)

	_, err := ix.Index(context.Background(), c)
	require.NoError(t, err)
	_, err = ix.Index(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 4, store.Len())
}

func TestIndexReplaceDropsStalePoints(t *testing.T) {
	store := memory.NewStorage()
	_, err := New(&fakeEmbedder{}, store, Options{}, zerolog.Nop()).
		Index(context.Background(), chunks("costituzione", 4))
	require.NoError(t, err)

	_, err = New(&fakeEmbedder{}, store, Options{Replace: true}, zerolog.Nop()).
		Index(context.Background(), chunks("costituzione", 2))
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}

func TestIndexSkipsFailedBatch(t *testing.T) {
	emb := &fakeEmbedder{failOn: map[int]bool{2: true}}
	store := memory.NewStorage()
	report, err := New(emb, store, Options{BatchSize: 1}, zerolog.Nop()).
		Index(context.Background(), chunks("costituzione", 3))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 1, report.FailedBatches)
}

func TestIndexStopsAfterConsecutiveFailures(t *testing.T) {
	emb := &fakeEmbedder{failOn: map[int]bool{1: true, 2: true}}
	_, err := New(emb, memory.NewStorage(), Options{BatchSize: 1, MaxConsecutiveFailures: 2}, zerolog.Nop()).
		Index(context.Background(), chunks("costituzione", 5))
	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.Equal(t, 2, emb.calls)
}

func TestEmbeddingText(t *testing.T) {
	c := domain.Chunk{
		Level1Title: "Parte I",
		Level2Title: "Titolo I",
		Text:        "La libertà personale è inviolabile",
		Keywords:    []string{"libertà", "habeas corpus"},
	}
	got := EmbeddingText(c)
	assert.True(t, strings.HasPrefix(got, "Argomento Principale: Titolo I."))
	assert.Contains(t, got, "Testo: La libertà personale è inviolabile.")
	assert.True(t, strings.HasSuffix(got, "Concetti Chiave: libertà, habeas corpus."))

	assert.Equal(t, "Testo: x.", EmbeddingText(domain.Chunk{Text: "x"}))
}

func TestPrepareMatchesIndexedSpace(t *testing.T) {
	ctx := context.Background()
	corpus := []domain.Chunk{
		{DocumentType: "costituzione", ArticleID: "13", ParagraphID: "1", Text: "La libertà personale è inviolabile", Keywords: []string{"libertà personale"}},
		{DocumentType: "costituzione", ArticleID: "21", ParagraphID: "2", Text: "La stampa non può essere soggetta ad autorizzazioni o censure", Keywords: []string{"libertà di stampa", "censura"}},
		{DocumentType: "costituzione", ArticleID: "32", ParagraphID: "1", Text: "La Repubblica tutela la salute come fondamentale diritto", Keywords: []string{"salute"}},
	}
	store := memory.NewStorage()
	_, err := New(tfidf.NewEmbedder(), store, Options{}, zerolog.Nop()).Index(ctx, corpus)
	require.NoError(t, err)

	// a separate process starts with a fresh embedder
	query := tfidf.NewEmbedder()
	_, err = query.Embed(ctx, []string{"stampa"}, domain.ModeQuery)
	require.Error(t, err)

	require.NoError(t, Prepare(query, corpus))
	vecs, err := query.Embed(ctx, []string{"libertà di stampa"}, domain.ModeQuery)
	require.NoError(t, err)
	hits, err := store.Search(ctx, vecs[0], domain.Filter{}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "21", hits[0].Chunk.ArticleID)
}

func TestPrepareIgnoresPlainEmbedders(t *testing.T) {
	assert.NoError(t, Prepare(noPrepare{}, chunks("costituzione", 2)))
}

type noPrepare struct{}

func (noPrepare) Name() string { return "plain" }

func (noPrepare) Embed(context.Context, []string, domain.EmbedMode) ([][]float32, error) {
	return nil, nil
}
