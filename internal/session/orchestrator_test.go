package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/corpus"
	"legalrag/internal/domain"
	"legalrag/internal/router"
)

type fakeAnalyzer struct {
	results map[string]domain.QueryAnalysis

	mu   sync.Mutex
	seen []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, q string) router.Result {
	f.mu.Lock()
	f.seen = append(f.seen, q)
	f.mu.Unlock()
	query := router.PreprocessOrdinals(q)
	qa, ok := f.results[query]
	if !ok {
		return router.Result{Query: query, Analysis: domain.GeneralAnalysis(), Degraded: true}
	}
	return router.Result{Query: query, Analysis: qa}
}

type fakeSearcher struct {
	hits  []domain.SearchHit
	calls int
}

func (f *fakeSearcher) Retrieve(context.Context, string, domain.QueryAnalysis) []domain.SearchHit {
	f.calls++
	return f.hits
}

type generateCall struct {
	system, context, question string
}

type fakeGenerator struct {
	name  string
	err   error
	calls []generateCall
}

func (f *fakeGenerator) Generate(_ context.Context, system, ctx, question string) (string, error) {
	f.calls = append(f.calls, generateCall{system, ctx, question})
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("[%s] %s", f.name, question), nil
}

type fixture struct {
	orch     *Orchestrator
	analyzer *fakeAnalyzer
	searcher *fakeSearcher
	def, pro *fakeGenerator
}

func testCorpus() *corpus.Corpus {
	return corpus.New(
		[]domain.DocumentStructure{{
			DocumentTitle: "Costituzione della Repubblica Italiana",
			DocumentType:  "costituzione",
			Structure: []domain.StructureNode{
				{Title: "PARTE I", Level: 1, Children: []domain.StructureNode{
					{Title: "TITOLO I", Level: 2, Articles: domain.ArticleList{"13"}},
				}},
			},
		}},
		map[string]string{"TITOLO I": "Rapporti civili.", "PARTE I": "Diritti e doveri."},
		nil,
	)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		analyzer: &fakeAnalyzer{results: map[string]domain.QueryAnalysis{
			"dove si trova l'articolo 13?": {
				Intent:   domain.IntentStructural,
				Entities: domain.Entities{Article: domain.SingleArticle("13")},
			},
			"cosa dice l'articolo 13?": {
				Intent:   domain.IntentContent,
				Entities: domain.Entities{Article: domain.SingleArticle("13")},
			},
		}},
		searcher: &fakeSearcher{hits: []domain.SearchHit{{
			Score: 0.9,
			Chunk: domain.Chunk{
				DocumentTitle: "Costituzione della Repubblica Italiana",
				Level1Title:   "PARTE I",
				Level2Title:   "TITOLO I",
				ArticleID:     "13",
				ParagraphID:   "1",
				Text:          "La libertà personale è inviolabile.",
			},
		}}},
		def: &fakeGenerator{name: "default"},
		pro: &fakeGenerator{name: "pro"},
	}
	orch, err := New(Deps{
		Corpus:     testCorpus(),
		Analyzer:   f.analyzer,
		Retriever:  f.searcher,
		Generators: map[string]domain.Generator{"default": f.def, "pro": f.pro},
		Tasks:      NewTasks(map[string]string{"tutor": "You teach law students."}),
	}, Config{}, zerolog.Nop())
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestStructuralTurnStoresLiteralAnswer(t *testing.T) {
	f := newFixture(t)

	answer, st, tr := f.orch.Answer(context.Background(), f.orch.NewState(), "dove si trova l'articolo 13?")

	assert.Equal(t, PathStructural, tr.Path)
	assert.Contains(t, answer, "PARTE I -> TITOLO I")
	require.NotNil(t, st.Last)
	assert.Equal(t, answer, st.Last.Answer)
	assert.Empty(t, st.Last.Context)
	assert.Zero(t, f.searcher.calls)
	assert.Empty(t, f.def.calls)
}

func TestContentTurnGeneratesFromAssembledContext(t *testing.T) {
	f := newFixture(t)

	answer, st, tr := f.orch.Answer(context.Background(), f.orch.NewState(), "cosa dice l'articolo 13?")

	assert.Equal(t, PathRetrieval, tr.Path)
	assert.Equal(t, "[default] cosa dice l'articolo 13?", answer)
	require.Len(t, tr.Hits, 1)
	require.Len(t, f.def.calls, 1)
	call := f.def.calls[0]
	assert.Equal(t, defaultSystemPrompt, call.system)
	assert.Contains(t, call.context, "**Section context (TITOLO I):**\nRapporti civili.")
	assert.Contains(t, call.context, "Source: [Costituzione della Repubblica Italiana] Art. 13, Comma 1.")
	require.NotNil(t, st.Last)
	assert.Equal(t, call.context, st.Last.Context)
	assert.Empty(t, st.Last.Answer)
}

func TestFollowUpWithoutPriorTurnIsRejected(t *testing.T) {
	f := newFixture(t)
	initial := f.orch.NewState()

	for _, q := range []string{"più sintetico", "make it more concise", "in modo DETTAGLIATO"} {
		answer, st, tr := f.orch.Answer(context.Background(), initial, q)
		assert.Equal(t, FollowUpRejected, answer)
		assert.Equal(t, initial, st)
		assert.Equal(t, PathRejected, tr.Path)
		assert.ErrorIs(t, tr.Err, ErrNoPriorTurn)
	}
	assert.Empty(t, f.analyzer.seen)
	assert.Empty(t, f.def.calls)
}

func TestFollowUpAfterStructuralReworksAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prior, st, _ := f.orch.Answer(ctx, f.orch.NewState(), "dove si trova l'articolo 13?")

	_, after, tr := f.orch.Answer(ctx, st, "più sintetico @pro")

	assert.Equal(t, PathFollowUp, tr.Path)
	assert.Equal(t, "concise", tr.Style)
	assert.Equal(t, "pro", tr.Model)
	assert.Equal(t, st, after)
	require.Len(t, f.pro.calls, 1)
	assert.Contains(t, f.pro.calls[0].question, "in a more concise way")
	assert.Contains(t, f.pro.calls[0].question, prior)
	assert.Equal(t, "The original question was: dove si trova l'articolo 13?", f.pro.calls[0].context)
	assert.Equal(t, "default", after.Model, "alias overrides a single turn only")
}

func TestFollowUpAfterContentReusesContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, st, _ := f.orch.Answer(ctx, f.orch.NewState(), "cosa dice l'articolo 13?")

	_, after, tr := f.orch.Answer(ctx, st, "more detailed please")

	assert.Equal(t, PathFollowUp, tr.Path)
	assert.Equal(t, "detailed", tr.Style)
	assert.Equal(t, 1, f.searcher.calls, "follow-up must not retrieve")
	require.Len(t, f.def.calls, 2)
	assert.Equal(t, st.Last.Context, f.def.calls[1].context)
	assert.Contains(t, f.def.calls[1].question, "cosa dice l'articolo 13?")
	assert.Same(t, st.Last, after.Last)
}

func TestNoHitsClearsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, st, _ := f.orch.Answer(ctx, f.orch.NewState(), "dove si trova l'articolo 13?")
	require.NotNil(t, st.Last)

	f.searcher.hits = nil
	answer, st, tr := f.orch.Answer(ctx, st, "quorum per il regolamento")

	assert.Equal(t, NoInformation, answer)
	assert.Equal(t, PathNoResult, tr.Path)
	assert.Nil(t, st.Last)
	assert.Empty(t, f.def.calls)

	answer, _, tr = f.orch.Answer(ctx, st, "più dettagliato")
	assert.Equal(t, FollowUpRejected, answer)
	assert.Equal(t, PathRejected, tr.Path)
}

func TestGenerationFailureYieldsWarning(t *testing.T) {
	f := newFixture(t)
	f.def.err = errors.New("503 overloaded")

	answer, st, tr := f.orch.Answer(context.Background(), f.orch.NewState(), "cosa dice l'articolo 13?")

	assert.Equal(t, GenerationFailed, answer)
	assert.Equal(t, PathRetrieval, tr.Path)
	require.Error(t, tr.Err)
	assert.NotNil(t, st.Last, "the retrieved context stays available for a retry")
}

func TestModelAliasIsStrippedBeforeAnalysis(t *testing.T) {
	f := newFixture(t)

	answer, _, tr := f.orch.Answer(context.Background(), f.orch.NewState(), "@PRO cosa dice l'articolo 13?")

	assert.Equal(t, []string{"cosa dice l'articolo 13?"}, f.analyzer.seen)
	assert.Equal(t, "pro", tr.Model)
	assert.Equal(t, "[pro] cosa dice l'articolo 13?", answer)
}

func TestModelAliasMatchesWholeTokenOnly(t *testing.T) {
	f := newFixture(t)

	_, _, tr := f.orch.Answer(context.Background(), f.orch.NewState(), "chiedo al @professore dell'articolo 13")

	assert.Equal(t, []string{"chiedo al @professore dell'articolo 13"}, f.analyzer.seen)
	assert.Equal(t, "default", tr.Model)

	f = newFixture(t)
	_, _, tr = f.orch.Answer(context.Background(), f.orch.NewState(), "cosa dice l'articolo 13 @pro?")

	assert.Equal(t, []string{"cosa dice l'articolo 13 ?"}, f.analyzer.seen)
	assert.Equal(t, "pro", tr.Model)
}

func TestUnknownAliasTargetFailsGracefully(t *testing.T) {
	f := newFixture(t)

	answer, _, tr := f.orch.Answer(context.Background(), f.orch.NewState(), "@gpt cosa dice l'articolo 13?")

	assert.Equal(t, GenerationFailed, answer)
	assert.Error(t, tr.Err)
}

func TestCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, st, _ := f.orch.Answer(ctx, f.orch.NewState(), "dove si trova l'articolo 13?")

	answer, same, tr := f.orch.Answer(ctx, st, "/tasks")
	assert.Equal(t, PathCommand, tr.Path)
	assert.Contains(t, answer, "legal_assistant, tutor")
	assert.Equal(t, st, same)

	_, same, _ = f.orch.Answer(ctx, st, "/task nope")
	assert.Equal(t, st, same)

	_, same, _ = f.orch.Answer(ctx, st, "/task tutor missing-model")
	assert.Equal(t, st, same)

	answer, next, tr := f.orch.Answer(ctx, st, "/task tutor pro")
	assert.Equal(t, PathCommand, tr.Path)
	assert.Contains(t, answer, "tutor")
	assert.Equal(t, State{Task: "tutor", Model: "pro"}, next)

	f.orch.Answer(ctx, next, "cosa dice l'articolo 13?")
	require.Len(t, f.pro.calls, 1)
	assert.Equal(t, "You teach law students.", f.pro.calls[0].system)

	answer, _, tr = f.orch.Answer(ctx, next, "EXIT")
	assert.Equal(t, Goodbye, answer)
	assert.Equal(t, PathExit, tr.Path)
}

func TestNewRequiresDefaultGenerator(t *testing.T) {
	_, err := New(Deps{
		Corpus:    testCorpus(),
		Analyzer:  &fakeAnalyzer{},
		Retriever: &fakeSearcher{},
	}, Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestAssembleContext(t *testing.T) {
	hits := []domain.SearchHit{
		{Chunk: domain.Chunk{DocumentTitle: "D", Level1Title: "PARTE I", Level2Title: "TITOLO I", ArticleID: "13", ParagraphID: "1", Text: "uno"}},
		{Chunk: domain.Chunk{DocumentTitle: "D", Level1Title: "PARTE I", ArticleID: "14", ParagraphID: "2", Text: "due"}},
	}

	got := AssembleContext(hits, testCorpus())

	want := "**Section context (TITOLO I):**\nRapporti civili." +
		"\n\n---\n\n**Section context (PARTE I):**\nDiritti e doveri." +
		"\n\n---\n\n**Relevant excerpts (ordered by relevance):**\n" +
		"Source: [D] Art. 13, Comma 1.\nText: uno" +
		"\n\n---\n\nSource: [D] Art. 14, Comma 2.\nText: due"
	assert.Equal(t, want, got)
}

func TestAssembleContextWithoutSummaries(t *testing.T) {
	got := AssembleContext([]domain.SearchHit{{Chunk: domain.Chunk{DocumentTitle: "D", ArticleID: "1", ParagraphID: "1", Text: "x"}}}, corpus.New(nil, nil, nil))
	assert.True(t, strings.HasPrefix(got, "**Relevant excerpts"))
}

func TestContextUsesOnlyPrefixOfHits(t *testing.T) {
	f := newFixture(t)
	var hits []domain.SearchHit
	for i := range 20 {
		hits = append(hits, domain.SearchHit{Chunk: domain.Chunk{DocumentTitle: "D", ArticleID: fmt.Sprint(i), ParagraphID: "1"}})
	}
	f.searcher.hits = hits

	_, _, tr := f.orch.Answer(context.Background(), f.orch.NewState(), "cosa dice l'articolo 13?")

	assert.Len(t, tr.Hits, 20)
	require.Len(t, f.def.calls, 1)
	assert.Equal(t, 15, strings.Count(f.def.calls[0].context, "Source: "))
}

func TestLoadTasks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sintesi.txt"), []byte("  Riassumi.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	tasks, err := LoadTasks(dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultTask, "sintesi"}, tasks.Names())
	p, ok := tasks.Prompt("sintesi")
	assert.True(t, ok)
	assert.Equal(t, "Riassumi.", p)

	tasks, err = LoadTasks(filepath.Join(dir, "missing"), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultTask}, tasks.Names())
}
