package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
)

type fakeClassifier struct {
	out    string
	err    error
	prompt string
}

func (f *fakeClassifier) Classify(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func TestPreprocessOrdinals(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"il terzo articolo", "il 3 articolo"},
		{"cosa dice l'articolo cinque", "cosa dice l'articolo cinque"},
		{"la Parte Seconda e il titolo PRIMO", "la Parte 2 e il titolo 1"},
		{"la prima parte e il decimo capo", "la 1 parte e il 10 capo"},
		{"primordiale secondario", "primordiale secondario"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PreprocessOrdinals(tc.in), tc.in)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"intent":"general"}`, `{"intent":"general"}`},
		{"fenced", "Here it is:\n```json\n{\"intent\": \"content\"}\n```\nbye", `{"intent": "content"}`},
		{"prose", `Sure! {"intent":"structural","entities":{"article":"5"}} hope it helps {`, `{"intent":"structural","entities":{"article":"5"}}`},
		{"skips broken brace", `{oops} then {"intent":"general"}`, `{"intent":"general"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, got)
		})
	}

	_, err := ExtractJSON("no object here")
	assert.Error(t, err)
}

func TestParseAnalysisAcceptsItalianKeys(t *testing.T) {
	qa, err := ParseAnalysis(`{"intent":"ricerca_strutturale","entities":{"documento":"Costituzione","articolo":["3",4],"nome_sezione":"parte 2"}}`)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStructural, qa.Intent)
	assert.Equal(t, "costituzione", qa.Entities.Document)
	assert.Equal(t, []string{"3", "4"}, qa.Entities.Article.IDs())
	assert.True(t, qa.Entities.Article.IsMany())
	assert.Equal(t, "parte 2", qa.Entities.SectionName)
}

func TestParseAnalysisRejectsUnknownIntent(t *testing.T) {
	_, err := ParseAnalysis(`{"intent":"chit-chat","entities":{}}`)
	assert.Error(t, err)
}

func TestAnalyzerClassifies(t *testing.T) {
	fc := &fakeClassifier{out: "```json\n{\"intent\":\"content\",\"entities\":{\"article\":1,\"document\":\"regolamento\"}}\n```"}
	a := NewAnalyzer(fc, 0, nil, zerolog.Nop())

	res := a.Analyze(context.Background(), "cosa dice il primo articolo del regolamento?")

	assert.False(t, res.Degraded)
	assert.Equal(t, "cosa dice il 1 articolo del regolamento?", res.Query)
	assert.Equal(t, domain.IntentContent, res.Analysis.Intent)
	assert.Equal(t, []string{"1"}, res.Analysis.Entities.Article.IDs())
	assert.Equal(t, "regolamento", res.Analysis.Entities.Document)
	assert.True(t, strings.Contains(fc.prompt, "il 1 articolo"), "prompt must carry the normalized question")
}

func TestAnalyzerDegradesToGeneral(t *testing.T) {
	cases := []struct {
		name string
		fc   *fakeClassifier
	}{
		{"call error", &fakeClassifier{err: errors.New("quota exceeded")}},
		{"garbage", &fakeClassifier{out: "I cannot help with that"}},
		{"bad intent", &fakeClassifier{out: `{"intent":"weather"}`}},
		{"bad article", &fakeClassifier{out: `{"intent":"content","entities":{"article":{"n":1}}}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := NewAnalyzer(tc.fc, 0, nil, zerolog.Nop()).Analyze(context.Background(), "domanda")
			assert.True(t, res.Degraded)
			assert.Equal(t, domain.GeneralAnalysis(), res.Analysis)
		})
	}
}
