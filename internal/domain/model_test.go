package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStructureDecodesNumericArticles(t *testing.T) {
	raw := `{
		"document_title": "Costituzione",
		"document_type": "costituzione",
		"structure": [{
			"node_id": "p1", "level": 1, "title": "Parte I",
			"articles": [13, "14", " 15-bis "],
			"children": null
		}]
	}`
	var doc DocumentStructure
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.Len(t, doc.Structure, 1)
	assert.Equal(t, ArticleList{"13", "14", "15-bis"}, doc.Structure[0].Articles)
}

func TestChunkDecodesUpstreamKeys(t *testing.T) {
	raw := `{
		"document_title": "Costituzione della Repubblica Italiana",
		"document_type": "costituzione",
		"livello_1_title": "Principi fondamentali",
		"articolo": 1,
		"comma": "2",
		"testo_originale_comma": "La sovranità appartiene al popolo.",
		"keywords": ["sovranità"],
		"tags": ["principi"]
	}`
	var c Chunk
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, "1", c.ArticleID)
	assert.Equal(t, "2", c.ParagraphID)
	assert.Equal(t, "costituzione", c.DocumentType)
	assert.Equal(t, []string{"sovranità"}, c.Keywords)
	assert.Equal(t, []string{"Principi fondamentali"}, c.SectionTitles())
}

func TestChunkSectionTitlesMostSpecificFirst(t *testing.T) {
	c := Chunk{Level1Title: "Parte I", Level2Title: "Titolo II", Level3Title: "Sezione I"}
	assert.Equal(t, []string{"Sezione I", "Titolo II", "Parte I"}, c.SectionTitles())
}

func TestFilterMatch(t *testing.T) {
	c := Chunk{DocumentType: "costituzione", ArticleID: "13"}

	assert.True(t, Filter{}.Match(c))
	assert.True(t, Filter{DocumentType: "costituzione"}.Match(c))
	assert.False(t, Filter{DocumentType: "regolamento_parlamentare"}.Match(c))
	assert.True(t, Filter{Articles: []string{"12", "13"}}.Match(c))
	assert.False(t, Filter{DocumentType: "costituzione", Articles: []string{"14"}}.Match(c))
	assert.True(t, Filter{}.IsEmpty())
}

func TestQueryAnalysisArticleShapes(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		ids   []string
		many  bool
		empty bool
	}{
		{name: "string", raw: `{"intent":"content","entities":{"article":"13"}}`, ids: []string{"13"}},
		{name: "number", raw: `{"intent":"content","entities":{"article":13}}`, ids: []string{"13"}},
		{name: "list", raw: `{"intent":"content","entities":{"article":[13,"14"]}}`, ids: []string{"13", "14"}, many: true},
		{name: "null", raw: `{"intent":"content","entities":{"article":null}}`, empty: true},
		{name: "blank", raw: `{"intent":"content","entities":{"article":"  "}}`, empty: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var qa QueryAnalysis
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &qa))
			if tc.empty {
				assert.True(t, qa.Entities.Article.IsZero())
				return
			}
			assert.Equal(t, tc.ids, qa.Entities.Article.IDs())
			assert.Equal(t, tc.many, qa.Entities.Article.IsMany())
		})
	}
}

func TestQueryAnalysisMarshalOmitsAbsentEntities(t *testing.T) {
	b, err := json.Marshal(GeneralAnalysis())
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"general","entities":{}}`, string(b))

	b, err = json.Marshal(QueryAnalysis{
		Intent:   IntentStructural,
		Entities: Entities{Article: ManyArticles("3", "4")},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"structural","entities":{"article":["3","4"]}}`, string(b))
}
