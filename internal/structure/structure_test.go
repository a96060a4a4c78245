package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
)

func sampleDoc() domain.DocumentStructure {
	return domain.DocumentStructure{
		DocumentTitle: "Costituzione della Repubblica Italiana",
		DocumentType:  "costituzione",
		Structure: []domain.StructureNode{
			{
				NodeID: "pf", Level: 1, Title: "Principi fondamentali",
				Articles: domain.ArticleList{"1", "2", "3"},
			},
			{
				NodeID: "p1", Level: 1, Title: "Parte I - Diritti e doveri dei cittadini",
				Children: []domain.StructureNode{
					{
						NodeID: "p1t1", Level: 2, Title: "Titolo I - Rapporti civili",
						Articles: domain.ArticleList{"13", "14", "15"},
					},
					{
						NodeID: "p1t2", Level: 2, Title: "Titolo II - Rapporti etico-sociali",
						Articles: domain.ArticleList{"29", "30"},
						Children: []domain.StructureNode{
							{NodeID: "deep", Level: 3, Title: "Sezione unica", Articles: domain.ArticleList{"31"}},
						},
					},
				},
			},
			{
				NodeID: "p2", Level: 1, Title: "Parte II - Ordinamento della Repubblica",
				Children: []domain.StructureNode{
					{NodeID: "p2t1", Level: 2, Title: "Titolo I - Il Parlamento", Articles: domain.ArticleList{"55"}},
					{NodeID: "p2t11", Level: 2, Title: "Titolo XI - Disposizioni", Articles: domain.ArticleList{"139"}},
				},
			},
		},
	}
}

func TestFindPathToArticle(t *testing.T) {
	doc := sampleDoc()

	path, err := FindPathToArticle(doc, "13")
	require.NoError(t, err)
	assert.Equal(t, []string{"Parte I - Diritti e doveri dei cittadini", "Titolo I - Rapporti civili"}, path)

	path, err = FindPathToArticle(doc, " 1 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Principi fondamentali"}, path)

	path, err = FindPathToArticle(doc, "31")
	require.NoError(t, err)
	assert.Len(t, path, 3)
	assert.Equal(t, "Sezione unica", path[2])
}

func TestFindPathToArticleNotFound(t *testing.T) {
	_, err := FindPathToArticle(sampleDoc(), "999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = FindPathToArticle(sampleDoc(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEveryListedArticleRoundTrips(t *testing.T) {
	doc := sampleDoc()
	var walk func(nodes []domain.StructureNode, prefix []string)
	walk = func(nodes []domain.StructureNode, prefix []string) {
		for _, n := range nodes {
			here := append(append([]string(nil), prefix...), n.Title)
			for _, a := range n.Articles {
				path, err := FindPathToArticle(doc, a)
				require.NoError(t, err, "article %s", a)
				assert.Equal(t, here, path, "article %s", a)
			}
			walk(n.Children, here)
		}
	}
	walk(doc.Structure, nil)
}

func TestFindNodeByTitle(t *testing.T) {
	doc := sampleDoc()

	n, err := FindNodeByTitle(doc, "titolo 2")
	require.NoError(t, err)
	assert.Equal(t, "p1t2", n.NodeID)

	n, err = FindNodeByTitle(doc, "Rapporti  civili")
	require.NoError(t, err)
	assert.Equal(t, "p1t1", n.NodeID)

	n, err = FindNodeByTitle(doc, "etico sociali")
	require.NoError(t, err)
	assert.Equal(t, "p1t2", n.NodeID)

	_, err = FindNodeByTitle(doc, "titolo 40")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "titolo2", NormalizeTitle("Titolo II"))
	assert.Equal(t, "parte1diritti", NormalizeTitle("Parte I - Diritti"))
	assert.Equal(t, "capo10", NormalizeTitle("CAPO X"))
	assert.Equal(t, "titoloxi", NormalizeTitle("Titolo XI"))
}

func TestNormalizeTitleIdempotent(t *testing.T) {
	inputs := []string{
		"Titolo II - Rapporti etico-sociali",
		"Parte I",
		"x v i",
		"Capo IV bis",
		"Sezione  VIII\tdisposizioni",
		"",
	}
	for _, in := range inputs {
		once := NormalizeTitle(in)
		assert.Equal(t, once, NormalizeTitle(once), in)
	}
}

func TestUntranslatedNumerals(t *testing.T) {
	assert.Equal(t, []string{"XI"}, UntranslatedNumerals("Titolo XI - Disposizioni"))
	assert.Empty(t, UntranslatedNumerals("Titolo IX"))
	assert.Empty(t, UntranslatedNumerals("L'articolo"))
}
