package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"legalrag/internal/domain"
)

func TestPointIDIsStablePerParagraph(t *testing.T) {
	a := domain.Chunk{DocumentType: "costituzione", ArticleID: "1", ParagraphID: "1", Text: "v1"}
	b := a
	b.Text = "v2"
	c := a
	c.ParagraphID = "2"

	assert.Equal(t, PointID(a), PointID(b))
	assert.NotEqual(t, PointID(a), PointID(c))
	assert.Len(t, PointID(a), 36)
}

func TestPayloadUsesArtifactKeys(t *testing.T) {
	p := Payload(domain.Chunk{ArticleID: "5", Keywords: []string{"voto"}})
	assert.Equal(t, "5", p[KeyArticle])
	assert.Equal(t, []any{"voto"}, p[KeyKeywords])
	assert.Equal(t, []any{}, p[KeyTags])
}
