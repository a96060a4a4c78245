package milvus

import (
	"testing"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

func TestFilterExpr(t *testing.T) {
	assert.Equal(t, "", filterExpr(domain.Filter{}))
	assert.Equal(t, `document_type == "costituzione"`, filterExpr(domain.Filter{DocumentType: "costituzione"}))
	assert.Equal(t, `document_type == "costituzione" && articolo in ["1", "2"]`,
		filterExpr(domain.Filter{DocumentType: "costituzione", Articles: []string{"1", "2"}}))
	assert.Equal(t, `articolo in ["3"]`, filterExpr(domain.Filter{Articles: []string{"3"}}))
}

func TestColumnsRoundTrip(t *testing.T) {
	c := domain.Chunk{
		DocumentTitle: "Regolamento della Camera",
		DocumentType:  "regolamento_parlamentare",
		Level1Title:   "Capo I",
		ArticleID:     "5",
		ParagraphID:   "1",
		Text:          "Il Presidente rappresenta la Camera.",
		Keywords:      []string{"presidente"},
	}
	cols, err := columns([]domain.Chunk{c}, [][]float32{{0.1, 0.2}})
	require.NoError(t, err)
	require.Len(t, cols, 2+len(varcharFields))
	assert.Equal(t, []string{vectorstore.PointID(c)}, cols[0].(*column.ColumnVarChar).Data())

	var got domain.Chunk
	for _, col := range cols[2:] {
		vc := col.(*column.ColumnVarChar)
		setField(&got, vc.Name(), vc.Data()[0])
	}
	assert.Equal(t, c.DocumentTitle, got.DocumentTitle)
	assert.Equal(t, c.Text, got.Text)
	assert.Equal(t, []string{"presidente"}, got.Keywords)
	assert.Equal(t, []string{}, got.Tags)
}

func TestCollectionSchema(t *testing.T) {
	s := collectionSchema("legal_chunks", 384)
	assert.Equal(t, "legal_chunks", s.CollectionName)
	assert.Len(t, s.Fields, 2+len(varcharFields))
}

func TestNewStorageRequiresCollection(t *testing.T) {
	_, err := NewStorage(Config{Address: "localhost:19530"})
	assert.Error(t, err)
}
