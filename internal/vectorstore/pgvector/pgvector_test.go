package pgvector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
)

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[]", vectorLiteral(nil))
	assert.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float32{0.5, -1, 0.25}))
}

func TestSearchQueryWithoutFilter(t *testing.T) {
	q, args := searchQuery("legal_chunks", []float32{1, 0}, domain.Filter{}, 20)
	assert.NotContains(t, q, "WHERE")
	assert.True(t, strings.HasSuffix(q, "LIMIT $2"))
	assert.Equal(t, []any{"[1,0]", 20}, args)
}

func TestSearchQueryWithFilter(t *testing.T) {
	q, args := searchQuery("legal_chunks", []float32{1}, domain.Filter{
		DocumentType: "costituzione",
		Articles:     []string{"1", "2"},
	}, 5)
	assert.Contains(t, q, "WHERE document_type = $2 AND articolo = ANY($3)")
	assert.Contains(t, q, "FROM legal_chunks")
	assert.True(t, strings.HasSuffix(q, "LIMIT $4"))
	require.Len(t, args, 4)
	assert.Equal(t, []string{"1", "2"}, args[2])
	assert.Equal(t, 5, args[3])
}

func TestSchemaUsesDimension(t *testing.T) {
	stmts := schema("legal_chunks", 768)
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[1], "embedding vector(768)")
}

func TestNewStorageRejectsBadTable(t *testing.T) {
	_, err := NewStorage(context.Background(), Config{DSN: "postgres://localhost/x", Table: "chunks; drop"})
	assert.Error(t, err)
}
