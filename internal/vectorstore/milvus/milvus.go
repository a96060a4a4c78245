// Package milvus stores chunks in a Milvus collection.
package milvus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
)

// varchar payload fields and their max lengths
var varcharFields = []struct {
	name   string
	maxLen int64
}{
	{vectorstore.KeyDocumentTitle, 512},
	{vectorstore.KeyDocumentType, 128},
	{vectorstore.KeyLevel1Title, 1024},
	{vectorstore.KeyLevel2Title, 1024},
	{vectorstore.KeyLevel3Title, 1024},
	{vectorstore.KeyArticle, 32},
	{vectorstore.KeyParagraph, 32},
	{vectorstore.KeyText, 65535},
	{vectorstore.KeyKeywords, 8192},
	{vectorstore.KeyTags, 4096},
}

type Config struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Timeout    time.Duration
}

type Storage struct {
	client     *milvusclient.Client
	collection string
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, errors.New("milvus: collection name is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return &Storage{client: c, collection: cfg.Collection}, nil
}

func (s *Storage) Close(ctx context.Context) error { return s.client.Close(ctx) }

// EnsureCollection creates the collection with an HNSW cosine index and loads it.
func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, collectionSchema(s.collection, dimension))); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, fieldEmbedding, idx))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index creation: %w", err)
		}
	}
	load, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := load.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

func collectionSchema(name string, dimension int) *entity.Schema {
	schema := entity.NewSchema().
		WithName(name).
		WithDescription("legal document paragraphs").
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(36).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(fieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dimension)))
	for _, f := range varcharFields {
		schema.WithField(entity.NewField().
			WithName(f.name).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(f.maxLen))
	}
	return schema
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	cols, err := columns(chunks, vectors)
	if err != nil {
		return err
	}
	if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, cols...)); err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	return nil
}

func columns(chunks []domain.Chunk, vectors [][]float32) ([]column.Column, error) {
	ids := make([]string, len(chunks))
	values := map[string][]string{}
	for i, c := range chunks {
		ids[i] = vectorstore.PointID(c)
		keywords, err := json.Marshal(nonNil(c.Keywords))
		if err != nil {
			return nil, err
		}
		tags, err := json.Marshal(nonNil(c.Tags))
		if err != nil {
			return nil, err
		}
		row := map[string]string{
			vectorstore.KeyDocumentTitle: c.DocumentTitle,
			vectorstore.KeyDocumentType:  c.DocumentType,
			vectorstore.KeyLevel1Title:   c.Level1Title,
			vectorstore.KeyLevel2Title:   c.Level2Title,
			vectorstore.KeyLevel3Title:   c.Level3Title,
			vectorstore.KeyArticle:       c.ArticleID,
			vectorstore.KeyParagraph:     c.ParagraphID,
			vectorstore.KeyText:          c.Text,
			vectorstore.KeyKeywords:      string(keywords),
			vectorstore.KeyTags:          string(tags),
		}
		for k, v := range row {
			values[k] = append(values[k], v)
		}
	}
	cols := []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnFloatVector(fieldEmbedding, len(vectors[0]), vectors),
	}
	for _, f := range varcharFields {
		cols = append(cols, column.NewColumnVarChar(f.name, values[f.name]))
	}
	return cols, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, filter domain.Filter, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	outputFields := make([]string, len(varcharFields))
	for i, f := range varcharFields {
		outputFields[i] = f.name
	}
	opt := milvusclient.NewSearchOption(s.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(fieldEmbedding).
		WithSearchParam("ef", "64").
		WithOutputFields(outputFields...)
	if expr := filterExpr(filter); expr != "" {
		opt = opt.WithFilter(expr)
	}
	results, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	hits := make([]domain.SearchHit, rs.ResultCount)
	for i := range hits {
		hits[i].Score = float64(rs.Scores[i])
	}
	for _, field := range rs.Fields {
		col, ok := field.(*column.ColumnVarChar)
		if !ok {
			continue
		}
		for i, v := range col.Data() {
			if i < len(hits) {
				setField(&hits[i].Chunk, col.Name(), v)
			}
		}
	}
	return hits, nil
}

func setField(c *domain.Chunk, name, v string) {
	switch name {
	case vectorstore.KeyDocumentTitle:
		c.DocumentTitle = v
	case vectorstore.KeyDocumentType:
		c.DocumentType = v
	case vectorstore.KeyLevel1Title:
		c.Level1Title = v
	case vectorstore.KeyLevel2Title:
		c.Level2Title = v
	case vectorstore.KeyLevel3Title:
		c.Level3Title = v
	case vectorstore.KeyArticle:
		c.ArticleID = v
	case vectorstore.KeyParagraph:
		c.ParagraphID = v
	case vectorstore.KeyText:
		c.Text = v
	case vectorstore.KeyKeywords:
		_ = json.Unmarshal([]byte(v), &c.Keywords)
	case vectorstore.KeyTags:
		_ = json.Unmarshal([]byte(v), &c.Tags)
	}
}

func (s *Storage) DeleteByDocumentType(ctx context.Context, documentType string) error {
	expr := vectorstore.KeyDocumentType + " == " + strconv.Quote(documentType)
	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithExpr(expr)); err != nil {
		return fmt.Errorf("failed to delete from milvus: %w", err)
	}
	return nil
}

// filterExpr renders a boolean expression, e.g.
// document_type == "costituzione" && articolo in ["1", "2"].
func filterExpr(f domain.Filter) string {
	var parts []string
	if f.DocumentType != "" {
		parts = append(parts, vectorstore.KeyDocumentType+" == "+strconv.Quote(f.DocumentType))
	}
	if len(f.Articles) > 0 {
		quoted := make([]string, len(f.Articles))
		for i, a := range f.Articles {
			quoted[i] = strconv.Quote(a)
		}
		parts = append(parts, vectorstore.KeyArticle+" in ["+strings.Join(quoted, ", ")+"]")
	}
	return strings.Join(parts, " && ")
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
