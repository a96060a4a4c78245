package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

const defaultPort = 6334

// Storage is a Qdrant-backed chunk index over the gRPC client.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	collection string
	client     *qdrant.Client
}

type Config struct {
	// URL is host:port of the gRPC endpoint.
	URL        string
	APIKey     string
	Collection string
	UseTLS     bool
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection name is required")
	}
	host, port := splitHostPort(cfg.URL)
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect %s: %w", cfg.URL, err)
	}
	return &Storage{collection: cfg.Collection, client: client}, nil
}

func splitHostPort(url string) (string, int) {
	if url == "" {
		return "localhost", defaultPort
	}
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		return url, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

// EnsureCollection creates the collection and its payload indexes on first use.
func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	for _, field := range vectorstore.IndexedKeys {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrant: index %s: %w", field, err)
		}
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		payload, err := qdrant.TryValueMap(vectorstore.Payload(c))
		if err != nil {
			return fmt.Errorf("qdrant: payload for article %s: %w", c.ArticleID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(vectorstore.PointID(c)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, filter domain.Filter, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}
	hits := make([]domain.SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, domain.SearchHit{Chunk: chunkFromPayload(p.GetPayload()), Score: float64(p.GetScore())})
	}
	return hits, nil
}

func (s *Storage) DeleteByDocumentType(ctx context.Context, documentType string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(vectorstore.KeyDocumentType, documentType)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %s: %w", documentType, err)
	}
	return nil
}

func (s *Storage) Close() error { return s.client.Close() }

// buildFilter maps the document condition to a keyword match and the
// article list to a match-any, both required.
func buildFilter(f domain.Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	var must []*qdrant.Condition
	if f.DocumentType != "" {
		must = append(must, qdrant.NewMatch(vectorstore.KeyDocumentType, f.DocumentType))
	}
	if len(f.Articles) > 0 {
		must = append(must, qdrant.NewMatchKeywords(vectorstore.KeyArticle, f.Articles...))
	}
	return &qdrant.Filter{Must: must}
}

func chunkFromPayload(p map[string]*qdrant.Value) domain.Chunk {
	str := func(key string) string { return p[key].GetStringValue() }
	list := func(key string) []string {
		var out []string
		for _, v := range p[key].GetListValue().GetValues() {
			out = append(out, v.GetStringValue())
		}
		return out
	}
	return domain.Chunk{
		DocumentTitle: str(vectorstore.KeyDocumentTitle),
		DocumentType:  str(vectorstore.KeyDocumentType),
		Level1Title:   str(vectorstore.KeyLevel1Title),
		Level2Title:   str(vectorstore.KeyLevel2Title),
		Level3Title:   str(vectorstore.KeyLevel3Title),
		ArticleID:     str(vectorstore.KeyArticle),
		ParagraphID:   str(vectorstore.KeyParagraph),
		Text:          str(vectorstore.KeyText),
		Keywords:      list(vectorstore.KeyKeywords),
		Tags:          list(vectorstore.KeyTags),
	}
}
