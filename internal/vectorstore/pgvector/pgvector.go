// Package pgvector stores chunks in PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Config struct {
	DSN   string
	Table string
}

type Storage struct {
	pool  *pgxpool.Pool
	table string
}

func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	table := cfg.Table
	if table == "" {
		table = "legal_chunks"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", table)
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Storage{pool: pool, table: table}, nil
}

func (s *Storage) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	for _, stmt := range schema(s.table, dimension) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: schema: %w", err)
		}
	}
	return nil
}

func schema(table string, dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	document_title text NOT NULL,
	document_type text NOT NULL,
	livello_1_title text NOT NULL DEFAULT '',
	livello_2_title text NOT NULL DEFAULT '',
	livello_3_title text NOT NULL DEFAULT '',
	articolo text NOT NULL,
	comma text NOT NULL,
	testo_originale_comma text NOT NULL,
	keywords text[] NOT NULL DEFAULT '{}',
	tags text[] NOT NULL DEFAULT '{}',
	embedding vector(%d) NOT NULL
)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_type_idx ON %s (document_type, articolo)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
	}
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, document_title, document_type, livello_1_title, livello_2_title,
	livello_3_title, articolo, comma, testo_originale_comma, keywords, tags, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::vector)
ON CONFLICT (id) DO UPDATE SET
	document_title = EXCLUDED.document_title,
	livello_1_title = EXCLUDED.livello_1_title,
	livello_2_title = EXCLUDED.livello_2_title,
	livello_3_title = EXCLUDED.livello_3_title,
	testo_originale_comma = EXCLUDED.testo_originale_comma,
	keywords = EXCLUDED.keywords,
	tags = EXCLUDED.tags,
	embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(stmt, vectorstore.PointID(c), c.DocumentTitle, c.DocumentType,
			c.Level1Title, c.Level2Title, c.Level3Title, c.ArticleID, c.ParagraphID, c.Text,
			nonNil(c.Keywords), nonNil(c.Tags), vectorLiteral(vectors[i]))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector: upsert: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, filter domain.Filter, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	query, args := searchQuery(s.table, vector, filter, topK)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		c := &h.Chunk
		if err := rows.Scan(&c.DocumentTitle, &c.DocumentType, &c.Level1Title, &c.Level2Title,
			&c.Level3Title, &c.ArticleID, &c.ParagraphID, &c.Text, &c.Keywords, &c.Tags, &h.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Storage) DeleteByDocumentType(ctx context.Context, documentType string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_type = $1`, s.table), documentType)
	if err != nil {
		return fmt.Errorf("pgvector: delete %s: %w", documentType, err)
	}
	return nil
}

// searchQuery orders by cosine distance and reports similarity as the score.
func searchQuery(table string, vector []float32, filter domain.Filter, topK int) (string, []any) {
	args := []any{vectorLiteral(vector)}
	var where []string
	if filter.DocumentType != "" {
		args = append(args, filter.DocumentType)
		where = append(where, "document_type = $"+strconv.Itoa(len(args)))
	}
	if len(filter.Articles) > 0 {
		args = append(args, filter.Articles)
		where = append(where, "articolo = ANY($"+strconv.Itoa(len(args))+")")
	}
	args = append(args, topK)

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT document_title, document_type, livello_1_title, livello_2_title, livello_3_title,
	articolo, comma, testo_originale_comma, keywords, tags, 1 - (embedding <=> $1::vector) AS score
FROM %s`, table)
	if len(where) > 0 {
		b.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, "\nORDER BY embedding <=> $1::vector\nLIMIT $%d", len(args))
	return b.String(), args
}

// vectorLiteral renders the text form accepted by the vector type.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
