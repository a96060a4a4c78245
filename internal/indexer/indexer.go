// Package indexer embeds corpus chunks and writes them into a vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"legalrag/internal/domain"
	"legalrag/internal/logger"
)

const (
	DefaultBatchSize = 100
	// DefaultMaxConsecutiveFailures stops a run after this many failed batches in a row.
	DefaultMaxConsecutiveFailures = 3
)

var ErrTooManyFailures = errors.New("indexer: too many consecutive batch failures")

type Options struct {
	BatchSize              int
	MaxConsecutiveFailures int
	// Replace deletes a document's existing points before writing it.
	Replace bool
}

type Indexer struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	opts     Options
	log      zerolog.Logger
}

// Report counts what a run wrote.
type Report struct {
	Documents     int
	Chunks        int
	FailedBatches int
}

func New(embedder domain.Embedder, index domain.VectorIndex, opts Options, log zerolog.Logger) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return &Indexer{
		embedder: embedder,
		index:    index,
		opts:     opts,
		log:      logger.Component(log, "indexer"),
	}
}

// EmbeddingText is what gets embedded for a chunk: the most specific section
// title, the paragraph text and its keywords.
func EmbeddingText(c domain.Chunk) string {
	var parts []string
	if titles := c.SectionTitles(); len(titles) > 0 {
		parts = append(parts, "Argomento Principale: "+titles[0]+".")
	}
	parts = append(parts, "Testo: "+c.Text+".")
	if len(c.Keywords) > 0 {
		parts = append(parts, "Concetti Chiave: "+strings.Join(c.Keywords, ", ")+".")
	}
	return strings.Join(parts, " ")
}

// Prepare fits a corpus-dependent embedder on the embedding texts of chunks.
// A query process must call it with the chunks the index was built from, so
// query vectors land in the same space. Other embedders are left untouched.
func Prepare(embedder domain.Embedder, chunks []domain.Chunk) error {
	p, ok := embedder.(domain.Preparer)
	if !ok {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = EmbeddingText(c)
	}
	if err := p.Prepare(texts); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	return nil
}

// Index writes chunks grouped by document type, in first-seen order. A failed
// batch is skipped; the run aborts after too many failures in a row.
func (ix *Indexer) Index(ctx context.Context, chunks []domain.Chunk) (Report, error) {
	var report Report
	if len(chunks) == 0 {
		return report, nil
	}
	if err := Prepare(ix.embedder, chunks); err != nil {
		return report, err
	}

	order, groups := groupByDocument(chunks)
	ensured := false
	failures := 0
	for _, docType := range order {
		group := groups[docType]
		if ix.opts.Replace {
			if err := ix.index.DeleteByDocumentType(ctx, docType); err != nil {
				return report, fmt.Errorf("delete %s: %w", docType, err)
			}
		}
		written := 0
		for start := 0; start < len(group); start += ix.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			batch := group[start:min(start+ix.opts.BatchSize, len(group))]
			err := ix.writeBatch(ctx, batch, &ensured)
			if err != nil {
				failures++
				report.FailedBatches++
				ix.log.Warn().Err(err).Str("document_type", docType).Int("offset", start).Msg("batch failed")
				if failures >= ix.opts.MaxConsecutiveFailures {
					return report, ErrTooManyFailures
				}
				continue
			}
			failures = 0
			written += len(batch)
			report.Chunks += len(batch)
		}
		report.Documents++
		ix.log.Info().Str("document_type", docType).Int("chunks", written).Msg("document indexed")
	}
	return report, nil
}

func (ix *Indexer) writeBatch(ctx context.Context, batch []domain.Chunk, ensured *bool) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = EmbeddingText(c)
	}
	vectors, err := ix.embedder.Embed(ctx, texts, domain.ModeDocument)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(batch))
	}
	if !*ensured {
		if err := ix.index.EnsureCollection(ctx, len(vectors[0])); err != nil {
			return fmt.Errorf("ensure collection: %w", err)
		}
		*ensured = true
	}
	if err := ix.index.Upsert(ctx, batch, vectors); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

func groupByDocument(chunks []domain.Chunk) ([]string, map[string][]domain.Chunk) {
	var order []string
	groups := map[string][]domain.Chunk{}
	for _, c := range chunks {
		if _, ok := groups[c.DocumentType]; !ok {
			order = append(order, c.DocumentType)
		}
		groups[c.DocumentType] = append(groups[c.DocumentType], c)
	}
	return order, groups
}
