// Package retriever implements filtered vector search with keyword reranking.
package retriever

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/metrics"
	"legalrag/internal/resolver"
)

// Config tunes retrieval.
type Config struct {
	TopK         int
	KeywordBonus float64
	MinTokenLen  int
	Timeout      time.Duration
}

// DefaultConfig returns the reference retrieval settings.
func DefaultConfig() Config {
	return Config{TopK: 20, KeywordBonus: 0.01, MinTokenLen: 3}
}

// Retriever answers content and general questions from a vector store.
type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	aliases  map[string]string
	cfg      Config
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New creates a retriever. Zero config fields take DefaultConfig values.
func New(e domain.Embedder, s domain.VectorStore, aliases map[string]string, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Retriever {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.KeywordBonus == 0 {
		cfg.KeywordBonus = def.KeywordBonus
	}
	if cfg.MinTokenLen <= 0 {
		cfg.MinTokenLen = def.MinTokenLen
	}
	if aliases == nil {
		aliases = resolver.DefaultAliases()
	}
	return &Retriever{
		embedder: e,
		store:    s,
		aliases:  aliases,
		cfg:      cfg,
		metrics:  m,
		log:      logger.Component(log, "retriever"),
	}
}

// BuildFilter turns extracted entities into a search filter. Unresolvable
// document names add no condition.
func BuildFilter(e domain.Entities, aliases map[string]string) domain.Filter {
	var f domain.Filter
	if t, ok := resolver.ResolveDocumentType(aliases, e.Document); ok {
		f.DocumentType = t
	}
	if !e.Article.IsZero() {
		f.Articles = e.Article.IDs()
	}
	return f
}

// Retrieve embeds query in query mode, searches with the filter derived from
// qa and reranks the hits. Embedding or search failures yield no hits.
func (r *Retriever) Retrieve(ctx context.Context, query string, qa domain.QueryAnalysis) []domain.SearchHit {
	start := time.Now()
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	filter := BuildFilter(qa.Entities, r.aliases)
	vecs, err := r.embedder.Embed(ctx, []string{query}, domain.ModeQuery)
	if err != nil || len(vecs) != 1 {
		r.log.Error().Err(err).Int("vectors", len(vecs)).Msg("query embedding failed")
		r.metrics.RetrievalFailed("embed")
		return nil
	}

	hits, err := r.store.Search(ctx, vecs[0], filter, r.cfg.TopK)
	if err != nil {
		r.log.Error().Err(err).Msg("vector search failed")
		r.metrics.RetrievalFailed("search")
		return nil
	}

	ranked := Rerank(hits, QueryTokens(query, r.cfg.MinTokenLen), r.cfg.KeywordBonus)
	r.metrics.ObserveRetrieval(time.Since(start), len(ranked))
	r.log.Debug().
		Str("document_type", filter.DocumentType).
		Strs("articles", filter.Articles).
		Int("hits", len(ranked)).
		Dur("took", time.Since(start)).
		Msg("retrieval done")
	return ranked
}
