// Package cache puts a Redis embedding cache in front of any embedder.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/metrics"
)

// Config configures the cache.
type Config struct {
	TTL       time.Duration
	KeyPrefix string
}

// Embedder caches vectors per (embedder, mode, text). Redis failures fall
// through to the wrapped embedder.
type Embedder struct {
	next    domain.Embedder
	redis   goredis.Cmdable
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New wraps next with a cache stored in rdb.
func New(next domain.Embedder, rdb goredis.Cmdable, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Embedder {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "legalrag:emb:"
	}
	return &Embedder{
		next:    next,
		redis:   rdb,
		cfg:     cfg,
		metrics: m,
		log:     logger.Component(log, "embedding_cache"),
	}
}

// Name returns the wrapped embedder's name.
func (e *Embedder) Name() string { return e.next.Name() }

// Key returns the cache key of one text.
func (e *Embedder) Key(text string, mode domain.EmbedMode) string {
	hash := sha256.Sum256([]byte(text))
	return e.cfg.KeyPrefix + e.next.Name() + ":" + mode.String() + ":" + hex.EncodeToString(hash[:])
}

// Embed serves cached vectors and embeds only the misses, in one call.
func (e *Embedder) Embed(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = e.Key(t, mode)
	}

	out := make([][]float32, len(texts))
	cached, err := e.redis.MGet(ctx, keys...).Result()
	if err != nil {
		e.log.Warn().Err(err).Msg("redis get failed, falling back to embedder")
		cached = nil
	}

	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				var v []float32
				if err := json.Unmarshal([]byte(s), &v); err == nil {
					out[i] = v
					continue
				}
				e.log.Warn().Str("key", keys[i]).Msg("corrupt cache entry, re-embedding")
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	e.metrics.ObserveCache(len(texts)-len(missIdx), len(missIdx))
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := e.next.Embed(ctx, missTexts, mode)
	if err != nil {
		return nil, err
	}

	pipe := e.redis.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		data, err := json.Marshal(vecs[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, e.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		e.log.Warn().Err(err).Int("entries", len(missIdx)).Msg("failed to cache embeddings")
	}
	return out, nil
}
