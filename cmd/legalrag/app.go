package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"legalrag/internal/config"
	"legalrag/internal/corpus"
	"legalrag/internal/domain"
	"legalrag/internal/embedding/cache"
	"legalrag/internal/embedding/tfidf"
	"legalrag/internal/indexer"
	"legalrag/internal/llm/gemini"
	"legalrag/internal/llm/openai"
	"legalrag/internal/logger"
	"legalrag/internal/metrics"
	"legalrag/internal/resolver"
	"legalrag/internal/retriever"
	"legalrag/internal/router"
	"legalrag/internal/session"
	"legalrag/internal/vectorstore/memory"
	"legalrag/internal/vectorstore/milvus"
	"legalrag/internal/vectorstore/pgvector"
	"legalrag/internal/vectorstore/qdrant"
)

// app holds the assembled components of one process.
type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	loader *corpus.Loader
	corpus *corpus.Holder

	gemini *gemini.Client
	openai *openai.Client

	embedder domain.Embedder
	store    domain.VectorIndex
	orch     *session.Orchestrator

	closers []func()
}

// newApp loads the corpus and builds the embedder and vector store.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg, log: logger.New(newLogger(cfg)), registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.loader = corpus.NewLoader(corpus.Options{
		StructuredDir:     cfg.Corpus.StructuredDir,
		ChunksDir:         cfg.Corpus.ChunksDir,
		Registry:          cfg.Corpus.Registry,
		FallbackSummaries: cfg.Corpus.FallbackSummaries,
		Metrics:           a.metrics,
	}, a.log)
	c, err := a.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	a.corpus = corpus.NewHolder(c)
	a.metrics.SetCorpusChunks(c.Stats().Chunks)
	a.log.Info().Interface("stats", c.Stats()).Msg("corpus loaded")

	if err := a.buildProviders(); err != nil {
		return nil, err
	}
	if a.embedder, err = a.buildEmbedder(); err != nil {
		return nil, err
	}
	if a.store, err = a.buildStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildProviders creates a client for every provider the config uses.
func (a *app) buildProviders() error {
	used := map[string]bool{a.cfg.Embedder.Type: true, a.cfg.Router.Provider: true}
	for _, m := range a.cfg.Generator.Models {
		used[m.Provider] = true
	}
	var err error
	if used["gemini"] {
		g := a.cfg.Providers.Gemini
		a.gemini, err = gemini.New(gemini.Config{
			BaseURL:    g.BaseURL,
			APIKey:     g.APIKey(),
			EmbedModel: g.EmbedModel,
			Timeout:    time.Duration(g.TimeoutSecs) * time.Second,
			MaxRetries: g.MaxRetries,
			BatchSize:  g.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("gemini client init failed: %w", err)
		}
	}
	if used["openai"] {
		o := a.cfg.Providers.OpenAI
		a.openai, err = openai.New(openai.Config{
			BaseURL:        o.BaseURL,
			APIKey:         o.APIKey(),
			EmbedModel:     o.EmbedModel,
			Timeout:        time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries:     o.MaxRetries,
			BatchSize:      o.BatchSize,
			QueryPrefix:    o.QueryPrefix,
			DocumentPrefix: o.DocumentPrefix,
		})
		if err != nil {
			return fmt.Errorf("openai client init failed: %w", err)
		}
	}
	return nil
}

func (a *app) buildEmbedder() (domain.Embedder, error) {
	var emb domain.Embedder
	switch a.cfg.Embedder.Type {
	case "tfidf":
		if a.cfg.Cache.Enabled {
			a.log.Warn().Msg("embedding cache ignored for the corpus-dependent tfidf embedder")
		}
		return tfidf.NewEmbedder(), nil
	case "gemini":
		emb = a.gemini
	case "openai":
		emb = a.openai
	default:
		return nil, fmt.Errorf("unknown embedder: %s", a.cfg.Embedder.Type)
	}
	if !a.cfg.Cache.Enabled {
		return emb, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Cache.Addr,
		Password: os.Getenv(a.cfg.Cache.PasswordEnv),
		DB:       a.cfg.Cache.DB,
	})
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return cache.New(emb, rdb, cache.Config{
		TTL:       time.Duration(a.cfg.Cache.TTLHours) * time.Hour,
		KeyPrefix: a.cfg.Cache.KeyPrefix,
	}, a.metrics, a.log), nil
}

func (a *app) buildStore(ctx context.Context) (domain.VectorIndex, error) {
	vs := a.cfg.VectorStore
	switch vs.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if vs.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		st, err := qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     os.Getenv(vs.Qdrant.APIKeyEnv),
			Collection: vs.Qdrant.Collection,
			UseTLS:     vs.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = st.Close() })
		return st, nil
	case "pgvector":
		if vs.PGVector == nil {
			return nil, errors.New("pgvector config missing")
		}
		st, err := pgvector.NewStorage(ctx, pgvector.Config{
			DSN:   os.Getenv(vs.PGVector.DSNEnv),
			Table: vs.PGVector.Table,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	case "milvus":
		if vs.Milvus == nil {
			return nil, errors.New("milvus config missing")
		}
		st, err := milvus.NewStorage(milvus.Config{
			Address:    vs.Milvus.Address,
			Username:   vs.Milvus.Username,
			Password:   os.Getenv(vs.Milvus.PasswordEnv),
			Database:   vs.Milvus.Database,
			Collection: vs.Milvus.Collection,
			Timeout:    time.Duration(vs.Milvus.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = st.Close(context.Background()) })
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}

func (a *app) isMemoryStore() bool {
	return a.cfg.VectorStore.Type == "memory" || a.cfg.VectorStore.Type == ""
}

// chatClient returns the provider client bound to model.
func (a *app) chatClient(provider, model string) (interface {
	domain.Classifier
	domain.Generator
}, error) {
	switch provider {
	case "gemini":
		return a.gemini.WithChatModel(model), nil
	case "openai":
		return a.openai.WithChatModel(model), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// buildSession wires the query path. The in-memory store is filled from the
// corpus first, since it starts empty. With a persistent store a
// corpus-dependent embedder is fitted on the same chunks the index run used.
func (a *app) buildSession(ctx context.Context) error {
	if a.isMemoryStore() {
		report, err := indexer.New(a.embedder, a.store, indexer.Options{}, a.log).
			Index(ctx, a.corpus.Current().Chunks())
		if err != nil {
			return fmt.Errorf("index in-memory store: %w", err)
		}
		a.log.Info().Int("chunks", report.Chunks).Msg("in-memory index ready")
	} else if err := indexer.Prepare(a.embedder, a.corpus.Current().Chunks()); err != nil {
		return err
	}

	classifier, err := a.chatClient(a.cfg.Router.Provider, a.cfg.Router.Model)
	if err != nil {
		return err
	}
	generators := map[string]domain.Generator{}
	for name, m := range a.cfg.Generator.Models {
		g, err := a.chatClient(m.Provider, m.Model)
		if err != nil {
			return fmt.Errorf("generator %s: %w", name, err)
		}
		generators[name] = g
	}
	tasks, err := session.LoadTasks(a.cfg.Session.PromptsDir, a.log)
	if err != nil {
		return err
	}

	aliases := a.cfg.Corpus.Aliases
	a.orch, err = session.New(session.Deps{
		Corpus:   a.corpus,
		Analyzer: router.NewAnalyzer(classifier, time.Duration(a.cfg.Router.TimeoutSecs)*time.Second, a.metrics, a.log),
		Resolver: resolver.New(aliases),
		Retriever: retriever.New(a.embedder, a.store, aliases, retriever.Config{
			TopK:         a.cfg.Retrieval.TopK,
			KeywordBonus: a.cfg.Retrieval.KeywordBonus,
			MinTokenLen:  a.cfg.Retrieval.MinTokenLen,
			Timeout:      time.Duration(a.cfg.Retrieval.TimeoutSecs) * time.Second,
		}, a.metrics, a.log),
		Generators: generators,
		Tasks:      tasks,
		Metrics:    a.metrics,
	}, session.Config{
		ContextHits:       a.cfg.Retrieval.ContextHits,
		DefaultTask:       a.cfg.Session.DefaultTask,
		DefaultModel:      a.cfg.Generator.Default,
		ModelAliases:      a.cfg.Generator.Aliases,
		GenerationTimeout: time.Duration(a.cfg.Generator.TimeoutSecs) * time.Second,
	}, a.log)
	return err
}

// watchCorpus reloads the corpus on artifact changes until ctx is done.
func (a *app) watchCorpus(ctx context.Context) {
	if !a.cfg.Corpus.Watch {
		return
	}
	if a.isMemoryStore() {
		a.log.Warn().Msg("corpus watch reloads structures and summaries; the in-memory vector index keeps its startup chunks")
	}
	go func() {
		debounce := time.Duration(a.cfg.Corpus.WatchDebounceMs) * time.Millisecond
		if err := a.loader.Watch(ctx, a.corpus, debounce); err != nil {
			a.log.Error().Err(err).Msg("corpus watch stopped")
		}
	}()
}
