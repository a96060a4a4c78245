package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"legalrag/internal/corpus"
)

// ErrMissingCredential is returned by Validate when a selected remote
// provider has no API key in its environment variable.
var ErrMissingCredential = errors.New("missing credential")

const envPrefix = "LEGALRAG"

// CorpusConfig locates the per-document artifacts and names the documents.
type CorpusConfig struct {
	StructuredDir string `yaml:"structured_dir" mapstructure:"structured_dir"`
	// ChunksDir defaults to StructuredDir.
	ChunksDir         string          `yaml:"chunks_dir" mapstructure:"chunks_dir"`
	Registry          corpus.Registry `yaml:"registry" mapstructure:"registry"`
	FallbackSummaries bool            `yaml:"fallback_summaries" mapstructure:"fallback_summaries"`
	Watch             bool            `yaml:"watch" mapstructure:"watch"`
	WatchDebounceMs   int             `yaml:"watch_debounce_ms" mapstructure:"watch_debounce_ms"`
	// Aliases maps natural-language document names to document types.
	Aliases map[string]string `yaml:"aliases" mapstructure:"aliases"`
}

// GeminiConfig holds connection details for the Gemini REST API.
type GeminiConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" mapstructure:"api_key_env"`
	EmbedModel  string `yaml:"embed_model" mapstructure:"embed_model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env" mapstructure:"api_key_env"`
	EmbedModel     string `yaml:"embed_model" mapstructure:"embed_model"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	QueryPrefix    string `yaml:"query_prefix" mapstructure:"query_prefix"`
	DocumentPrefix string `yaml:"document_prefix" mapstructure:"document_prefix"`
}

// ProvidersConfig is shared by the embedder, router and generator.
type ProvidersConfig struct {
	Gemini GeminiConfig `yaml:"gemini" mapstructure:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai" mapstructure:"openai"`
}

// RouterConfig selects the model that classifies questions.
type RouterConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetrievalConfig tunes hybrid search.
type RetrievalConfig struct {
	TopK         int     `yaml:"top_k" mapstructure:"top_k"`
	ContextHits  int     `yaml:"context_hits" mapstructure:"context_hits"`
	KeywordBonus float64 `yaml:"keyword_bonus" mapstructure:"keyword_bonus"`
	MinTokenLen  int     `yaml:"min_token_len" mapstructure:"min_token_len"`
	// TimeoutSecs bounds query embedding plus vector search.
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EmbedderConfig selects the text embedder: tfidf, gemini or openai.
type EmbedderConfig struct {
	Type string `yaml:"type" mapstructure:"type"`
}

// ModelConfig binds a generator name to a provider model.
type ModelConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
}

// GeneratorConfig names the answer models a session can select.
type GeneratorConfig struct {
	Default     string                 `yaml:"default" mapstructure:"default"`
	Models      map[string]ModelConfig `yaml:"models" mapstructure:"models"`
	Aliases     map[string]string      `yaml:"aliases" mapstructure:"aliases"`
	TimeoutSecs int                    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type" mapstructure:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty" mapstructure:"qdrant"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty" mapstructure:"pgvector"`
	Milvus   *MilvusConfig   `yaml:"milvus,omitempty" mapstructure:"milvus"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL        string `yaml:"url" mapstructure:"url"`
	APIKeyEnv  string `yaml:"api_key_env" mapstructure:"api_key_env"`
	Collection string `yaml:"collection" mapstructure:"collection"`
	UseTLS     bool   `yaml:"use_tls" mapstructure:"use_tls"`
}

// PGVectorConfig contains connection details for PostgreSQL with pgvector.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env" mapstructure:"dsn_env"`
	Table  string `yaml:"table" mapstructure:"table"`
}

// MilvusConfig contains connection details for a Milvus vector store.
type MilvusConfig struct {
	Address     string `yaml:"address" mapstructure:"address"`
	Username    string `yaml:"username" mapstructure:"username"`
	PasswordEnv string `yaml:"password_env" mapstructure:"password_env"`
	Database    string `yaml:"database" mapstructure:"database"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheConfig enables the Redis embedding cache.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr        string `yaml:"addr" mapstructure:"addr"`
	PasswordEnv string `yaml:"password_env" mapstructure:"password_env"`
	DB          int    `yaml:"db" mapstructure:"db"`
	TTLHours    int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	KeyPrefix   string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// SessionConfig configures tasks and session lifetime.
type SessionConfig struct {
	PromptsDir      string `yaml:"prompts_dir" mapstructure:"prompts_dir"`
	DefaultTask     string `yaml:"default_task" mapstructure:"default_task"`
	IdleTimeoutMins int    `yaml:"idle_timeout_mins" mapstructure:"idle_timeout_mins"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Pretty bool   `yaml:"pretty" mapstructure:"pretty"`
	// WithCaller adds the file:line of each log call.
	WithCaller bool `yaml:"with_caller" mapstructure:"with_caller"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus" mapstructure:"corpus"`
	Providers   ProvidersConfig   `yaml:"providers" mapstructure:"providers"`
	Router      RouterConfig      `yaml:"router" mapstructure:"router"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	Embedder    EmbedderConfig    `yaml:"embedder" mapstructure:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator" mapstructure:"generator"`
	VectorStore VectorStoreConfig `yaml:"vector_store" mapstructure:"vector_store"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Session     SessionConfig     `yaml:"session" mapstructure:"session"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// Load reads a config from path on top of the defaults. ${VAR} references in
// the file are expanded and LEGALRAG_* environment variables override keys,
// e.g. LEGALRAG_RETRIEVAL_TOP_K. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := v.MergeConfig(strings.NewReader(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./legalrag.yaml, ./configs/legalrag.yaml, then
// ~/.config/legalrag/config.yaml. If none exists, it writes defaults to the
// user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"legalrag.yaml", filepath.Join("configs", "legalrag.yaml")} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	applyConfigDefaults(cfg)
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "legalrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Corpus: CorpusConfig{
			StructuredDir:   filepath.Join("data", "structured"),
			Registry:        corpus.DefaultRegistry(),
			WatchDebounceMs: 500,
			Aliases: map[string]string{
				"costituzione": "costituzione",
				"regolamento":  "regolamento_parlamentare",
			},
		},
		Providers: ProvidersConfig{
			Gemini: GeminiConfig{APIKeyEnv: "GEMINI_API_KEY"},
			OpenAI: OpenAIConfig{APIKeyEnv: "OPENAI_API_KEY"},
		},
		Router:    RouterConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
		Retrieval: RetrievalConfig{TopK: 20, ContextHits: 15, KeywordBonus: 0.01, MinTokenLen: 3, TimeoutSecs: 30},
		Embedder:  EmbedderConfig{Type: "gemini"},
		Generator: GeneratorConfig{
			Default: "default",
			Models: map[string]ModelConfig{
				"default": {Provider: "gemini", Model: "gemini-2.5-flash"},
				"gpt":     {Provider: "openai", Model: "gpt-4o-mini"},
				"pro":     {Provider: "gemini", Model: "gemini-2.5-pro"},
			},
			Aliases: map[string]string{"@flash": "default", "@gpt": "gpt", "@pro": "pro"},
		},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Session:     SessionConfig{PromptsDir: "prompts", DefaultTask: "legal_assistant"},
		Server:      ServerConfig{Addr: ":8080", Mode: "release"},
		Log:         LogConfig{Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "gemini"
	}
	if cfg.Router.Provider == "" {
		cfg.Router.Provider = "gemini"
	}
	if cfg.Corpus.ChunksDir == "" {
		cfg.Corpus.ChunksDir = cfg.Corpus.StructuredDir
	}
	if cfg.Corpus.WatchDebounceMs == 0 {
		cfg.Corpus.WatchDebounceMs = 500
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 20
	}
	if cfg.Retrieval.ContextHits == 0 {
		cfg.Retrieval.ContextHits = 15
	}
	if cfg.Retrieval.KeywordBonus == 0 {
		cfg.Retrieval.KeywordBonus = 0.01
	}
	if cfg.Retrieval.MinTokenLen == 0 {
		cfg.Retrieval.MinTokenLen = 3
	}
	if cfg.Retrieval.TimeoutSecs == 0 {
		cfg.Retrieval.TimeoutSecs = 30
	}
	g := &cfg.Providers.Gemini
	if g.BaseURL == "" {
		g.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if g.EmbedModel == "" {
		g.EmbedModel = "text-embedding-004"
	}
	if g.TimeoutSecs == 0 {
		g.TimeoutSecs = 60
	}
	if g.BatchSize == 0 {
		g.BatchSize = 100
	}
	o := &cfg.Providers.OpenAI
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.EmbedModel == "" {
		o.EmbedModel = "text-embedding-3-small"
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = 60
	}
	if o.BatchSize == 0 {
		o.BatchSize = 32
	}
	if cfg.Router.TimeoutSecs == 0 {
		cfg.Router.TimeoutSecs = 20
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}
	if cfg.Cache.TTLHours == 0 {
		cfg.Cache.TTLHours = 24 * 7
	}
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = "localhost:6379"
	}
	if cfg.Session.IdleTimeoutMins == 0 {
		cfg.Session.IdleTimeoutMins = 30
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "legal_chunks"
		}
	case "pgvector":
		if cfg.VectorStore.PGVector != nil {
			if cfg.VectorStore.PGVector.DSNEnv == "" {
				cfg.VectorStore.PGVector.DSNEnv = "DATABASE_URL"
			}
			if cfg.VectorStore.PGVector.Table == "" {
				cfg.VectorStore.PGVector.Table = "legal_chunks"
			}
		}
	case "milvus":
		if cfg.VectorStore.Milvus != nil && cfg.VectorStore.Milvus.Collection == "" {
			cfg.VectorStore.Milvus.Collection = "legal_chunks"
		}
	}
}

// Validate reports configuration that makes startup impossible.
func (c *AppConfig) Validate() error {
	var errs []error
	if st, err := os.Stat(c.Corpus.StructuredDir); err != nil || !st.IsDir() {
		errs = append(errs, fmt.Errorf("corpus.structured_dir %q is not a directory", c.Corpus.StructuredDir))
	}
	for _, p := range c.providersInUse() {
		if err := c.checkProvider(p); err != nil {
			errs = append(errs, err)
		}
	}
	if _, ok := c.Generator.Models[c.Generator.Default]; !ok {
		errs = append(errs, fmt.Errorf("generator.default %q is not a configured model", c.Generator.Default))
	}
	for alias, model := range c.Generator.Aliases {
		if _, ok := c.Generator.Models[model]; !ok {
			errs = append(errs, fmt.Errorf("generator alias %s refers to unknown model %q", alias, model))
		}
	}
	switch c.VectorStore.Type {
	case "memory", "":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, errors.New("vector_store.qdrant.url is required"))
		}
	case "pgvector":
		if c.VectorStore.PGVector == nil || os.Getenv(c.VectorStore.PGVector.DSNEnv) == "" {
			errs = append(errs, fmt.Errorf("%w: pgvector DSN environment variable is not set", ErrMissingCredential))
		}
	case "milvus":
		if c.VectorStore.Milvus == nil || c.VectorStore.Milvus.Address == "" {
			errs = append(errs, errors.New("vector_store.milvus.address is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store: %s", c.VectorStore.Type))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) providersInUse() []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if p != "" && p != "tfidf" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(c.Embedder.Type)
	add(c.Router.Provider)
	for _, m := range c.Generator.Models {
		add(m.Provider)
	}
	return out
}

func (c *AppConfig) checkProvider(p string) error {
	switch p {
	case "gemini":
		if c.Providers.Gemini.APIKey() == "" {
			return fmt.Errorf("%w: %s is not set", ErrMissingCredential, c.Providers.Gemini.APIKeyEnv)
		}
	case "openai":
		// a custom base URL may be a local server without auth
		if c.Providers.OpenAI.APIKey() == "" && c.Providers.OpenAI.BaseURL == "https://api.openai.com/v1" {
			return fmt.Errorf("%w: %s is not set", ErrMissingCredential, c.Providers.OpenAI.APIKeyEnv)
		}
	default:
		return fmt.Errorf("unknown provider: %s", p)
	}
	return nil
}

func (g GeminiConfig) APIKey() string { return os.Getenv(g.APIKeyEnv) }

func (o OpenAIConfig) APIKey() string { return os.Getenv(o.APIKeyEnv) }
