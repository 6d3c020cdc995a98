package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"agentic-rag/internal/parser"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"

	DefaultDocumentPath = "data/Ebook-Agentic-AI.pdf"
	DefaultIndexName    = "agentic-ai-rag"
	DefaultRegion       = "us-east-1"
	DefaultLocalPath    = "./chromemdb"
	DefaultCollection   = "agentic_ai_rag"
	DefaultEmbeddingDim = 768

	DriverPgdriver = "pgdriver"
	DriverPQ       = "pq"
)

// ErrMissingAPIKey is returned when a provider that needs a key has none.
var ErrMissingAPIKey = errors.New("missing language model api key")

// LLMConfig configures one language model or embedding backend.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

// DatabaseConfig describes the hosted pgvector index on Supabase.
type DatabaseConfig struct {
	SupabaseURL string        `yaml:"supabase_url"`
	SupabaseKey string        `yaml:"supabase_key"`
	ProjectRef  string        `yaml:"project_ref"`
	Region      string        `yaml:"region"`
	IndexName   string        `yaml:"index_name"`
	Driver      string        `yaml:"driver"`
	Debug       bool          `yaml:"debug"`
	CreateDelay time.Duration `yaml:"create_delay"`
}

// LocalIndexConfig describes the on-disk chromem index.
type LocalIndexConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type RAGConfig struct {
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	TopK         int     `yaml:"top_k"`
	FetchK       int     `yaml:"fetch_k"`
	MMRLambda    float64 `yaml:"mmr_lambda"`
	EmbeddingDim int     `yaml:"embedding_dim"`
	BatchSize    int     `yaml:"batch_size"`
}

type Config struct {
	Document string           `yaml:"document"`
	LogLevel string           `yaml:"log_level"`
	LogFile  string           `yaml:"log_file"`
	LLM      LLMConfig        `yaml:"llm"`
	EmbedLLM LLMConfig        `yaml:"embed_llm"`
	Database DatabaseConfig   `yaml:"database"`
	Local    LocalIndexConfig `yaml:"local_index"`
	RAG      RAGConfig        `yaml:"rag"`
}

// LoadConfig reads the YAML file at path, then layers .env and process
// environment on top. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Document: DefaultDocumentPath,
		LogLevel: "info",
		LogFile:  "rag.log",
		LLM: LLMConfig{
			Provider: ProviderGoogleAI,
			Model:    "gemini-2.5-flash",
		},
		EmbedLLM: LLMConfig{
			Provider: ProviderGoogleAI,
			Model:    "text-embedding-004",
		},
		Database: DatabaseConfig{
			Region:      DefaultRegion,
			IndexName:   DefaultIndexName,
			Driver:      DriverPgdriver,
			CreateDelay: 2 * time.Second,
		},
		Local: LocalIndexConfig{
			Path:       DefaultLocalPath,
			Collection: DefaultCollection,
		},
		RAG: RAGConfig{
			ChunkSize:    parser.DefaultChunkSize,
			ChunkOverlap: parser.DefaultChunkOverlap,
			TopK:         3,
			FetchK:       10,
			MMRLambda:    0.5,
			EmbeddingDim: DefaultEmbeddingDim,
			BatchSize:    100,
		},
	}
}

// HostedEnabled reports whether a hosted index credential is configured.
func (c *Config) HostedEnabled() bool {
	return c.Database.SupabaseKey != ""
}

// DSN returns the Postgres connection string for the hosted index. An
// explicit SupabaseURL wins; otherwise the session pooler address is
// derived from the project ref and region.
func (d DatabaseConfig) DSN() string {
	if d.SupabaseURL != "" {
		return d.SupabaseURL
	}
	if d.ProjectRef == "" {
		return ""
	}
	region := d.Region
	if region == "" {
		region = DefaultRegion
	}
	return fmt.Sprintf("postgres://postgres.%s@aws-0-%s.pooler.supabase.com:6543/postgres", d.ProjectRef, region)
}

// Validate checks that the provider has the credential it needs.
func (l LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderOllama:
		return nil
	case ProviderGoogleAI, ProviderOpenAI:
		if l.Key == "" {
			return fmt.Errorf("%w for provider %s (set %s)", ErrMissingAPIKey, l.Provider, keyEnvFor(l.Provider))
		}
		return nil
	default:
		return fmt.Errorf("unknown llm provider: %q", l.Provider)
	}
}

// DefaultModels returns the chat and embedding model names used for a
// provider when none are configured. All embedding models produce 768
// dimensional vectors.
func DefaultModels(provider string) (chat, embed string) {
	switch provider {
	case ProviderOpenAI:
		return "google/gemini-2.5-flash", "nomic-ai/nomic-embed-text-v1.5"
	case ProviderOllama:
		return "llama3.1", "nomic-embed-text"
	default:
		return "gemini-2.5-flash", "text-embedding-004"
	}
}

func keyEnvFor(provider string) string {
	if provider == ProviderOpenAI {
		return "OPENROUTER_KEY"
	}
	return "GOOGLE_API_KEY"
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		provider := strings.ToLower(v)
		chat, embed := DefaultModels(provider)
		cfg.LLM.Provider, cfg.LLM.Model = provider, chat
		cfg.EmbedLLM.Provider, cfg.EmbedLLM.Model = provider, embed
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbedLLM.Model = v
	}
	for _, l := range []*LLMConfig{&cfg.LLM, &cfg.EmbedLLM} {
		if v := os.Getenv(keyEnvFor(l.Provider)); v != "" {
			l.Key = v
		}
	}
	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		cfg.Database.SupabaseKey = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Database.SupabaseURL = v
	}
	if v := os.Getenv("SUPABASE_PROJECT_REF"); v != "" {
		cfg.Database.ProjectRef = v
	}
	if v := os.Getenv("RAG_INDEX_NAME"); v != "" {
		cfg.Database.IndexName = v
	}
	if v := os.Getenv("RAG_INDEX_REGION"); v != "" {
		cfg.Database.Region = v
	}
	if v := os.Getenv("RAG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Document == "" {
		cfg.Document = def.Document
	}
	if cfg.Database.IndexName == "" {
		cfg.Database.IndexName = def.Database.IndexName
	}
	if cfg.Database.Region == "" {
		cfg.Database.Region = def.Database.Region
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = def.Database.Driver
	}
	if cfg.Local.Path == "" {
		cfg.Local.Path = def.Local.Path
	}
	if cfg.Local.Collection == "" {
		cfg.Local.Collection = def.Local.Collection
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = def.RAG.ChunkSize
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = min(def.RAG.ChunkOverlap, cfg.RAG.ChunkSize/2)
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.RAG.FetchK < cfg.RAG.TopK {
		cfg.RAG.FetchK = max(def.RAG.FetchK, cfg.RAG.TopK)
	}
	if cfg.RAG.MMRLambda < 0 || cfg.RAG.MMRLambda > 1 {
		cfg.RAG.MMRLambda = def.RAG.MMRLambda
	}
	if cfg.RAG.EmbeddingDim <= 0 {
		cfg.RAG.EmbeddingDim = def.RAG.EmbeddingDim
	}
	if cfg.RAG.BatchSize <= 0 {
		cfg.RAG.BatchSize = def.RAG.BatchSize
	}
}
