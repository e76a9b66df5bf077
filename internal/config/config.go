package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"multilingual-rag/internal/models"
)

const (
	ModelPlaceholder = "{model}"

	EmbedderHashing = "hashing"
	EmbedderOllama  = "ollama"

	BackendMemory   = "memory"
	BackendPGVector = "pgvector"

	DriverPGDriver = "pgdriver"
	DriverPQ       = "pq"

	TranslatorLibre  = "libretranslate"
	TranslatorOllama = "ollama"
	TranslatorNone   = "none"
)

type Config struct {
	Document   DocumentConfig   `yaml:"document"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Index      IndexConfig      `yaml:"index"`
	Language   LanguageConfig   `yaml:"language"`
	Translator TranslatorConfig `yaml:"translator"`
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	Log        LogConfig        `yaml:"log"`
}

type DocumentConfig struct {
	Path      string `yaml:"path"`
	ChunkSize int    `yaml:"chunk_size"`
	Separator string `yaml:"separator"`
}

type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Dimension int    `yaml:"dimension"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	BatchSize int    `yaml:"batch_size"`
}

type IndexConfig struct {
	Backend  string         `yaml:"backend"`
	TopK     int            `yaml:"top_k"`
	Database DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LanguageConfig struct {
	Supported map[string]string `yaml:"supported"`
}

type TranslatorConfig struct {
	Type        string `yaml:"type"`
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type ServerConfig struct {
	Command            string   `yaml:"command"`
	Args               []string `yaml:"args"`
	BaseURL            string   `yaml:"base_url"`
	MaxAttempts        int      `yaml:"max_attempts"`
	IntervalSecs       int      `yaml:"interval_secs"`
	TerminateGraceSecs int      `yaml:"terminate_grace_secs"`
	LogFile            string   `yaml:"log_file"`
}

type GenerationConfig struct {
	Model        string `yaml:"model"`
	Stream       bool   `yaml:"stream"`
	GeneratePath string `yaml:"generate_path"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func (c ServerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

func (c ServerConfig) TerminateGrace() time.Duration {
	return time.Duration(c.TerminateGraceSecs) * time.Second
}

func (c TranslatorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ExpandArgs substitutes the model identifier into the server arguments.
func (c ServerConfig) ExpandArgs(model string) []string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = strings.ReplaceAll(a, ModelPlaceholder, model)
	}
	return args
}

// LoadConfig reads a YAML config. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	// the supported set is replaced, not merged, when the file names one
	cfg.Language.Supported = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func DefaultConfig() *Config {
	supported := make(map[string]string, len(models.DefaultLanguages))
	for code, name := range models.DefaultLanguages {
		supported[code] = name
	}
	return &Config{
		Document: DocumentConfig{ChunkSize: 300, Separator: "\n"},
		Embedder: EmbedderConfig{
			Type:      EmbedderHashing,
			Dimension: 512,
			Model:     "nomic-embed-text",
			BatchSize: 32,
		},
		Index: IndexConfig{
			Backend:  BackendMemory,
			TopK:     1,
			Database: DatabaseConfig{Driver: DriverPGDriver},
		},
		Language: LanguageConfig{Supported: supported},
		Translator: TranslatorConfig{
			Type:        TranslatorLibre,
			BaseURL:     "http://localhost:5000",
			TimeoutSecs: 10,
		},
		Server: ServerConfig{
			Command:            "ollama",
			Args:               []string{"run", ModelPlaceholder},
			BaseURL:            "http://localhost:11434",
			MaxAttempts:        20,
			IntervalSecs:       1,
			TerminateGraceSecs: 5,
		},
		Generation: GenerationConfig{
			Model:        "llama3.2",
			Stream:       true,
			GeneratePath: "/api/generate",
			TimeoutSecs:  300,
		},
		Log: LogConfig{Level: "info"},
	}
}

// applyDefaults fills zero values left by a partial YAML file. Omitted keys
// already keep their defaults, since the file is decoded onto DefaultConfig.
// Durations are left alone: interval_secs and terminate_grace_secs may be 0
// (poll back to back, kill without waiting).
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Document.ChunkSize == 0 {
		cfg.Document.ChunkSize = def.Document.ChunkSize
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = def.Embedder.Model
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = def.Embedder.BatchSize
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = def.Index.Backend
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = def.Index.TopK
	}
	if cfg.Index.Database.Driver == "" {
		cfg.Index.Database.Driver = def.Index.Database.Driver
	}
	if len(cfg.Language.Supported) == 0 {
		cfg.Language.Supported = def.Language.Supported
	}
	if cfg.Translator.Type == "" {
		cfg.Translator.Type = def.Translator.Type
	}
	if cfg.Translator.BaseURL == "" {
		cfg.Translator.BaseURL = def.Translator.BaseURL
	}
	if cfg.Translator.TimeoutSecs == 0 {
		cfg.Translator.TimeoutSecs = def.Translator.TimeoutSecs
	}
	if cfg.Server.Command == "" {
		cfg.Server.Command = def.Server.Command
		if len(cfg.Server.Args) == 0 {
			cfg.Server.Args = def.Server.Args
		}
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	if cfg.Server.MaxAttempts == 0 {
		cfg.Server.MaxAttempts = def.Server.MaxAttempts
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = def.Generation.Model
	}
	if cfg.Generation.GeneratePath == "" {
		cfg.Generation.GeneratePath = def.Generation.GeneratePath
	}
	if cfg.Generation.TimeoutSecs == 0 {
		cfg.Generation.TimeoutSecs = def.Generation.TimeoutSecs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Generation.Model, "RAG_MODEL")
	setString(&cfg.Document.Path, "RAG_DOCUMENT")
	setString(&cfg.Server.BaseURL, "RAG_SERVER_URL")
	setString(&cfg.Log.Level, "RAG_LOG_LEVEL")
	setString(&cfg.Translator.Type, "RAG_TRANSLATOR")
	setString(&cfg.Translator.BaseURL, "LIBRETRANSLATE_URL")
	setString(&cfg.Translator.APIKey, "LIBRETRANSLATE_API_KEY")
	setString(&cfg.Index.Database.DSN, "RAG_DATABASE_DSN")
	setString(&cfg.Index.Database.Password, "RAG_DATABASE_PASSWORD")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate rejects values that would make startup or a turn misbehave.
func (c *Config) Validate() error {
	if c.Document.ChunkSize <= 0 {
		return fmt.Errorf("document.chunk_size must be positive, got %d", c.Document.ChunkSize)
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("index.top_k must be positive, got %d", c.Index.TopK)
	}
	if c.Server.MaxAttempts <= 0 {
		return fmt.Errorf("server.max_attempts must be positive, got %d", c.Server.MaxAttempts)
	}
	if c.Server.IntervalSecs < 0 {
		return fmt.Errorf("server.interval_secs must not be negative, got %d", c.Server.IntervalSecs)
	}
	if c.Server.TerminateGraceSecs < 0 {
		return fmt.Errorf("server.terminate_grace_secs must not be negative, got %d", c.Server.TerminateGraceSecs)
	}
	switch c.Embedder.Type {
	case EmbedderHashing:
		if c.Embedder.Dimension <= 0 {
			return fmt.Errorf("embedder.dimension must be positive, got %d", c.Embedder.Dimension)
		}
	case EmbedderOllama:
	default:
		return fmt.Errorf("unknown embedder type: %s", c.Embedder.Type)
	}
	switch c.Index.Backend {
	case BackendMemory:
	case BackendPGVector:
		if c.Index.Database.DSN == "" {
			return errors.New("index.database.dsn is required for the pgvector backend")
		}
		if c.Index.Database.Driver != DriverPGDriver && c.Index.Database.Driver != DriverPQ {
			return fmt.Errorf("unknown database driver: %s", c.Index.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown index backend: %s", c.Index.Backend)
	}
	switch c.Translator.Type {
	case TranslatorLibre, TranslatorOllama, TranslatorNone:
	default:
		return fmt.Errorf("unknown translator type: %s", c.Translator.Type)
	}
	if _, ok := c.Language.Supported[models.PivotLanguageCode]; !ok {
		return fmt.Errorf("pivot language %q is not in language.supported", models.PivotLanguageCode)
	}
	return nil
}
