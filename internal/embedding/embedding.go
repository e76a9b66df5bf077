package embedding

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"multilingual-rag/internal/config"
)

// New returns the embedder selected by cfg. serverURL is the managed model
// server, used when the embedder has no base URL of its own.
func New(cfg config.EmbedderConfig, serverURL string) (embeddings.Embedder, error) {
	switch cfg.Type {
	case config.EmbedderHashing, "":
		return NewHashingEmbedder(cfg.Dimension), nil
	case config.EmbedderOllama:
		return NewOllamaEmbedder(cfg, serverURL)
	default:
		return nil, fmt.Errorf("unknown embedder type: %s", cfg.Type)
	}
}

// NeedsServer reports whether embedding requires the model server to be up.
func NeedsServer(cfg config.EmbedderConfig) bool {
	return cfg.Type == config.EmbedderOllama && cfg.BaseURL == ""
}

// NewOllamaEmbedder creates an embedder backed by an Ollama embedding model.
func NewOllamaEmbedder(cfg config.EmbedderConfig, serverURL string) (*embeddings.EmbedderImpl, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = serverURL
	}

	log.Debug().Interface("config", map[string]string{
		"base_url":        baseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	opts := []embeddings.Option{}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(llm, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
