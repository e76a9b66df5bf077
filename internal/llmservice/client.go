package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewOllamaLLM returns a langchaingo client for one-shot completions
// against the managed Ollama server.
func NewOllamaLLM(serverURL, model string) (*ollama.LLM, error) {
	log.Debug().Str("base_url", serverURL).Str("model", model).Msg("Creating ollama llm")
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama llm: %w", err)
	}
	return llm, nil
}

// Complete sends a single prompt and returns the trimmed completion.
func Complete(ctx context.Context, llm llms.Model, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
