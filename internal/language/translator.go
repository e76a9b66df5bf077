package language

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"multilingual-rag/internal/config"
	"multilingual-rag/internal/llmservice"
	"multilingual-rag/internal/models"
)

// NewTranslator builds the configured translator. It returns nil for the
// "none" type, which disables translation.
func NewTranslator(cfg config.TranslatorConfig, gen config.GenerationConfig, serverURL string) (Translator, error) {
	switch cfg.Type {
	case config.TranslatorNone:
		return nil, nil
	case config.TranslatorLibre, "":
		return NewLibreTranslator(cfg), nil
	case config.TranslatorOllama:
		llm, err := llmservice.NewOllamaLLM(serverURL, gen.Model)
		if err != nil {
			return nil, err
		}
		return NewLLMTranslator(llm), nil
	default:
		return nil, fmt.Errorf("unknown translator type: %s", cfg.Type)
	}
}

// LibreTranslator calls a LibreTranslate compatible /translate endpoint. Each
// call is a single attempt bounded by the client timeout.
type LibreTranslator struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewLibreTranslator(cfg config.TranslatorConfig) *LibreTranslator {
	return &LibreTranslator{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

func (t *LibreTranslator) Translate(ctx context.Context, text string, from, to models.LanguageTag) (string, error) {
	payload := struct {
		Q      string `json:"q"`
		Source string `json:"source"`
		Target string `json:"target"`
		Format string `json:"format"`
		APIKey string `json:"api_key,omitempty"`
	}{
		Q:      text,
		Source: from.Code,
		Target: to.Code,
		Format: "text",
		APIKey: t.apiKey,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("translate request failed: %d, %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode translation: %w", err)
	}
	return out.TranslatedText, nil
}

// LLMTranslator asks a language model to translate.
type LLMTranslator struct {
	llm llms.Model
}

func NewLLMTranslator(llm llms.Model) *LLMTranslator {
	return &LLMTranslator{llm: llm}
}

func (t *LLMTranslator) Translate(ctx context.Context, text string, from, to models.LanguageTag) (string, error) {
	prompt := fmt.Sprintf(models.TranslatePromptTemplate, from.Name, to.Name, text)
	return llmservice.Complete(ctx, t.llm, prompt)
}
