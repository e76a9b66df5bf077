package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"multilingual-rag/internal/config"
	"multilingual-rag/internal/embedding"
	"multilingual-rag/internal/helper"
	"multilingual-rag/internal/index"
	"multilingual-rag/internal/language"
	"multilingual-rag/internal/llmservice"
	"multilingual-rag/internal/models"
	"multilingual-rag/internal/modelserver"
	"multilingual-rag/internal/parser"
)

var ErrEmptyInput = errors.New("empty input")

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, onFragment func(string)) (string, error)
}

type Server interface {
	Start(ctx context.Context, model string) error
	AwaitReady(ctx context.Context, maxAttempts int, interval time.Duration) error
	Terminate() error
}

// Deps are the services a session is assembled from.
type Deps struct {
	Config    *config.Config
	Embedder  embeddings.Embedder
	Store     index.Store
	Bridge    *language.Bridge
	Generator Generator
	Server    Server
	// Progress, when set, observes the index build.
	Progress index.ProgressFunc
}

func (d Deps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("rag: missing config")
	case d.Bridge == nil:
		return errors.New("rag: missing language bridge")
	case d.Generator == nil:
		return errors.New("rag: missing generator")
	case d.Server == nil:
		return errors.New("rag: missing model server")
	}
	if d.Config.Document.Path != "" && (d.Embedder == nil || d.Store == nil) {
		return errors.New("rag: retrieval needs an embedder and a vector store")
	}
	return nil
}

// Session holds the index and the running model server for a conversation.
type Session struct {
	id     string
	cfg    *config.Config
	deps   Deps
	mode   models.Mode
	index  *index.Index
	logger zerolog.Logger
}

// Start ingests the document, builds the index and brings the model server
// up. Ingestion and local indexing happen before the server is launched, so
// a bad document never leaves a process behind. Any failure after launch
// terminates the server before returning.
func Start(ctx context.Context, d Deps) (*Session, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	cfg := d.Config

	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:     id,
		cfg:    cfg,
		deps:   d,
		mode:   models.ModeChat,
		logger: log.With().Str("session", id).Logger(),
	}

	var chunks []models.Chunk
	deferIndex := false
	if cfg.Document.Path != "" {
		s.mode = models.ModeRetrieval
		chunks, err = parser.Ingest(cfg.Document.Path, cfg.Document.ChunkSize, cfg.Document.Separator)
		if err != nil {
			return nil, fmt.Errorf("failed to ingest %s: %w", cfg.Document.Path, err)
		}
		s.logger.Debug().Int("chunks", len(chunks)).Msg("Document chunked")

		deferIndex = embedding.NeedsServer(cfg.Embedder)
		if !deferIndex {
			if err := s.buildIndex(ctx, chunks); err != nil {
				return nil, err
			}
		}
	}

	if err := d.Server.Start(ctx, cfg.Generation.Model); err != nil {
		s.terminate()
		return nil, fmt.Errorf("failed to start model server: %w", err)
	}
	if err := d.Server.AwaitReady(ctx, cfg.Server.MaxAttempts, cfg.Server.Interval()); err != nil {
		s.terminate()
		return nil, err
	}

	if deferIndex {
		if err := s.buildIndex(ctx, chunks); err != nil {
			s.terminate()
			return nil, err
		}
	}

	s.logger.Info().Str("mode", s.mode.String()).Str("model", cfg.Generation.Model).Msg("Session ready")
	return s, nil
}

// Run starts a session, hands it to fn and always terminates the server
// afterwards, including when fn panics.
func Run(ctx context.Context, d Deps, fn func(ctx context.Context, s *Session) error) (err error) {
	s, err := Start(ctx, d)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}

func (s *Session) buildIndex(ctx context.Context, chunks []models.Chunk) error {
	start := time.Now()
	ix, err := index.Build(ctx, s.deps.Embedder, s.deps.Store, chunks, s.cfg.Embedder.BatchSize, s.deps.Progress)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	s.index = ix
	s.logger.Debug().Dur("elapsed", time.Since(start)).Msg("Index ready")
	return nil
}

func (s *Session) terminate() {
	if err := s.deps.Server.Terminate(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to terminate model server")
	}
}

// Close terminates the model server.
func (s *Session) Close() error {
	return s.deps.Server.Terminate()
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() models.Mode { return s.mode }

// Chunks returns the number of indexed chunks.
func (s *Session) Chunks() int {
	if s.index == nil {
		return 0
	}
	return s.index.Len()
}

// Ask runs one turn. Fragments reach onFragment as they arrive only when the
// answer is shown as generated; answers that are translated back are
// buffered. Generation failures become a visible answer rather than an error.
func (s *Session) Ask(ctx context.Context, input string, onFragment func(string)) (models.Reply, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return models.Reply{}, ErrEmptyInput
	}
	start := time.Now()
	bridge := s.deps.Bridge

	det := bridge.Detect(text)
	tag := det.Tag
	reply := models.Reply{Language: tag, Detection: det}
	s.logger.Debug().
		Str("language", tag.Code).
		Str("detected", det.Detected).
		Str("fallback", det.Fallback.String()).
		Msg("Detected language")

	var prompt string
	switch s.mode {
	case models.ModeRetrieval:
		reply.Inbound = bridge.ToPivot(ctx, text, tag)
		reply.Sources = s.retrieve(ctx, reply.Inbound.Text)
		passages := make([]string, len(reply.Sources))
		for i, c := range reply.Sources {
			passages[i] = c.Content
		}
		prompt = llmservice.BuildPrompt(models.ModeRetrieval, passages, reply.Inbound.Text, tag.Name)
	default:
		reply.Inbound = models.Translation{Text: text, Status: models.TranslationIdentity}
		// nothing is translated in chat mode, so an unidentified language is
		// left for the model to mirror instead of forcing English
		replyLanguage := tag.Name
		if det.Fallback != models.FallbackNone {
			replyLanguage = models.UserLanguageLabel
		}
		prompt = llmservice.BuildPrompt(models.ModeChat, nil, text, replyLanguage)
	}

	translateBack := s.mode == models.ModeRetrieval && !tag.IsPivot()
	answer, streamed, err := s.generate(ctx, prompt, onFragment, !translateBack)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, modelserver.ErrNotReady) {
			return reply, err
		}
		reply.Answer, reply.Outcome = failureAnswer(err)
		s.logger.Warn().Err(err).Str("outcome", reply.Outcome.String()).Msg("Generation failed")
		return reply, nil
	}
	answer = strings.TrimSpace(answer)
	reply.Streamed = streamed

	if translateBack {
		reply.Outbound = bridge.FromPivot(ctx, answer, tag)
	} else {
		reply.Outbound = models.Translation{Text: answer, Status: models.TranslationIdentity}
	}
	reply.Answer = reply.Outbound.Text
	reply.Outcome = models.OutcomeAnswered

	s.logger.Info().
		Str("language", tag.Code).
		Int("sources", len(reply.Sources)).
		Bool("streamed", reply.Streamed).
		Dur("elapsed", time.Since(start)).
		Msg("Answered")
	return reply, nil
}

func (s *Session) retrieve(ctx context.Context, query string) []models.Chunk {
	if s.index == nil {
		return nil
	}
	chunks, err := s.index.Query(ctx, query, s.cfg.Index.TopK)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Retrieval failed, continuing without context")
		return nil
	}
	return chunks
}

func (s *Session) generate(ctx context.Context, prompt string, onFragment func(string), forward bool) (string, bool, error) {
	gen := s.deps.Generator
	if !s.cfg.Generation.Stream {
		answer, err := gen.Generate(ctx, prompt)
		return answer, false, err
	}
	if forward && onFragment != nil {
		answer, err := gen.GenerateStream(ctx, prompt, onFragment)
		return answer, true, err
	}
	answer, err := gen.GenerateStream(ctx, prompt, nil)
	return answer, false, err
}

func failureAnswer(err error) (string, models.Outcome) {
	var statusErr *llmservice.StatusError
	switch {
	case errors.Is(err, llmservice.ErrUnreachable):
		return models.UnreachableAnswer, models.OutcomeUnreachable
	case errors.As(err, &statusErr):
		return fmt.Sprintf(models.ServerErrorAnswer, statusErr.Code, statusErr.Body), models.OutcomeServerError
	default:
		return fmt.Sprintf(models.FailedAnswer, err), models.OutcomeFailed
	}
}
