package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"multilingual-rag/internal/chromemdb"
	"multilingual-rag/internal/config"
	"multilingual-rag/internal/db"
	"multilingual-rag/internal/embedding"
	"multilingual-rag/internal/helper"
	"multilingual-rag/internal/index"
	"multilingual-rag/internal/language"
	"multilingual-rag/internal/llmservice"
	"multilingual-rag/internal/modelserver"
	"multilingual-rag/internal/parser"
	"multilingual-rag/internal/rag"
)

const (
	defaultConfigPath = "./configs/config.yaml"
	collectionName    = "document_chunks"
)

var (
	configPath string
	filePath   string
	query      string
	model      string
	topK       int
	dryRun     bool
	noStream   bool
)

var rootCmd = &cobra.Command{
	Use:   "multilingual-rag",
	Short: "Chat with a document in your own language",
	Long: `multilingual-rag indexes a document, starts a local model server and answers
questions in the language they were asked, translating through English so the
model always works in one language.

Example usage:
  multilingual-rag --file notes.pdf                 # interactive chat about notes.pdf
  multilingual-rag --file notes.pdf -q "सारांश दें"   # answer one question and exit
  multilingual-rag                                  # chat without a document
  multilingual-rag --file notes.pdf --dry-run       # show the chunks and exit`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "config file")
	rootCmd.Flags().StringVarP(&filePath, "file", "f", "", "document to chat about (overrides document.path)")
	rootCmd.Flags().StringVarP(&query, "query", "q", "", "answer a single question and exit")
	rootCmd.Flags().StringVarP(&model, "model", "m", "", "generation model (overrides generation.model)")
	rootCmd.Flags().IntVarP(&topK, "top-k", "k", 0, "passages retrieved per question (default from config)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "ingest the document, print its chunks and exit")
	rootCmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the whole answer instead of streaming")
}

func main() {
	_ = godotenv.Load()
	setupLogging("info")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if filePath != "" {
		cfg.Document.Path = filePath
	}
	if model != "" {
		cfg.Generation.Model = model
	}
	if cmd.Flags().Changed("top-k") {
		cfg.Index.TopK = topK
	}
	if noStream {
		cfg.Generation.Stream = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	if dryRun {
		return printChunks(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	err = rag.Run(ctx, deps, func(ctx context.Context, s *rag.Session) error {
		ui := newConsole(os.Stdout)
		if query != "" {
			return ui.answer(ctx, s, query)
		}
		return ui.repl(ctx, s, os.Stdin)
	})
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Interrupted")
		return nil
	}
	return err
}

// buildDeps assembles the session services from cfg. cleanup releases
// whatever was opened, even when an error is returned.
func buildDeps(ctx context.Context, cfg *config.Config) (rag.Deps, func(), error) {
	cleanup := func() {}
	server := modelserver.New(cfg.Server)

	embedder, err := embedding.New(cfg.Embedder, server.BaseURL())
	if err != nil {
		return rag.Deps{}, cleanup, err
	}

	var store index.Store
	switch cfg.Index.Backend {
	case config.BackendPGVector:
		pg, err := db.Open(ctx, cfg.Index.Database)
		if err != nil {
			return rag.Deps{}, cleanup, err
		}
		cleanup = func() {
			if err := pg.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing database")
			}
		}
		store = pg
	default:
		store = chromemdb.NewVectorDBManager(collectionName)
	}

	translator, err := language.NewTranslator(cfg.Translator, cfg.Generation, server.BaseURL())
	if err != nil {
		return rag.Deps{}, cleanup, err
	}

	return rag.Deps{
		Config:    cfg,
		Embedder:  embedder,
		Store:     store,
		Bridge:    language.NewBridge(language.WhatlangDetector{}, translator, cfg.Language.Supported),
		Generator: llmservice.NewClient(cfg.Generation, server.BaseURL(), server),
		Server:    server,
		Progress:  newProgress(),
	}, cleanup, nil
}

func newProgress() index.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		_ = bar.Set(done)
	}
}

type chunkSummary struct {
	Index   int    `json:"index"`
	Runes   int    `json:"runes"`
	Preview string `json:"preview"`
}

func printChunks(cfg *config.Config) error {
	if cfg.Document.Path == "" {
		return errors.New("--dry-run needs a document (--file or document.path)")
	}
	chunks, err := parser.Ingest(cfg.Document.Path, cfg.Document.ChunkSize, cfg.Document.Separator)
	if err != nil {
		return err
	}
	summary := make([]chunkSummary, len(chunks))
	for i, c := range chunks {
		summary[i] = chunkSummary{
			Index:   c.Index,
			Runes:   len([]rune(c.Content)),
			Preview: helper.Preview(strings.ReplaceAll(c.Content, "\n", " "), 80),
		}
	}
	log.Info().Str("document", cfg.Document.Path).Int("chunks", len(chunks)).Msg("Parsed document")
	return helper.PrettyPrint(os.Stdout, summary)
}
