package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"multilingual-rag/internal/config"
	"multilingual-rag/internal/index"
	"multilingual-rag/internal/models"
)

type ChunkRecord struct {
	bun.BaseModel `bun:"table:document_chunks,alias:dc"`
	ID            int64   `bun:"id,pk,autoincrement"`
	ChunkIndex    int     `bun:"chunk_index,notnull"`
	Content       string  `bun:"content,notnull"`
	Embedding     Vector  `bun:"embedding,notnull,type:vector"`
	Distance      float64 `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver: bun's pgdriver,
// or lib/pq registered as "postgres".
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPGDriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN), pgdriver.WithPassword(cfg.Password))), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// PGVectorStore keeps the chunk vectors in a pgvector table. The table is
// recreated by Reset, so its content only lives as long as one run's index.
type PGVectorStore struct {
	db *bun.DB
}

func NewPGVectorStore(db *bun.DB) *PGVectorStore {
	return &PGVectorStore{db: db}
}

// Open connects, pings and wraps the configured database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*PGVectorStore, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPGVectorStore(NewDB(sqldb, cfg.Debug)), nil
}

func (s *PGVectorStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := s.db.NewDropTable().Model((*ChunkRecord)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop chunks table: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*ChunkRecord)(nil)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = ChunkRecord{
			ChunkIndex: c.Index,
			Content:    c.Content,
			Embedding:  Vector(vectors[i]),
		}
	}
	if _, err := s.db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return err
	}
	log.Debug().Int("rows", len(records)).Msg("Stored chunks in pgvector")
	return nil
}

// Search orders by cosine distance (<=>), ties by chunk index.
func (s *PGVectorStore) Search(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	var records []ChunkRecord
	err := s.db.NewSelect().
		Model(&records).
		Column("chunk_index").
		ColumnExpr("embedding <=> ? AS distance", Vector(vector)).
		OrderExpr("distance ASC, chunk_index ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	hits := make([]index.Hit, len(records))
	for i, r := range records {
		hits[i] = index.Hit{ChunkIndex: r.ChunkIndex, Distance: r.Distance}
	}
	return hits, nil
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
