package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"multilingual-rag/internal/models"
)

// Hit is one search result of a Store: the chunk position and its cosine
// distance to the query vector.
type Hit struct {
	ChunkIndex int
	Distance   float64
}

// Store holds the vectors of one index. Search must use cosine distance, the
// same metric for every backend.
type Store interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

type ProgressFunc func(done, total int)

// Index pairs the stored vectors with the ordered chunks they were built
// from. It is read-only once Build returns.
type Index struct {
	embedder embeddings.Embedder
	store    Store
	chunks   []models.Chunk
	dim      int
}

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Build embeds the chunks in batches and loads them into store. Chunks are
// renumbered by their position in the slice.
func Build(ctx context.Context, embedder embeddings.Embedder, store Store, chunks []models.Chunk, batchSize int, progress ProgressFunc) (*Index, error) {
	if batchSize <= 0 {
		batchSize = len(chunks)
	}
	owned := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		owned[i] = models.Chunk{Index: i, Content: c.Content}
	}

	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset vector store: %w", err)
	}

	ix := &Index{embedder: embedder, store: store, chunks: owned}
	if len(owned) == 0 {
		log.Warn().Msg("Building an empty index")
		return ix, nil
	}

	vectors := make([][]float32, 0, len(owned))
	for start := 0; start < len(owned); start += batchSize {
		end := min(start+batchSize, len(owned))
		texts := make([]string, 0, end-start)
		for _, c := range owned[start:end] {
			texts = append(texts, c.Content)
		}
		batch, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		for _, v := range batch {
			if ix.dim == 0 {
				ix.dim = len(v)
			}
			if len(v) == 0 || len(v) != ix.dim {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), ix.dim)
			}
			vectors = append(vectors, v)
		}
		if progress != nil {
			progress(end, len(owned))
		}
	}

	if err := store.Add(ctx, owned, vectors); err != nil {
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}
	log.Info().Int("chunks", len(owned)).Int("dimension", ix.dim).Msg("Built index")
	return ix, nil
}

func (ix *Index) Len() int { return len(ix.chunks) }

func (ix *Index) Dimension() int { return ix.dim }

// Chunks returns a copy of the indexed chunks in ingestion order.
func (ix *Index) Chunks() []models.Chunk {
	out := make([]models.Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

// Query returns at most k distinct chunks nearest to text, by ascending
// distance and then by chunk order.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]models.Chunk, error) {
	if len(ix.chunks) == 0 || k <= 0 {
		return nil, nil
	}
	k = min(k, len(ix.chunks))

	vec, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	if isZero(vec) {
		// every chunk is equally far away
		return ix.Chunks()[:k], nil
	}

	hits, err := ix.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}
	SortHits(hits)

	seen := make(map[int]struct{}, len(hits))
	out := make([]models.Chunk, 0, k)
	for _, h := range hits {
		if h.ChunkIndex < 0 || h.ChunkIndex >= len(ix.chunks) {
			continue
		}
		if _, dup := seen[h.ChunkIndex]; dup {
			continue
		}
		seen[h.ChunkIndex] = struct{}{}
		out = append(out, ix.chunks[h.ChunkIndex])
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// SortHits orders hits by ascending distance, ties by ascending chunk index.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
