package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"multilingual-rag/internal/index"
	"multilingual-rag/internal/models"
)

const metadataChunkIndex = "chunk_index"

// VectorDBManager keeps the chunk vectors in an in-memory chromem collection.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
}

// NewVectorDBManager initializes an in-memory vector database manager
func NewVectorDBManager(collectionName string) *VectorDBManager {
	return &VectorDBManager{
		db:             chromem.NewDB(),
		collectionName: collectionName,
	}
}

// Reset drops the collection, if any, and creates it empty.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if m.collection != nil {
		if err := m.db.DeleteCollection(m.collectionName); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
		m.collection = nil
	}
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return nil
}

// Add stores one document per chunk with its precomputed embedding
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if m.collection == nil {
		return fmt.Errorf("collection %s is not initialized", m.collectionName)
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		id := strconv.Itoa(c.Index)
		docs[i] = chromem.Document{
			ID:        id,
			Content:   c.Content,
			Metadata:  map[string]string{metadataChunkIndex: id},
			Embedding: vectors[i],
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", m.collectionName).Int("documents", len(docs)).Msg("Added documents")
	return nil
}

// Search ranks every document against the query so ties at the k-th place
// are settled by chunk order rather than by map iteration.
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	if m.collection == nil {
		return nil, nil
	}
	n := m.collection.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.Metadata[metadataChunkIndex])
		if err != nil {
			log.Warn().Str("id", r.ID).Msg("Document without chunk index")
			continue
		}
		hits = append(hits, index.Hit{ChunkIndex: idx, Distance: 1 - float64(r.Similarity)})
	}
	index.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}
