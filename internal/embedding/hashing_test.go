package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/tmc/langchaingo/embeddings"

	"multilingual-rag/internal/config"
)

var _ embeddings.Embedder = (*HashingEmbedder)(nil)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()
	a, err := e.EmbedQuery(ctx, "How do I print a receipt?")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewHashingEmbedder(256).EmbedQuery(ctx, "How do I print a receipt?")
	if len(a) != 256 {
		t.Fatalf("expected dimension 256, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestHashingEmbedder_Normalized(t *testing.T) {
	e := NewHashingEmbedder(0)
	if e.Dimension() != defaultDimension {
		t.Fatalf("expected default dimension, got %d", e.Dimension())
	}
	for _, text := range []string{"printer settings", "   ", "!!", "नमस्ते दुनिया", "x"} {
		v, _ := e.EmbedQuery(context.Background(), text)
		norm := 0.0
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if math.Abs(norm-1) > 1e-4 {
			t.Errorf("%q: expected unit norm, got %f", text, norm)
		}
	}
}

func TestHashingEmbedder_EmptyTextIsZero(t *testing.T) {
	v, _ := NewHashingEmbedder(64).EmbedQuery(context.Background(), "")
	for _, x := range v {
		if x != 0 {
			t.Fatal("expected zero vector for empty text")
		}
	}
}

func TestHashingEmbedder_SimilarTextsCloser(t *testing.T) {
	e := NewHashingEmbedder(512)
	docs, err := e.EmbedDocuments(context.Background(), []string{
		"To print a receipt press the print button on the sales screen.",
		"Inventory items can be imported from a spreadsheet file.",
	})
	if err != nil {
		t.Fatal(err)
	}
	q, _ := e.EmbedQuery(context.Background(), "how to print receipt")
	if cosine(q, docs[0]) <= cosine(q, docs[1]) {
		t.Errorf("expected the receipt passage to be closer")
	}
}

func TestHashingEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashingEmbedder(8).EmbedDocuments(ctx, []string{"a"}); err == nil {
		t.Error("expected context error")
	}
}

func TestNew(t *testing.T) {
	emb, err := New(config.EmbedderConfig{Type: config.EmbedderHashing, Dimension: 32}, "")
	if err != nil {
		t.Fatal(err)
	}
	if h, ok := emb.(*HashingEmbedder); !ok || h.Dimension() != 32 {
		t.Errorf("expected a 32-dim hashing embedder, got %T", emb)
	}
	if _, err := New(config.EmbedderConfig{Type: "word2vec"}, ""); err == nil {
		t.Error("expected error for unknown embedder")
	}
	if !NeedsServer(config.EmbedderConfig{Type: config.EmbedderOllama}) {
		t.Error("ollama embedder without base url needs the managed server")
	}
	if NeedsServer(config.EmbedderConfig{Type: config.EmbedderOllama, BaseURL: "http://embed:11434"}) {
		t.Error("ollama embedder with its own base url does not need the managed server")
	}
}
