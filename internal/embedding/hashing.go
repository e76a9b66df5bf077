package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultDimension = 512

var tokenRe = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

// HashingEmbedder maps text to a fixed-size vector by hashing word tokens and
// character trigrams into signed buckets. It needs no corpus and no network,
// and the same text always yields the same L2-normalized vector.
type HashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = defaultDimension
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Dimension() int { return e.dim }

func (e *HashingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	acc := make([]float64, e.dim)
	tokens := tokenRe.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		e.add(acc, "w:"+tok, 1.0)
		runes := []rune("<" + tok + ">")
		for i := 0; i+3 <= len(runes); i++ {
			e.add(acc, "t:"+string(runes[i:i+3]), 0.5)
		}
	}
	if len(tokens) == 0 {
		// punctuation or whitespace only
		for _, r := range text {
			e.add(acc, "c:"+string(r), 1.0)
		}
	}

	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dim)
	if norm == 0 {
		if text != "" {
			vec[bucket(text, e.dim)] = 1
		}
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *HashingEmbedder) add(acc []float64, feature string, weight float64) {
	h := hash32(feature)
	if h&(1<<31) != 0 {
		weight = -weight
	}
	acc[int(h%uint32(e.dim))] += weight
}

func bucket(s string, dim int) int {
	return int(hash32(s) % uint32(dim))
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
