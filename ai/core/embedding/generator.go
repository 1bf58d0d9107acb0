// Package embedding provides embedding generators: a deterministic offline
// generator and an OpenAI-compatible remote provider.
package embedding

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
	"unicode/utf8"

	"github.com/hrygo/embedcore/internal/errs"
)

// Dimensions is the fixed length of every embedding handled by embedcore.
const Dimensions = 384

// Generator produces deterministic pseudo-embeddings from text.
// It is NOT a semantic embedding; identical text yields a bit-identical vector.
type Generator struct{}

// NewGenerator creates a deterministic generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Seed returns the 32-bit seed derived from text.
func Seed(text string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return h.Sum32()
}

// Generate returns a unit-norm vector of Dimensions floats for text.
func (g *Generator) Generate(text string) ([]float32, error) {
	if !utf8.ValidString(text) {
		return nil, errs.InvalidInput("text must be valid UTF-8")
	}

	seed := Seed(text)
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	values := make([]float64, Dimensions)
	var sumSquares float64
	for i := range values {
		v := rng.Float64()*2 - 1
		values[i] = v
		sumSquares += v * v
	}

	vec := make([]float32, Dimensions)
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i, v := range values {
		vec[i] = float32(v / norm)
	}

	slog.Debug("generated embedding", "seed", seed, "text_length", len(text))
	return vec, nil
}

// Embed implements ai.EmbeddingService.
func (g *Generator) Embed(_ context.Context, text string) ([]float32, error) {
	return g.Generate(text)
}

// EmbedBatch implements ai.EmbeddingService.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := g.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions implements ai.EmbeddingService.
func (g *Generator) Dimensions() int {
	return Dimensions
}
