// Package vector defines the similarity index consumed by the storage facade.
package vector

import (
	"context"
	"fmt"
	"math"
)

// Index is a similarity-search backend keyed by string ids.
type Index interface {
	// Upsert stores vec under id, replacing any previous entry.
	Upsert(ctx context.Context, id string, vec []float32, metadata map[string]any) error

	// QuerySimilar returns up to topK entries ordered by descending score.
	QuerySimilar(ctx context.Context, vec []float32, topK int, filter *Filter) ([]Result, error)

	// Delete removes id and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// HealthCheck reports whether the index can serve queries.
	HealthCheck(ctx context.Context) bool
}

// Filter restricts query results by metadata.
// An entry passes when it matches every Equals pair and does not match
// all NotEquals pairs at once.
type Filter struct {
	Equals    map[string]string
	NotEquals map[string]string
}

// Exclude returns a filter that skips the entry with the given item identity.
func Exclude(itemType, itemID string) *Filter {
	return &Filter{NotEquals: map[string]string{"item_type": itemType, "item_id": itemID}}
}

// Match reports whether metadata passes the filter. A nil filter matches everything.
func (f *Filter) Match(metadata map[string]any) bool {
	if f == nil {
		return true
	}
	for k, want := range f.Equals {
		if !metadataEquals(metadata, k, want) {
			return false
		}
	}
	if len(f.NotEquals) == 0 {
		return true
	}
	for k, want := range f.NotEquals {
		if !metadataEquals(metadata, k, want) {
			return true
		}
	}
	return false
}

func metadataEquals(metadata map[string]any, key, want string) bool {
	v, ok := metadata[key]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == want
}

// Result represents a vector search result.
type Result struct {
	Metadata map[string]any `json:"metadata"`
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
}

// CosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
