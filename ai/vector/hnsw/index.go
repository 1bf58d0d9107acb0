// Package hnsw provides an in-process vector index on an HNSW graph.
package hnsw

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/hrygo/embedcore/ai/vector"
)

// Index is an in-memory vector.Index. Contents do not survive a restart;
// callers rebuild it from the relational store.
type Index struct {
	graph    *hnsw.Graph[string]
	metadata map[string]map[string]any
	mu       sync.RWMutex
}

var _ vector.Index = (*Index)(nil)

// New creates an empty index using cosine distance.
func New() *Index {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	return &Index{
		graph:    g,
		metadata: make(map[string]map[string]any),
	}
}

// Upsert implements vector.Index.
func (idx *Index) Upsert(_ context.Context, id string, vec []float32, metadata map[string]any) error {
	stored := make([]float32, len(vec))
	copy(stored, vec)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.graph.Lookup(id); exists {
		idx.graph.Delete(id)
	}
	idx.graph.Add(hnsw.MakeNode(id, stored))
	idx.metadata[id] = metadata
	return nil
}

// QuerySimilar implements vector.Index. With a filter every stored vector is
// scored, so filtered-out neighbors never shrink the result.
func (idx *Index) QuerySimilar(_ context.Context, vec []float32, topK int, filter *vector.Filter) ([]vector.Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := idx.graph.Len()
	if n == 0 || topK <= 0 {
		return []vector.Result{}, nil
	}

	var candidates []hnsw.Node[string]
	if filter == nil {
		candidates = idx.graph.Search(vec, min(topK, n))
	} else {
		candidates = make([]hnsw.Node[string], 0, n)
		for id, meta := range idx.metadata {
			if !filter.Match(meta) {
				continue
			}
			if v, ok := idx.graph.Lookup(id); ok {
				candidates = append(candidates, hnsw.MakeNode(id, v))
			}
		}
	}

	results := make([]vector.Result, 0, len(candidates))
	for _, node := range candidates {
		results = append(results, vector.Result{
			ID:       node.Key,
			Score:    vector.CosineSimilarity(vec, node.Value),
			Metadata: idx.metadata[node.Key],
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete implements vector.Index.
func (idx *Index) Delete(_ context.Context, id string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.metadata, id)
	return idx.graph.Delete(id), nil
}

// HealthCheck implements vector.Index. The in-process index is always available.
func (idx *Index) HealthCheck(context.Context) bool {
	return true
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Len()
}
