package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/hrygo/embedcore/ai"
	"github.com/hrygo/embedcore/ai/core/obfuscation"
	"github.com/hrygo/embedcore/ai/internal/strutil"
	"github.com/hrygo/embedcore/ai/resilience"
	"github.com/hrygo/embedcore/ai/vector"
	"github.com/hrygo/embedcore/internal/errs"
	"github.com/hrygo/embedcore/internal/result"
	"github.com/hrygo/embedcore/store"
)

const (
	// DefaultTopK is used when a query asks for zero or fewer results.
	DefaultTopK = 5

	indexTextLimit  = 1000
	resultTextLimit = 200
)

// Search backends reported to the Recorder.
const (
	BackendIndex    = "index"
	BackendFullScan = "full_scan"
)

// Recorder receives storage events.
type Recorder interface {
	RecordStoreWrite(outcome string)
	RecordSearch(backend string, duration time.Duration)
}

// Options configures a Facade. Every field is optional.
type Options struct {
	Index              vector.Index
	Policy             *resilience.Policy
	Recorder           Recorder
	HealthCheckTimeout time.Duration
}

// Facade persists embeddings relationally, mirrors them into an optional
// vector index, and answers similarity queries from whichever is available.
type Facade struct {
	store              *store.Store
	embedder           ai.EmbeddingService
	index              vector.Index
	policy             *resilience.Policy
	recorder           Recorder
	healthCheckTimeout time.Duration
}

// UpsertRequest is a vector ready to be stored.
type UpsertRequest struct {
	ItemType  string
	ItemID    string
	Text      string
	UserID    string
	SessionID string
	Platform  string
	Vector    []float64
}

// Match is a similarity search hit.
type Match struct {
	ItemType   string  `json:"item_type"`
	ItemID     string  `json:"item_id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// PendingItem is an item that may still need an embedding.
type PendingItem struct {
	ID   string
	Text string
}

// NewFacade creates a facade over st. embedder produces base vectors for
// Upsert and text queries.
func NewFacade(st *store.Store, embedder ai.EmbeddingService, opts Options) *Facade {
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = 2 * time.Second
	}
	return &Facade{
		store:              st,
		embedder:           embedder,
		index:              opts.Index,
		policy:             opts.Policy,
		recorder:           opts.Recorder,
		healthCheckTimeout: opts.HealthCheckTimeout,
	}
}

// IndexID is the vector index key of an item.
func IndexID(itemType, itemID string) string {
	return itemType + "_" + itemID
}

// Upsert generates the base vector for text and stores it.
func (f *Facade) Upsert(ctx context.Context, itemType, itemID, text string) result.Outcome[bool] {
	vec, err := f.embedder.Embed(ctx, text)
	if err != nil {
		slog.Error("failed to generate embedding", "item_type", itemType, "item_id", itemID, "error", err)
		f.recordWrite(result.StatusFailed)
		return result.Failed[bool](err)
	}
	return f.UpsertVector(ctx, UpsertRequest{
		ItemType: itemType,
		ItemID:   itemID,
		Text:     text,
		Vector:   obfuscation.ToFloat64(vec),
	})
}

// UpsertVector validates and stores req. A vector failing validation is
// rejected without touching storage. A vector index failure is logged and
// does not fail the write.
func (f *Facade) UpsertVector(ctx context.Context, req UpsertRequest) result.Outcome[bool] {
	if req.ItemType == "" || req.ItemID == "" {
		f.recordWrite(result.StatusFailed)
		return result.Failed[bool](errs.InvalidArgument("item type and item id are required"))
	}

	if err := ValidateVector(req.Vector); err != nil {
		slog.Warn("embedding rejected", "item_type", req.ItemType, "item_id", req.ItemID, "reason", err.Error())
		f.recordWrite(result.StatusRejected)
		return result.Rejected[bool](err.Error())
	}

	record := &store.Embedding{
		ItemType:  req.ItemType,
		ItemID:    req.ItemID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Platform:  req.Platform,
		Vector:    req.Vector,
	}
	if req.Text != "" {
		text := req.Text
		record.Text = &text
	}

	_, err := resilience.Do(ctx, f.policy, func(ctx context.Context) (*store.Embedding, error) {
		stored, err := f.store.UpsertEmbedding(ctx, record)
		if err != nil {
			return nil, errs.Backend(err, "failed to store embedding")
		}
		return stored, nil
	})
	if err != nil {
		slog.Error("failed to store embedding", "item_type", req.ItemType, "item_id", req.ItemID, "error", err)
		f.recordWrite(result.StatusFailed)
		return result.Failed[bool](err)
	}

	if f.index != nil {
		if err := f.indexRecord(ctx, record); err != nil {
			slog.Warn("failed to update vector index", "item_type", req.ItemType, "item_id", req.ItemID, "error", err)
		}
	}

	slog.Debug("embedding stored", "item_type", req.ItemType, "item_id", req.ItemID)
	f.recordWrite(result.StatusSuccess)
	return result.Succeeded(true)
}

func (f *Facade) indexRecord(ctx context.Context, record *store.Embedding) error {
	metadata := map[string]any{
		"item_type": record.ItemType,
		"item_id":   record.ItemID,
		"timestamp": time.Now().Unix(),
	}
	if record.Text != nil {
		metadata["text"] = strutil.Truncate(*record.Text, indexTextLimit, "")
	}
	if record.UserID != "" {
		metadata["user_id"] = record.UserID
	}
	return f.index.Upsert(ctx, IndexID(record.ItemType, record.ItemID), obfuscation.ToFloat32(record.Vector), metadata)
}

// QuerySimilar returns the topK stored items most similar to vec. The vector
// index is used when configured and healthy; otherwise, or when the index
// query fails, every stored row with text is scanned.
func (f *Facade) QuerySimilar(ctx context.Context, vec []float64, topK int, filter *vector.Filter) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	if f.index != nil && f.indexHealthy(ctx) {
		start := time.Now()
		results, err := f.index.QuerySimilar(ctx, obfuscation.ToFloat32(vec), topK, filter)
		if err == nil {
			f.recordSearch(BackendIndex, time.Since(start))
			return matchesFromIndex(results), nil
		}
		slog.Warn("vector index query failed, falling back to full scan", "error", err)
	}

	start := time.Now()
	matches, err := f.fullScan(ctx, vec, topK, filter)
	if err != nil {
		return nil, err
	}
	f.recordSearch(BackendFullScan, time.Since(start))
	return matches, nil
}

func (f *Facade) indexHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, f.healthCheckTimeout)
	defer cancel()
	return f.index.HealthCheck(ctx)
}

func (f *Facade) fullScan(ctx context.Context, vec []float64, topK int, filter *vector.Filter) ([]Match, error) {
	rows, err := resilience.Do(ctx, f.policy, func(ctx context.Context) ([]*store.Embedding, error) {
		rows, err := f.store.ListEmbeddings(ctx, &store.FindEmbedding{HasText: true})
		if err != nil {
			return nil, errs.Backend(err, "failed to list embeddings")
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		meta := map[string]any{"item_type": row.ItemType, "item_id": row.ItemID}
		if row.UserID != "" {
			meta["user_id"] = row.UserID
		}
		if !filter.Match(meta) {
			continue
		}
		matches = append(matches, Match{
			ItemType:   row.ItemType,
			ItemID:     row.ItemID,
			Text:       strutil.Truncate(*row.Text, resultTextLimit, "..."),
			Similarity: cosineSimilarity(vec, row.Vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesFromIndex(results []vector.Result) []Match {
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{Similarity: float64(r.Score)}
		if v, ok := r.Metadata["item_type"].(string); ok {
			m.ItemType = v
		}
		if v, ok := r.Metadata["item_id"].(string); ok {
			m.ItemID = v
		}
		if v, ok := r.Metadata["text"].(string); ok {
			m.Text = strutil.Truncate(v, resultTextLimit, "...")
		}
		matches = append(matches, m)
	}
	return matches
}

// SearchText embeds text and returns the most similar stored items.
func (f *Facade) SearchText(ctx context.Context, text string, topK int) ([]Match, error) {
	vec, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return f.QuerySimilar(ctx, obfuscation.ToFloat64(vec), topK, nil)
}

// SearchByItem finds items similar to an existing one, excluding the item itself.
func (f *Facade) SearchByItem(ctx context.Context, itemType, itemID string, topK int) ([]Match, error) {
	record, err := f.Get(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}
	if record.Text == nil {
		return nil, fmt.Errorf("%w: %s/%s has no text", errs.ErrNotFound, itemType, itemID)
	}

	vec, err := f.embedder.Embed(ctx, *record.Text)
	if err != nil {
		return nil, err
	}
	return f.QuerySimilar(ctx, obfuscation.ToFloat64(vec), topK, vector.Exclude(itemType, itemID))
}

// Get returns the stored record for an item.
func (f *Facade) Get(ctx context.Context, itemType, itemID string) (*store.Embedding, error) {
	record, err := resilience.Do(ctx, f.policy, func(ctx context.Context) (*store.Embedding, error) {
		record, err := f.store.GetEmbedding(ctx, itemType, itemID)
		if err != nil {
			return nil, errs.Backend(err, "failed to load embedding")
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s/%s", errs.ErrNotFound, itemType, itemID)
	}
	return record, nil
}

// Delete removes an item from storage and the vector index.
func (f *Facade) Delete(ctx context.Context, itemType, itemID string) (bool, error) {
	deleted, err := resilience.Do(ctx, f.policy, func(ctx context.Context) (bool, error) {
		deleted, err := f.store.DeleteEmbedding(ctx, &store.DeleteEmbedding{ItemType: itemType, ItemID: itemID})
		if err != nil {
			return false, errs.Backend(err, "failed to delete embedding")
		}
		return deleted, nil
	})
	if err != nil {
		return false, err
	}

	if f.index != nil {
		if _, err := f.index.Delete(ctx, IndexID(itemType, itemID)); err != nil {
			slog.Warn("failed to delete from vector index", "item_type", itemType, "item_id", itemID, "error", err)
		}
	}
	return deleted, nil
}

// Reindex copies every stored record into the vector index and returns the
// number indexed.
func (f *Facade) Reindex(ctx context.Context) (int, error) {
	if f.index == nil {
		return 0, errs.InvalidArgument("no vector index configured")
	}

	rows, err := f.store.ListEmbeddings(ctx, &store.FindEmbedding{})
	if err != nil {
		return 0, errs.Backend(err, "failed to list embeddings")
	}

	indexed := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := f.indexRecord(ctx, row); err != nil {
			slog.Warn("failed to reindex embedding", "item_type", row.ItemType, "item_id", row.ItemID, "error", err)
			continue
		}
		indexed++
	}
	slog.Info("vector index rebuilt", "indexed", indexed, "total", len(rows))
	return indexed, nil
}

// IndexPending stores embeddings for items that do not have one yet and
// returns how many were stored.
func (f *Facade) IndexPending(ctx context.Context, itemType string, items []PendingItem) (int, error) {
	stored := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		existing, err := f.store.GetEmbedding(ctx, itemType, item.ID)
		if err != nil {
			return stored, errs.Backend(err, "failed to load embedding")
		}
		if existing != nil {
			continue
		}
		outcome := f.Upsert(ctx, itemType, item.ID, item.Text)
		if !outcome.OK() {
			slog.Warn("failed to index pending item", "item_type", itemType, "item_id", item.ID, "reason", outcome.Reason)
			continue
		}
		stored++
	}
	return stored, nil
}

// Close releases the vector index if it holds resources.
func (f *Facade) Close() error {
	if c, ok := f.index.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (f *Facade) recordWrite(status result.Status) {
	if f.recorder != nil {
		f.recorder.RecordStoreWrite(status.String())
	}
}

func (f *Facade) recordSearch(backend string, d time.Duration) {
	if f.recorder != nil {
		f.recorder.RecordSearch(backend, d)
	}
}

// cosineSimilarity returns 0 when either vector has zero norm or the
// lengths differ.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
