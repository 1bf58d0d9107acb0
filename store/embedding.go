package store

import (
	"context"

	"github.com/pkg/errors"
)

// Embedding is a stored vector keyed by (ItemType, ItemID).
type Embedding struct {
	// Text is nil when the row was written without source text.
	Text      *string
	ItemType  string
	ItemID    string
	UserID    string
	SessionID string
	Platform  string
	Vector    []float64
	ID        int64
	CreatedTs int64
	UpdatedTs int64
}

// FindEmbedding is the find condition for embeddings.
type FindEmbedding struct {
	ItemType *string
	ItemID   *string
	UserID   *string
	// HasText restricts the result to rows with source text.
	HasText bool
	Limit   int
}

// DeleteEmbedding identifies the embedding to delete.
type DeleteEmbedding struct {
	ItemType string
	ItemID   string
}

// Validate validates the Embedding before it is written.
func (e *Embedding) Validate() error {
	if e.ItemType == "" {
		return errors.New("item type cannot be empty")
	}
	if e.ItemID == "" {
		return errors.New("item id cannot be empty")
	}
	if len(e.Vector) == 0 {
		return errors.New("vector cannot be empty")
	}
	return nil
}

func (s *Store) UpsertEmbedding(ctx context.Context, embedding *Embedding) (*Embedding, error) {
	if err := embedding.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid embedding")
	}
	return s.driver.UpsertEmbedding(ctx, embedding)
}

func (s *Store) ListEmbeddings(ctx context.Context, find *FindEmbedding) ([]*Embedding, error) {
	return s.driver.ListEmbeddings(ctx, find)
}

// GetEmbedding returns the embedding for (itemType, itemID), or nil if none exists.
func (s *Store) GetEmbedding(ctx context.Context, itemType, itemID string) (*Embedding, error) {
	list, err := s.driver.ListEmbeddings(ctx, &FindEmbedding{ItemType: &itemType, ItemID: &itemID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteEmbedding(ctx context.Context, delete *DeleteEmbedding) (bool, error) {
	return s.driver.DeleteEmbedding(ctx, delete)
}
