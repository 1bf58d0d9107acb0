package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Embedding model related methods.
	UpsertEmbedding(ctx context.Context, upsert *Embedding) (*Embedding, error)
	ListEmbeddings(ctx context.Context, find *FindEmbedding) ([]*Embedding, error)
	DeleteEmbedding(ctx context.Context, delete *DeleteEmbedding) (bool, error)

	// Key model related methods.
	UpsertUserKey(ctx context.Context, upsert *UserKey) (*UserKey, error)
	GetUserKey(ctx context.Context, userID string) (*UserKey, error)
	GetMasterKey(ctx context.Context) (*MasterKey, error)
	CreateMasterKey(ctx context.Context, create *MasterKey) (*MasterKey, error)
}
