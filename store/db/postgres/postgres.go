// Package postgres provides a pgvector-backed similarity index.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
)

type DB struct {
	db         *sqlx.DB
	dimensions int
}

func migrations(dimensions int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_index (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_ts BIGINT NOT NULL
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_vector_index_embedding ON vector_index USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_index_metadata ON vector_index USING gin (metadata jsonb_path_ops)`,
	}
}

// NewDB connects to dsn and applies the vector_index schema.
func NewDB(ctx context.Context, dsn string, dimensions int) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}
	if dimensions <= 0 {
		return nil, errors.Errorf("invalid dimensions: %d", dimensions)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	for _, migration := range migrations(dimensions) {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to apply vector index schema")
		}
	}

	return &DB{db: db, dimensions: dimensions}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns the n-th positional parameter.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}
