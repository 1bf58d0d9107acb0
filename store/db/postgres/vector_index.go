package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/embedcore/ai/vector"
)

var _ vector.Index = (*DB)(nil)

type vectorRow struct {
	ID       string  `db:"id"`
	Metadata []byte  `db:"metadata"`
	Score    float64 `db:"score"`
}

// Upsert implements vector.Index.
func (d *DB) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]any) error {
	if len(vec) != d.dimensions {
		return errors.Errorf("invalid vector dimension: got %d, want %d", len(vec), d.dimensions)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}

	stmt := `
		INSERT INTO vector_index (id, embedding, metadata, updated_ts)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt, id, pgvector.NewVector(vec), string(metaJSON), time.Now().Unix()); err != nil {
		return errors.Wrap(err, "failed to upsert vector")
	}
	return nil
}

// QuerySimilar implements vector.Index using cosine distance.
func (d *DB) QuerySimilar(ctx context.Context, vec []float32, topK int, filter *vector.Filter) ([]vector.Result, error) {
	if topK <= 0 {
		return []vector.Result{}, nil
	}

	args := []any{pgvector.NewVector(vec)}
	where, filterArgs, err := buildFilter(filter, len(args)+1)
	if err != nil {
		return nil, err
	}
	args = append(args, filterArgs...)
	args = append(args, topK)

	query := `
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM vector_index
		WHERE ` + where + `
		ORDER BY embedding <=> $1, id
		LIMIT ` + placeholder(len(args))

	var rows []vectorRow
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to search vector index")
	}

	results := make([]vector.Result, 0, len(rows))
	for _, row := range rows {
		var meta map[string]any
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metadata of %s", row.ID)
		}
		results = append(results, vector.Result{
			ID:       row.ID,
			Score:    float32(row.Score),
			Metadata: meta,
		})
	}
	return results, nil
}

// Delete implements vector.Index.
func (d *DB) Delete(ctx context.Context, id string) (bool, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM vector_index WHERE id = $1`, id)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete vector")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return n > 0, nil
}

// HealthCheck implements vector.Index.
func (d *DB) HealthCheck(ctx context.Context) bool {
	var one int
	return d.db.GetContext(ctx, &one, `SELECT 1`) == nil
}

// buildFilter renders filter as JSONB containment predicates whose
// parameters start at $first.
func buildFilter(filter *vector.Filter, first int) (string, []any, error) {
	where, args := []string{"1 = 1"}, []any{}
	if filter == nil {
		return where[0], args, nil
	}

	if len(filter.Equals) > 0 {
		doc, err := json.Marshal(filter.Equals)
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to marshal filter")
		}
		where = append(where, "metadata @> "+placeholder(first+len(args))+"::jsonb")
		args = append(args, string(doc))
	}
	if len(filter.NotEquals) > 0 {
		doc, err := json.Marshal(filter.NotEquals)
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to marshal filter")
		}
		where = append(where, "NOT (metadata @> "+placeholder(first+len(args))+"::jsonb)")
		args = append(args, string(doc))
	}
	return strings.Join(where, " AND "), args, nil
}
