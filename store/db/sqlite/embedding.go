package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/embedcore/store"
)

// UpsertEmbedding inserts or replaces the embedding for (item_type, item_id).
// Vectors are stored as JSON arrays; created_ts survives replacement.
func (d *DB) UpsertEmbedding(ctx context.Context, embedding *store.Embedding) (*store.Embedding, error) {
	vectorJSON, err := json.Marshal(embedding.Vector)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embedding vector")
	}

	var text any
	if embedding.Text != nil {
		text = *embedding.Text
	}

	now := time.Now().Unix()
	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = now
	}
	embedding.UpdatedTs = now

	stmt := `INSERT INTO embeddings (item_type, item_id, vector_json, text_content, user_id, session_id, platform, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_type, item_id) DO UPDATE SET
			vector_json = excluded.vector_json,
			text_content = excluded.text_content,
			user_id = excluded.user_id,
			session_id = excluded.session_id,
			platform = excluded.platform,
			updated_ts = excluded.updated_ts
		RETURNING id, created_ts, updated_ts`

	err = d.db.QueryRowContext(ctx, stmt,
		embedding.ItemType,
		embedding.ItemID,
		string(vectorJSON),
		text,
		nullString(embedding.UserID),
		nullString(embedding.SessionID),
		nullString(embedding.Platform),
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert embedding")
	}

	return embedding, nil
}

// ListEmbeddings lists embeddings in insertion order.
func (d *DB) ListEmbeddings(ctx context.Context, find *store.FindEmbedding) ([]*store.Embedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ItemType != nil {
		where, args = append(where, "item_type = ?"), append(args, *find.ItemType)
	}
	if find.ItemID != nil {
		where, args = append(where, "item_id = ?"), append(args, *find.ItemID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.HasText {
		where = append(where, "text_content IS NOT NULL")
	}

	query := `SELECT id, item_type, item_id, vector_json, text_content, user_id, session_id, platform, created_ts, updated_ts
		FROM embeddings
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list embeddings")
	}
	defer rows.Close()

	list := []*store.Embedding{}
	for rows.Next() {
		var embedding store.Embedding
		var vectorJSON string
		var text, userID, sessionID, platform sql.NullString

		err := rows.Scan(
			&embedding.ID,
			&embedding.ItemType,
			&embedding.ItemID,
			&vectorJSON,
			&text,
			&userID,
			&sessionID,
			&platform,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding")
		}

		if err := json.Unmarshal([]byte(vectorJSON), &embedding.Vector); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal vector of %s/%s", embedding.ItemType, embedding.ItemID)
		}
		if text.Valid {
			embedding.Text = &text.String
		}
		embedding.UserID = userID.String
		embedding.SessionID = sessionID.String
		embedding.Platform = platform.String

		list = append(list, &embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// DeleteEmbedding deletes an embedding and reports whether it existed.
func (d *DB) DeleteEmbedding(ctx context.Context, delete *store.DeleteEmbedding) (bool, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM embeddings WHERE item_type = ? AND item_id = ?`, delete.ItemType, delete.ItemID)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete embedding")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return n > 0, nil
}
