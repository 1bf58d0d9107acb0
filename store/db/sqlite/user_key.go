package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/embedcore/store"
)

// UpsertUserKey inserts or replaces a user key, keeping the original created_ts.
func (d *DB) UpsertUserKey(ctx context.Context, key *store.UserKey) (*store.UserKey, error) {
	now := time.Now().Unix()
	stmt := `INSERT INTO user_keys (user_id, encrypted_key, created_ts, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			encrypted_key = excluded.encrypted_key,
			updated_ts = excluded.updated_ts
		RETURNING created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, key.UserID, key.EncryptedKey, now, now).
		Scan(&key.CreatedTs, &key.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user key")
	}
	return key, nil
}

func (d *DB) GetUserKey(ctx context.Context, userID string) (*store.UserKey, error) {
	key := store.UserKey{UserID: userID}
	err := d.db.QueryRowContext(ctx,
		`SELECT encrypted_key, created_ts, updated_ts FROM user_keys WHERE user_id = ?`, userID,
	).Scan(&key.EncryptedKey, &key.CreatedTs, &key.UpdatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user key")
	}
	return &key, nil
}

func (d *DB) GetMasterKey(ctx context.Context) (*store.MasterKey, error) {
	var key store.MasterKey
	err := d.db.QueryRowContext(ctx, `SELECT key_data, created_ts FROM master_key WHERE id = 1`).
		Scan(&key.KeyData, &key.CreatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get master key")
	}
	return &key, nil
}

// CreateMasterKey inserts the master key if none exists and returns the stored one.
func (d *DB) CreateMasterKey(ctx context.Context, create *store.MasterKey) (*store.MasterKey, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO master_key (id, key_data, created_ts) VALUES (1, ?, ?) ON CONFLICT (id) DO NOTHING`,
		create.KeyData, create.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create master key")
	}
	return d.GetMasterKey(ctx)
}
