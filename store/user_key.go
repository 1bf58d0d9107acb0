package store

import (
	"context"

	"github.com/pkg/errors"
)

// UserKey is a per-user secret, encrypted under the master key.
type UserKey struct {
	UserID       string
	EncryptedKey string
	CreatedTs    int64
	UpdatedTs    int64
}

// MasterKey is the singleton key that wraps every user key.
type MasterKey struct {
	// KeyData is the base64 encoded key material.
	KeyData   string
	CreatedTs int64
}

func (s *Store) UpsertUserKey(ctx context.Context, key *UserKey) (*UserKey, error) {
	if key.UserID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	return s.driver.UpsertUserKey(ctx, key)
}

// GetUserKey returns the stored key for userID, or nil if none exists.
func (s *Store) GetUserKey(ctx context.Context, userID string) (*UserKey, error) {
	return s.driver.GetUserKey(ctx, userID)
}

// GetMasterKey returns the master key, or nil if it has not been created.
func (s *Store) GetMasterKey(ctx context.Context) (*MasterKey, error) {
	return s.driver.GetMasterKey(ctx)
}

// CreateMasterKey stores key unless a master key already exists, and returns
// the persisted master key either way.
func (s *Store) CreateMasterKey(ctx context.Context, key *MasterKey) (*MasterKey, error) {
	return s.driver.CreateMasterKey(ctx, key)
}
