// Package keyvault manages per-user secrets encrypted under a persisted master key.
package keyvault

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"

	"github.com/hrygo/embedcore/internal/errs"
	"github.com/hrygo/embedcore/store"
)

// KeyStore persists encrypted user keys and the master key.
type KeyStore interface {
	UpsertUserKey(ctx context.Context, key *store.UserKey) (*store.UserKey, error)
	GetUserKey(ctx context.Context, userID string) (*store.UserKey, error)
	GetMasterKey(ctx context.Context) (*store.MasterKey, error)
	CreateMasterKey(ctx context.Context, key *store.MasterKey) (*store.MasterKey, error)
}

// Config configures a Vault.
type Config struct {
	// OnSecurityEvent, if set, is called after a key rotation and when a
	// stored key fails to decrypt.
	OnSecurityEvent func(event, userID string)
	// CacheTTL bounds how long decrypted keys stay in memory. 0 disables the cache.
	// The cache is keyed by ciphertext, so the stored record is still read on
	// every lookup and a rotation by another process is seen immediately.
	CacheTTL time.Duration
}

// Security events passed to Config.OnSecurityEvent.
const (
	EventKeyRotated       = "key_rotated"
	EventKeyDecryptFailed = "key_decrypt_failed"
)

// Vault issues and returns per-user keys. The master key is loaded or created
// on first use and never rotated.
type Vault struct {
	store   KeyStore
	notify  func(event, userID string)
	keys    *ttlcache.Cache[string, string] // ciphertext -> plaintext
	wrapKey []byte
	mu      sync.Mutex
	stop    sync.Once
}

// New creates a vault backed by s.
func New(s KeyStore, cfg Config) *Vault {
	v := &Vault{store: s, notify: cfg.OnSecurityEvent}
	if cfg.CacheTTL > 0 {
		v.keys = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		)
		go v.keys.Start()
	}
	return v
}

// Close stops the key cache expiration loop. It is safe to call more than once.
func (v *Vault) Close() {
	if v.keys == nil {
		return
	}
	v.stop.Do(v.keys.Stop)
}

// GenerateKey creates a fresh key for userID, replacing any existing one.
func (v *Vault) GenerateKey(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errs.InvalidArgument("user id is required")
	}

	wrapKey, err := v.wrappingKey(ctx)
	if err != nil {
		return "", err
	}

	raw, err := randomKey()
	if err != nil {
		return "", err
	}
	key := base64.URLEncoding.EncodeToString(raw)

	encrypted, err := encrypt([]byte(key), wrapKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to encrypt user key")
	}
	if _, err := v.store.UpsertUserKey(ctx, &store.UserKey{UserID: userID, EncryptedKey: encrypted}); err != nil {
		return "", errs.Backend(err, "failed to store user key")
	}

	if v.keys != nil {
		v.keys.Set(encrypted, key, ttlcache.DefaultTTL)
	}
	slog.Info("user key generated", "user_id", userID)
	return key, nil
}

// GetKey returns the key for userID. A missing or undecryptable key is
// reported as absent; GetKey never creates one.
func (v *Vault) GetKey(ctx context.Context, userID string) (string, bool, error) {
	if userID == "" {
		return "", false, errs.InvalidArgument("user id is required")
	}

	record, err := v.store.GetUserKey(ctx, userID)
	if err != nil {
		return "", false, errs.Backend(err, "failed to load user key")
	}
	if record == nil {
		return "", false, nil
	}

	if v.keys != nil {
		if item := v.keys.Get(record.EncryptedKey); item != nil {
			return item.Value(), true, nil
		}
	}

	wrapKey, err := v.wrappingKey(ctx)
	if err != nil {
		return "", false, err
	}

	plaintext, err := decrypt(record.EncryptedKey, wrapKey)
	if err != nil {
		slog.Warn("failed to decrypt user key",
			"user_id", userID,
			"security_event", EventKeyDecryptFailed,
			"error", err,
		)
		v.securityEvent(EventKeyDecryptFailed, userID)
		return "", false, nil
	}

	key := string(plaintext)
	if v.keys != nil {
		v.keys.Set(record.EncryptedKey, key, ttlcache.DefaultTTL)
	}
	return key, true, nil
}

// RotateKey replaces the key for userID. Stored vectors are not re-encrypted,
// so records written under the old key no longer de-obfuscate correctly.
func (v *Vault) RotateKey(ctx context.Context, userID string) (string, error) {
	key, err := v.GenerateKey(ctx, userID)
	if err != nil {
		return "", err
	}
	slog.Info("user key rotated", "user_id", userID, "security_event", EventKeyRotated)
	v.securityEvent(EventKeyRotated, userID)
	return key, nil
}

func (v *Vault) securityEvent(event, userID string) {
	if v.notify != nil {
		v.notify(event, userID)
	}
}

// wrappingKey loads the master key, creating it on first use, and derives
// the key that wraps user keys.
func (v *Vault) wrappingKey(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.wrapKey != nil {
		return v.wrapKey, nil
	}

	master, err := v.store.GetMasterKey(ctx)
	if err != nil {
		return nil, errs.Backend(err, "failed to load master key")
	}
	if master == nil {
		raw, err := randomKey()
		if err != nil {
			return nil, err
		}
		master, err = v.store.CreateMasterKey(ctx, &store.MasterKey{KeyData: base64.StdEncoding.EncodeToString(raw)})
		if err != nil {
			return nil, errs.Backend(err, "failed to create master key")
		}
		slog.Info("master key created")
	}

	raw, err := base64.StdEncoding.DecodeString(master.KeyData)
	if err != nil {
		return nil, errors.Wrap(err, "master key is not valid base64")
	}
	wrapKey, err := deriveWrapKey(raw)
	if err != nil {
		return nil, err
	}
	v.wrapKey = wrapKey
	return wrapKey, nil
}
