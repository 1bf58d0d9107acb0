package keyvault

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/embedcore/internal/errs"
	"github.com/hrygo/embedcore/store"
)

// memStore is an in-memory KeyStore.
type memStore struct {
	mu      sync.Mutex
	keys    map[string]*store.UserKey
	master  *store.MasterKey
	creates int
	fail    error
}

func newMemStore() *memStore {
	return &memStore{keys: map[string]*store.UserKey{}}
}

func (m *memStore) UpsertUserKey(_ context.Context, key *store.UserKey) (*store.UserKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	cp := *key
	m.keys[key.UserID] = &cp
	return key, nil
}

func (m *memStore) GetUserKey(_ context.Context, userID string) (*store.UserKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	k, ok := m.keys[userID]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (m *memStore) GetMasterKey(context.Context) (*store.MasterKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master, nil
}

func (m *memStore) CreateMasterKey(_ context.Context, key *store.MasterKey) (*store.MasterKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master == nil {
		m.master = key
		m.creates++
	}
	return m.master, nil
}

func (m *memStore) corrupt(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[userID].EncryptedKey = base64.StdEncoding.EncodeToString([]byte("definitely not a sealed key"))
}

func TestVault_KeyIsolation(t *testing.T) {
	ctx := context.Background()
	v := New(newMemStore(), Config{})
	defer v.Close()

	k1, err := v.GenerateKey(ctx, "u1")
	require.NoError(t, err)
	k2, err := v.GenerateKey(ctx, "u2")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	got1, ok, err := v.GetKey(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, k1, got1)

	got2, ok, err := v.GetKey(ctx, "u2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, k2, got2)

	raw, err := base64.URLEncoding.DecodeString(k1)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestVault_GetKeyAbsent(t *testing.T) {
	v := New(newMemStore(), Config{})
	defer v.Close()

	key, ok, err := v.GetKey(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, key)
}

func TestVault_EmptyUserID(t *testing.T) {
	ctx := context.Background()
	v := New(newMemStore(), Config{})
	defer v.Close()

	_, err := v.GenerateKey(ctx, "")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, _, err = v.GetKey(ctx, "")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = v.RotateKey(ctx, "")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestVault_DecryptFailureReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	v := New(s, Config{})
	defer v.Close()

	_, err := v.GenerateKey(ctx, "u1")
	require.NoError(t, err)
	s.corrupt("u1")

	key, ok, err := v.GetKey(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, key)
}

func TestVault_RotateKeyReplacesKey(t *testing.T) {
	ctx := context.Background()
	v := New(newMemStore(), Config{})
	defer v.Close()

	old, err := v.GenerateKey(ctx, "u1")
	require.NoError(t, err)
	rotated, err := v.RotateKey(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, old, rotated)

	got, ok, err := v.GetKey(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rotated, got)
}

func TestVault_MasterKeySharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	v1 := New(s, Config{})
	defer v1.Close()
	key, err := v1.GenerateKey(ctx, "u1")
	require.NoError(t, err)

	v2 := New(s, Config{})
	defer v2.Close()
	got, ok, err := v2.GetKey(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key, got)
	assert.Equal(t, 1, s.creates)
}

func TestVault_MasterKeyCreatedOnce(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	v := New(s, Config{})
	defer v.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := v.GenerateKey(ctx, string(rune('a'+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, s.creates)
	assert.Len(t, s.keys, 16)
}

func TestVault_KeyCache(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	v := New(s, Config{CacheTTL: time.Minute})
	defer v.Close()

	key, err := v.GenerateKey(ctx, "u1")
	require.NoError(t, err)

	record, err := s.GetUserKey(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, v.keys.Get(record.EncryptedKey))

	got, ok, err := v.GetKey(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key, got)

	// A changed record is never answered from the cache.
	s.corrupt("u1")
	_, ok, err = v.GetKey(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVault_RotationSeenByOtherInstance(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	server := New(s, Config{CacheTTL: 5 * time.Minute})
	defer server.Close()
	cli := New(s, Config{CacheTTL: 5 * time.Minute})
	defer cli.Close()

	old, err := server.GenerateKey(ctx, "u1")
	require.NoError(t, err)
	got, ok, err := server.GetKey(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, old, got)

	rotated, err := cli.RotateKey(ctx, "u1")
	require.NoError(t, err)
	require.NotEqual(t, old, rotated)

	got, ok, err = server.GetKey(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rotated, got)
}

func TestVault_BackendFailure(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	s.fail = errors.New("disk full")
	v := New(s, Config{})
	defer v.Close()

	_, err := v.GenerateKey(ctx, "u1")
	assert.ErrorIs(t, err, errs.ErrBackendFailure)

	_, _, err = v.GetKey(ctx, "u1")
	assert.ErrorIs(t, err, errs.ErrBackendFailure)
}

func TestVault_SecurityEvents(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	var mu sync.Mutex
	var events []string
	v := New(s, Config{OnSecurityEvent: func(event, userID string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event+":"+userID)
	}})
	defer v.Close()

	_, err := v.GenerateKey(ctx, "u1")
	require.NoError(t, err)
	_, err = v.RotateKey(ctx, "u1")
	require.NoError(t, err)
	s.corrupt("u1")
	_, ok, err := v.GetKey(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"key_rotated:u1", "key_decrypt_failed:u1"}, events)
}
