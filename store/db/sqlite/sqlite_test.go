package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/embedcore/internal/profile"
	"github.com/hrygo/embedcore/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	prof := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")}
	driver, err := NewDB(prof)
	require.NoError(t, err)

	s := store.New(driver, prof)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestNewDBRequiresDSN(t *testing.T) {
	_, err := NewDB(&profile.Profile{})
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Vacuum(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestEmbeddingUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	vec := []float64{0.1, -0.2, 0.30000000000000004, 1e-12}
	created, err := s.UpsertEmbedding(ctx, &store.Embedding{
		ItemType:  "summary",
		ItemID:    "s1",
		Vector:    vec,
		Text:      strPtr("hello"),
		UserID:    "u1",
		SessionID: "sess",
		Platform:  "cli",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.NotZero(t, created.CreatedTs)

	got, err := s.GetEmbedding(ctx, "summary", "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, vec, got.Vector, "JSON storage must round-trip float64 exactly")
	require.NotNil(t, got.Text)
	assert.Equal(t, "hello", *got.Text)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "sess", got.SessionID)
	assert.Equal(t, "cli", got.Platform)

	t.Run("upsert replaces by item key", func(t *testing.T) {
		_, err := s.UpsertEmbedding(ctx, &store.Embedding{ItemType: "summary", ItemID: "s1", Vector: []float64{1, 2}, UserID: "u2"})
		require.NoError(t, err)

		list, err := s.ListEmbeddings(ctx, &store.FindEmbedding{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, []float64{1, 2}, list[0].Vector)
		assert.Equal(t, "u2", list[0].UserID)
		assert.Nil(t, list[0].Text)
		assert.Equal(t, created.ID, list[0].ID)
		assert.Equal(t, created.CreatedTs, list[0].CreatedTs)
	})

	t.Run("missing item", func(t *testing.T) {
		got, err := s.GetEmbedding(ctx, "summary", "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestListEmbeddingsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rows := []*store.Embedding{
		{ItemType: "memo", ItemID: "1", Vector: []float64{1}, Text: strPtr("a"), UserID: "u1"},
		{ItemType: "memo", ItemID: "2", Vector: []float64{2}, UserID: "u1"},
		{ItemType: "note", ItemID: "1", Vector: []float64{3}, Text: strPtr("c"), UserID: "u2"},
	}
	for _, r := range rows {
		_, err := s.UpsertEmbedding(ctx, r)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		find  *store.FindEmbedding
		count int
	}{
		{"all", &store.FindEmbedding{}, 3},
		{"by type", &store.FindEmbedding{ItemType: strPtr("memo")}, 2},
		{"by type and id", &store.FindEmbedding{ItemType: strPtr("note"), ItemID: strPtr("1")}, 1},
		{"by user", &store.FindEmbedding{UserID: strPtr("u1")}, 2},
		{"has text", &store.FindEmbedding{HasText: true}, 2},
		{"limit", &store.FindEmbedding{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListEmbeddings(ctx, tt.find)
			require.NoError(t, err)
			assert.Len(t, list, tt.count)
		})
	}

	list, err := s.ListEmbeddings(ctx, &store.FindEmbedding{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "1"}, []string{list[0].ItemID, list[1].ItemID, list[2].ItemID}, "insertion order")
}

func TestDeleteEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertEmbedding(ctx, &store.Embedding{ItemType: "memo", ItemID: "1", Vector: []float64{1}})
	require.NoError(t, err)

	deleted, err := s.DeleteEmbedding(ctx, &store.DeleteEmbedding{ItemType: "memo", ItemID: "1"})
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteEmbedding(ctx, &store.DeleteEmbedding{ItemType: "memo", ItemID: "1"})
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpsertEmbeddingValidation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertEmbedding(context.Background(), &store.Embedding{ItemType: "memo", Vector: []float64{1}})
	assert.Error(t, err)
}

func TestUserKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetUserKey(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	first, err := s.UpsertUserKey(ctx, &store.UserKey{UserID: "u1", EncryptedKey: "k1"})
	require.NoError(t, err)

	_, err = s.UpsertUserKey(ctx, &store.UserKey{UserID: "u1", EncryptedKey: "k2"})
	require.NoError(t, err)

	got, err = s.GetUserKey(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k2", got.EncryptedKey)
	assert.Equal(t, first.CreatedTs, got.CreatedTs)
	assert.GreaterOrEqual(t, got.UpdatedTs, got.CreatedTs)

	_, err = s.UpsertUserKey(ctx, &store.UserKey{EncryptedKey: "k"})
	assert.Error(t, err)
}

func TestMasterKeyIsSingleton(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetMasterKey(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	var wg sync.WaitGroup
	results := make([]*store.MasterKey, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mk, err := s.CreateMasterKey(ctx, &store.MasterKey{KeyData: string(rune('a' + i))})
			assert.NoError(t, err)
			results[i] = mk
		}(i)
	}
	wg.Wait()

	for _, mk := range results {
		require.NotNil(t, mk)
		assert.Equal(t, results[0].KeyData, mk.KeyData)
	}
}
