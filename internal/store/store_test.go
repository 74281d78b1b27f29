package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/botkit/internal/domain"
)

var (
	_ Repository = (*SQLiteStore)(nil)
	_ Repository = (*PostgresStore)(nil)
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "nlu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exerciseRepository runs the behaviour every Repository must share.
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	secret := domain.HashPassword("secret")
	created := time.Unix(1700000000, 0)

	open := &domain.Model{ModelID: "aaa.bbb.0.en", Language: "en", EngineVersion: "1.2.0", Data: []byte(`{"v":1}`), CreatedAt: created}
	locked := &domain.Model{ModelID: "ccc.bbb.0.fr", Language: "fr", Seed: 7, EngineVersion: "1.2.0", PasswordHash: secret, Data: []byte(`{"v":2}`), CreatedAt: created.Add(time.Minute)}

	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.SaveModel(ctx, open))
	require.NoError(t, repo.SaveModel(ctx, locked))

	got, err := repo.GetModel(ctx, open.ModelID, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, open.Data, got.Data)
	assert.True(t, got.CreatedAt.Equal(created))

	// Wrong password looks exactly like a missing model.
	got, err = repo.GetModel(ctx, locked.ModelID, domain.HashPassword("wrong"))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.GetModel(ctx, locked.ModelID, secret)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.Seed)

	// Saving again replaces the data.
	locked.Data = []byte(`{"v":3}`)
	require.NoError(t, repo.SaveModel(ctx, locked))
	got, err = repo.GetModel(ctx, locked.ModelID, secret)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":3}`), got.Data)

	list, err := repo.ListModels(ctx, secret)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, locked.ModelID, list[0].ModelID)
	assert.Nil(t, list[0].Data)

	deleted, err := repo.DeleteModel(ctx, locked.ModelID, "")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteModel(ctx, locked.ModelID, secret)
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err = repo.ListModels(ctx, secret)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteStore(t *testing.T) {
	exerciseRepository(t, newTestSQLite(t))
}

func TestSQLiteStore_ReopenKeepsModels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nlu.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveModel(context.Background(), &domain.Model{
		ModelID: "m", Language: "en", EngineVersion: "1", Data: []byte("x"), CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetModel(context.Background(), "m", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewPostgres(context.Background(), url)
	require.NoError(t, err)
	defer s.Close()

	// Start from a clean table so reruns are deterministic.
	_, err = s.pool.Exec(context.Background(), `TRUNCATE models`)
	require.NoError(t, err)

	exerciseRepository(t, s)
}
