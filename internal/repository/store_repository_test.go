package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"memchat/internal/memory"
	"memchat/internal/models"
	"memchat/pkg/config"
	"memchat/pkg/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleStore() *memory.Store {
	now := time.Date(2025, 1, 25, 10, 0, 0, 0, time.UTC)
	s := memory.NewStore(memory.WithClock(func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}))
	s.Write("Pro plan costs 20 USD", "pricing", &models.WriteMetadata{Tags: []string{"costs"}})
	s.Write("Deploys run on Fridays", "technical", nil)
	s.Write("Enterprise plan is custom", "pricing", nil)
	s.EnsureDomain("empty")
	return s
}

func assertSameStore(t *testing.T, want, got *memory.Store) {
	t.Helper()
	require.Equal(t, want.Domains(), got.Domains())
	for _, domain := range want.Domains() {
		wantDocs := want.Documents(domain)
		gotDocs := got.Documents(domain)
		require.Len(t, gotDocs, len(wantDocs), domain)
		for i := range wantDocs {
			assert.Equal(t, *wantDocs[i], *gotDocs[i])
		}
	}
}

func TestFileRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory-store.json")
	repo := NewFileRepository(path, zap.NewNop())

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	want := sampleStore()
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assertSameStore(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileRepositoryRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory-store.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	_, err := NewFileRepository(path, zap.NewNop()).Load(context.Background())
	assert.ErrorIs(t, err, memory.ErrNotObject)
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "memchat.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLiteRepository(db, zap.NewNop())
	require.NoError(t, repo.EnsureSchema(ctx))

	want := sampleStore()
	require.NoError(t, repo.Save(ctx, want))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assertSameStore(t, want, got)

	// A second save replaces everything.
	want.Delete("pricing", want.Documents("pricing")[0].ID)
	want.DeleteDomain("technical")
	require.NoError(t, repo.Save(ctx, want))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assertSameStore(t, want, got)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, closeRepo, err := Open(ctx, &config.StorageConfig{Backend: "file", FilePath: filepath.Join(dir, "store.json")}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &FileRepository{}, repo)
	closeRepo()

	repo, closeRepo, err = Open(ctx, &config.StorageConfig{Backend: "sqlite", SQLitePath: filepath.Join(dir, "memchat.db")}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRepository{}, repo)
	closeRepo()

	_, _, err = Open(ctx, &config.StorageConfig{Backend: "s3"}, nil, zap.NewNop())
	assert.Error(t, err)
}
