package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"memchat/internal/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validImport = `{
  "ops": {
    "doc_1": {
      "id": "doc_1",
      "title": "Runbook",
      "description": "How to restart",
      "metadata": {"version": "1.0", "timestamp": "2025-01-25T10:00:00.000Z", "domain": ["ops"], "tags": ["runbook"], "status": "current"},
      "context_blocks": [{
        "id": "block_1",
        "raw_content": "Restart the worker with systemctl",
        "structured_content": {"main_points": [], "entities": [], "concepts": []},
        "metadata": {"tags": [], "domain": ["ops"], "timestamp": "2025-01-25T10:00:00.000Z", "status": "current", "confidence": 1},
        "context": {"summary": "", "related_blocks": []}
      }],
      "summary": {"brief": "", "detailed": "", "key_insights": []},
      "relationships": {"prerequisites": [], "related_docs": []}
    }
  }
}`

func TestImportMergesAndSaves(t *testing.T) {
	repo := &memRepo{}
	svc := newTestMemory(repo)
	svc.Write("keep me", "notes", nil)

	domains, documents, err := svc.Import(context.Background(), []byte(validImport))
	require.NoError(t, err)
	assert.Equal(t, 1, domains)
	assert.Equal(t, 1, documents)

	snapshot := svc.Snapshot()
	assert.Equal(t, []string{"notes", "ops"}, snapshot.Domains())
	assert.NotNil(t, svc.Get("ops", "doc_1"))
	assert.Len(t, svc.Search("systemctl", "", nil), 1)
	assert.Equal(t, 1, repo.saveCount())
}

func TestImportRejectsInvalidPayload(t *testing.T) {
	repo := &memRepo{}
	svc := newTestMemory(repo)
	svc.Write("keep me", "notes", nil)

	_, _, err := svc.Import(context.Background(), []byte(`{"ops": {"doc_1": {"id": "doc_1"}}}`))

	require.ErrorIs(t, err, ErrInvalidImport)
	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))
	assert.NotEmpty(t, importErr.Findings)
	assert.Equal(t, "ops/doc_1.metadata", importErr.Findings[0].Path)

	assert.Equal(t, []string{"notes"}, svc.Snapshot().Domains())
	assert.Equal(t, 0, repo.saveCount())
}

func TestReplaceSwapsStore(t *testing.T) {
	repo := &memRepo{}
	svc := newTestMemory(repo)
	svc.Write("gone soon", "notes", nil)

	require.NoError(t, svc.Replace(context.Background(), []byte(validImport)))

	assert.Equal(t, []string{"ops"}, svc.Snapshot().Domains())
}

func TestPersistOnlyWhenDirty(t *testing.T) {
	repo := &memRepo{}
	svc := newTestMemory(repo)
	ctx := context.Background()

	require.NoError(t, svc.Persist(ctx))
	assert.Equal(t, 0, repo.saveCount())

	svc.Write("note", "misc", nil)
	require.NoError(t, svc.Persist(ctx))
	require.NoError(t, svc.Persist(ctx))
	assert.Equal(t, 1, repo.saveCount())
}

func TestDeleteSaves(t *testing.T) {
	repo := &memRepo{}
	svc := newTestMemory(repo)
	ctx := context.Background()
	doc := svc.Write("note", "misc", nil)

	deleted, err := svc.Delete(ctx, "misc", "missing")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = svc.Delete(ctx, "misc", doc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Nil(t, svc.Get("misc", doc.ID))

	deleted, err = svc.DeleteDomain(ctx, "misc")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 2, repo.saveCount())
}

func TestFailedSaveIsRetriedByPersist(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")

	tests := []struct {
		name   string
		mutate func(svc *MemoryService) error
	}{
		{name: "delete", mutate: func(svc *MemoryService) error {
			_, err := svc.Delete(ctx, "misc", svc.Snapshot().Documents("misc")[0].ID)
			return err
		}},
		{name: "delete domain", mutate: func(svc *MemoryService) error {
			_, err := svc.DeleteDomain(ctx, "misc")
			return err
		}},
		{name: "import", mutate: func(svc *MemoryService) error {
			_, _, err := svc.Import(ctx, []byte(validImport))
			return err
		}},
		{name: "replace", mutate: func(svc *MemoryService) error {
			return svc.Replace(ctx, []byte(validImport))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memRepo{}
			svc := newTestMemory(repo)
			svc.Write("note", "misc", nil)
			require.NoError(t, svc.Persist(ctx))

			repo.err = diskFull
			require.ErrorIs(t, tt.mutate(svc), diskFull)

			repo.err = nil
			require.NoError(t, svc.Persist(ctx))

			persisted, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, svc.Snapshot().Len(), persisted.Len())
			assert.Equal(t, svc.Snapshot().Domains(), persisted.Domains())
		})
	}
}

func TestReplaceKeepsClock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(memory.WithClock(func() time.Time { return fixed }))
	svc := NewMemoryService(store, &memRepo{}, nil, zap.NewNop())

	require.NoError(t, svc.Replace(context.Background(), []byte(validImport)))
	doc := svc.Write("after replace", "notes", nil)

	assert.Equal(t, fmt.Sprintf("doc_%d", fixed.UnixMilli()), doc.ID)
}

func TestLoadMemoryService(t *testing.T) {
	stored := memory.NewStore()
	stored.Write("from disk", "archive", nil)
	repo := &memRepo{store: stored}

	svc, err := LoadMemoryService(context.Background(), repo, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, svc.Search("disk", "", nil), 1)
}

func TestWriteDropsInvalidUTF8(t *testing.T) {
	svc := newTestMemory(&memRepo{})

	doc := svc.Write("caf\xc3 au lait", "drinks", nil)

	assert.Equal(t, "caf au lait", doc.ContextBlocks[0].RawContent)
}
