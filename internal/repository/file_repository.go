package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"memchat/internal/memory"

	"go.uber.org/zap"
)

// FileRepository keeps the store as one pretty-printed JSON file, the same
// shape the export endpoint produces.
type FileRepository struct {
	path   string
	opts   []memory.Option
	logger *zap.Logger
}

func NewFileRepository(path string, logger *zap.Logger, opts ...memory.Option) *FileRepository {
	return &FileRepository{
		path:   path,
		opts:   opts,
		logger: logger,
	}
}

func (r *FileRepository) Load(ctx context.Context) (*memory.Store, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Info("Memory file not found, starting with an empty store", zap.String("path", r.path))
		return memory.NewStore(r.opts...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}

	store, err := memory.Decode(data, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse memory file %s: %w", r.path, err)
	}

	r.logger.Info("Memory store loaded",
		zap.String("path", r.path),
		zap.Int("domains", len(store.Domains())),
		zap.Int("documents", store.Len()),
	)
	return store, nil
}

// Save writes to a temporary file first and renames it over the old one.
func (r *FileRepository) Save(ctx context.Context, store *memory.Store) error {
	data, err := store.Export()
	if err != nil {
		return fmt.Errorf("failed to encode memory store: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace memory file: %w", err)
	}

	r.logger.Debug("Memory store saved", zap.String("path", r.path), zap.Int("documents", store.Len()))
	return nil
}
