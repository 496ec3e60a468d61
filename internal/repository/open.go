package repository

import (
	"context"
	"fmt"

	"memchat/pkg/config"
	"memchat/pkg/postgres"
	"memchat/pkg/sqlite"

	"go.uber.org/zap"
)

// Open builds the repository selected by cfg.Backend. The returned close
// func releases whatever connection the backend holds.
func Open(ctx context.Context, cfg *config.StorageConfig, dbCfg *config.DatabaseConfig, logger *zap.Logger) (StoreRepository, func(), error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := NewPostgresRepository(pool, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := NewSQLiteRepository(db, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, func() { db.Close() }, nil

	case "file", "":
		logger.Info("Using file storage", zap.String("path", cfg.FilePath))
		return NewFileRepository(cfg.FilePath, logger), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
