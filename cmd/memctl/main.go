// Command memctl is the operator CLI for the memchat knowledge store.
package main

import (
	"context"
	"fmt"
	"os"

	"memchat/internal/repository"
	"memchat/internal/service"
	"memchat/pkg/config"
	"memchat/pkg/logger"

	"github.com/spf13/cobra"
)

// memoryOpener loads the configured store. The returned func persists
// nothing; it only releases the backend.
type memoryOpener func(ctx context.Context) (*service.MemoryService, func(), error)

func main() {
	if err := newRootCmd(openConfiguredMemory).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open memoryOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "memctl",
		Short:         "Inspect and maintain the memchat knowledge store",
		SilenceUsage: true,
	}

	root.AddCommand(
		newValidateCmd(),
		newImportCmd(open),
		newExportCmd(open),
		newSearchCmd(open),
		newWriteCmd(open),
		newHashPasswordCmd(),
	)
	return root
}

func openConfiguredMemory(ctx context.Context) (*service.MemoryService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewConsole(cfg.Logger.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	repo, closeRepo, err := repository.Open(ctx, &cfg.Storage, &cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}

	memory, err := service.LoadMemoryService(ctx, repo, nil, log)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	return memory, func() {
		closeRepo()
		_ = log.Sync()
	}, nil
}

// withMemory opens the store for the duration of fn.
func withMemory(cmd *cobra.Command, open memoryOpener, fn func(*service.MemoryService) error) error {
	memory, closeMemory, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeMemory()
	return fn(memory)
}
