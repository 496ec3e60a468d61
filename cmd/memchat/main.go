package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"memchat/internal/api"
	"memchat/internal/api/handlers"
	"memchat/internal/repository"
	"memchat/internal/service"
	"memchat/pkg/auth"
	"memchat/pkg/config"
	"memchat/pkg/logger"
	"memchat/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// @title memchat API
// @version 1.0
// @description Chat with a local model that keeps a searchable long-term memory

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting memchat service",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("storage", cfg.Storage.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("Service stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	appLogger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) error {
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	// Initialize storage
	repo, closeRepo, err := repository.Open(ctx, &cfg.Storage, &cfg.Database, appLogger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeRepo()

	memoryService, err := service.LoadMemoryService(ctx, repo, collector, appLogger)
	if err != nil {
		return err
	}

	// Initialize transport
	var (
		transport    service.ChatTransport
		modelHandler *handlers.ModelHandler
	)
	switch cfg.LLM.Provider {
	case "gigachat":
		gigaChat, err := service.NewGigaChatService(ctx, &cfg.GigaChat, appLogger)
		if err != nil {
			return fmt.Errorf("failed to initialize GigaChat: %w", err)
		}
		defer gigaChat.Close()
		transport = gigaChat
	default:
		llmService := service.NewLLMService(&cfg.LLM, &cfg.Breaker, appLogger)
		transport = llmService
		modelHandler = handlers.NewModelHandler(llmService, appLogger)
	}

	chatService := service.NewChatService(transport, memoryService, service.ChatOptions{
		MaxRecallDepth: cfg.Chat.MaxRecallDepth,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TurnTimeout:    cfg.LLM.RequestTimeout,
	}, collector, appLogger)
	sessions := service.NewSessionManager()

	// Initialize handlers
	h := api.Handlers{
		Memory: handlers.NewMemoryHandler(memoryService, appLogger),
		Chat:   handlers.NewChatHandler(chatService, sessions, cfg.LLM.Model, appLogger),
		Model:  modelHandler,
	}

	var jwtManager *auth.JWTManager
	if cfg.Auth.Enabled {
		jwtManager = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		authService := service.NewAuthService(cfg.Auth.PasswordHash, jwtManager, appLogger)
		h.Auth = handlers.NewAuthHandler(authService, appLogger)
	}

	// Setup router
	app := api.SetupRouter(h, &cfg.Server, jwtManager, collector, appLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server")
		if err := app.Shutdown(); err != nil {
			appLogger.Error("Server shutdown error", zap.Error(err))
		}
		// Writes from messages cut short by the shutdown.
		return memoryService.Persist(context.WithoutCancel(ctx))
	})

	return g.Wait()
}
