package api

import (
	"memchat/docs"
	"memchat/internal/api/handlers"
	"memchat/pkg/auth"
	"memchat/pkg/config"
	"memchat/pkg/metrics"
	"memchat/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

// Handlers groups the route handlers. Auth and Model may be nil: auth is
// optional and model management only exists for the LM Studio transport.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Memory *handlers.MemoryHandler
	Chat   *handlers.ChatHandler
	Model  *handlers.ModelHandler
}

// SetupRouter builds the application. A nil jwtManager leaves /api open; a
// nil collector disables /metrics.
func SetupRouter(
	h Handlers,
	serverCfg *config.ServerConfig,
	jwtManager *auth.JWTManager,
	collector *metrics.Collector,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "memchat",
		ReadTimeout:  serverCfg.ReadTimeout,
		// Zero by default: chat replies stream for as long as the model runs.
		WriteTimeout: serverCfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: "X-Request-ID,Content-Disposition",
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestID} ${status} - ${latency} ${method} ${path}\n",
	}))

	if collector != nil {
		app.Use(middleware.Metrics(collector))
		app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))
	}

	// Importing docs registers the OpenAPI document through its init().
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	var guard []fiber.Handler
	if jwtManager != nil {
		if h.Auth != nil {
			app.Post("/auth/token", h.Auth.Token)
		}
		guard = append(guard, middleware.AuthMiddleware(jwtManager, appLogger))
	} else {
		appLogger.Warn("Authentication is disabled, the API is open")
	}
	api := app.Group("/api", guard...)

	// Memory routes
	memory := api.Group("/memory")
	memory.Get("", h.Memory.GetStore)
	memory.Post("", h.Memory.ReplaceStore)
	memory.Post("/import", h.Memory.ImportStore)
	memory.Get("/export", h.Memory.ExportStore)
	memory.Get("/search", h.Memory.Search)
	memory.Post("/documents", h.Memory.WriteDocument)
	memory.Delete("/:domain", h.Memory.DeleteDomain)
	memory.Delete("/:domain/:docId", h.Memory.DeleteDocument)

	// Chat routes
	sessions := api.Group("/v1/chat/sessions")
	sessions.Post("", h.Chat.CreateSession)
	sessions.Get("/:id", h.Chat.GetSession)
	sessions.Delete("/:id", h.Chat.DeleteSession)
	sessions.Post("/:id/messages", h.Chat.SendMessage)

	// Model management routes
	if h.Model != nil {
		v0 := api.Group("/v0")
		v0.Get("/models", h.Model.ListModels)
		v0.Get("/models/:id", h.Model.GetModel)
		v0.Post("/model/unload", h.Model.UnloadModel)
		v0.Post("/chat/completions", h.Model.ChatCompletions)
	}

	return app
}
