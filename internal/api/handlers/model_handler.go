package handlers

import (
	"errors"

	"memchat/internal/dto"
	"memchat/internal/models"
	"memchat/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ModelHandler proxies model management and raw completions to the
// inference server.
type ModelHandler struct {
	llmService *service.LLMService
	logger     *zap.Logger
}

func NewModelHandler(llmService *service.LLMService, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{
		llmService: llmService,
		logger:     logger,
	}
}

// ListModels godoc
// @Summary List models
// @Tags models
// @Produce json
// @Security Bearer
// @Success 200 {object} models.ModelsResponse
// @Failure 502 {object} map[string]string
// @Router /api/v0/models [get]
func (h *ModelHandler) ListModels(c *fiber.Ctx) error {
	list, err := h.llmService.ListModels(c.UserContext())
	if err != nil {
		return h.upstreamFailed(c, "Failed to list models", err)
	}
	return c.JSON(list)
}

// GetModel godoc
// @Summary Get a model
// @Tags models
// @Produce json
// @Security Bearer
// @Param id path string true "Model ID"
// @Success 200 {object} models.Model
// @Failure 404 {object} map[string]string
// @Router /api/v0/models/{id} [get]
func (h *ModelHandler) GetModel(c *fiber.Ctx) error {
	model, err := h.llmService.GetModel(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Model not found",
			})
		}
		return h.upstreamFailed(c, "Failed to get model", err)
	}
	return c.JSON(model)
}

// UnloadModel godoc
// @Summary Unload a model
// @Tags models
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.UnloadModelRequest true "Model identifier"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Router /api/v0/model/unload [post]
func (h *ModelHandler) UnloadModel(c *fiber.Ctx) error {
	var req dto.UnloadModelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Model identifier is required",
		})
	}

	if err := h.llmService.UnloadModel(c.UserContext(), req.Identifier); err != nil {
		return h.upstreamFailed(c, "Failed to unload model", err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// ChatCompletions godoc
// @Summary Raw chat completion
// @Description Forwards an OpenAI-style completion request. With stream=true the SSE body is passed through unchanged.
// @Tags models
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body models.ChatCompletionRequest true "Completion request"
// @Success 200 {object} models.ChatCompletionResponse
// @Failure 400 {object} map[string]string
// @Router /api/v0/chat/completions [post]
func (h *ModelHandler) ChatCompletions(c *fiber.Ctx) error {
	var req models.ChatCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Model and messages are required",
		})
	}

	if !req.Stream {
		resp, err := h.llmService.Complete(c.UserContext(), &req)
		if err != nil {
			return h.upstreamFailed(c, "Chat completion failed", err)
		}
		return c.JSON(resp)
	}

	// UserContext is not cancelled when the handler returns, so the body
	// stays readable while fasthttp streams it.
	body, err := h.llmService.StreamChat(c.UserContext(), &req)
	if err != nil {
		return h.upstreamFailed(c, "Chat completion failed", err)
	}
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Context().SetBodyStream(body, -1)
	return nil
}

func (h *ModelHandler) upstreamFailed(c *fiber.Ctx, message string, err error) error {
	h.logger.Error(message, zap.Error(err))

	var statusErr *service.StatusError
	switch {
	case errors.As(err, &statusErr):
		return c.Status(statusErr.Code).JSON(fiber.Map{
			"error": statusErr.Body,
		})
	case errors.Is(err, service.ErrLLMUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Inference server unavailable",
		})
	default:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": message,
		})
	}
}
