package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"memchat/internal/dto"
	"memchat/internal/models"
	"memchat/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chatService  *service.ChatService
	sessions     *service.SessionManager
	defaultModel string
	logger       *zap.Logger
}

func NewChatHandler(chatService *service.ChatService, sessions *service.SessionManager, defaultModel string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:  chatService,
		sessions:     sessions,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// CreateSession godoc
// @Summary Start a chat session
// @Tags chat
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.CreateSessionRequest false "Model to chat with"
// @Success 201 {object} dto.SessionResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/chat/sessions [post]
func (h *ChatHandler) CreateSession(c *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}
	if req.Model == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Model is required",
		})
	}

	session := h.sessions.Create(req.Model)
	h.logger.Info("Chat session created", zap.String("session_id", session.ID), zap.String("model", session.Model))
	return c.Status(fiber.StatusCreated).JSON(sessionResponse(session))
}

// GetSession godoc
// @Summary Get a chat session with its transcript
// @Tags chat
// @Produce json
// @Security Bearer
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/chat/sessions/{id} [get]
func (h *ChatHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return sessionNotFound(c)
	}
	return c.JSON(sessionResponse(session))
}

// DeleteSession godoc
// @Summary End a chat session
// @Tags chat
// @Security Bearer
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/chat/sessions/{id} [delete]
func (h *ChatHandler) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Delete(c.Params("id")); err != nil {
		return sessionNotFound(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SendMessage godoc
// @Summary Send a message
// @Description Streams the reply as server-sent events: thinking, partial, message and finally done.
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Security Bearer
// @Param id path string true "Session ID"
// @Param request body dto.SendMessageRequest true "Message"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/chat/sessions/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required",
		})
	}

	session, release, err := h.sessions.Acquire(c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionBusy) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Session is busy with another message",
			})
		}
		return sessionNotFound(c)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	content := req.Content
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer release()

		// fasthttp has no per-request context; a failed flush means the
		// client went away.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		err := h.chatService.Send(ctx, session, content, func(event models.ChatEvent) {
			if err := writeEvent(w, event); err != nil {
				cancel()
			}
		})
		if err != nil {
			h.logger.Info("Chat message aborted", zap.String("session_id", session.ID), zap.Error(err))
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, event models.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

func sessionResponse(session *service.Session) dto.SessionResponse {
	messages := session.Transcript()
	if messages == nil {
		messages = []models.DisplayMessage{}
	}
	return dto.SessionResponse{
		ID:        session.ID,
		Model:     session.Model,
		CreatedAt: session.CreatedAt,
		Messages:  messages,
	}
}

func sessionNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Session not found",
	})
}
