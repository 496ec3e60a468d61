package dto

import (
	"time"

	"memchat/internal/models"
)

type CreateSessionRequest struct {
	Model string `json:"model"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type SessionResponse struct {
	ID        string                  `json:"id"`
	Model     string                  `json:"model"`
	CreatedAt time.Time               `json:"created_at"`
	Messages  []models.DisplayMessage `json:"messages"`
}
