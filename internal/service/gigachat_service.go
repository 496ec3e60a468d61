package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"memchat/internal/models"
	"memchat/internal/stream"
	"memchat/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

const defaultGigaChatModel = "GigaChat"

// GigaChatService is the alternative chat transport. GigaChat answers in one
// piece, so the reply is re-framed as a short SSE stream that the chat
// orchestrator reads exactly like an LM Studio stream.
type GigaChatService struct {
	client *gigago.Client
	logger *zap.Logger
}

func NewGigaChatService(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChatService, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	return &GigaChatService{
		client: client,
		logger: logger,
	}, nil
}

func (s *GigaChatService) StreamChat(ctx context.Context, req *models.ChatCompletionRequest) (io.ReadCloser, error) {
	name := req.Model
	if name == "" {
		name = defaultGigaChatModel
	}
	model := s.client.GenerativeModel(name)

	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: flattenTranscript(req.Messages)},
	}

	resp, err := model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from LLM")
	}

	content := resp.Choices[0].Message.Content
	s.logger.Debug("GigaChat response received", zap.String("model", name), zap.Int("length", len(content)))

	return io.NopCloser(strings.NewReader(sseFrame(content))), nil
}

func (s *GigaChatService) Close() {
	s.client.Close()
}

// flattenTranscript renders the whole conversation as a single prompt, one
// role-tagged block per turn.
func flattenTranscript(messages []models.ChatMessage) string {
	if len(messages) == 1 {
		return messages[0].Content
	}

	var builder strings.Builder
	for i, msg := range messages {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString("[" + string(msg.Role) + "]\n")
		builder.WriteString(msg.Content)
	}
	return builder.String()
}

// sseFrame renders content as one delta event, a final event and the
// end-of-stream sentinel.
func sseFrame(content string) string {
	type delta struct {
		Content string `json:"content,omitempty"`
	}
	type choice struct {
		Delta        delta   `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	}
	type event struct {
		Choices []choice `json:"choices"`
	}

	stop := "stop"
	body, _ := json.Marshal(event{Choices: []choice{{Delta: delta{Content: content}}}})
	final, _ := json.Marshal(event{Choices: []choice{{FinishReason: &stop}}})

	var builder strings.Builder
	builder.WriteString(stream.DataPrefix + string(body) + "\n\n")
	builder.WriteString(stream.DataPrefix + string(final) + "\n\n")
	builder.WriteString(stream.DataPrefix + stream.DoneMarker + "\n\n")
	return builder.String()
}
