package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"memchat/internal/models"
	"memchat/pkg/config"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrLLMUnavailable = errors.New("inference server temporarily unavailable")
)

// StatusError is a non-success answer from the inference server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference server returned status %d: %s", e.Code, e.Body)
}

// ChatTransport opens a streamed chat completion. The returned body is an
// SSE stream; closing it releases the connection.
type ChatTransport interface {
	StreamChat(ctx context.Context, req *models.ChatCompletionRequest) (io.ReadCloser, error)
}

// LLMService talks to an LM Studio style server over its /api/v0 REST API.
// Every call goes through a circuit breaker so a dead server fails fast.
type LLMService struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewLLMService(cfg *config.LLMConfig, breakerCfg *config.BreakerConfig, logger *zap.Logger) *LLMService {
	settings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerCfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breakerCfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Rejected requests are the caller's fault, not the server's.
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &LLMService{
		// No client timeout: streams stay open for as long as the model
		// generates. Callers bound requests with their context.
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// do sends one request through the breaker and returns the response only
// for 2xx statuses. Other statuses become a *StatusError.
func (s *LLMService) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request to %s failed: %w", path, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			return nil, &StatusError{Code: resp.StatusCode, Body: extractError(bodyBytes)}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// extractError pulls {"error": "..."} out of an error body when present.
func extractError(body []byte) string {
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		switch v := payload.Error.(type) {
		case string:
			return v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// StreamChat requests a streamed completion and hands back the SSE body.
func (s *LLMService) StreamChat(ctx context.Context, req *models.ChatCompletionRequest) (io.ReadCloser, error) {
	streamed := *req
	streamed.Stream = true

	resp, err := s.do(ctx, http.MethodPost, "/api/v0/chat/completions", &streamed)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Chat stream opened",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
	)
	return resp.Body, nil
}

// Complete requests a non-streamed completion.
func (s *LLMService) Complete(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	plain := *req
	plain.Stream = false

	resp, err := s.do(ctx, http.MethodPost, "/api/v0/chat/completions", &plain)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var completion models.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response from LLM")
	}
	return &completion, nil
}

func (s *LLMService) ListModels(ctx context.Context) (*models.ModelsResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, "/api/v0/models", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list models.ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	return &list, nil
}

func (s *LLMService) GetModel(ctx context.Context, id string) (*models.Model, error) {
	resp, err := s.do(ctx, http.MethodGet, "/api/v0/models/"+url.PathEscape(id), nil)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, ErrModelNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	var model models.Model
	if err := json.NewDecoder(resp.Body).Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if model.ID == "" || model.Type == "" || model.State == "" {
		return nil, fmt.Errorf("invalid model data received for %s", id)
	}
	return &model, nil
}

func (s *LLMService) UnloadModel(ctx context.Context, identifier string) error {
	resp, err := s.do(ctx, http.MethodPost, "/api/v0/model/unload", map[string]string{"identifier": identifier})
	if err != nil {
		return err
	}
	resp.Body.Close()

	s.logger.Info("Model unloaded", zap.String("identifier", identifier))
	return nil
}
