package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"memchat/internal/models"
	"memchat/internal/stream"
	"memchat/pkg/metrics"

	"go.uber.org/zap"
)

const (
	transportErrorText   = "An error occurred while processing your request."
	cancelledText        = "Request cancelled."
	processingThought    = "Processing function call"
	functionCallPreamble = "I will now execute a function call:\n"
)

// EventSink receives the events of one Send. It is called from the goroutine
// running Send.
type EventSink func(models.ChatEvent)

type ChatOptions struct {
	MaxRecallDepth int
	Temperature    float64
	MaxTokens      int
	// TurnTimeout bounds one model response. Zero means no limit.
	TurnTimeout    time.Duration
}

// ChatService drives a conversation: it streams a model turn, shows the
// thinking and the partial answer as they arrive, then acts on a memory
// directive if the turn ended with one. A recall feeds its results back to
// the model as a new turn.
type ChatService struct {
	transport ChatTransport
	memory    *MemoryService
	opts      ChatOptions
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewChatService(transport ChatTransport, memory *MemoryService, opts ChatOptions, collector *metrics.Collector, logger *zap.Logger) *ChatService {
	return &ChatService{
		transport: transport,
		memory:    memory,
		opts:      opts,
		metrics:   collector,
		logger:    logger,
	}
}

// turn is one request to the model. Synthetic turns carry recall results
// and are not shown as user messages.
type turn struct {
	content   string
	synthetic bool
	depth     int
}

// Send processes one user message to completion, including every follow-up
// turn caused by memory recalls. Follow-ups run from a queue rather than by
// recursion, bounded by MaxRecallDepth.
//
// Failures are reported in the transcript. The only error returned is the
// context's, when the caller cancels.
func (s *ChatService) Send(ctx context.Context, session *Session, text string, sink EventSink) error {
	if sink == nil {
		sink = func(models.ChatEvent) {}
	}
	defer sink(models.ChatEvent{Type: models.EventDone})
	defer s.persist(ctx)

	queue := []turn{{content: text}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if err := ctx.Err(); err != nil {
			s.emit(session, sink, systemMessage(cancelledText))
			return err
		}

		next, err := s.runTurn(ctx, session, current, sink)
		if err != nil {
			s.emit(session, sink, systemMessage(cancelledText))
			return err
		}
		if next != nil {
			queue = append(queue, *next)
		}
	}
	return nil
}

// persist saves memory writes once the whole message is done.
func (s *ChatService) persist(ctx context.Context) {
	if err := s.memory.Persist(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("Failed to persist memory store", zap.Error(err))
	}
}

// runTurn streams one model response and classifies it. It returns the
// follow-up turn to run next, if any. An error means ctx was cancelled.
func (s *ChatService) runTurn(ctx context.Context, session *Session, t turn, sink EventSink) (*turn, error) {
	kind := "user"
	if t.synthetic {
		kind = "recall"
	}
	s.metrics.RecordTurn(kind)

	req := s.buildRequest(session, t)
	if !t.synthetic {
		s.emit(session, sink, models.DisplayMessage{
			Type:    models.MessageRegular,
			Role:    models.RoleUser,
			Content: t.content,
		})
	}

	turnCtx := ctx
	if s.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.opts.TurnTimeout)
		defer cancel()
	}

	body, err := s.transport.StreamChat(turnCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.transportFailed(session, sink, err)
		return nil, nil
	}

	buffer, err := s.readStream(turnCtx, session, body, sink)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.transportFailed(session, sink, err)
		return nil, nil
	}

	return s.classify(session, buffer, t, sink), nil
}

func (s *ChatService) transportFailed(session *Session, sink EventSink, err error) {
	s.logger.Error("Chat completion failed", zap.String("session_id", session.ID), zap.Error(err))
	s.metrics.RecordTransportError()
	s.emit(session, sink, systemMessage(transportErrorText))
}

// readStream accumulates the response and publishes live thinking and
// partial-answer updates. Every update re-classifies the whole buffer.
func (s *ChatService) readStream(ctx context.Context, session *Session, body io.ReadCloser, sink EventSink) (string, error) {
	defer body.Close()

	reader := stream.NewReader(body)
	var buffer strings.Builder
	thinkIndex := -1

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		delta, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read stream: %w", err)
		}

		buffer.WriteString(delta.Content)
		segment := stream.Classify(buffer.String())

		switch segment.Kind {
		case stream.KindThinkingOpen:
			sink(models.ChatEvent{Type: models.EventPartial})
			thinkIndex = recordThought(session, thinkIndex, segment.Text)
			sink(models.ChatEvent{Type: models.EventThinking, Text: segment.Text})
		case stream.KindThinkingClosed:
			if thought := stream.Thought(buffer.String()); thought != "" {
				thinkIndex = recordThought(session, thinkIndex, thought)
			}
			if segment.Text != "" {
				sink(models.ChatEvent{Type: models.EventPartial, Text: segment.Text})
			}
		default:
			sink(models.ChatEvent{Type: models.EventPartial, Text: segment.Text})
		}

		if delta.Final {
			break
		}
	}

	s.metrics.RecordMalformedLines(reader.Skipped())
	sink(models.ChatEvent{Type: models.EventPartial})
	if thinkIndex >= 0 {
		msg := session.message(thinkIndex)
		sink(models.ChatEvent{Type: models.EventMessage, Message: &msg})
	}
	return buffer.String(), nil
}

// recordThought creates the turn's think message on first use and updates
// it afterwards.
func recordThought(session *Session, index int, text string) int {
	if index < 0 {
		return session.appendMessage(models.DisplayMessage{
			Type:    models.MessageThink,
			Role:    models.RoleAssistant,
			Content: text,
		})
	}
	session.updateContent(index, text)
	return index
}

// classify decides what the finished turn was: a plain answer, a write or
// a recall. Anything unusable is shown to the user as it is.
func (s *ChatService) classify(session *Session, buffer string, t turn, sink EventSink) (next *turn) {
	final := strings.TrimSpace(buffer)

	candidate := final
	thought := false
	if stream.Classify(final).Kind == stream.KindThinkingClosed {
		candidate = stream.Answer(final)
		thought = true
	}
	if candidate == "" {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Directive handling panicked", zap.Any("panic", r))
			s.emitAnswer(session, sink, candidate)
			next = nil
		}
	}()

	call, err := stream.Extract(candidate)
	if err != nil {
		s.logger.Debug("Ignoring malformed directive", zap.String("session_id", session.ID), zap.Error(err))
		s.metrics.RecordDirective("unknown", "rejected")
		s.emitAnswer(session, sink, candidate)
		return nil
	}
	if call == nil {
		s.emitAnswer(session, sink, candidate)
		return nil
	}

	if !thought {
		// The model skipped the think convention and sent a bare directive.
		s.emit(session, sink, models.DisplayMessage{
			Type:    models.MessageThink,
			Role:    models.RoleAssistant,
			Content: processingThought,
		})
	}
	s.emit(session, sink, models.DisplayMessage{
		Type:    models.MessageFunctionCall,
		Role:    models.RoleAssistant,
		Content: functionCallPreamble + call.Pretty(),
	})

	switch call.Op {
	case stream.OpWriteMemory:
		s.writeMemory(session, sink, call.Write)
		return nil
	default:
		return s.recallMemory(session, sink, call.Recall, t.depth)
	}
}

func (s *ChatService) writeMemory(session *Session, sink EventSink, params *stream.WriteMemory) {
	doc := s.memory.Write(params.Content, params.Domain, params.Metadata)
	s.metrics.RecordDirective(string(stream.OpWriteMemory), "ok")

	block := doc.ContextBlocks[0].Metadata
	s.emit(session, sink, models.DisplayMessage{
		Type:         models.MessageFunction,
		Role:         models.RoleAssistant,
		FunctionName: string(stream.OpWriteMemory),
		Parameters: map[string]any{
			"content": params.Content,
			"domain":  params.Domain,
			"metadata": map[string]any{
				"tags":       block.Tags,
				"status":     block.Status,
				"confidence": block.Confidence,
			},
		},
		Result: map[string]any{
			"success":    true,
			"domain":     params.Domain,
			"documentId": doc.ID,
		},
		Content: "Memory written to domain: " + params.Domain,
	})
}

func (s *ChatService) recallMemory(session *Session, sink EventSink, params *stream.RecallMemory, depth int) *turn {
	results := s.memory.Search(params.Query, params.Domain, params.Filter)

	var display, followUp string
	if len(results) == 0 {
		// With nothing found the model gets the whole store to work from.
		all := s.exportStore()
		display = fmt.Sprintf("[MEMORY_RECALL_RESULT] No results found for %q. Here are all available memories to help enhance your response or create new synthetic memories:\n%s\n\nConsider using write_memory to store any new insights or connections you find in these memories.", params.Query, all)
		followUp = fmt.Sprintf("No results found for %q. Here are all available memories:\n%s", params.Query, all)
	} else {
		found := indentJSON(results)
		display = fmt.Sprintf("[MEMORY_RECALL_RESULT] Found %d results for %q:\n%s\n\nConsider using write_memory to store any new insights or connections you find in these results.", len(results), params.Query, found)
		followUp = fmt.Sprintf("Memory search results for %q:\n%s", params.Query, found)
	}

	s.emit(session, sink, models.DisplayMessage{
		Type:      models.MessageFunctionResult,
		Role:      models.RoleAssistant,
		Content:   display,
		Collapsed: true,
	})

	if depth >= s.opts.MaxRecallDepth {
		s.logger.Warn("Recall limit reached",
			zap.String("session_id", session.ID),
			zap.Int("limit", s.opts.MaxRecallDepth),
		)
		s.metrics.RecordRecallLimit()
		s.metrics.RecordDirective(string(stream.OpRecallMemory), "limited")
		s.emit(session, sink, systemMessage(fmt.Sprintf(
			"Recall limit reached (%d). Stopping memory lookups for this message.", s.opts.MaxRecallDepth)))
		return nil
	}

	s.metrics.RecordDirective(string(stream.OpRecallMemory), "ok")
	return &turn{content: followUp, synthetic: true, depth: depth + 1}
}

func (s *ChatService) exportStore() string {
	data, err := s.memory.Export()
	if err != nil {
		s.logger.Error("Failed to export memory store", zap.Error(err))
		return "{}"
	}
	return string(data)
}

func (s *ChatService) buildRequest(session *Session, t turn) *models.ChatCompletionRequest {
	transcript := session.Transcript()
	messages := make([]models.ChatMessage, 0, len(transcript)+1)
	for _, msg := range transcript {
		messages = append(messages, toChatMessage(msg))
	}

	content := t.content
	if !t.synthetic {
		content = MemoryPrompt + "\n\n" + formatUserPrompt(t.content)
	}
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: content})

	temperature := s.opts.Temperature
	maxTokens := s.opts.MaxTokens
	return &models.ChatCompletionRequest{
		Model:       session.Model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Stream:      true,
	}
}

// toChatMessage re-serialises a transcript entry for the model. Only regular
// messages keep their role; everything else was said by the assistant.
func toChatMessage(msg models.DisplayMessage) models.ChatMessage {
	role := models.RoleAssistant
	if msg.Type == models.MessageRegular {
		role = msg.Role
	}

	content := msg.Content
	switch msg.Type {
	case models.MessageThink:
		content = stream.WrapThinking(msg.Content)
	case models.MessageFunction:
		data, _ := json.Marshal(msg.Result)
		content = string(data)
	}
	return models.ChatMessage{Role: role, Content: content}
}

func (s *ChatService) emit(session *Session, sink EventSink, msg models.DisplayMessage) {
	session.appendMessage(msg)
	sink(models.ChatEvent{Type: models.EventMessage, Message: &msg})
}

func (s *ChatService) emitAnswer(session *Session, sink EventSink, text string) {
	s.emit(session, sink, models.DisplayMessage{
		Type:    models.MessageRegular,
		Role:    models.RoleAssistant,
		Content: text,
	})
}

func systemMessage(text string) models.DisplayMessage {
	return models.DisplayMessage{
		Type:    models.MessageRegular,
		Role:    models.RoleSystem,
		Content: text,
	}
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
