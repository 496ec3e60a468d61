package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"memchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const recallPricing = `{"function_call":{"recall_memory":{"query":"pricing"}}}`

type chatFixture struct {
	transport *fakeTransport
	repo      *memRepo
	memory    *MemoryService
	chat      *ChatService
	session   *Session
	events    []models.ChatEvent
}

func newChatFixture(maxDepth int, responses ...string) *chatFixture {
	f := &chatFixture{
		transport: &fakeTransport{responses: responses},
		repo:      &memRepo{},
	}
	f.memory = newTestMemory(f.repo)
	f.chat = NewChatService(f.transport, f.memory, ChatOptions{
		MaxRecallDepth: maxDepth,
		Temperature:    0.7,
		MaxTokens:      -1,
	}, nil, zap.NewNop())
	f.session = NewSession("test-model")
	return f
}

func (f *chatFixture) send(ctx context.Context, text string) error {
	return f.chat.Send(ctx, f.session, text, func(e models.ChatEvent) {
		f.events = append(f.events, e)
	})
}

func (f *chatFixture) count(kind models.MessageType) int {
	n := 0
	for _, msg := range f.session.Transcript() {
		if msg.Type == kind {
			n++
		}
	}
	return n
}

func (f *chatFixture) last() models.DisplayMessage {
	transcript := f.session.Transcript()
	return transcript[len(transcript)-1]
}

func TestSendPlainAnswer(t *testing.T) {
	f := newChatFixture(5, sseBody("Hello", " there"))

	require.NoError(t, f.send(context.Background(), "hi"))

	transcript := f.session.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.RoleUser, transcript[0].Role)
	assert.Equal(t, "hi", transcript[0].Content)
	assert.Equal(t, models.MessageRegular, transcript[1].Type)
	assert.Equal(t, models.RoleAssistant, transcript[1].Role)
	assert.Equal(t, "Hello there", transcript[1].Content)

	requests := f.transport.sent()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.True(t, req.Stream)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.7, *req.Temperature)
	require.Len(t, req.Messages, 1)
	assert.True(t, strings.HasPrefix(req.Messages[0].Content, MemoryPrompt))
	assert.True(t, strings.HasSuffix(req.Messages[0].Content, "<user_question>\nhi\n</user_question>"))

	assert.Equal(t, models.EventDone, f.events[len(f.events)-1].Type)
	assert.Equal(t, 0, f.repo.saveCount())
}

func TestSendRecallResubmitsOnce(t *testing.T) {
	f := newChatFixture(5,
		sseBody("<think>check", "ing pricing</think>", recallPricing),
		sseBody("Nothing stored about pricing yet."),
	)

	require.NoError(t, f.send(context.Background(), "what do we charge?"))

	assert.Equal(t, 1, f.count(models.MessageThink))
	assert.Equal(t, 1, f.count(models.MessageFunctionCall))
	assert.Equal(t, 1, f.count(models.MessageFunctionResult))

	transcript := f.session.Transcript()
	require.Len(t, transcript, 5)
	assert.Equal(t, "checking pricing", transcript[1].Content)
	assert.Contains(t, transcript[2].Content, `"recall_memory"`)
	result := transcript[3]
	assert.True(t, result.Collapsed)
	assert.True(t, strings.HasPrefix(result.Content, `[MEMORY_RECALL_RESULT] No results found for "pricing".`))
	// The directive turn itself produced no visible answer.
	assert.Equal(t, "Nothing stored about pricing yet.", transcript[4].Content)
	assert.Equal(t, models.RoleAssistant, transcript[4].Role)

	requests := f.transport.sent()
	require.Len(t, requests, 2)
	followUp := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Equal(t, models.RoleUser, followUp.Role)
	assert.True(t, strings.HasPrefix(followUp.Content, `No results found for "pricing". Here are all available memories:`))
	assert.Equal(t, "<think>checking pricing</think>", requests[1].Messages[1].Content)

	thinking := 0
	for _, e := range f.events {
		if e.Type == models.EventThinking {
			thinking++
		}
	}
	assert.Equal(t, 1, thinking)
}

func TestSendRecallReportsMatches(t *testing.T) {
	f := newChatFixture(5,
		sseBody("<think>look it up</think>", recallPricing),
		sseBody("It is 10 EUR."),
	)
	f.memory.Write("Our pricing is 10 EUR per seat", "sales", nil)

	require.NoError(t, f.send(context.Background(), "price?"))

	transcript := f.session.Transcript()
	result := transcript[3]
	assert.True(t, strings.HasPrefix(result.Content, `[MEMORY_RECALL_RESULT] Found 1 results for "pricing":`))
	assert.Contains(t, result.Content, "doc_1737799200000")

	requests := f.transport.sent()
	require.Len(t, requests, 2)
	followUp := requests[1].Messages[len(requests[1].Messages)-1]
	assert.True(t, strings.HasPrefix(followUp.Content, `Memory search results for "pricing":`))
}

func TestSendAnswerFollowsFirstThinkRegion(t *testing.T) {
	f := newChatFixture(5, sseBody("<think>first</think>", "Part one ", "<think>second</think>", "part two"))

	require.NoError(t, f.send(context.Background(), "hi"))

	last := f.last()
	assert.Equal(t, models.MessageRegular, last.Type)
	assert.Equal(t, "Part one <think>second</think>part two", last.Content)
}

func TestSendMalformedDirectiveDegradesToText(t *testing.T) {
	f := newChatFixture(5, sseBody("<think>ok</think>", "{not json"))

	require.NoError(t, f.send(context.Background(), "hi"))

	last := f.last()
	assert.Equal(t, models.MessageRegular, last.Type)
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "{not json", last.Content)
	assert.Len(t, f.transport.sent(), 1)
}

func TestSendInvalidParamsDegradesToText(t *testing.T) {
	body := `{"function_call":{"write_memory":{"content":"x"}}}`
	f := newChatFixture(5, sseBody("<think>store</think>", body))

	require.NoError(t, f.send(context.Background(), "hi"))

	assert.Equal(t, body, f.last().Content)
	assert.Equal(t, 0, f.count(models.MessageFunction))
}

func TestSendBareWriteDirective(t *testing.T) {
	f := newChatFixture(5,
		sseBody(`{"function_call":{"write_memory":{"content":"Paris is the capital of France","domain":"geo","metadata":{"tags":["europe"]}}}}`),
		sseBody("Noted."),
	)

	require.NoError(t, f.send(context.Background(), "remember Paris"))

	transcript := f.session.Transcript()
	require.Len(t, transcript, 4)
	assert.Equal(t, models.MessageThink, transcript[1].Type)
	assert.Equal(t, "Processing function call", transcript[1].Content)
	assert.Equal(t, models.MessageFunctionCall, transcript[2].Type)
	assert.True(t, strings.HasPrefix(transcript[2].Content, "I will now execute a function call:\n{"))

	written := transcript[3]
	assert.Equal(t, models.MessageFunction, written.Type)
	assert.Equal(t, "write_memory", written.FunctionName)
	assert.Equal(t, "Memory written to domain: geo", written.Content)
	result, ok := written.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "doc_1737799200000", result["documentId"])

	found := f.memory.Search("Paris", "geo", nil)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"europe"}, found[0].Metadata.Tags)

	// A write never triggers a follow-up turn; the store is saved once.
	assert.Len(t, f.transport.sent(), 1)
	assert.Equal(t, 1, f.repo.saveCount())

	// The next message replays the function result as JSON.
	require.NoError(t, f.send(context.Background(), "thanks"))
	requests := f.transport.sent()
	require.Len(t, requests, 2)
	replay := requests[1].Messages
	require.Len(t, replay, 5)
	assert.Equal(t, "<think>Processing function call</think>", replay[1].Content)
	assert.Equal(t, models.RoleAssistant, replay[3].Role)
	assert.JSONEq(t, `{"success":true,"domain":"geo","documentId":"doc_1737799200000"}`, replay[3].Content)
}

func TestSendStopsAtRecallLimit(t *testing.T) {
	f := newChatFixture(2, sseBody("<think>again</think>", recallPricing))

	require.NoError(t, f.send(context.Background(), "loop"))

	// Depths 0, 1 and 2 each reach the model once.
	assert.Len(t, f.transport.sent(), 3)
	assert.Equal(t, 3, f.count(models.MessageFunctionResult))

	last := f.last()
	assert.Equal(t, models.RoleSystem, last.Role)
	assert.Equal(t, "Recall limit reached (2). Stopping memory lookups for this message.", last.Content)
}

func TestSendTransportErrorKeepsSessionUsable(t *testing.T) {
	f := newChatFixture(5)
	f.transport.err = &StatusError{Code: 500, Body: "boom"}

	require.NoError(t, f.send(context.Background(), "hi"))

	last := f.last()
	assert.Equal(t, models.RoleSystem, last.Role)
	assert.Equal(t, "An error occurred while processing your request.", last.Content)

	f.transport.err = nil
	f.transport.responses = []string{sseBody("back again")}
	require.NoError(t, f.send(context.Background(), "retry"))
	assert.Equal(t, "back again", f.last().Content)
}

func TestSendSkipsMalformedLines(t *testing.T) {
	body := "data: {broken\n\n" + sseBody("fine")
	f := newChatFixture(5, body)

	require.NoError(t, f.send(context.Background(), "hi"))

	assert.Equal(t, "fine", f.last().Content)
}

func TestSendCancelled(t *testing.T) {
	f := newChatFixture(5, sseBody("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.send(ctx, "hi")

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, f.transport.sent())
	assert.Equal(t, "Request cancelled.", f.last().Content)
	assert.Equal(t, models.EventDone, f.events[len(f.events)-1].Type)
}

func TestSendPersistsFailureWithoutBreakingChat(t *testing.T) {
	f := newChatFixture(5, sseBody(`{"function_call":{"write_memory":{"content":"c","domain":"d"}}}`))
	f.repo.err = errors.New("disk full")

	require.NoError(t, f.send(context.Background(), "hi"))

	assert.Equal(t, models.MessageFunction, f.last().Type)
	assert.Len(t, f.memory.Search("c", "d", nil), 1)
}

// stalledTransport never answers until the request context ends.
type stalledTransport struct{}

func (stalledTransport) StreamChat(ctx context.Context, _ *models.ChatCompletionRequest) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSendTurnTimeoutIsATransportError(t *testing.T) {
	repo := &memRepo{}
	chat := NewChatService(stalledTransport{}, newTestMemory(repo), ChatOptions{
		MaxRecallDepth: 5,
		TurnTimeout:    10 * time.Millisecond,
	}, nil, zap.NewNop())
	session := NewSession("m")

	require.NoError(t, chat.Send(context.Background(), session, "hi", nil))

	transcript := session.Transcript()
	assert.Equal(t, "An error occurred while processing your request.", transcript[len(transcript)-1].Content)
}
