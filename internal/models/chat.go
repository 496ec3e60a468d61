package models

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

type MessageType string

const (
	MessageRegular        MessageType = "regular"
	MessageThink          MessageType = "think"
	MessageFunctionCall   MessageType = "function_call"
	MessageFunction       MessageType = "function"
	MessageFunctionResult MessageType = "function_result"
)

// DisplayMessage is one permanent entry of a conversation transcript.
type DisplayMessage struct {
	Type         MessageType `json:"type"`
	Role         Role        `json:"role,omitempty"`
	Content      string      `json:"content"`
	FunctionName string      `json:"function_name,omitempty"`
	Parameters   any         `json:"parameters,omitempty"`
	Result       any         `json:"result,omitempty"`
	Collapsed    bool        `json:"collapsed,omitempty"`
}

// ChatMessage is a role-tagged turn as the inference server expects it.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type ChatCompletionRequest struct {
	Model       string        `json:"model" validate:"required"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      ChatMessage `json:"message"`
}

type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   CompletionUsage        `json:"usage"`
}

// Model describes one model known to the local inference server.
type Model struct {
	ID                string `json:"id"`
	Object            string `json:"object"`
	Type              string `json:"type"`
	Publisher         string `json:"publisher"`
	Arch              string `json:"arch"`
	CompatibilityType string `json:"compatibility_type"`
	Quantization      string `json:"quantization"`
	State             string `json:"state"`
	MaxContextLength  int    `json:"max_context_length"`
}

type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

type EventType string

const (
	EventThinking EventType = "thinking"
	EventPartial  EventType = "partial"
	EventMessage  EventType = "message"
	EventDone     EventType = "done"
)

// ChatEvent is what the orchestrator publishes while a message is processed.
// Thinking and partial events are live and replace the previous one of the
// same type; message events are permanent transcript entries.
type ChatEvent struct {
	Type    EventType       `json:"type"`
	Text    string          `json:"text,omitempty"`
	Message *DisplayMessage `json:"message,omitempty"`
}
