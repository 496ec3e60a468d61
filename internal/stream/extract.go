package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"memchat/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidDirective = errors.New("directive is not valid JSON")
	ErrUnknownOperation = errors.New("directive must name exactly one of recall_memory or write_memory")
	ErrInvalidParams    = errors.New("directive parameters are invalid")
)

var validate = validator.New()

type Operation string

const (
	OpRecallMemory Operation = "recall_memory"
	OpWriteMemory  Operation = "write_memory"
)

var (
	directiveKeys = []string{"function_call", "functionCall"}
	recallKeys    = []string{"recall_memory", "recallMemory"}
	writeKeys     = []string{"write_memory", "writeMemory"}
)

type RecallMemory struct {
	Query  string               `json:"query" validate:"required"`
	Domain string               `json:"domain,omitempty"`
	Filter *models.SearchFilter `json:"filter,omitempty"`
}

type WriteMemory struct {
	Content  string                `json:"content" validate:"required"`
	Domain   string                `json:"domain" validate:"required"`
	Metadata *models.WriteMetadata `json:"metadata,omitempty"`
}

// FunctionCall is a parsed memory directive. Exactly one of Recall and Write
// is set, matching Op.
type FunctionCall struct {
	Op     Operation
	Recall *RecallMemory
	Write  *WriteMemory
	// Raw is the JSON object the directive was parsed from.
	Raw string
}

// Pretty returns Raw indented by two spaces.
func (c *FunctionCall) Pretty() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(c.Raw), "", "  "); err != nil {
		return c.Raw
	}
	return buf.String()
}

// Extract looks for a memory directive in text. It takes everything from the
// first '{' to the last '}' as the candidate object.
//
// A nil call with a nil error means text carries no directive and is plain
// output. A non-nil error means something directive-shaped was found but
// could not be used; callers treat that text as plain output too.
func Extract(text string) (*FunctionCall, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, nil
	}
	raw := text[start : end+1]

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}

	body, ok := lookup(envelope, directiveKeys)
	if !ok {
		return nil, nil
	}

	var ops map[string]json.RawMessage
	if err := json.Unmarshal(body, &ops); err != nil {
		return nil, fmt.Errorf("%w: function_call must be an object", ErrInvalidDirective)
	}

	recallParams, isRecall := lookup(ops, recallKeys)
	writeParams, isWrite := lookup(ops, writeKeys)

	call := &FunctionCall{Raw: raw}
	switch {
	case isRecall == isWrite:
		return nil, ErrUnknownOperation
	case isRecall:
		var params RecallMemory
		if err := decodeParams(recallParams, &params); err != nil {
			return nil, err
		}
		call.Op = OpRecallMemory
		call.Recall = &params
	default:
		var params WriteMemory
		if err := decodeParams(writeParams, &params); err != nil {
			return nil, err
		}
		call.Op = OpWriteMemory
		call.Write = &params
	}
	return call, nil
}

func decodeParams(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func lookup(m map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}
