// Package stream interprets the token stream of an OpenAI-compatible chat
// completion: it decodes server-sent-event lines, splits the accumulated text
// into thinking and answer regions and pulls memory directives out of it.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	DataPrefix  = "data: "
	DoneMarker  = "[DONE]"
	maxLineSize = 1024 * 1024
)

var (
	// ErrDone is returned for the end-of-stream sentinel.
	ErrDone = errors.New("stream: done")
	// ErrMalformed marks a payload that contributed nothing. It is never fatal.
	ErrMalformed = errors.New("stream: malformed payload")
)

// Delta is the text one event adds to the response.
type Delta struct {
	Content string
	Final   bool
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Decode parses the payload of one data line, without its prefix.
func Decode(payload string) (Delta, error) {
	payload = strings.TrimSpace(payload)
	if payload == DoneMarker {
		return Delta{}, ErrDone
	}

	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Delta{}, ErrMalformed
	}
	if c.Choices == nil {
		return Delta{}, ErrMalformed
	}
	if len(c.Choices) == 0 {
		return Delta{}, nil
	}

	choice := c.Choices[0]
	return Delta{
		Content: choice.Delta.Content,
		Final:   choice.FinishReason != nil,
	}, nil
}

// Reader pulls deltas out of a server-sent-event body.
type Reader struct {
	scanner *bufio.Scanner
	skipped int
	done    bool
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next delta. It returns io.EOF once the sentinel has been
// seen or the body is exhausted. Lines without the data prefix are ignored
// and malformed payloads are skipped.
func (r *Reader) Next() (Delta, error) {
	if r.done {
		return Delta{}, io.EOF
	}

	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if !strings.HasPrefix(line, DataPrefix) {
			continue
		}

		delta, err := Decode(line[len(DataPrefix):])
		switch {
		case errors.Is(err, ErrDone):
			r.done = true
			return Delta{}, io.EOF
		case errors.Is(err, ErrMalformed):
			r.skipped++
			continue
		}
		return delta, nil
	}

	r.done = true
	if err := r.scanner.Err(); err != nil {
		return Delta{}, err
	}
	return Delta{}, io.EOF
}

// Skipped counts the malformed lines seen so far.
func (r *Reader) Skipped() int {
	return r.skipped
}
