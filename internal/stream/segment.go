package stream

import "strings"

const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"
)

type SegmentKind string

const (
	KindThinkingOpen   SegmentKind = "thinking-open"
	KindThinkingClosed SegmentKind = "thinking-closed"
	KindPlain          SegmentKind = "plain"
)

type Segment struct {
	Kind SegmentKind
	Text string
}

// Classify looks at the whole buffer and decides whether it currently ends
// inside a thinking region, after one, or contains no markers at all. It
// keeps no state, so it is safe to call again on every delta.
func Classify(buffer string) Segment {
	open := strings.LastIndex(buffer, ThinkOpen)
	closing := strings.LastIndex(buffer, ThinkClose)

	if open >= 0 && (closing < 0 || open > closing) {
		return Segment{Kind: KindThinkingOpen, Text: strings.TrimSpace(buffer[open+len(ThinkOpen):])}
	}
	if closing >= 0 {
		return Segment{Kind: KindThinkingClosed, Text: strings.TrimSpace(buffer[closing+len(ThinkClose):])}
	}
	return Segment{Kind: KindPlain, Text: strings.TrimSpace(buffer)}
}

// Answer returns the text after the first closing marker of buffer, which
// is where a reply or directive follows the model's reasoning. Later
// thinking regions stay part of the answer.
func Answer(buffer string) string {
	start := strings.Index(buffer, ThinkOpen)
	if start < 0 {
		start = 0
	}
	closing := strings.Index(buffer[start:], ThinkClose)
	if closing < 0 {
		return strings.TrimSpace(buffer)
	}
	return strings.TrimSpace(buffer[start+closing+len(ThinkClose):])
}

// WrapThinking renders text as a thinking region.
func WrapThinking(text string) string {
	return ThinkOpen + text + ThinkClose
}

// Thought returns the text of the last closed thinking region in buffer, or
// "" when no region has been closed yet.
func Thought(buffer string) string {
	closing := strings.LastIndex(buffer, ThinkClose)
	if closing < 0 {
		return ""
	}
	open := strings.LastIndex(buffer[:closing], ThinkOpen)
	if open < 0 {
		return strings.TrimSpace(buffer[:closing])
	}
	return strings.TrimSpace(buffer[open+len(ThinkOpen) : closing])
}
