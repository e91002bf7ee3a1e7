package streamevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextEvent(t *testing.T) {
	e := Text("hello", "sig-123")
	assert.Equal(t, KindText, e.Kind)
	assert.Equal(t, "hello", e.TextDelta)
	assert.Equal(t, "sig-123", e.ThoughtSignature)
}

func TestThinkingEvent(t *testing.T) {
	e := Thinking("pondering", ThinkingStart)
	assert.Equal(t, KindThinking, e.Kind)
	assert.Equal(t, "pondering", e.ThinkingDelta)
	assert.Equal(t, ThinkingStart, e.Phase)
}

func TestImageEvent(t *testing.T) {
	e := Image("image/png", "YWJj")
	assert.Equal(t, KindImage, e.Kind)
	assert.Equal(t, "image/png", e.ImageMIME)
	assert.Equal(t, "YWJj", e.ImageBase64)
}

func TestToolCallsEvent(t *testing.T) {
	calls := []ToolCall{{ID: "1", Name: "lookup", Arguments: `{"query":"x"}`}}
	e := ToolCallsEvent(calls)
	assert.Equal(t, KindToolCall, e.Kind)
	assert.Equal(t, calls, e.ToolCalls)
}
