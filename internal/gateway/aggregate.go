package gateway

import (
	"encoding/json"
	"strings"

	"gcli2api-go/internal/streamevent"
)

// aggregator collects a full upstream turn's normalized events and
// reassembles the canonical candidate JSON shape
// (candidates[0].content.parts + finishReason) that
// internal/translator's UpstreamToOpenAIResponse/UpstreamToClaudeResponse
// already know how to render, so non-streaming requests reuse exactly the
// same field-mapping logic the streaming path's framing is built from.
type aggregator struct {
	parts        []map[string]interface{}
	finishReason string
	visibleText  strings.Builder
	toolCalls    []streamevent.ToolCall
}

func (a *aggregator) sink(e streamevent.Event) {
	switch e.Kind {
	case streamevent.KindThinking:
		if e.Phase == streamevent.ThinkingMid && e.ThinkingDelta != "" {
			a.parts = append(a.parts, map[string]interface{}{"thought": true, "text": e.ThinkingDelta})
		}
	case streamevent.KindText:
		if e.TextDelta != "" {
			part := map[string]interface{}{"text": e.TextDelta}
			if e.ThoughtSignature != "" {
				part["thoughtSignature"] = e.ThoughtSignature
			}
			a.parts = append(a.parts, part)
			a.visibleText.WriteString(e.TextDelta)
		}
		if e.FinishReason != "" {
			a.finishReason = e.FinishReason
		}
	case streamevent.KindImage:
		a.parts = append(a.parts, map[string]interface{}{
			"inlineData": map[string]interface{}{"mimeType": e.ImageMIME, "data": e.ImageBase64},
		})
	case streamevent.KindToolCall:
		a.toolCalls = append(a.toolCalls, e.ToolCalls...)
		for _, tc := range e.ToolCalls {
			a.parts = append(a.parts, map[string]interface{}{
				"functionCall": map[string]interface{}{
					"name": tc.Name,
					"args": json.RawMessage(rawOrEmptyObject(tc.Arguments)),
				},
			})
		}
		if e.FinishReason != "" {
			a.finishReason = e.FinishReason
		}
	}
}

func rawOrEmptyObject(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}

// rawCandidateJSON marshals the reassembled candidate shape.
func (a *aggregator) rawCandidateJSON() []byte {
	obj := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content":      map[string]interface{}{"parts": a.parts},
				"finishReason": a.finishReason,
			},
		},
	}
	b, _ := json.Marshal(obj)
	return b
}
