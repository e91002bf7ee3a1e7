package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

func init() {
	Register(FormatUpstream, FormatClaude, TranslatorConfig{
		ResponseTransform: UpstreamToClaudeResponse,
	})
}

// UpstreamToClaudeResponse converts a non-streaming Upstream response into an
// Anthropic Messages API response body.
func UpstreamToClaudeResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)
	if result.Get("error").Exists() {
		return responseBody, nil
	}

	candidates := result.Get("candidates")
	if !candidates.Exists() || len(candidates.Array()) == 0 {
		return responseBody, nil
	}
	candidate := candidates.Array()[0]

	var contentBlocks []interface{}
	toolIdx := 0
	for _, part := range candidate.Get("content.parts").Array() {
		if thought := part.Get("thought"); thought.Exists() && thought.Bool() {
			block := map[string]interface{}{"type": "thinking", "thinking": part.Get("text").String()}
			if sig := part.Get("thoughtSignature").String(); sig != "" {
				block["signature"] = sig
			}
			contentBlocks = append(contentBlocks, block)
			continue
		}
		if text := part.Get("text"); text.Exists() {
			// Consecutive text parts form one text block, as on the streaming path.
			if n := len(contentBlocks); n > 0 {
				if last, ok := contentBlocks[n-1].(map[string]interface{}); ok && last["type"] == "text" {
					last["text"] = last["text"].(string) + text.String()
					continue
				}
			}
			contentBlocks = append(contentBlocks, map[string]interface{}{"type": "text", "text": text.String()})
			continue
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			toolIdx++
			contentBlocks = append(contentBlocks, map[string]interface{}{
				"type":  "tool_use",
				"id":    fmt.Sprintf("toolu_%d", toolIdx),
				"name":  fc.Get("name").String(),
				"input": fc.Get("args").Value(),
			})
		}
	}

	stopReason := "end_turn"
	switch candidate.Get("finishReason").String() {
	case "MAX_TOKENS":
		stopReason = "max_tokens"
	}
	for _, b := range contentBlocks {
		if m, ok := b.(map[string]interface{}); ok && m["type"] == "tool_use" {
			stopReason = "tool_use"
			break
		}
	}

	usage := result.Get("usageMetadata")
	response := map[string]interface{}{
		"id":          fmt.Sprintf("msg_%d", time.Now().UnixNano()),
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     contentBlocks,
		"stop_reason": stopReason,
		"usage": map[string]interface{}{
			"input_tokens":  usage.Get("promptTokenCount").Int(),
			"output_tokens": usage.Get("candidatesTokenCount").Int(),
		},
	}
	return json.Marshal(response)
}

