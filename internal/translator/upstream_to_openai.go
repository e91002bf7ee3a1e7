package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

func init() {
	Register(FormatUpstream, FormatOpenAI, TranslatorConfig{
		ResponseTransform: UpstreamToOpenAIResponse,
	})
}

// UpstreamToOpenAIResponse converts a non-streaming Gemini response to OpenAI format.
func UpstreamToOpenAIResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := gjson.ParseBytes(responseBody)

	// Check for errors
	if errMsg := result.Get("error"); errMsg.Exists() {
		return responseBody, nil // Pass through errors
	}

	// Extract candidates
	candidates := result.Get("candidates")
	if !candidates.Exists() {
		return responseBody, nil
	}

	var choices []map[string]interface{}
	var totalPromptTokens, totalCompletionTokens, reasoningTokens int64

	for idx, candidate := range candidates.Array() {
		content := candidate.Get("content")
		parts := content.Get("parts").Array()

		var messageContent strings.Builder
		var reasoningContent strings.Builder
		var toolCalls []map[string]interface{}
		hasThinking := false

		for _, part := range parts {
			// ✅ Check if this is a thinking/reasoning part
			if thought := part.Get("thought"); thought.Exists() {
				reasoningContent.WriteString(thought.String())
				hasThinking = true
				continue
			}

			// ✅ Check for reasoning metadata
			if execResult := part.Get("executableCode"); execResult.Exists() {
				// Code execution results are part of reasoning
				reasoningContent.WriteString(fmt.Sprintf("\n[Code Execution]\n%s\n", execResult.String()))
				hasThinking = true
				continue
			}

			if text := part.Get("text"); text.Exists() {
				textStr := text.String()
				// ✅ Detect thinking patterns in text
				if detectThinkingInText(textStr) {
					reasoningContent.WriteString(textStr)
					hasThinking = true
				} else {
					messageContent.WriteString(textStr)
				}
			}
			// ✅ Enhanced function call handling
			if fnCall := part.Get("functionCall"); fnCall.Exists() {
				fnName := fnCall.Get("name").String()
				fnArgs := fnCall.Get("args")

				// Convert args to JSON string
				var argsJSON []byte
				if fnArgs.Exists() {
					if fnArgs.IsObject() || fnArgs.IsArray() {
						argsJSON, _ = json.Marshal(fnArgs.Value())
					} else {
						argsJSON = []byte(fnArgs.Raw)
					}
				} else {
					argsJSON = []byte("{}")
				}

				toolCalls = append(toolCalls, map[string]interface{}{
					"id":   fmt.Sprintf("call_%s_%d", fnName, len(toolCalls)),
					"type": "function",
					"function": map[string]interface{}{
						"name":      fnName,
						"arguments": string(argsJSON),
					},
				})
			}

			// ✅ Handle function response (convert back to content)
			if fnResp := part.Get("functionResponse"); fnResp.Exists() {
				// Function responses are typically in tool messages, not assistant
				// Skip them in assistant message conversion
				continue
			}
		}

		message := map[string]interface{}{
			"role":    "assistant",
			"content": messageContent.String(),
		}

		// ✅ Add reasoning_content if thinking was detected
		if hasThinking && reasoningContent.Len() > 0 {
			message["reasoning_content"] = reasoningContent.String()
		}

		if len(toolCalls) > 0 {
			message["tool_calls"] = toolCalls
		}

		finishReason := "stop"
		if fr := candidate.Get("finishReason"); fr.Exists() {
			switch fr.String() {
			case "STOP":
				finishReason = "stop"
			case "MAX_TOKENS":
				finishReason = "length"
			case "SAFETY":
				finishReason = "content_filter"
			case "RECITATION":
				finishReason = "content_filter"
			default:
				finishReason = "stop"
			}
		}
		if len(toolCalls) > 0 {
			finishReason = "tool_calls"
		}

		choices = append(choices, map[string]interface{}{
			"index":         idx,
			"message":       message,
			"finish_reason": finishReason,
		})
	}

	// Extract usage metadata
	if usage := result.Get("usageMetadata"); usage.Exists() {
		totalPromptTokens = usage.Get("promptTokenCount").Int()
		totalCompletionTokens = usage.Get("candidatesTokenCount").Int()
		// Gemini doesn't separate reasoning tokens, approximate if needed
	}

	response := map[string]interface{}{
		"id":      fmt.Sprintf("chatcmpl-%d", time.Now().Unix()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": choices,
		"usage": map[string]interface{}{
			"prompt_tokens":     totalPromptTokens,
			"completion_tokens": totalCompletionTokens,
			"total_tokens":      totalPromptTokens + totalCompletionTokens,
			"completion_tokens_details": map[string]interface{}{
				"reasoning_tokens": reasoningTokens,
			},
		},
	}

	return json.Marshal(response)
}

// detectThinkingInText detects if text contains thinking/reasoning patterns
func detectThinkingInText(text string) bool {
	// Check for common thinking markers
	thinkingMarkers := []string{
		"<think>",
		"</think>",
		"<thinking>",
		"</thinking>",
		"[THINKING]",
		"[/THINKING]",
		"Let me think",
		"Let me analyze",
		"Step by step",
	}

	lowerText := strings.ToLower(text)
	for _, marker := range thinkingMarkers {
		if strings.Contains(lowerText, strings.ToLower(marker)) {
			return true
		}
	}

	// Check if text starts with thinking indicators
	trimmed := strings.TrimSpace(lowerText)
	if strings.HasPrefix(trimmed, "thinking:") ||
		strings.HasPrefix(trimmed, "reasoning:") ||
		strings.HasPrefix(trimmed, "analysis:") {
		return true
	}

	return false
}
