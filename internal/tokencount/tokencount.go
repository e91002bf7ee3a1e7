// Package tokencount implements the gateway's opaque count_tokens(messages,
// model) accounting. Neither dialect's upstream exposes a real tokenizer
// endpoint, so counts are approximated client-side with tiktoken-go/tokenizer
// over a flattened text rendering of the request, plus a separate accounting
// of tool-schema JSON bytes as spec'd.
package tokencount

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

func codecForModel(model string) (tokenizer.Codec, error) {
	sanitized := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(sanitized, "gpt-4o"):
		return tokenizer.ForModel(tokenizer.GPT4o)
	case strings.HasPrefix(sanitized, "gpt-4"):
		return tokenizer.ForModel(tokenizer.GPT4)
	case strings.HasPrefix(sanitized, "gpt-3"):
		return tokenizer.ForModel(tokenizer.GPT35Turbo)
	case strings.HasPrefix(sanitized, "claude"):
		return tokenizer.Get(tokenizer.Cl100kBase)
	default:
		return tokenizer.Get(tokenizer.O200kBase)
	}
}

// OpenAIPrompt counts prompt tokens for an OpenAI-shaped chat completions
// request body, plus separately the bytes occupied by any tool schemas.
func OpenAIPrompt(rawJSON []byte, model string) (promptTokens int64, toolSchemaBytes int64, err error) {
	enc, err := codecForModel(model)
	if err != nil {
		return 0, 0, err
	}
	root := gjson.ParseBytes(rawJSON)

	var segments []string
	collectOpenAIMessages(root.Get("messages"), &segments)
	addIfNotEmpty(&segments, root.Get("system").String())

	toolSchemaBytes = collectToolSchemaBytes(root.Get("tools"))

	count, err := countJoined(enc, segments)
	if err != nil {
		return 0, 0, err
	}
	return count, toolSchemaBytes, nil
}

// ClaudePrompt counts prompt tokens for an Anthropic Messages request body.
func ClaudePrompt(rawJSON []byte, model string) (promptTokens int64, toolSchemaBytes int64, err error) {
	enc, err := codecForModel(model)
	if err != nil {
		return 0, 0, err
	}
	root := gjson.ParseBytes(rawJSON)

	var segments []string
	addIfNotEmpty(&segments, root.Get("system").String())
	collectClaudeMessages(root.Get("messages"), &segments)

	toolSchemaBytes = collectClaudeToolSchemaBytes(root.Get("tools"))

	count, err := countJoined(enc, segments)
	if err != nil {
		return 0, 0, err
	}
	return count, toolSchemaBytes, nil
}

// Completion counts the tokens in a fully-assembled completion string,
// e.g. for non-streaming usage accounting once a response is in hand.
func Completion(text string, model string) (int64, error) {
	enc, err := codecForModel(model)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	n, err := enc.Count(text)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func countJoined(enc tokenizer.Codec, segments []string) (int64, error) {
	joined := strings.TrimSpace(strings.Join(segments, "\n"))
	if joined == "" {
		return 0, nil
	}
	n, err := enc.Count(joined)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func collectOpenAIMessages(messages gjson.Result, segments *[]string) {
	if !messages.Exists() || !messages.IsArray() {
		return
	}
	messages.ForEach(func(_, message gjson.Result) bool {
		addIfNotEmpty(segments, message.Get("role").String())
		collectOpenAIContent(message.Get("content"), segments)
		collectOpenAIToolCalls(message.Get("tool_calls"), segments)
		return true
	})
}

func collectOpenAIContent(content gjson.Result, segments *[]string) {
	if !content.Exists() {
		return
	}
	if content.Type == gjson.String {
		addIfNotEmpty(segments, content.String())
		return
	}
	if content.IsArray() {
		content.ForEach(func(_, part gjson.Result) bool {
			switch part.Get("type").String() {
			case "text":
				addIfNotEmpty(segments, part.Get("text").String())
			case "image_url":
				addIfNotEmpty(segments, part.Get("image_url.url").String())
			default:
				addIfNotEmpty(segments, part.Raw)
			}
			return true
		})
	}
}

func collectOpenAIToolCalls(calls gjson.Result, segments *[]string) {
	if !calls.Exists() || !calls.IsArray() {
		return
	}
	calls.ForEach(func(_, call gjson.Result) bool {
		function := call.Get("function")
		addIfNotEmpty(segments, function.Get("name").String())
		addIfNotEmpty(segments, function.Get("arguments").String())
		return true
	})
}

func collectToolSchemaBytes(tools gjson.Result) int64 {
	if !tools.Exists() {
		return 0
	}
	return int64(len(tools.Raw))
}

func collectClaudeMessages(messages gjson.Result, segments *[]string) {
	if !messages.Exists() || !messages.IsArray() {
		return
	}
	messages.ForEach(func(_, message gjson.Result) bool {
		addIfNotEmpty(segments, message.Get("role").String())
		content := message.Get("content")
		if content.Type == gjson.String {
			addIfNotEmpty(segments, content.String())
			return true
		}
		content.ForEach(func(_, block gjson.Result) bool {
			switch block.Get("type").String() {
			case "text":
				addIfNotEmpty(segments, block.Get("text").String())
			case "tool_use":
				addIfNotEmpty(segments, block.Get("name").String())
				if input := block.Get("input"); input.Exists() {
					addIfNotEmpty(segments, input.Raw)
				}
			case "tool_result":
				if c := block.Get("content"); c.Exists() {
					addIfNotEmpty(segments, c.Raw)
				}
			case "image":
				addIfNotEmpty(segments, block.Get("source.data").String())
			}
			return true
		})
		return true
	})
}

func collectClaudeToolSchemaBytes(tools gjson.Result) int64 {
	if !tools.Exists() {
		return 0
	}
	return int64(len(tools.Raw))
}

func addIfNotEmpty(segments *[]string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*segments = append(*segments, trimmed)
	}
}
