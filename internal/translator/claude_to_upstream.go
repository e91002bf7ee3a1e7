package translator

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	Register(FormatClaude, FormatUpstream, TranslatorConfig{
		RequestTransform: ClaudeToUpstreamRequest,
	})
}

// thoughtSignatureSentinel is embedded in place of a real signature whenever a
// tool_use block follows an assistant turn with no preceding signed thinking
// block. Upstream accepts the sentinel in lieu of validating a signature.
const thoughtSignatureSentinel = "skip_thought_signature_validator"

// ClaudeToUpstreamRequest converts an Anthropic Messages API request body into
// the Upstream wire format (Gemini-shaped contents/parts with a
// systemInstruction and tool declarations).
func ClaudeToUpstreamRequest(model string, rawJSON []byte, stream bool) []byte {
	out := `{"contents":[]}`

	if sys := buildClaudeSystemInstruction(rawJSON); sys != nil {
		sysJSON, _ := json.Marshal(sys)
		out, _ = sjson.SetRaw(out, "systemInstruction", string(sysJSON))
	}

	contents := buildClaudeContents(rawJSON)
	contentsJSON, _ := json.Marshal(contents)
	out, _ = sjson.SetRaw(out, "contents", string(contentsJSON))

	genConfig := buildClaudeGenerationConfig(rawJSON)
	genConfigJSON, _ := json.Marshal(genConfig)
	out, _ = sjson.SetRaw(out, "generationConfig", string(genConfigJSON))

	if toolsJSON := buildClaudeTools(rawJSON); toolsJSON != "" {
		out, _ = sjson.SetRaw(out, "tools", toolsJSON)
	}

	return []byte(out)
}

func buildClaudeSystemInstruction(rawJSON []byte) map[string]interface{} {
	sys := gjson.GetBytes(rawJSON, "system")
	if !sys.Exists() {
		return nil
	}
	var parts []interface{}
	if sys.IsArray() {
		for _, block := range sys.Array() {
			if block.Get("type").String() == "text" {
				if text := block.Get("text").String(); text != "" {
					parts = append(parts, map[string]interface{}{"text": text})
				}
			}
		}
	} else if sys.String() != "" {
		parts = append(parts, map[string]interface{}{"text": sys.String()})
	}
	if len(parts) == 0 {
		return nil
	}
	return map[string]interface{}{"parts": parts}
}

// buildClaudeContents walks the Claude message array, carrying forward the
// thinking signature of the most recent signed thinking block so that any
// tool_use blocks in the same assistant turn can reuse it; turns with no
// signed thinking block fall back to the skip sentinel.
func buildClaudeContents(rawJSON []byte) []interface{} {
	var contents []interface{}

	for _, msg := range gjson.GetBytes(rawJSON, "messages").Array() {
		role := msg.Get("role").String()
		geminiRole := role
		if role == "assistant" {
			geminiRole = "model"
		}

		content := msg.Get("content")
		var parts []interface{}
		signature := ""

		if content.IsArray() {
			for _, block := range content.Array() {
				switch block.Get("type").String() {
				case "text":
					if text := block.Get("text").String(); text != "" {
						parts = append(parts, map[string]interface{}{"text": text})
					}

				case "thinking":
					text := block.Get("thinking").String()
					if text == "" {
						text = block.Get("text").String()
					}
					sig := block.Get("signature").String()
					if sig == "" {
						// Unsigned thinking blocks cannot be replayed upstream;
						// drop the block but keep the sentinel path open for
						// any tool_use blocks that follow in this turn.
						continue
					}
					signature = sig
					part := map[string]interface{}{"thought": true, "thoughtSignature": sig}
					if text != "" {
						part["text"] = text
					}
					parts = append(parts, part)

				case "tool_use":
					name := block.Get("name").String()
					id := block.Get("id").String()
					args := block.Get("input")
					var argsVal interface{}
					if args.Exists() {
						argsVal = args.Value()
					} else {
						argsVal = map[string]interface{}{}
					}
					// The raw tool_use input is carried byte-for-byte under
					// args.query, not merged into args directly.
					fc := map[string]interface{}{"name": name, "args": map[string]interface{}{"query": argsVal}}
					if id != "" {
						fc["id"] = id
					}
					sig := signature
					if sig == "" {
						sig = thoughtSignatureSentinel
					}
					parts = append(parts, map[string]interface{}{
						"functionCall":     fc,
						"thoughtSignature": sig,
					})

				case "tool_result":
					parts = append(parts, convertClaudeToolResult(block))

				case "image":
					if src := block.Get("source"); src.Exists() {
						if src.Get("type").String() == "base64" {
							parts = append(parts, map[string]interface{}{
								"inlineData": map[string]interface{}{
									"mimeType": src.Get("media_type").String(),
									"data":     src.Get("data").String(),
								},
							})
						}
					}
				}
			}
		} else if content.String() != "" {
			parts = append(parts, map[string]interface{}{"text": content.String()})
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, map[string]interface{}{"role": geminiRole, "parts": parts})
	}

	return contents
}

func convertClaudeToolResult(block gjson.Result) map[string]interface{} {
	toolUseID := block.Get("tool_use_id").String()
	content := block.Get("content")

	var response interface{}
	if content.IsArray() {
		var texts []string
		for _, c := range content.Array() {
			if c.Get("type").String() == "text" {
				texts = append(texts, c.Get("text").String())
			}
		}
		response = map[string]interface{}{"result": strings.Join(texts, "\n")}
	} else if content.String() != "" {
		response = map[string]interface{}{"result": content.String()}
	} else {
		response = map[string]interface{}{"result": ""}
	}

	resp := map[string]interface{}{"response": response}
	if toolUseID != "" {
		resp["id"] = toolUseID
	}
	return map[string]interface{}{"functionResponse": resp}
}

func buildClaudeGenerationConfig(rawJSON []byte) map[string]interface{} {
	cfg := make(map[string]interface{})
	cfg["candidateCount"] = 1

	if maxTokens := gjson.GetBytes(rawJSON, "max_tokens"); maxTokens.Exists() {
		cfg["maxOutputTokens"] = maxTokens.Int()
	}
	if temp := gjson.GetBytes(rawJSON, "temperature"); temp.Exists() {
		cfg["temperature"] = temp.Value()
	}

	// Claude model families reject topP alongside a thinking budget; only
	// forward it when thinking is not requested.
	thinkingEnabled := gjson.GetBytes(rawJSON, "thinking.type").String() == "enabled"
	if topP := gjson.GetBytes(rawJSON, "top_p"); topP.Exists() && !thinkingEnabled {
		cfg["topP"] = topP.Value()
	}
	if topK := gjson.GetBytes(rawJSON, "top_k"); topK.Exists() {
		cfg["topK"] = topK.Int()
	}
	if stop := gjson.GetBytes(rawJSON, "stop_sequences"); stop.Exists() {
		cfg["stopSequences"] = collectStopSequences(stop)
	}

	if thinkingEnabled {
		budget := gjson.GetBytes(rawJSON, "thinking.budget_tokens").Int()
		if budget <= 0 {
			budget = -1
		}
		cfg["thinkingConfig"] = map[string]interface{}{
			"thinkingBudget":  budget,
			"includeThoughts": true,
		}
	}

	return cfg
}

func buildClaudeTools(rawJSON []byte) string {
	tools := gjson.GetBytes(rawJSON, "tools")
	if !tools.Exists() || !tools.IsArray() {
		return ""
	}
	var decls []interface{}
	for _, tool := range tools.Array() {
		name := tool.Get("name").String()
		if name == "" {
			continue
		}
		decls = append(decls, map[string]interface{}{
			"name":        name,
			"description": tool.Get("description").String(),
			"parameters":  json.RawMessage(tool.Get("input_schema").Raw),
		})
	}
	if len(decls) == 0 {
		return ""
	}
	out, _ := json.Marshal([]interface{}{map[string]interface{}{"functionDeclarations": decls}})
	return string(out)
}
