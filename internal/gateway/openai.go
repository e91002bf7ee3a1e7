package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"gcli2api-go/internal/gwerrors"
	"gcli2api-go/internal/streamevent"
	"gcli2api-go/internal/tokencount"
	"gcli2api-go/internal/translator"
)

const shortMessageDowngradeThreshold = 20

// ChatCompletions implements the OpenAI-compatible
// POST /v1/chat/completions endpoint.
func (h *Handler) ChatCompletions(c *gin.Context) {
	rawJSON, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, gwerrors.InvalidRequest("failed to read request body"))
		return
	}
	root := gjson.ParseBytes(rawJSON)
	if !root.Get("messages").Exists() || !root.Get("messages").IsArray() {
		writeError(c, gwerrors.InvalidRequest("messages is required"))
		return
	}

	apiKey, gerr := h.authorize(c)
	if gerr != nil {
		writeError(c, gerr)
		return
	}

	model := root.Get("model").String()
	if model == "" {
		model = "gemini-2.5-pro"
	}
	stream := resolveStreaming(root)

	project, sessionID, err := h.identity.Get(apiKey)
	if err != nil {
		writeError(c, gwerrors.Wrap(gwerrors.KindUnauthorized, "identity synthesis failed", err))
		return
	}

	cfg, _ := translator.Lookup(translator.FormatOpenAI, translator.FormatUpstream)
	translated := cfg.RequestTransform(model, rawJSON, stream)
	envelope := buildEnvelope(translated, project, sessionID, model, h.cfg.Upstream.UserAgent)

	credentialID, accessToken, _, err := h.pool.GetToken(c.Request.Context())
	if err != nil {
		writeError(c, gwerrors.NoCredentials(err))
		return
	}

	promptTokens, toolSchemaBytes, _ := tokencount.OpenAIPrompt(rawJSON, model)

	if stream {
		h.streamOpenAI(c, model, envelope, credentialID, accessToken, promptTokens, toolSchemaBytes)
		return
	}
	h.nonStreamOpenAI(c, model, envelope, credentialID, accessToken, promptTokens, toolSchemaBytes)
}

// resolveStreaming applies the health-probe compatibility quirk: a single
// short message with no explicit stream field is always served
// non-streaming, regardless of whatever default the client expects.
func resolveStreaming(root gjson.Result) bool {
	streamField := root.Get("stream")
	messages := root.Get("messages").Array()
	if !streamField.Exists() && len(messages) == 1 {
		content := messages[0].Get("content")
		if content.Type == gjson.String && len(content.String()) < shortMessageDowngradeThreshold {
			return false
		}
	}
	return streamField.Bool()
}

func (h *Handler) nonStreamOpenAI(c *gin.Context, model string, envelope []byte, credentialID, accessToken string, promptTokens, toolSchemaBytes int64) {
	agg := &aggregator{}
	if err := h.upstream.Stream(c.Request.Context(), accessToken, envelope, agg.sink); err != nil {
		h.handleCredentialError(credentialID, err)
		writeError(c, err)
		return
	}

	respCfg, _ := translator.Lookup(translator.FormatUpstream, translator.FormatOpenAI)
	body, err := respCfg.ResponseTransform(c.Request.Context(), model, agg.rawCandidateJSON())
	if err != nil {
		writeError(c, gwerrors.Wrap(gwerrors.KindUpstreamInterrupted, "response translation failed", err))
		return
	}

	completionTokens, _ := tokencount.Completion(agg.visibleText.String(), model)
	var obj map[string]interface{}
	if json.Unmarshal(body, &obj) == nil {
		obj["usage"] = map[string]interface{}{
			"prompt_tokens":     promptTokens + toolSchemaBytes,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + toolSchemaBytes + completionTokens,
		}
		body, _ = json.Marshal(obj)
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *Handler) streamOpenAI(c *gin.Context, model string, envelope []byte, credentialID, accessToken string, promptTokens, toolSchemaBytes int64) {
	w := c.Writer
	flusher := prepareSSE(w)

	agg := &aggregator{}
	chunkID := "chatcmpl-" + fmt.Sprintf("%d", time.Now().UnixNano())
	created := time.Now().Unix()
	toolSeen := false

	sink := func(e streamevent.Event) {
		agg.sink(e)
		delta := map[string]interface{}{}
		switch e.Kind {
		case streamevent.KindThinking:
			switch e.Phase {
			case streamevent.ThinkingStart:
				delta["content"] = "<think>"
			case streamevent.ThinkingMid:
				delta["content"] = e.ThinkingDelta
			case streamevent.ThinkingEnd:
				delta["content"] = "</think>"
			}
		case streamevent.KindText:
			if e.TextDelta == "" {
				return
			}
			delta["content"] = e.TextDelta
		case streamevent.KindToolCall:
			toolSeen = true
			calls := make([]map[string]interface{}, len(e.ToolCalls))
			for i, tc := range e.ToolCalls {
				calls[i] = map[string]interface{}{
					"index": i,
					"id":    tc.ID,
					"type":  "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": rawOrEmptyObject(tc.Arguments),
					},
				}
			}
			delta["tool_calls"] = calls
		default:
			return
		}
		writeSSEEvent(w, flusher, "", map[string]interface{}{
			"id": chunkID, "object": "chat.completion.chunk", "created": created, "model": model,
			"choices": []map[string]interface{}{{"index": 0, "delta": delta, "finish_reason": nil}},
		})
	}

	err := h.upstream.Stream(c.Request.Context(), accessToken, envelope, sink)
	if err != nil {
		h.handleCredentialError(credentialID, err)
		writeSSEEvent(w, flusher, "", map[string]interface{}{
			"id": chunkID, "object": "chat.completion.chunk", "created": created, "model": model,
			"choices": []map[string]interface{}{{"index": 0, "delta": map[string]interface{}{"content": "错误: " + err.Error()}, "finish_reason": "stop"}},
		})
		writeSSEDone(w, flusher)
		return
	}

	finishReason := "stop"
	if toolSeen {
		finishReason = "tool_calls"
	}
	writeSSEEvent(w, flusher, "", map[string]interface{}{
		"id": chunkID, "object": "chat.completion.chunk", "created": created, "model": model,
		"choices": []map[string]interface{}{{"index": 0, "delta": map[string]interface{}{}, "finish_reason": finishReason}},
	})

	completionTokens, _ := tokencount.Completion(agg.visibleText.String(), model)
	writeSSEEvent(w, flusher, "", map[string]interface{}{
		"id": chunkID, "object": "chat.completion.chunk", "created": created, "model": model,
		"choices": []interface{}{},
		"usage": map[string]interface{}{
			"prompt_tokens":     promptTokens + toolSchemaBytes,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + toolSchemaBytes + completionTokens,
		},
	})
	writeSSEDone(w, flusher)
}

// handleCredentialError disables credentialID in the pool when the upstream
// call failed because it was rejected outright.
func (h *Handler) handleCredentialError(credentialID string, err error) {
	ge, ok := err.(*gwerrors.Error)
	if !ok || ge.Kind != gwerrors.KindCredentialForbidden {
		return
	}
	h.pool.OnUpstreamForbidden(credentialID, ge.Error())
}

// ListModels implements GET /v1/models.
func (h *Handler) ListModels(c *gin.Context) {
	_, accessToken, _, err := h.pool.GetToken(c.Request.Context())
	if err != nil {
		writeError(c, gwerrors.NoCredentials(err))
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.cfg.Upstream.ModelsURL, nil)
	if err != nil {
		writeError(c, gwerrors.Wrap(gwerrors.KindUpstreamInterrupted, "build models request", err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		writeError(c, gwerrors.UpstreamInterrupted(err))
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(c, gwerrors.UpstreamStatus(resp.StatusCode, string(body)))
		return
	}

	var data []map[string]interface{}
	now := time.Now().Unix()
	gjson.GetBytes(body, "models").ForEach(func(id, _ gjson.Result) bool {
		data = append(data, map[string]interface{}{
			"id": id.String(), "object": "model", "created": now, "owned_by": "google",
		})
		return true
	})
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// OpenAICountTokens implements POST /v1/chat/completions/count_tokens.
func (h *Handler) OpenAICountTokens(c *gin.Context) {
	rawJSON, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, gwerrors.InvalidRequest("failed to read request body"))
		return
	}
	model := gjson.GetBytes(rawJSON, "model").String()
	if model == "" {
		model = "gemini-2.5-pro"
	}
	promptTokens, toolSchemaBytes, err := tokencount.OpenAIPrompt(rawJSON, model)
	fallback := err != nil
	total := promptTokens + toolSchemaBytes
	c.JSON(http.StatusOK, gin.H{
		"object": "tokens", "model": model, "fallback": fallback,
		"prompt_tokens": total, "completion_tokens": 0, "total_tokens": total,
	})
}
