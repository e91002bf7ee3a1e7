package translator

import (
	"encoding/json"

	"github.com/tidwall/sjson"
)

func init() {
	// Register OpenAI → Gemini translators
	Register(FormatOpenAI, FormatUpstream, TranslatorConfig{
		RequestTransform: OpenAIToUpstreamRequest,
	})
}

// OpenAIToUpstreamRequest converts OpenAI chat completions request to Gemini format.
func OpenAIToUpstreamRequest(model string, rawJSON []byte, stream bool) []byte { // stream kept for interface compatibility
	out := `{"contents":[]}`

	genConfig := buildGenerationConfig(model, rawJSON)
	genConfigJSON, _ := json.Marshal(genConfig)
	out, _ = sjson.SetRaw(out, "generationConfig", string(genConfigJSON))

	contents := translateMessages(rawJSON)
	if shouldMergeAdjacent(rawJSON) {
		contents = mergeConsecutiveMessages(contents)
	}

	contentsJSON, _ := json.Marshal(contents)
	out, _ = sjson.SetRaw(out, "contents", string(contentsJSON))

	out = applyToolDeclarations(out, rawJSON)
	out = applyResponseFormat(out, rawJSON)

	return []byte(out)
}
