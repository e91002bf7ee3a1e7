package translator

import (
	"strings"

	"gcli2api-go/internal/config"
	"gcli2api-go/internal/constants"
	"github.com/tidwall/gjson"
)

var generationDefaults = config.GenerationDefaults{
	Temperature: 1.0,
	TopP:        0.95,
	TopK:        constants.DefaultTopK,
	MaxTokens:   8192,
}

// SetGenerationDefaults overrides the fallback temperature/top_p/top_k/
// max_tokens values buildGenerationConfig uses when a request omits them.
func SetGenerationDefaults(d config.GenerationDefaults) {
	generationDefaults = d
}

// isThinkingModel reports whether model should run with thinkingConfig
// enabled: either it carries the thinking suffix, or it's named in the
// compile-time allowlist.
func isThinkingModel(model string) bool {
	return strings.HasSuffix(model, constants.ThinkingModelSuffix) || constants.ThinkingModelAllowlist[model]
}

func buildGenerationConfig(model string, rawJSON []byte) map[string]interface{} {
	genConfig := make(map[string]interface{})
	genConfig["candidateCount"] = 1

	if temp := gjson.GetBytes(rawJSON, "temperature"); temp.Exists() {
		genConfig["temperature"] = temp.Value()
	} else {
		genConfig["temperature"] = generationDefaults.Temperature
	}

	// Claude model families reject topP alongside a thinking budget; only
	// forward it for non-Claude models.
	claudeFamily := strings.HasPrefix(model, "claude-")
	thinkingEnabled := isThinkingModel(model)
	if topP := gjson.GetBytes(rawJSON, "top_p"); topP.Exists() {
		if !claudeFamily {
			genConfig["topP"] = topP.Value()
		}
	} else if !claudeFamily {
		genConfig["topP"] = generationDefaults.TopP
	}

	topKValue := constants.DefaultTopK
	if generationDefaults.TopK > 0 {
		topKValue = generationDefaults.TopK
	}
	if topK := gjson.GetBytes(rawJSON, "top_k"); topK.Exists() {
		value := int(topK.Int())
		if value <= 0 {
			value = constants.DefaultTopK
		}
		if value > constants.MaxTopK {
			value = constants.MaxTopK
		}
		topKValue = value
	}
	genConfig["topK"] = topKValue

	maxTokensValue := generationDefaults.MaxTokens
	if maxTokens := gjson.GetBytes(rawJSON, "max_tokens"); maxTokens.Exists() {
		maxTokensValue = int(maxTokens.Int())
	}
	if maxCompTokens := gjson.GetBytes(rawJSON, "max_completion_tokens"); maxCompTokens.Exists() {
		maxTokensValue = int(maxCompTokens.Int())
	}
	if maxTokensValue > 0 {
		if maxTokensValue > constants.MaxOutputTokens {
			maxTokensValue = constants.MaxOutputTokens
		}
		genConfig["maxOutputTokens"] = maxTokensValue
	}

	// Additional OpenAI params → Gemini generationConfig
	if fp := gjson.GetBytes(rawJSON, "frequency_penalty"); fp.Exists() {
		genConfig["frequencyPenalty"] = fp.Value()
	}
	if pp := gjson.GetBytes(rawJSON, "presence_penalty"); pp.Exists() {
		genConfig["presencePenalty"] = pp.Value()
	}
	if n := gjson.GetBytes(rawJSON, "n"); n.Exists() {
		genConfig["candidateCount"] = int(n.Int())
	}
	if seed := gjson.GetBytes(rawJSON, "seed"); seed.Exists() {
		genConfig["seed"] = int(seed.Int())
	}

	if thinkingEnabled {
		genConfig["thinkingConfig"] = map[string]interface{}{
			"thinkingBudget":  1024,
			"includeThoughts": true,
		}
	}

	if mods := gjson.GetBytes(rawJSON, "modalities"); mods.Exists() {
		if responseMods := mapModalities(mods.Array()); len(responseMods) > 0 {
			genConfig["responseModalities"] = responseMods
		}
	}

	if imgCfg := gjson.GetBytes(rawJSON, "image_config"); imgCfg.Exists() {
		if aspect := imgCfg.Get("aspect_ratio"); aspect.Exists() {
			genConfig["responseImageAspectRatio"] = aspect.String()
		}
	}

	genConfig["stopSequences"] = constants.GenerationStopSequences

	return genConfig
}

func mapModalities(mods []gjson.Result) []string {
	var responseMods []string
	for _, m := range mods {
		switch strings.ToLower(m.String()) {
		case "text":
			responseMods = append(responseMods, "Text")
		case "image":
			responseMods = append(responseMods, "Image")
		}
	}
	return responseMods
}

func collectStopSequences(stop gjson.Result) []string {
	var stopSeqs []string
	if stop.IsArray() {
		for _, s := range stop.Array() {
			stopSeqs = append(stopSeqs, s.String())
		}
	} else {
		stopSeqs = append(stopSeqs, stop.String())
	}
	return stopSeqs
}

func shouldMergeAdjacent(rawJSON []byte) bool {
	merge := true
	if v := gjson.GetBytes(rawJSON, "compat_merge_adjacent"); v.Exists() {
		if v.Type == gjson.False {
			merge = false
		}
	}
	return merge
}
