package constants

const (
	// DefaultTopK 是生成请求的默认 topK。
	DefaultTopK = 64
	// MaxTopK 是允许的最大 topK。
	MaxTopK = 64
	// MaxOutputTokens 是生成响应允许的最大输出 token 数。
	MaxOutputTokens = 65535
)

// ThinkingModelSuffix marks a requested model name as a thinking variant.
const ThinkingModelSuffix = "-thinking"

// ThinkingModelAllowlist names models that always run in thinking mode even
// without the suffix.
var ThinkingModelAllowlist = map[string]bool{
	"gemini-2.5-flash-reasoning": true,
}

// GenerationStopSequences are the fixed internal sentinel tokens sent as
// generationConfig.stopSequences for OpenAI-dialect requests, overriding
// whatever the client passed in its own stop field. They guard against a
// model echoing back the control markers this gateway embeds into
// conversation history (thought-signature comments, tool-call delimiters)
// as if they were ordinary text.
var GenerationStopSequences = []string{"<|thought_signature_end|>", "<|tool_call_end|>"}
