package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekClient creates a client for the DeepSeek chat API. DeepSeek
// exposes an OpenAI-compatible surface, so the OpenAI implementation is
// reused with a different endpoint and provider name.
func NewDeepSeekClient(apiKey string) *OpenAIClient {
	return newChatCompletionsClient("deepseek", apiKey, deepseekBaseURL)
}
