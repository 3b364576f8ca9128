package llm

import (
	"github.com/ephemerchat/ephemer/internal/config"
	"github.com/ephemerchat/ephemer/internal/logging"
)

// openaiModels is the static catalog served by the OpenAI provider.
var openaiModels = []ModelInfo{
	{
		ID:          "gpt-3.5-turbo",
		Name:        "GPT-3.5 Turbo",
		Description: "Fast and efficient for most conversations",
		Provider:    "OpenAI",
		Recommended: true,
	},
	{
		ID:          "gpt-4",
		Name:        "GPT-4",
		Description: "More capable but slower, best for complex tasks",
		Provider:    "OpenAI",
	},
	{
		ID:          "gpt-4-turbo",
		Name:        "GPT-4 Turbo",
		Description: "Latest GPT-4 with improved speed and capabilities",
		Provider:    "OpenAI",
	},
}

var geminiModels = []ModelInfo{
	{
		ID:          "gemini-pro",
		Name:        "Gemini Pro",
		Description: "Google's advanced AI model",
		Provider:    "Google",
	},
}

var deepseekModels = []ModelInfo{
	{
		ID:          "deepseek-chat",
		Name:        "DeepSeek Chat",
		Description: "Specialized for coding and technical discussions",
		Provider:    "DeepSeek",
	},
}

// NewRegistryFromConfig builds a Registry from the configured provider
// credentials. Providers without an API key are simply not registered, so
// their models fail resolution rather than failing at call time.
func NewRegistryFromConfig(cfg config.ProvidersConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	if cfg.OpenAI.APIKey != "" {
		reg.Register(NewOpenAIClient(cfg.OpenAI.APIKey), openaiModels...)
	}
	if cfg.Gemini.APIKey != "" {
		reg.Register(NewGeminiAPIClient(cfg.Gemini.APIKey), geminiModels...)
	}
	if cfg.DeepSeek.APIKey != "" {
		reg.Register(NewDeepSeekClient(cfg.DeepSeek.APIKey), deepseekModels...)
	}

	return reg
}
