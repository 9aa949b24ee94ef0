package model

// ResponseStyle selects one fixed style directive for the system preamble.
type ResponseStyle string

const (
	StyleConcise  ResponseStyle = "concise"
	StyleBalanced ResponseStyle = "balanced"
	StyleDetailed ResponseStyle = "detailed"
	StyleCreative ResponseStyle = "creative"
)

// BotConfig is the per-user bot configuration persisted as JSON.
type BotConfig struct {
	BotName            string        `json:"bot_name" yaml:"bot_name"`
	PromptTemplate     *string       `json:"prompt_template" yaml:"prompt_template"`
	LLMProvider        string        `json:"llm_provider" yaml:"llm_provider"`
	LLMModel           string        `json:"llm_model" yaml:"llm_model"`
	Temperature        float64       `json:"temperature" yaml:"temperature"`
	MaxTokens          int           `json:"max_tokens" yaml:"max_tokens"`
	TopP               float64       `json:"top_p" yaml:"top_p"`
	FrequencyPenalty   float64       `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty    float64       `json:"presence_penalty" yaml:"presence_penalty"`
	ResponseStyle      ResponseStyle `json:"response_style" yaml:"response_style"`
	SystemInstructions string        `json:"system_instructions" yaml:"system_instructions"`
}
