package generator

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultGeminiModel is the model tools were originally generated with
const DefaultGeminiModel = "gemini-2.0-flash"

// NewGeminiProvider creates a provider for Google Gemini through its
// OpenAI-compatible chat completions API
func NewGeminiProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}
	return newOpenAICompatible("gemini", apiKey, baseURL)
}
