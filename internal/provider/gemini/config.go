package gemini

// Config contains Gemini provider configuration.
type Config struct {
	APIKey string `env:"GEMINI_API_KEY"`
}
