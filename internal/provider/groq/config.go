package groq

// Config contains Groq provider configuration. Groq exposes an
// OpenAI-compatible chat completions API.
type Config struct {
	APIKey  string `env:"GROQ_API_KEY"`
	BaseURL string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	Timeout int    `env:"GROQ_TIMEOUT"  envDefault:"300"`
}
