package cohere

// Config contains Cohere provider configuration.
type Config struct {
	APIKey  string `env:"COHERE_API_KEY"`
	BaseURL string `env:"COHERE_BASE_URL" envDefault:"https://api.cohere.com/v1"`
	Timeout int    `env:"COHERE_TIMEOUT"  envDefault:"300"`
}
