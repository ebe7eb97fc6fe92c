package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/polyphony/internal/provider/anthropic"
	"github.com/davidbz/polyphony/internal/provider/cohere"
	"github.com/davidbz/polyphony/internal/provider/gemini"
	"github.com/davidbz/polyphony/internal/provider/groq"
	"github.com/davidbz/polyphony/internal/provider/openai"
)

// Config represents the aggregator configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	OpenAI    openai.Config
	Groq      groq.Config
	Anthropic anthropic.Config
	Gemini    gemini.Config
	Cohere    cohere.Config
}

// ServerConfig contains HTTP server settings. WriteTimeout is deliberately
// generous because streaming responses stay open for the whole completion.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"600"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RedisConfig contains history store connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// DispatchConfig contains stream dispatch settings.
type DispatchConfig struct {
	StreamTimeout int `env:"DISPATCH_STREAM_TIMEOUT" envDefault:"300"`
}

// DepConfig is used for dependency injection with dig. Provider configs all
// share the type name Config, so the fields are named rather than embedded.
type DepConfig struct {
	dig.Out

	Server    *ServerConfig
	CORS      *CORSConfig
	Redis     *RedisConfig
	Dispatch  *DispatchConfig
	OpenAI    *openai.Config
	Groq      *groq.Config
	Anthropic *anthropic.Config
	Gemini    *gemini.Config
	Cohere    *cohere.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:    &cfg.Server,
		CORS:      &cfg.CORS,
		Redis:     &cfg.Redis,
		Dispatch:  &cfg.Dispatch,
		OpenAI:    &cfg.OpenAI,
		Groq:      &cfg.Groq,
		Anthropic: &cfg.Anthropic,
		Gemini:    &cfg.Gemini,
		Cohere:    &cfg.Cohere,
	}
}
