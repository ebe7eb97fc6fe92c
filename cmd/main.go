package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/davidbz/polyphony/internal/catalog"
	"github.com/davidbz/polyphony/internal/config"
	"github.com/davidbz/polyphony/internal/domain"
	historyredis "github.com/davidbz/polyphony/internal/history/redis"
	"github.com/davidbz/polyphony/internal/http"
	"github.com/davidbz/polyphony/internal/http/middleware"
	"github.com/davidbz/polyphony/internal/observability"
	"github.com/davidbz/polyphony/internal/provider/anthropic"
	"github.com/davidbz/polyphony/internal/provider/cohere"
	"github.com/davidbz/polyphony/internal/provider/gemini"
	"github.com/davidbz/polyphony/internal/provider/groq"
	"github.com/davidbz/polyphony/internal/provider/openai"
)

const shutdownTimeout = 10 * time.Second

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		go func() {
			if startErr := server.Start(); startErr != nil {
				log.Fatalf("Server failed to start: %v", startErr)
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
			log.Fatalf("Server shutdown failed: %v", shutdownErr)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Model Catalog
	if err := container.Provide(func() domain.ModelCatalog {
		return catalog.New()
	}); err != nil {
		log.Fatalf("Failed to provide catalog: %v", err)
	}

	// History Store
	if err := container.Provide(func(cfg *config.RedisConfig) domain.HistoryStore {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return historyredis.NewStore(client)
	}); err != nil {
		log.Fatalf("Failed to provide history store: %v", err)
	}

	// Provider Adapters. A missing API key is a startup failure, never a
	// per-request one.
	if err := container.Provide(buildAdapters); err != nil {
		log.Fatalf("Failed to provide adapters: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		cat domain.ModelCatalog,
		adapters map[string]domain.ProviderAdapter,
		history domain.HistoryStore,
		cfg *config.DispatchConfig,
	) *domain.Dispatcher {
		return domain.NewDispatcher(cat, adapters, history,
			time.Duration(cfg.StreamTimeout)*time.Second)
	}); err != nil {
		log.Fatalf("Failed to provide dispatcher: %v", err)
	}
	if err := container.Provide(domain.NewFanOut); err != nil {
		log.Fatalf("Failed to provide fan-out client: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// buildAdapters constructs one long-lived adapter per provider, keyed by the
// catalog client binding. Every provider in the directory must be fully
// configured; each constructor rejects a missing API key.
func buildAdapters(cfg *config.Config) (map[string]domain.ProviderAdapter, error) {
	adapters := make(map[string]domain.ProviderAdapter)

	openaiAdapter, err := openai.NewAdapter(cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	adapters[catalog.BindingOpenAI] = openaiAdapter

	groqAdapter, err := groq.NewAdapter(cfg.Groq)
	if err != nil {
		return nil, fmt.Errorf("groq: %w", err)
	}
	adapters[catalog.BindingGroq] = groqAdapter

	anthropicAdapter, err := anthropic.NewAdapter(cfg.Anthropic)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	adapters[catalog.BindingAnthropic] = anthropicAdapter

	geminiAdapter, err := gemini.NewAdapter(context.Background(), cfg.Gemini)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	adapters[catalog.BindingGemini] = geminiAdapter

	cohereAdapter, err := cohere.NewAdapter(cfg.Cohere)
	if err != nil {
		return nil, fmt.Errorf("cohere: %w", err)
	}
	adapters[catalog.BindingCohere] = cohereAdapter

	return adapters, nil
}
