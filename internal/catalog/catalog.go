// Package catalog holds the static provider/model directory. It is built
// once at startup, read-only afterwards, and safe to consult from any number
// of concurrent dispatches without locking.
package catalog

import (
	"fmt"

	"github.com/davidbz/polyphony/internal/domain"
)

// Client binding names used to key configured adapters.
const (
	BindingOpenAI    = "openai"
	BindingGroq      = "groq"
	BindingAnthropic = "anthropic"
	BindingGemini    = "gemini"
	BindingCohere    = "cohere"
)

// Catalog implements domain.ModelCatalog over a fixed descriptor list.
type Catalog struct {
	providers       []domain.ProviderDescriptor
	modelByID       map[string]domain.ModelDescriptor
	providerByModel map[string]domain.ProviderDescriptor
}

// New creates the default catalog.
func New() *Catalog {
	return NewWithProviders(defaultProviders())
}

// NewWithProviders creates a catalog from an explicit descriptor list.
func NewWithProviders(providers []domain.ProviderDescriptor) *Catalog {
	c := &Catalog{
		providers:       providers,
		modelByID:       make(map[string]domain.ModelDescriptor),
		providerByModel: make(map[string]domain.ProviderDescriptor),
	}
	for _, provider := range providers {
		for _, model := range provider.Models {
			c.modelByID[model.ID] = model
			c.providerByModel[model.ID] = provider
		}
	}
	return c
}

// AllModels returns every enabled model. Disabled models are never listed;
// that is an invariant, not a display nicety.
func (c *Catalog) AllModels() []domain.ModelDescriptor {
	var models []domain.ModelDescriptor
	for _, provider := range c.providers {
		for _, model := range provider.Models {
			if model.Enabled {
				models = append(models, model)
			}
		}
	}
	return models
}

// ModelByID resolves a model by exact id only; no fuzzy matching. Disabled
// models still resolve so dispatch-time validation can reject them with a
// precise reason.
func (c *Catalog) ModelByID(id string) (domain.ModelDescriptor, error) {
	model, exists := c.modelByID[id]
	if !exists {
		return domain.ModelDescriptor{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, id)
	}
	return model, nil
}

// ProviderForModel finds the provider whose model list contains the id.
func (c *Catalog) ProviderForModel(id string) (domain.ProviderDescriptor, error) {
	provider, exists := c.providerByModel[id]
	if !exists {
		return domain.ProviderDescriptor{}, fmt.Errorf("%w: no provider for %s", domain.ErrUnsupportedModel, id)
	}
	return provider, nil
}

// Providers returns the full descriptor list.
func (c *Catalog) Providers() []domain.ProviderDescriptor {
	return c.providers
}

// defaultProviders is the shipped directory. Disabled entries are retired or
// not-yet-released models kept for exact-id resolution.
func defaultProviders() []domain.ProviderDescriptor {
	return []domain.ProviderDescriptor{
		{
			Name:          "OpenAI",
			ClientBinding: BindingOpenAI,
			Nickname:      "Sage",
			Models: []domain.ModelDescriptor{
				{ID: "gpt-4o-2024-08-06", DisplayName: "GPT-4o", MaxOutputTokens: 16384, Enabled: true},
				{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", MaxOutputTokens: 16384, Enabled: true},
				{ID: "gpt-4.5-preview", DisplayName: "GPT-4.5 Preview", MaxOutputTokens: 16384, Enabled: false},
			},
		},
		{
			Name:          "Anthropic",
			ClientBinding: BindingAnthropic,
			Nickname:      "Scribe",
			Models: []domain.ModelDescriptor{
				{ID: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet", MaxOutputTokens: 8192, Enabled: true},
				{ID: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku", MaxOutputTokens: 8192, Enabled: true},
			},
		},
		{
			Name:          "Google",
			ClientBinding: BindingGemini,
			Nickname:      "Prism",
			Models: []domain.ModelDescriptor{
				{ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", MaxOutputTokens: 8192, Enabled: true},
				{ID: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash", MaxOutputTokens: 8192, Enabled: true},
			},
		},
		{
			Name:          "Groq",
			ClientBinding: BindingGroq,
			Nickname:      "Bolt",
			Models: []domain.ModelDescriptor{
				{ID: "llama-3.3-70b-versatile", DisplayName: "Llama 3.3 70B", MaxOutputTokens: 32768, Enabled: true},
				// Decommissioned upstream 2025-03; kept for exact-id resolution.
				{ID: "mixtral-8x7b-32768", DisplayName: "Mixtral 8x7B", MaxOutputTokens: 32768, Enabled: false},
			},
		},
		{
			Name:          "Cohere",
			ClientBinding: BindingCohere,
			Nickname:      "Compass",
			Models: []domain.ModelDescriptor{
				{ID: "command-r-plus-08-2024", DisplayName: "Command R+", MaxOutputTokens: 4096, Enabled: true},
				{ID: "command-r-08-2024", DisplayName: "Command R", MaxOutputTokens: 4096, Enabled: true},
			},
		},
	}
}
