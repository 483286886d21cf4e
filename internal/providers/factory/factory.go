package factory

import (
	"fmt"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/providers"
	"github.com/vidscope/vidscope-backend/internal/providers/anthropic"
	"github.com/vidscope/vidscope-backend/internal/providers/local"
	"github.com/vidscope/vidscope-backend/internal/providers/mock"
	"github.com/vidscope/vidscope-backend/internal/providers/openai"
)

// CreateProvider creates a provider instance based on configuration
func CreateProvider(id string, cfg config.ProviderConfig) (providers.Provider, error) {
	switch cfg.Type {
	case "openai":
		return openai.NewProvider(id, cfg)
	case "anthropic":
		return anthropic.NewProvider(id, cfg)
	case "openai-compatible":
		return local.NewOpenAICompatibleProvider(id, cfg)
	case "ollama":
		// Ollama exposes an OpenAI-compatible surface
		return local.NewOpenAICompatibleProvider(id, cfg)
	case "mock":
		return mock.NewProvider(id, cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// RegisterFromConfig builds and registers every configured provider.
// Providers that fail to construct (missing API key, bad URL) are skipped so
// one broken entry does not take the whole service down.
func RegisterFromConfig(registry *providers.Registry, cfgs map[string]config.ProviderConfig) map[string]error {
	failures := map[string]error{}
	for id, cfg := range cfgs {
		p, err := CreateProvider(id, cfg)
		if err != nil {
			failures[id] = err
			continue
		}
		registry.Register(id, p)
	}
	return failures
}
