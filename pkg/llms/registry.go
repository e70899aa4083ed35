package llms

import (
	"fmt"

	"github.com/medquery/medquery/pkg/config"
	"github.com/medquery/medquery/pkg/registry"
)

// LLMRegistry tracks the generation providers built from configuration,
// keyed by the instance name used in the chat configuration.
type LLMRegistry struct {
	*registry.BaseRegistry[LLMProvider]
}

func NewLLMRegistry() *LLMRegistry {
	return &LLMRegistry{
		BaseRegistry: registry.NewBaseRegistry[LLMProvider](),
	}
}

func (r *LLMRegistry) RegisterLLM(name string, provider LLMProvider) error {
	if name == "" {
		return fmt.Errorf("LLM name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("LLM provider cannot be nil")
	}
	return r.Register(name, provider)
}

func (r *LLMRegistry) CreateLLMFromConfig(name string, cfg *config.LLMConfig) (LLMProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("LLM name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("LLM config cannot be nil")
	}

	var provider LLMProvider
	var err error

	switch cfg.Provider {
	case "openai":
		provider, err = NewOpenAIProviderFromConfig(cfg)
	case "anthropic":
		provider, err = NewAnthropicProviderFromConfig(cfg)
	case "gemini":
		provider, err = NewGeminiProviderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic, gemini)", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	if err := r.RegisterLLM(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register LLM: %w", err)
	}

	return provider, nil
}

func (r *LLMRegistry) GetLLM(name string) (LLMProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("LLM provider '%s' not found", name)
	}
	return provider, nil
}

// Resolve finds the instance serving a request. The named instance
// wins when it serves the requested model (or no model was requested);
// otherwise any configured instance with that model is used. Resolution
// is purely a registry lookup, it never touches the network.
func (r *LLMRegistry) Resolve(name, model string) (LLMProvider, error) {
	provider, err := r.GetLLM(name)
	if err != nil {
		return nil, err
	}
	if model == "" || provider.GetModelName() == model {
		return provider, nil
	}

	for _, candidate := range r.List() {
		if candidate.GetModelName() == model {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("no configured LLM instance serves model '%s'", model)
}
