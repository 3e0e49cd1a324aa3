package generate

import (
	"fmt"

	"github.com/rbright/storybook/internal/config"
)

// NewBackend selects the configured provider for the configured mode's URL.
func NewBackend(cfg config.Config) (Backend, error) {
	switch cfg.Generation.Provider {
	case config.ProviderOllama, "":
		return NewOllama(cfg.BackendURL(), nil), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.BackendURL(), cfg.Generation.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Generation.Provider)
	}
}
