// Package utils builds a backend.Backend from configuration.
package utils

import (
	"fmt"
	"log/slog"

	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend/ollama"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend/openai"
)

// NewBackend returns the backend selected by c.Provider.
func NewBackend(c config.BackendConfig, logger *slog.Logger) (backend.Backend, error) {
	switch c.Provider {
	case "", "ollama":
		return ollama.New(&ollama.Config{
			Target:         c.Target,
			ConnectTimeout: c.ConnectTimeoutDuration(),
			Logger:         logger,
		}), nil
	case "openai":
		return openai.New(&openai.Config{
			Target:         c.Target,
			APIKey:         c.APIKey,
			ConnectTimeout: c.ConnectTimeoutDuration(),
			Logger:         logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend provider %q (supported: %v)", c.Provider, config.BackendProviders)
	}
}
