package ai

import (
	"fmt"

	"github.com/kiranshivaraju/enrichq/internal/ai/anthropic"
	"github.com/kiranshivaraju/enrichq/internal/ai/mock"
	"github.com/kiranshivaraju/enrichq/internal/ai/remote"
	"github.com/kiranshivaraju/enrichq/internal/config"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// NewProvider constructs the enrichment capability selected by config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.Enricher, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "http":
		return remote.NewProvider(cfg.HTTP, cfg.InferenceTimeout), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of anthropic, http, mock", cfg.Provider)
	}
}
