package ai

import "github.com/kiranshivaraju/enrichq/pkg/models"

// Re-exported so callers holding only the factory can match provider errors.
var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrInferenceTimeout    = models.ErrInferenceTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse
)
