// Package models contains shared data models used across the enrichq codebase.
package models

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Enricher is the opaque AI / lookup capability behind every enrichment job.
// Never call specific providers directly; inject this interface.
type Enricher interface {
	// Enrich runs one enrichment of the given type for an owner.
	Enrich(ctx context.Context, req EnrichmentRequest) (EnrichmentOutcome, error)
	// Name returns the provider identifier (e.g., "anthropic", "http").
	Name() string
}

// EnrichmentRequest is the input to a single enrichment call.
type EnrichmentRequest struct {
	OwnerID        uuid.UUID      `json:"owner_id"`
	EnrichmentType string         `json:"enrichment_type"`
	Options        map[string]any `json:"options,omitempty"`
}

// EnrichmentOutcome is what the capability returned. A nil error with
// Success=false is still a failed enrichment.
type EnrichmentOutcome struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Capability failure classes. Providers wrap these so callers can tell an
// unreachable capability from a slow or a confused one.
var (
	ErrProviderUnavailable = errors.New("enrichment provider unavailable")
	ErrInferenceTimeout    = errors.New("enrichment inference timeout")
	ErrInvalidResponse     = errors.New("enrichment provider returned invalid response")
)
