package mock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// MockProvider satisfies models.Enricher for local runs and tests.
type MockProvider struct {
	Name_      string
	EnrichFunc func(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentOutcome, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Enrich(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentOutcome, error) {
	if m.EnrichFunc != nil {
		return m.EnrichFunc(ctx, req)
	}
	return models.EnrichmentOutcome{Success: true}, nil
}

// NewMockProvider returns a MockProvider that succeeds deterministically,
// echoing the request in the payload.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		EnrichFunc: func(_ context.Context, req models.EnrichmentRequest) (models.EnrichmentOutcome, error) {
			payload, err := json.Marshal(map[string]string{
				"owner_id":        req.OwnerID.String(),
				"enrichment_type": req.EnrichmentType,
				"source":          "mock",
			})
			if err != nil {
				return models.EnrichmentOutcome{}, err
			}
			return models.EnrichmentOutcome{Success: true, Payload: payload}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		EnrichFunc: func(_ context.Context, _ models.EnrichmentRequest) (models.EnrichmentOutcome, error) {
			return models.EnrichmentOutcome{}, err
		},
	}
}

// NewSelectiveProvider fails only the listed enrichment types.
func NewSelectiveProvider(failing ...string) *MockProvider {
	fail := make(map[string]bool, len(failing))
	for _, t := range failing {
		fail[t] = true
	}
	base := NewMockProvider()
	return &MockProvider{
		Name_: "mock-selective",
		EnrichFunc: func(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentOutcome, error) {
			if fail[req.EnrichmentType] {
				return models.EnrichmentOutcome{}, fmt.Errorf("%w: %s capability down", models.ErrProviderUnavailable, req.EnrichmentType)
			}
			return base.EnrichFunc(ctx, req)
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		EnrichFunc: func(ctx context.Context, _ models.EnrichmentRequest) (models.EnrichmentOutcome, error) {
			<-ctx.Done()
			return models.EnrichmentOutcome{}, models.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements Enricher.
var _ models.Enricher = (*MockProvider)(nil)
