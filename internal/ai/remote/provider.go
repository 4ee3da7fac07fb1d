// Package remote calls an enrichment capability exposed over HTTP: a POST of
// the JSON EnrichmentRequest answered by a JSON EnrichmentOutcome.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kiranshivaraju/enrichq/internal/config"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

const maxResponseBytes = 1 << 20

// Provider implements models.Enricher against a remote endpoint.
type Provider struct {
	url    string
	apiKey string
	client *http.Client
}

// NewProvider creates a Provider. timeout bounds each HTTP exchange.
func NewProvider(cfg config.HTTPCapabilityConfig, timeout time.Duration) *Provider {
	return &Provider{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "http" }

func (p *Provider) Enrich(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentOutcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.EnrichmentOutcome{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return models.EnrichmentOutcome{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.EnrichmentOutcome{}, classifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.EnrichmentOutcome{}, classifyError(err)
	}

	if resp.StatusCode >= 500 {
		return models.EnrichmentOutcome{}, fmt.Errorf("%w: status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	var out models.EnrichmentOutcome
	if err := json.Unmarshal(data, &out); err != nil {
		return models.EnrichmentOutcome{}, fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
	}
	if resp.StatusCode != http.StatusOK {
		out.Success = false
		if out.Message == "" {
			out.Message = fmt.Sprintf("capability returned status %d", resp.StatusCode)
		}
	}
	return out, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

var _ models.Enricher = (*Provider)(nil)
