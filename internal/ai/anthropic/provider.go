// Package anthropic implements the enrichment capability on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/enrichq/internal/config"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// Provider implements models.Enricher using Anthropic.
type Provider struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewProvider creates a Provider. Extra request options are appended after the
// API key, which lets tests point the client at a local server.
func NewProvider(cfg config.AnthropicConfig, opts ...option.RequestOption) *Provider {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Provider{
		client:    sdk.NewClient(reqOpts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Enrich(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentOutcome, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return models.EnrichmentOutcome{}, err
	}

	msg, err := p.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.EnrichmentOutcome{}, fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
		}
		return models.EnrichmentOutcome{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	payload, err := extractJSON(text.String())
	if err != nil {
		return models.EnrichmentOutcome{}, err
	}
	return models.EnrichmentOutcome{Success: true, Payload: payload}, nil
}

const systemPrompt = "You enrich e-commerce product records. " +
	"Answer with a single JSON object and nothing else."

// typeInstructions describes the expected output per enrichment type. Types
// not listed get a generic instruction.
var typeInstructions = map[string]string{
	models.EnrichmentAttributes: `Extract product attributes as {"attributes": {"name": "value", ...}}.`,
	models.EnrichmentHSCode:     `Classify the product as {"hs_code": "6-10 digit code", "description": "..."}.`,
	models.EnrichmentTaxonomy:   `Place the product in a retail taxonomy as {"path": ["Top", "Sub", "Leaf"]}.`,
	models.EnrichmentAmazonLink: `Suggest the matching Amazon listing as {"asin": "...", "confidence": 0.0}.`,
}

func buildPrompt(req models.EnrichmentRequest) (string, error) {
	instruction, ok := typeInstructions[req.EnrichmentType]
	if !ok {
		instruction = fmt.Sprintf("Produce %q enrichment data as a JSON object.", req.EnrichmentType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Product %s.\n%s\n", req.OwnerID, instruction)
	if len(req.Options) > 0 {
		opts, err := json.Marshal(req.Options)
		if err != nil {
			return "", fmt.Errorf("encoding options: %w", err)
		}
		fmt.Fprintf(&b, "Product data and options: %s\n", opts)
	}
	return b.String(), nil
}

// extractJSON returns the outermost JSON object in text, tolerating prose or
// code fences around it.
func extractJSON(text string) (json.RawMessage, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", models.ErrInvalidResponse)
	}
	raw := json.RawMessage(text[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON object", models.ErrInvalidResponse)
	}
	return raw, nil
}

var _ models.Enricher = (*Provider)(nil)
