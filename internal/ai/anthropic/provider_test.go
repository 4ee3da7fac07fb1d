package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/ai/anthropic"
	"github.com/kiranshivaraju/enrichq/internal/config"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageServer(t *testing.T, text string, status int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet-4-5-20250929", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
				"type":  "error",
				"error": map[string]any{"type": "invalid_request_error", "message": "bad request"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":          "msg_test_001",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": text}},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newProvider(baseURL string) *anthropic.Provider {
	return anthropic.NewProvider(config.AnthropicConfig{
		APIKey:    "test-key",
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 512,
	}, option.WithBaseURL(baseURL), option.WithMaxRetries(0))
}

func TestEnrich_ParsesJSONPayload(t *testing.T) {
	ts := messageServer(t, "Here you go:\n```json\n{\"hs_code\": \"940510\"}\n```", http.StatusOK)

	out, err := newProvider(ts.URL).Enrich(context.Background(), models.EnrichmentRequest{
		OwnerID:        uuid.New(),
		EnrichmentType: models.EnrichmentHSCode,
		Options:        map[string]any{"title": "Brass desk lamp"},
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.JSONEq(t, `{"hs_code": "940510"}`, string(out.Payload))
}

func TestEnrich_NoJSONIsInvalidResponse(t *testing.T) {
	ts := messageServer(t, "I cannot help with that.", http.StatusOK)

	_, err := newProvider(ts.URL).Enrich(context.Background(), models.EnrichmentRequest{
		OwnerID: uuid.New(), EnrichmentType: models.EnrichmentTaxonomy,
	})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestEnrich_APIErrorIsUnavailable(t *testing.T) {
	ts := messageServer(t, "", http.StatusBadRequest)

	_, err := newProvider(ts.URL).Enrich(context.Background(), models.EnrichmentRequest{
		OwnerID: uuid.New(), EnrichmentType: models.EnrichmentAttributes,
	})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestName(t *testing.T) {
	assert.Equal(t, "anthropic", newProvider("http://localhost").Name())
}
