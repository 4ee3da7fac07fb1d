package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/ai/remote"
	"github.com/kiranshivaraju/enrichq/internal/config"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrich_Success(t *testing.T) {
	owner := uuid.New()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req models.EnrichmentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, owner, req.OwnerID)
		assert.Equal(t, models.EnrichmentAttributes, req.EnrichmentType)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "payload": {"color": "red"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	p := remote.NewProvider(config.HTTPCapabilityConfig{URL: ts.URL, APIKey: "secret"}, 5*time.Second)
	out, err := p.Enrich(context.Background(), models.EnrichmentRequest{OwnerID: owner, EnrichmentType: models.EnrichmentAttributes})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.JSONEq(t, `{"color": "red"}`, string(out.Payload))
}

func TestEnrich_ClientErrorIsFailedOutcome(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success": true, "message": "unknown product"}`)) //nolint:errcheck
	}))
	defer ts.Close()

	out, err := remote.NewProvider(config.HTTPCapabilityConfig{URL: ts.URL}, 5*time.Second).
		Enrich(context.Background(), models.EnrichmentRequest{OwnerID: uuid.New(), EnrichmentType: "x"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "unknown product", out.Message)
}

func TestEnrich_ServerErrorIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := remote.NewProvider(config.HTTPCapabilityConfig{URL: ts.URL}, 5*time.Second).
		Enrich(context.Background(), models.EnrichmentRequest{OwnerID: uuid.New(), EnrichmentType: "x"})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestEnrich_MalformedBodyIsInvalidResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := remote.NewProvider(config.HTTPCapabilityConfig{URL: ts.URL}, 5*time.Second).
		Enrich(context.Background(), models.EnrichmentRequest{OwnerID: uuid.New(), EnrichmentType: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestEnrich_TimeoutIsClassified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	_, err := remote.NewProvider(config.HTTPCapabilityConfig{URL: ts.URL}, 20*time.Millisecond).
		Enrich(context.Background(), models.EnrichmentRequest{OwnerID: uuid.New(), EnrichmentType: "x"})
	assert.ErrorIs(t, err, models.ErrInferenceTimeout)
}

func TestEnrich_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := remote.NewProvider(config.HTTPCapabilityConfig{URL: url}, time.Second).
		Enrich(context.Background(), models.EnrichmentRequest{OwnerID: uuid.New(), EnrichmentType: "x"})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}
