package mock_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/internal/ai"
	"github.com/kiranshivaraju/enrichq/internal/ai/mock"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest(typ string) models.EnrichmentRequest {
	return models.EnrichmentRequest{OwnerID: uuid.New(), EnrichmentType: typ}
}

func TestMockProvider_Default(t *testing.T) {
	p := mock.NewMockProvider()
	req := sampleRequest(models.EnrichmentHSCode)

	out, err := p.Enrich(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, out.Success)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(out.Payload, &payload))
	assert.Equal(t, req.OwnerID.String(), payload["owner_id"])
	assert.Equal(t, models.EnrichmentHSCode, payload["enrichment_type"])
}

func TestMockProvider_ZeroValueSucceeds(t *testing.T) {
	out, err := (&mock.MockProvider{}).Enrich(context.Background(), sampleRequest("x"))
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestFailingProvider(t *testing.T) {
	want := errors.New("boom")
	_, err := mock.NewFailingProvider(want).Enrich(context.Background(), sampleRequest(models.EnrichmentTaxonomy))
	assert.ErrorIs(t, err, want)
}

func TestSelectiveProvider(t *testing.T) {
	p := mock.NewSelectiveProvider(models.EnrichmentAmazonLink)

	_, err := p.Enrich(context.Background(), sampleRequest(models.EnrichmentAmazonLink))
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)

	out, err := p.Enrich(context.Background(), sampleRequest(models.EnrichmentAttributes))
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestTimeoutProvider(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mock.NewTimeoutProvider().Enrich(ctx, sampleRequest(models.EnrichmentAttributes))
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}
