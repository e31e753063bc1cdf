// internal/infrastructure/api/rate_api_integration_test.go
package api

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateAPIIntegration(t *testing.T) {
	// This test makes actual API calls - skip in short mode and without credentials
	if testing.Short() {
		t.Skip("Skipping rate API integration test in short mode")
	}
	apiKey := os.Getenv("PROVIDER_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping rate API integration test: PROVIDER_API_KEY not set")
	}

	client := NewRateAPIClient(ClientOptions{
		BaseURL: os.Getenv("PROVIDER_BASE_URL"),
		APIKey:  apiKey,
		Timeout: 15 * time.Second,
	})
	ctx := context.Background()

	table, err := client.FetchLatest(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, table["USD"])
	assert.Greater(t, table["EUR"], 0.0)

	yesterday := entity.Yesterday(time.Now(), time.UTC)

	// Common currencies to test
	currencies := []string{"EUR", "CAD", "GBP", "JPY"}

	for _, currency := range currencies {
		t.Run(currency, func(t *testing.T) {
			point, err := client.FetchDay(ctx, "USD", currency, yesterday)
			require.NoError(t, err)
			assert.Greater(t, point.Rate, 0.0)

			points, err := client.FetchRange(ctx, "USD", currency, yesterday.AddDate(0, 0, -6), yesterday)
			require.NoError(t, err)
			assert.NotEmpty(t, points)

			t.Logf("Got %d points for USD/%s, latest %f", len(points), currency, point.Rate)
		})
	}
}
