package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToNoopReader(t *testing.T) {
	provider, err := New(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, provider.MeterProvider)
	assert.Nil(t, provider.PromHandler)

	t.Cleanup(func() { _ = provider.MeterProvider.Shutdown(context.Background()) })
}

func TestNew_EnablesPrometheusHandler(t *testing.T) {
	provider, err := New(context.Background(), Config{EnablePrometheus: true})
	require.NoError(t, err)
	assert.NotNil(t, provider.PromHandler)

	t.Cleanup(func() { _ = provider.MeterProvider.Shutdown(context.Background()) })
}
