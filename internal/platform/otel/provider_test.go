package otel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mute/internal/platform/otel"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	t.Setenv(otel.EnvEndpoint, "")
	t.Setenv(otel.EnvEnabled, "")
	shutdown, err := otel.Setup(context.Background(), "mute-test")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	t.Setenv(otel.EnvEndpoint, "http://localhost:4318")
	t.Setenv(otel.EnvEnabled, "FALSE")
	shutdown, err := otel.Setup(context.Background(), "mute-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	// non-routable, nothing is exported before shutdown
	t.Setenv(otel.EnvEndpoint, "http://192.0.2.1:4318")
	t.Setenv(otel.EnvEnabled, "")
	shutdown, err := otel.Setup(context.Background(), "mute-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
