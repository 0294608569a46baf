package infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupTracingIsNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), &Config{ServiceName: "dfund"}, "api")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingWithEndpoint(t *testing.T) {
	// 192.0.2.0/24 is reserved for documentation; nothing is exported.
	cfg := &Config{ServiceName: "dfund", AppEnv: "test", OTLPEndpoint: "http://192.0.2.1:4318"}
	shutdown, err := SetupTracing(context.Background(), cfg, "worker")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
