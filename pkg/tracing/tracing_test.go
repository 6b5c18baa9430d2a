package tracing_test

import (
	"context"
	"testing"

	"github.com/scalarorg/ismp-relayer/pkg/tracing"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	shutdown, err := tracing.Init(context.Background(), tracing.Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	shutdown, err = tracing.Init(context.Background(), tracing.Config{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Insecure:    true,
		ServiceName: "ismp-relayer-test",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
