package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), Config{ServiceName: "rifa-api"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}
