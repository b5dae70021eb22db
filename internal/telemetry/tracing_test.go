package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTracerConfig_IsDisabled(t *testing.T) {
	cfg := DefaultTracerConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "folderindexctl", cfg.ServiceName)
}

func TestNewTracer_DisabledStillReturnsWorkingTracer(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	require.NotNil(t, tr)

	ctx, span := tr.Start(context.Background(), "op")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestNewTracer_EnabledBuildsSampledProvider(t *testing.T) {
	tr := NewTracer(TracerConfig{ServiceName: "test-svc", SamplingRate: 1.0, Enabled: true})
	require.NotNil(t, tr)

	_, span := tr.Start(context.Background(), "op")
	require.NotNil(t, span)
	span.End()
}
