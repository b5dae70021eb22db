package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorReporter_DisabledByDefault(t *testing.T) {
	r, err := NewErrorReporter(ErrorReporterConfig{})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.enabled)
}

func TestReport_NoopWhenDisabled(t *testing.T) {
	r, err := NewErrorReporter(ErrorReporterConfig{})
	require.NoError(t, err)

	// Must not panic even though Sentry was never initialized.
	r.Report(context.Background(), "scan", errors.New("boom"), map[string]string{"folder": "/tmp/x"})
}

func TestReport_NilErrorIsNoop(t *testing.T) {
	r, err := NewErrorReporter(ErrorReporterConfig{Enabled: true, DSN: "https://public@sentry.example/1"})
	require.NoError(t, err)

	r.Report(context.Background(), "scan", nil, nil)
}

func TestFlush_ReturnsTrueWhenDisabled(t *testing.T) {
	r, err := NewErrorReporter(ErrorReporterConfig{})
	require.NoError(t, err)
	assert.True(t, r.Flush(0))
}
