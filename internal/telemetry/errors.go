package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// ErrorReporterConfig configures Sentry error reporting. Grounded on
// ferg-cod3s-conexus's internal/observability.ErrorHandler, trimmed from its
// MCP-tool-call context (RequestID/ToolName/UserID, none of which exist in
// this domain) down to the one thing a folder-indexing CLI needs to report:
// which operation failed and why.
type ErrorReporterConfig struct {
	DSN         string
	Environment string
	Enabled     bool
}

// ErrorReporter sends unexpected failures (as opposed to expected,
// user-facing errors like "no such folder") to Sentry when configured.
type ErrorReporter struct {
	enabled bool
}

// NewErrorReporter initializes the Sentry SDK if cfg.Enabled and cfg.DSN are
// set; otherwise every Report call is a no-op.
func NewErrorReporter(cfg ErrorReporterConfig) (*ErrorReporter, error) {
	if !cfg.Enabled || cfg.DSN == "" {
		return &ErrorReporter{enabled: false}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	}); err != nil {
		return nil, err
	}
	return &ErrorReporter{enabled: true}, nil
}

// Report captures err with the given operation name and tags.
func (r *ErrorReporter) Report(_ context.Context, operation string, err error, tags map[string]string) {
	if !r.enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush blocks until pending events are sent or timeout elapses.
func (r *ErrorReporter) Flush(timeout time.Duration) bool {
	if !r.enabled {
		return true
	}
	return sentry.Flush(timeout)
}
