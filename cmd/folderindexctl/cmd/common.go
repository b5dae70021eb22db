package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/foldermcp/folderindex/internal/config"
	"github.com/foldermcp/folderindex/internal/logging"
	"github.com/foldermcp/folderindex/internal/telemetry"
	"github.com/foldermcp/folderindex/pkg/folder"
)

// metrics is process-wide: every Folder opened by this CLI invocation
// records into the same Prometheus registry, so a single /metrics endpoint
// (see watch.go's --metrics-addr) reports across all of them.
var metrics = telemetry.NewMetricsCollector("folderindex")

// openFolder wires a pkg/folder.Folder for path, optionally overriding the
// configured embedding backend. Tracing and Sentry reporting are read from
// path's config so each folder can opt in independently.
func openFolder(ctx context.Context, path, backend string) (*folder.Folder, error) {
	tracer := telemetry.NewTracer(telemetry.DefaultTracerConfig())
	var reporter *telemetry.ErrorReporter

	if cfg, err := config.Load(path); err == nil {
		tracer = telemetry.NewTracer(telemetry.TracerConfig{
			ServiceName:  "folderindexctl",
			SamplingRate: cfg.Telemetry.SamplingRate,
			Enabled:      cfg.Telemetry.TracingEnabled,
		})
		if r, err := telemetry.NewErrorReporter(telemetry.ErrorReporterConfig{
			DSN:         cfg.Telemetry.SentryDSN,
			Environment: os.Getenv("FOLDERMCP_ENV"),
			Enabled:     cfg.Telemetry.SentryDSN != "",
		}); err == nil {
			reporter = r
		}
	}

	return folder.Open(ctx, path, folder.Options{
		Provider:      backend,
		Metrics:       metrics,
		Tracer:        tracer,
		ErrorReporter: reporter,
	})
}

// setupLogging reads path's server.log_level (a folder with no config file
// gets the default level; SetupDefault's debug level is used only when the
// config fails to load) and starts file logging at that level, so a
// folder configured for "warn" doesn't get a debug-noisy log file just
// because a subcommand ran against it.
func setupLogging(path string) (func(), error) {
	cfg, err := config.Load(path)
	if err != nil {
		return logging.SetupDefault()
	}
	logger, cleanup, err := logging.Setup(logging.FromServerLevel(cfg.Server.LogLevel))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}
