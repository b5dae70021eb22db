package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 500, cfg.Indexing.ChunkSize)
	require.Equal(t, 50, cfg.Indexing.ChunkOverlap)
	require.Equal(t, 3_600_000, cfg.Indexing.OrphanCleanupIntervalMs)
	require.Equal(t, 1000, cfg.Indexing.ProgressThrottleMs)
	require.Equal(t, 4, cfg.Queue.MaxConcurrentFiles)
	require.Equal(t, 3, cfg.Queue.MaxRetries)
	require.Equal(t, 1000, cfg.Queue.RetryDelayMs)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "indexing:\n  chunk_size: 250\nembedding:\n  provider: openai\n  model: text-embedding-3-small\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".folder-mcp.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 250, cfg.Indexing.ChunkSize)
	require.Equal(t, "openai", cfg.Embedding.Provider)
	require.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	require.Equal(t, 4, cfg.Queue.MaxConcurrentFiles) // untouched default survives
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "embedding:\n  model: nomic-embed-text\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".folder-mcp.yaml"), []byte(yaml), 0o644))

	t.Setenv("FOLDERMCP_EMBEDDING_MODEL", "mxbai-embed-large")
	t.Setenv("FOLDERMCP_MAX_CONCURRENT_FILES", "8")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "mxbai-embed-large", cfg.Embedding.Model)
	require.Equal(t, 8, cfg.Queue.MaxConcurrentFiles)
}

func TestLoad_TelemetryEnvOverrides(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("FOLDERMCP_TRACING_ENABLED", "true")
	t.Setenv("FOLDERMCP_SENTRY_DSN", "https://public@sentry.example/1")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.True(t, cfg.Telemetry.TracingEnabled)
	require.Equal(t, "https://public@sentry.example/1", cfg.Telemetry.SentryDSN)
}

func TestDefaultConfig_TelemetryDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	require.False(t, cfg.Telemetry.TracingEnabled)
	require.Equal(t, "", cfg.Telemetry.SentryDSN)
}

func TestValidate_RejectsMissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Model = ""
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadOverlap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indexing.ChunkOverlap = cfg.Indexing.ChunkSize
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "bogus"
	require.Error(t, cfg.Validate())
}
