// Package config mirrors the teacher's YAML-driven configuration layer:
// one struct per concern, a DefaultConfig constructor, a file loader, and
// environment variable overrides applied in order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the per-folder configuration, covering every field §6's
// "Configuration (enumerated)" table names plus the embedding backend
// selection SPEC_FULL §11 adds.
type Config struct {
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Queue     QueueConfig     `yaml:"queue" json:"queue"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// IndexingConfig controls chunking, ignore rules, and orphan cleanup.
type IndexingConfig struct {
	ChunkSize               int      `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap            int      `yaml:"chunk_overlap" json:"chunk_overlap"`
	SupportedExtensions     []string `yaml:"supported_extensions" json:"supported_extensions"`
	IgnorePatterns          []string `yaml:"ignore_patterns" json:"ignore_patterns"`
	OrphanCleanupIntervalMs int      `yaml:"orphan_cleanup_interval_ms" json:"orphan_cleanup_interval_ms"`
	ProgressThrottleMs      int      `yaml:"progress_throttle_ms" json:"progress_throttle_ms"`
}

// EmbeddingConfig selects and configures the Embedder backend (§6).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // "onnx", "ollama", "openai"
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"-" json:"-"` // never serialized; read from env only

	ONNXModelDir   string `yaml:"onnx_model_dir" json:"onnx_model_dir"`
	ONNXORTLibPath string `yaml:"onnx_ort_lib_path" json:"onnx_ort_lib_path"`
}

// QueueConfig controls the bounded-concurrency task scheduler (§4.4).
type QueueConfig struct {
	MaxConcurrentFiles int `yaml:"max_concurrent_files" json:"max_concurrent_files"`
	MaxRetries         int `yaml:"max_retries" json:"max_retries"`
	RetryDelayMs       int `yaml:"retry_delay_ms" json:"retry_delay_ms"`
}

// ServerConfig controls the demo CLI/daemon-facing knobs.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// TelemetryConfig controls optional tracing and error reporting. Both are
// off by default; a folder owner opts in per-project or via environment.
type TelemetryConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled" json:"tracing_enabled"`
	SamplingRate   float64 `yaml:"sampling_rate" json:"sampling_rate"`

	SentryDSN string `yaml:"-" json:"-"` // never serialized; read from env only
}

// DefaultConfig returns the configuration with every default from §6.
func DefaultConfig() *Config {
	return &Config{
		Indexing: IndexingConfig{
			ChunkSize:               500,
			ChunkOverlap:            50,
			SupportedExtensions:     nil,
			IgnorePatterns:          []string{".git", "node_modules", ".folder-mcp"},
			OrphanCleanupIntervalMs: 3_600_000,
			ProgressThrottleMs:      1000,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
		},
		Queue: QueueConfig{
			MaxConcurrentFiles: 4,
			MaxRetries:         3,
			RetryDelayMs:       1000,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
		Telemetry: TelemetryConfig{
			TracingEnabled: false,
			SamplingRate:   1.0,
		},
	}
}

// Load applies configuration in order of increasing precedence: hardcoded
// defaults, then a project config file (.folder-mcp.yaml or .yml in dir),
// then FOLDERMCP_*-prefixed environment variables.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".folder-mcp.yaml", ".folder-mcp.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// applyEnvOverrides overrides fields with FOLDERMCP_* environment variables,
// the highest-precedence layer per the teacher's "user < project < env"
// note (restated in SPEC_FULL §10).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FOLDERMCP_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("FOLDERMCP_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("FOLDERMCP_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("FOLDERMCP_OPENAI_API_KEY"); v != "" {
		c.Embedding.OpenAIAPIKey = v
	}
	if v := os.Getenv("FOLDERMCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("FOLDERMCP_MAX_CONCURRENT_FILES"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.Queue.MaxConcurrentFiles = n
		}
	}
	if v := os.Getenv("FOLDERMCP_TRACING_ENABLED"); v != "" {
		c.Telemetry.TracingEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("FOLDERMCP_SENTRY_DSN"); v != "" {
		c.Telemetry.SentryDSN = v
	}
}

// Validate reports whether the configuration is usable. embeddingModel is
// required per §6.
func (c *Config) Validate() error {
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be positive")
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Queue.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("queue.max_concurrent_files must be positive")
	}
	switch c.Embedding.Provider {
	case "ollama", "openai", "onnx":
	default:
		return fmt.Errorf("embedding.provider must be one of ollama, openai, onnx, got %q", c.Embedding.Provider)
	}
	return nil
}

// OrphanCleanupInterval returns IndexingConfig.OrphanCleanupIntervalMs as a
// time.Duration for direct use by ChangeDetector.
func (c *Config) OrphanCleanupInterval() time.Duration {
	return time.Duration(c.Indexing.OrphanCleanupIntervalMs) * time.Millisecond
}

// ProgressThrottle returns IndexingConfig.ProgressThrottleMs as a
// time.Duration for direct use by FolderLifecycleService.
func (c *Config) ProgressThrottle() time.Duration {
	return time.Duration(c.Indexing.ProgressThrottleMs) * time.Millisecond
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
