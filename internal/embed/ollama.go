package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

// OllamaConfig configures the HTTP embedding backend for a GPU-runtime-local
// server speaking Ollama's `/api/embeddings` protocol (§4.8 "GPU-runtime"
// validation path).
type OllamaConfig struct {
	Host       string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultOllamaConfig fills in the teacher's defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       "http://localhost:11434",
		Model:      "nomic-embed-text",
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// OllamaEmbedder generates embeddings by calling a local Ollama-compatible
// HTTP server. Adapted from the teacher's OllamaEmbedder, trimmed to the
// spec's Embedder contract: the thermal-timeout-progression and
// checkpoint-resume machinery the teacher carries for its own CLI is not
// part of this capability's contract and is dropped (see DESIGN.md).
type OllamaEmbedder struct {
	client  *http.Client
	cfg     OllamaConfig
	breaker *CircuitBreaker

	mu   sync.RWMutex
	dims int
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder constructs a backend without contacting the server;
// dimension is discovered lazily on the first embed or via Probe.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaConfig().Host
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &OllamaEmbedder{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		breaker: NewCircuitBreaker("ollama:"+cfg.Host, 5, 30*time.Second),
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if !e.breaker.Allow() {
		return nil, kerrors.EmbeddingTransient(fmt.Sprintf("ollama circuit %s open", e.breaker.Name()), ErrCircuitOpen)
	}

	var result []float32
	retryCfg := RetryConfig{
		MaxRetries:   e.cfg.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}

	err := DownloadWithRetry(ctx, retryCfg, func() error {
		body, err := json.Marshal(ollamaRequest{Model: e.cfg.Model, Prompt: text})
		if err != nil {
			return kerrors.EmbeddingPermanent("marshal ollama request", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(e.cfg.Host, "/")+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return kerrors.EmbeddingPermanent("build ollama request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return kerrors.EmbeddingTransient("ollama request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			data, _ := io.ReadAll(resp.Body)
			return kerrors.EmbeddingPermanent(fmt.Sprintf("ollama model %q not found: %s", e.cfg.Model, data), nil)
		}
		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			return kerrors.EmbeddingTransient(fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, data), nil)
		}

		var parsed ollamaResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return kerrors.EmbeddingTransient("decode ollama response", err)
		}
		if len(parsed.Embedding) == 0 {
			return kerrors.EmbeddingTransient("ollama returned empty embedding", nil)
		}
		result = parsed.Embedding
		return nil
	})
	if err != nil {
		e.breaker.RecordFailure()
		return nil, err
	}
	e.breaker.RecordSuccess()
	return result, nil
}

// EmbedBatch calls the server once per text; Ollama's embeddings endpoint
// has no native batch form.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.embedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
		e.recordDimension(len(v))
	}
	return out, nil
}

// EmbedQuery delegates to the same embedding call; Ollama's protocol does
// not distinguish query from document embedding.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	v, err := e.embedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	e.recordDimension(len(v))
	return v, nil
}

func (e *OllamaEmbedder) recordDimension(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 {
		e.dims = n
	}
}

// Probe issues a tiny embedding request bounded to the GPU-runtime-local
// timeout (2s per §5). Any failure, including a model-not-found 404, is
// returned; a successful probe records the embedding dimension.
func (e *OllamaEmbedder) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	v, err := e.embedOne(probeCtx, "probe")
	if err != nil {
		return err
	}
	e.recordDimension(len(v))
	return nil
}

// Dimension returns the first-discovered embedding dimension, 0 if unknown.
func (e *OllamaEmbedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// Close closes the HTTP client's idle connections; the stdlib client owns no
// other resources that must be explicitly released.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
