package embed

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

const openaiMaxBatchSize = 100

// OpenAIConfig configures the external-service embedding backend (§4.8
// "external service" validation path).
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty uses the public OpenAI API; set for a compatible proxy
	Model      string
	Dimensions int
}

// OpenAIEmbedder generates embeddings via any OpenAI-compatible
// /embeddings endpoint. Grounded on ziadkadry99-auto-doc's
// internal/embeddings/openai.go.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	dims    int
	breaker *CircuitBreaker
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds a client. dims should be the known output size
// for cfg.Model (1536 for text-embedding-3-small, 3072 for
// text-embedding-3-large); 0 defers dimension reporting until first embed.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	name := cfg.BaseURL
	if name == "" {
		name = "api.openai.com"
	}
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   openai.EmbeddingModel(cfg.Model),
		dims:    cfg.Dimensions,
		breaker: NewCircuitBreaker("openai:"+name, 5, 30*time.Second),
	}
}

// EmbedBatch chunks texts into OpenAI's request batch limit and concatenates
// the results in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += openaiMaxBatchSize {
		end := i + openaiMaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		if !e.breaker.Allow() {
			return nil, kerrors.EmbeddingTransient(fmt.Sprintf("openai circuit %s open", e.breaker.Name()), ErrCircuitOpen)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: e.model,
		})
		if err != nil {
			e.breaker.RecordFailure()
			if isOpenAIPermanent(err) {
				return nil, kerrors.EmbeddingPermanent("openai embedding request failed", err)
			}
			return nil, kerrors.EmbeddingTransient("openai embedding request failed", err)
		}
		e.breaker.RecordSuccess()
		if len(resp.Data) != len(batch) {
			return nil, kerrors.DataIntegrity("openai returned a different embedding count than requested", nil)
		}

		for _, d := range resp.Data {
			out = append(out, d.Embedding)
			if e.dims == 0 {
				e.dims = len(d.Embedding)
			}
		}
	}
	return out, nil
}

// EmbedQuery embeds a single query; OpenAI's embedding models are symmetric,
// so no instruction prefix is applied.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Probe embeds a one-word string with a short timeout to confirm the API
// key and endpoint are reachable (§4.8 "external service" path, 2s bound).
func (e *OpenAIEmbedder) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := e.EmbedQuery(probeCtx, "probe")
	return err
}

// Dimension returns the configured embedding size or, when none was
// configured, the first observed one; 0 until then.
func (e *OpenAIEmbedder) Dimension() int { return e.dims }

// Close is a no-op; the OpenAI client owns no resources requiring explicit
// release.
func (e *OpenAIEmbedder) Close() error { return nil }

// isOpenAIPermanent reports whether err represents a non-recoverable
// configuration problem (bad key, unknown model) rather than a transient
// rate-limit or network hiccup. go-openai surfaces these as *openai.APIError.
func isOpenAIPermanent(err error) bool {
	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return false
	}
	switch apiErr.HTTPStatusCode {
	case 401, 403, 404:
		return true
	default:
		return false
	}
}
