package embed

import "fmt"

// Config is the subset of config.EmbeddingConfig the factory needs,
// declared locally so internal/embed does not import internal/config
// (avoiding a dependency cycle with packages config already touches).
type Config struct {
	Provider      string
	Model         string
	Dimensions    int
	BatchSize     int
	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	ONNXModelDir  string
	ONNXORTLibPath string
}

// New builds the configured Embedder backend. This is the one place that
// chooses among the three backends §11 names; every other package depends
// only on the Embedder interface.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		oc := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			oc.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		return NewOllamaEmbedder(oc), nil

	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	case "onnx":
		return NewONNXEmbedder(ONNXConfig{
			ModelDir:   cfg.ONNXModelDir,
			ORTLibPath: cfg.ONNXORTLibPath,
			OutputDim:  cfg.Dimensions,
		})

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want ollama, openai, or onnx)", cfg.Provider)
	}
}
