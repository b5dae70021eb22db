package embed

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

// ONNXConfig configures the local CPU-bound embedding backend (§4.8
// "CPU-local" validation path).
type ONNXConfig struct {
	ModelDir     string // directory containing model.onnx and tokenizer.json
	ORTLibPath   string // path to onnxruntime shared library; "" uses the system default
	NumThreads   int    // 0 picks min(4, NumCPU)
	MaxSeqLen    int    // 0 defaults to 256
	OutputDim    int    // 0 defaults to DefaultDimensions
	QueryPrefix  string // prepended to queries for asymmetric retrieval models
	QueryDefault string
}

const defaultONNXMaxSeqLen = 256

// ONNXEmbedder wraps an ONNX Runtime session and a HuggingFace tokenizer.
// Grounded on Tejas242-sift's internal/embed/embedder.go (BGE-small-en-v1.5
// via onnxruntime_go + daulet/tokenizers), generalized from a single
// hard-coded model to ONNXConfig-driven parameters.
type ONNXEmbedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	dim       int
	maxSeqLen int
	prefix    string
	closed    bool
}

var _ Embedder = (*ONNXEmbedder)(nil)

// NewONNXEmbedder loads the model and tokenizer from cfg.ModelDir. Model
// load failure (missing files, runtime init failure) is always reported as
// kerrors.ErrEmbeddingPermanent: §4.7's fail-fast contract depends on this
// backend never returning a retryable error for an absent runtime.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	modelPath := filepath.Join(cfg.ModelDir, "model.onnx")
	tokenPath := filepath.Join(cfg.ModelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, kerrors.EmbeddingPermanent(fmt.Sprintf("onnx model not found at %s", modelPath), err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, kerrors.EmbeddingPermanent(fmt.Sprintf("tokenizer not found at %s", tokenPath), err)
	}

	if cfg.ORTLibPath != "" {
		ort.SetSharedLibraryPath(cfg.ORTLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, kerrors.EmbeddingPermanent("initialize onnx runtime", err)
	}

	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, kerrors.EmbeddingPermanent("create onnx session options", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, kerrors.EmbeddingPermanent("set onnx intra-op threads", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, kerrors.EmbeddingPermanent("set onnx inter-op threads", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"}, opts)
	if err != nil {
		return nil, kerrors.EmbeddingPermanent("create onnx session", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, kerrors.EmbeddingPermanent("load tokenizer", err)
	}

	maxSeqLen := cfg.MaxSeqLen
	if maxSeqLen <= 0 {
		maxSeqLen = defaultONNXMaxSeqLen
	}
	dim := cfg.OutputDim
	if dim <= 0 {
		dim = DefaultDimensions
	}

	return &ONNXEmbedder{
		session:   session,
		tokenizer: tk,
		dim:       dim,
		maxSeqLen: maxSeqLen,
		prefix:    cfg.QueryPrefix,
	}, nil
}

type onnxEncoded struct {
	ids  []int64
	mask []int64
}

// EmbedBatch runs one ONNX inference call per input batch of texts, mean
// pools the final hidden state over the attention mask, and L2-normalizes
// so cosine similarity reduces to a dot product downstream.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, kerrors.EmbeddingPermanent("onnx embedder is closed", nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	encs := make([]onnxEncoded, len(texts))
	maxLen := 0
	for i, text := range texts {
		enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > e.maxSeqLen {
			ids = ids[:e.maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j := range ids64 {
			ids64[j] = int64(ids[j])
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range mask64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		encs[i] = onnxEncoded{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, kerrors.Parse("all texts tokenized to zero length", nil)
	}

	batchSize := len(texts)
	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range encs {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, kerrors.EmbeddingTransient("build input_ids tensor", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, kerrors.EmbeddingTransient("build attention_mask tensor", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, kerrors.EmbeddingTransient("build token_type_ids tensor", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attnMask, typeIDs}, outputs); err != nil {
		return nil, kerrors.EmbeddingTransient("onnx inference failed", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, kerrors.EmbeddingPermanent("unexpected onnx output tensor type", nil)
	}
	data := hidden.GetData()
	hiddenDim := len(data) / (batchSize * maxLen)

	results := make([][]float32, batchSize)
	for b := 0; b < batchSize; b++ {
		pooled := make([]float32, hiddenDim)
		var count float32
		for t := 0; t < maxLen; t++ {
			if encs[b].mask[t] == 0 {
				continue
			}
			count++
			base := (b*maxLen+t)*hiddenDim
			for d := 0; d < hiddenDim; d++ {
				pooled[d] += data[base+d]
			}
		}
		if count > 0 {
			for d := range pooled {
				pooled[d] /= count
			}
		}
		results[b] = l2Normalize(pooled)
	}
	return results, nil
}

func l2Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / magnitude)
	}
	return out
}

// EmbedQuery prepends the configured instruction prefix (if any) before
// embedding, per the asymmetric-retrieval convention the teacher documents
// for BGE-family models.
func (e *ONNXEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{e.prefix + query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Probe embeds a one-word string; any successful inference proves the
// runtime and model are loaded (§4.8 "CPU-local" path, bounded 1-2s).
func (e *ONNXEmbedder) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := e.EmbedBatch(probeCtx, []string{"probe"})
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-probeCtx.Done():
		return kerrors.EmbeddingTransient("onnx probe timed out", probeCtx.Err())
	}
}

// Dimension returns the configured output dimension.
func (e *ONNXEmbedder) Dimension() int { return e.dim }

// Close releases the ONNX session and tokenizer.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.session != nil {
		e.session.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
	return nil
}
