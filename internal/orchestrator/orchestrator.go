// Package orchestrator implements C7 IndexingOrchestrator (§4.7): the
// per-file pipeline a task worker runs once a file has been selected for
// processing — parse, chunk, embed, and persist, with a fail-fast signal
// for non-recoverable embedding backend errors.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/foldermcp/folderindex/internal/changedetect"
	"github.com/foldermcp/folderindex/internal/chunk"
	"github.com/foldermcp/folderindex/internal/embed"
	"github.com/foldermcp/folderindex/internal/filestate"
	"github.com/foldermcp/folderindex/internal/kerrors"
	"github.com/foldermcp/folderindex/internal/parser"
	"github.com/foldermcp/folderindex/internal/store"
)

// FileReader is the minimal FileSystem capability the orchestrator needs:
// reading a file's bytes. Satisfied by scanner.OSFileSystem.
type FileReader interface {
	Read(path string) ([]byte, error)
}

// ProgressFunc reports chunk-level progress for one file (§4.7 step 4).
type ProgressFunc func(processedChunks, totalChunks int)

// ErrModelLoadFailure wraps a fail-fast embedding error (§4.7's "recognized
// backend initialization error"): model missing, runtime absent. The
// FolderLifecycleService must clear its queue and transition to error on
// this, rather than retry the task.
type ErrModelLoadFailure struct {
	Cause error
}

func (e *ErrModelLoadFailure) Error() string { return "model loading failure: " + e.Cause.Error() }
func (e *ErrModelLoadFailure) Unwrap() error { return e.Cause }

// Orchestrator runs §4.7's pipeline for one file at a time. It holds no
// per-file state; a single instance is shared across a folder's concurrent
// task workers, matching the "injected services are shared read-only
// capabilities" ownership rule (§3).
type Orchestrator struct {
	reader     FileReader
	parser     parser.Parser
	chunker    chunk.Chunker
	embedder   embed.Embedder
	vectors    store.VectorStore
	fileStates *filestate.Store

	chunkSize int
	overlap   int
}

// New builds an Orchestrator. chunkSize/overlap come from
// IndexingConfig.ChunkSize/ChunkOverlap.
func New(reader FileReader, p parser.Parser, chunker chunk.Chunker, embedder embed.Embedder, vectors store.VectorStore, fileStates *filestate.Store, chunkSize, overlap int) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultChunkSize
	}
	if overlap < 0 {
		overlap = chunk.DefaultOverlap
	}
	return &Orchestrator{
		reader: reader, parser: p, chunker: chunker, embedder: embedder,
		vectors: vectors, fileStates: fileStates,
		chunkSize: chunkSize, overlap: overlap,
	}
}

// ProcessFile runs the full §4.7 pipeline for one FileChange. On success it
// calls FileStateStore.markSuccess; on a recognized embedding backend
// failure it returns *ErrModelLoadFailure so the caller can fail-fast
// per §4.7 and §7; any other error is returned for per-task retry.
func (o *Orchestrator) ProcessFile(ctx context.Context, change changedetect.FileChange, absPath string, modTime time.Time, progress ProgressFunc) error {
	if change.Kind == changedetect.KindModified {
		if err := o.vectors.DeleteDocument(ctx, change.Path); err != nil {
			return err
		}
	}

	content, err := o.reader.Read(absPath)
	if err != nil {
		return err
	}

	parsed, err := o.parser.Parse(ctx, change.Path, content)
	if err != nil {
		return err
	}

	spans, err := o.chunker.Chunk(ctx, chunk.FileInput{Path: change.Path, Content: parsed.Text}, o.chunkSize, o.overlap)
	if err != nil {
		return err
	}

	if len(spans) == 0 {
		return o.fileStates.MarkSuccess(ctx, change.Path, 0)
	}

	texts := make([]string, len(spans))
	metadata := make([]store.ChunkMetadata, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
		metadata[i] = store.ChunkMetadata{Ordinal: span.Ordinal, Text: span.Text, TokenCount: span.TokenCount}
	}

	vectors, err := o.embedBatchWithProgress(ctx, texts, progress)
	if err != nil {
		if isModelLoadFailure(err) {
			return &ErrModelLoadFailure{Cause: err}
		}
		return err
	}

	if len(vectors) != len(metadata) {
		return kerrors.DataIntegrity("embedding count does not match chunk count", nil)
	}

	if err := o.vectors.AddEmbeddings(ctx, change.Path, change.Size, modTime, string(parsed.Metadata.ContentType), metadata, vectors); err != nil {
		return err
	}

	o.storeDocumentSemantics(ctx, change.Path, parsed.Text, vectors)

	return o.fileStates.MarkSuccess(ctx, change.Path, len(spans))
}

// embedBatchWithProgress embeds every chunk in one call (§4.7 step 4) and
// reports completion once the call returns; backends that want finer-grained
// progress can wrap their own batching internally, but the orchestrator's
// contract only requires processedChunks/totalChunks to reach totalChunks.
func (o *Orchestrator) embedBatchWithProgress(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, error) {
	if progress != nil {
		progress(0, len(texts))
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(len(texts), len(texts))
	}
	return vectors, nil
}

// isModelLoadFailure reports whether err is the "recognized backend
// initialization error" §4.7 calls for fail-fast handling on: a permanent
// embedding error (model missing, runtime absent), not a transient one.
func isModelLoadFailure(err error) bool {
	return errors.Is(err, kerrors.ErrEmbeddingPermanent)
}

// storeDocumentSemantics implements §4.7 step 7's optional document-level
// summary: a mean-pooled document embedding and a small keyword list drawn
// from simple term-frequency over the parsed text. It is best-effort, not
// part of the fail-fast contract: an error from UpdateDocumentSemantics is
// discarded without being logged or returned.
func (o *Orchestrator) storeDocumentSemantics(ctx context.Context, path, text string, vectors [][]float32) {
	docEmbedding := meanPool(vectors)
	keywords := topKeywords(text, 10)
	_ = o.vectors.UpdateDocumentSemantics(ctx, path, docEmbedding, keywords, 0)
}

func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float32, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range sum {
		sum[i] /= n
	}
	return sum
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "it": true, "for": true, "on": true,
	"with": true, "as": true, "at": true, "by": true, "be": true, "this": true,
	"that": true, "from": true, "are": true, "was": true, "were": true,
}

// topKeywords returns the n most frequent non-stopword terms, lowercased.
func topKeywords(text string, n int) []string {
	counts := make(map[string]int)
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9')
	}) {
		word := strings.ToLower(field)
		if len(word) < 3 || stopwords[word] {
			continue
		}
		counts[word]++
	}

	type kv struct {
		word  string
		count int
	}
	ranked := make([]kv, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, kv{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, kv := range ranked {
		out[i] = kv.word
	}
	return out
}
