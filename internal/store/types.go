// Package store persists the folder's indexed knowledge: documents, their
// chunks, and per-chunk embeddings, in a per-folder SQLite database. Vectors
// are stored as raw little-endian float32 blobs and compared by cosine
// similarity; an optional in-memory HNSW graph (internal/store/annindex.go)
// accelerates search over the same vectors without changing what is
// durably stored.
package store

import (
	"context"
	"fmt"
	"time"
)

// ChunkMetadata describes one chunk of a document, prior to being assigned
// an embedding. Ordinal is the chunk's position within the document.
type ChunkMetadata struct {
	Ordinal    int
	Text       string
	TokenCount int
}

// Chunk is a persisted, embedded unit of text belonging to a Document.
type Chunk struct {
	ID         int64
	DocumentID int64
	Ordinal    int
	Text       string
	TokenCount int
}

// SearchHit is one ranked result from Search.
type SearchHit struct {
	ChunkID int64
	Path    string
	Score   float32
	Text    string
}

// DocumentSemantics is the optional document-level summary written by
// UpdateDocumentSemantics (§4.3).
type DocumentSemantics struct {
	Embedding    []float32
	Keywords     []string
	ProcessingMs int64
	UpdatedAt    time.Time
}

// Stats summarizes the contents of a folder's vector store.
type Stats struct {
	EmbeddingCount int
	DocumentCount  int
}

// VectorStore is the per-folder persistence and search contract described
// in §4.3. A single VectorStore instance owns exclusive write access to one
// folder's database file; readers may run concurrently with writes and must
// observe either the pre- or post-transaction state, never an intermediate
// one (§5).
type VectorStore interface {
	// AddEmbeddings replaces any existing Document row for the path and
	// writes the new one with all Chunk and Embedding rows in a single
	// transaction. len(metadata) must equal
	// len(vectors); a mismatch is a *kerrors.Error of kind ErrDataIntegrity
	// and no rows are written.
	AddEmbeddings(ctx context.Context, documentPath string, size int64, modTime time.Time, docType string, metadata []ChunkMetadata, vectors [][]float32) error

	// DeleteDocument cascades: document, its chunks, and their embeddings.
	DeleteDocument(ctx context.Context, path string) error

	// DeleteDocumentsBatch deletes many documents in one transaction. On
	// failure it falls back to deleting them one at a time with a small
	// delay between each, to reduce lock contention (§4.3).
	DeleteDocumentsBatch(ctx context.Context, paths []string) error

	// UpdateDocumentSemantics stores an optional document-level embedding
	// and keyword summary.
	UpdateDocumentSemantics(ctx context.Context, path string, docEmbedding []float32, keywords []string, processingMs int64) error

	// Search returns the k nearest chunks to query by cosine similarity,
	// descending by score, filtered to score >= threshold.
	Search(ctx context.Context, query []float32, k int, threshold float32) ([]SearchHit, error)

	// AllDocumentPaths returns every indexed document path, for orphan
	// detection (§4.6).
	AllDocumentPaths(ctx context.Context) (map[string]struct{}, error)

	// Stats reports embedding and document counts.
	Stats(ctx context.Context) (Stats, error)

	// Dimension returns the vector dimension of the stored embeddings, or 0
	// if the store currently holds none.
	Dimension(ctx context.Context) (int, error)

	// Close releases file locks. Required before process exit on Windows.
	Close() error
}

// ErrDimensionMismatch is returned when a write's vector length disagrees
// with the dimension already recorded for this folder's store.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: store has %d, got %d (reset the folder to rebuild)", e.Expected, e.Got)
}
