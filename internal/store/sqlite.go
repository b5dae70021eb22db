package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/foldermcp/folderindex/internal/kerrors"
)

// CurrentSchemaVersion is bumped whenever the on-disk schema changes in a
// way that requires migration.
const CurrentSchemaVersion = 1

// SQLiteStore implements VectorStore on top of a per-folder SQLite database.
// It is the single writer for its folder (§5): every method, reads included,
// takes an internal mutex and the pool holds one connection, so calls on a
// store run one at a time.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	lock   *flock.Flock // advisory lock released on Close, required for safe shutdown on Windows
	ann    *annIndex     // optional accelerated search structure, kept in sync on writes
	closed bool
}

var _ VectorStore = (*SQLiteStore)(nil)

// LoadOrInitialize opens dbPath, creating the schema if the file is new or
// empty. It never wipes existing data (§4.3). If dbPath is empty an
// in-memory database is used, which is convenient for tests but is not
// durable across Close.
func LoadOrInitialize(dbPath string) (*SQLiteStore, error) {
	dsn := ":memory:"
	var lck *flock.Flock
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, kerrors.DatabaseFatal("create folder data directory", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

		lck = flock.New(dbPath + ".lock")
		locked, err := lck.TryLock()
		if err != nil {
			return nil, kerrors.DatabaseFatal("acquire folder database lock", err)
		}
		if !locked {
			return nil, kerrors.DatabaseFatal("folder database is already open by another process", nil)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lck != nil {
			lck.Unlock()
		}
		return nil, kerrors.DatabaseFatal("open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // one writer per folder database (§5)

	s := &SQLiteStore{db: db, path: dbPath, lock: lck}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	ann, err := s.buildANNIndex(context.Background())
	if err != nil {
		slog.Warn("ann index build failed, falling back to brute-force search", slog.String("error", err.Error()))
	} else {
		s.ann = ann
	}

	return s, nil
}

// DB exposes the underlying connection so sibling per-folder stores (e.g.
// internal/filestate) can share one SQLite file and commit alongside
// VectorStore writes, rather than opening a second handle that would
// contend for the single-writer lock.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_info (version INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL,
			mod_time INTEGER NOT NULL,
			doc_type TEXT NOT NULL DEFAULT '',
			doc_embedding BLOB,
			keywords TEXT,
			processing_ms INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			dimension INTEGER NOT NULL,
			vector BLOB NOT NULL
		)`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return kerrors.DatabaseFatal(fmt.Sprintf("apply schema statement: %s", stmt), err)
		}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_info`).Scan(&count); err != nil {
		return kerrors.DatabaseFatal("read schema_info", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_info (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
			return kerrors.DatabaseFatal("seed schema_info", err)
		}
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// Dimension returns the dimension recorded by the first embedding ever
// written, or 0 if the store is empty.
func (s *SQLiteStore) Dimension(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM embeddings LIMIT 1`).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, kerrors.DatabaseTransient("read store dimension", err)
	}
	return dim, nil
}

// AddEmbeddings implements VectorStore.AddEmbeddings. For an existing path
// it is delete-then-insert (§3 invariant 3): the prior document row, and by
// ON DELETE CASCADE its chunks and embeddings, is deleted and the new rows
// are inserted within one transaction.
func (s *SQLiteStore) AddEmbeddings(ctx context.Context, documentPath string, size int64, modTime time.Time, docType string, metadata []ChunkMetadata, vectors [][]float32) error {
	if len(metadata) != len(vectors) {
		return kerrors.DataIntegrity(
			fmt.Sprintf("metadata count %d != vector count %d for %s", len(metadata), len(vectors), documentPath), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.DatabaseFatal("store is closed", nil)
	}

	if dim, err := s.dimensionLocked(ctx); err == nil && dim > 0 {
		for _, v := range vectors {
			if len(v) != dim {
				return kerrors.DataIntegrity("", ErrDimensionMismatch{Expected: dim, Got: len(v)})
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kerrors.DatabaseTransient("begin transaction", err)
	}
	defer tx.Rollback()

	// Delete any prior row for this path first, so an Update is visibly
	// delete-then-insert within one transaction (§3 invariant 3).
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, documentPath); err != nil {
		return kerrors.DatabaseTransient("delete prior document row", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (path, size, mod_time, doc_type, updated_at) VALUES (?, ?, ?, ?, ?)`,
		documentPath, size, modTime.Unix(), docType, time.Now().Unix())
	if err != nil {
		return kerrors.DatabaseTransient("insert document row", err)
	}
	docID, err := res.LastInsertId()
	if err != nil {
		return kerrors.DatabaseTransient("read inserted document id", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (document_id, ordinal, text, token_count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return kerrors.DatabaseTransient("prepare chunk insert", err)
	}
	defer chunkStmt.Close()

	embedStmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (chunk_id, dimension, vector) VALUES (?, ?, ?)`)
	if err != nil {
		return kerrors.DatabaseTransient("prepare embedding insert", err)
	}
	defer embedStmt.Close()

	chunkIDs := make([]int64, len(metadata))
	for i, meta := range metadata {
		res, err := chunkStmt.ExecContext(ctx, docID, meta.Ordinal, meta.Text, meta.TokenCount)
		if err != nil {
			return kerrors.DatabaseTransient("insert chunk row", err)
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return kerrors.DatabaseTransient("read inserted chunk id", err)
		}
		chunkIDs[i] = chunkID

		if _, err := embedStmt.ExecContext(ctx, chunkID, len(vectors[i]), encodeVector(vectors[i])); err != nil {
			return kerrors.DatabaseTransient("insert embedding row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return kerrors.DatabaseTransient("commit transaction", err)
	}

	if s.ann != nil {
		s.ann.remove(documentPath)
		for i, id := range chunkIDs {
			s.ann.add(id, documentPath, vectors[i])
		}
	}

	return nil
}

func (s *SQLiteStore) dimensionLocked(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM embeddings LIMIT 1`).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return dim, err
}

// DeleteDocument cascades to chunks and embeddings via ON DELETE CASCADE.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteDocumentLocked(ctx, path)
}

func (s *SQLiteStore) deleteDocumentLocked(ctx context.Context, path string) error {
	if s.closed {
		return kerrors.DatabaseFatal("store is closed", nil)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return kerrors.DatabaseTransient("delete document", err)
	}
	if s.ann != nil {
		s.ann.remove(path)
	}
	return nil
}

// DeleteDocumentsBatch deletes many documents transactionally; on failure it
// retries each path individually with a small delay, to reduce contention
// with a concurrently-running indexing transaction (§4.3, §4.6).
func (s *SQLiteStore) DeleteDocumentsBatch(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.DatabaseFatal("store is closed", nil)
	}

	err := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE path = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range paths {
			if _, err := stmt.ExecContext(ctx, p); err != nil {
				return err
			}
		}
		return tx.Commit()
	}()

	if err == nil {
		if s.ann != nil {
			for _, p := range paths {
				s.ann.remove(p)
			}
		}
		return nil
	}

	slog.Warn("batch document delete failed, falling back to individual deletes",
		slog.String("error", err.Error()), slog.Int("count", len(paths)))

	var lastErr error
	for _, p := range paths {
		if delErr := s.deleteDocumentLocked(ctx, p); delErr != nil {
			lastErr = delErr
			slog.Warn("individual document delete failed", slog.String("path", p), slog.String("error", delErr.Error()))
		}
		time.Sleep(10 * time.Millisecond)
	}
	return lastErr
}

// UpdateDocumentSemantics stores an optional document-level embedding and
// keyword summary alongside the document row.
func (s *SQLiteStore) UpdateDocumentSemantics(ctx context.Context, path string, docEmbedding []float32, keywords []string, processingMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.DatabaseFatal("store is closed", nil)
	}

	var embedBytes []byte
	if docEmbedding != nil {
		embedBytes = encodeVector(docEmbedding)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET doc_embedding = ?, keywords = ?, processing_ms = ?, updated_at = ? WHERE path = ?`,
		embedBytes, joinKeywords(keywords), processingMs, time.Now().Unix(), path)
	if err != nil {
		return kerrors.DatabaseTransient("update document semantics", err)
	}
	return nil
}

func joinKeywords(keywords []string) string {
	out := ""
	for i, k := range keywords {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}

// Search returns the k nearest chunks to query by cosine similarity. When an
// ANN index is available it is used to shortlist candidates; the final
// ranking is always computed by exact cosine similarity against the stored
// blobs, so approximate-search error cannot silently drop the threshold
// filter.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int, threshold float32) ([]SearchHit, error) {
	s.mu.Lock()
	ann := s.ann
	s.mu.Unlock()

	if ann != nil {
		hits, err := s.searchANN(ctx, ann, query, k, threshold)
		if err == nil {
			return hits, nil
		}
		slog.Warn("ann search failed, falling back to brute force", slog.String("error", err.Error()))
	}
	return s.searchBruteForce(ctx, query, k, threshold)
}

func (s *SQLiteStore) searchBruteForce(ctx context.Context, query []float32, k int, threshold float32) ([]SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kerrors.DatabaseFatal("store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.chunk_id, d.path, c.text, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id`)
	if err != nil {
		return nil, kerrors.DatabaseTransient("query embeddings for search", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var chunkID int64
		var path, text string
		var blob []byte
		if err := rows.Scan(&chunkID, &path, &text, &blob); err != nil {
			return nil, kerrors.DatabaseTransient("scan embedding row", err)
		}
		score := cosineSimilarity(query, decodeVector(blob))
		if score < threshold {
			continue
		}
		hits = append(hits, SearchHit{ChunkID: chunkID, Path: path, Score: score, Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, kerrors.DatabaseTransient("iterate search rows", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

// AllDocumentPaths returns every indexed document path, for orphan
// detection against the current on-disk file list (§4.6).
func (s *SQLiteStore) AllDocumentPaths(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kerrors.DatabaseFatal("store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM documents`)
	if err != nil {
		return nil, kerrors.DatabaseTransient("query document paths", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, kerrors.DatabaseTransient("scan document path", err)
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

// DocumentKeywords returns the keyword summary UpdateDocumentSemantics
// last stored for path, for callers (the keyword search index) that need
// to resync independently of the embedding pipeline. Returns an empty
// slice, not an error, for a document with no stored summary yet.
func (s *SQLiteStore) DocumentKeywords(ctx context.Context, path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kerrors.DatabaseFatal("store is closed", nil)
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT keywords FROM documents WHERE path = ?`, path).Scan(&raw)
	if err == sql.ErrNoRows || raw == "" {
		return nil, nil
	}
	if err != nil {
		return nil, kerrors.DatabaseTransient("query document keywords", err)
	}
	return strings.Split(raw, ","), nil
}

// Stats reports embedding and document counts.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Stats{}, kerrors.DatabaseFatal("store is closed", nil)
	}

	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&stats.EmbeddingCount); err != nil {
		return Stats{}, kerrors.DatabaseTransient("count embeddings", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.DocumentCount); err != nil {
		return Stats{}, kerrors.DatabaseTransient("count documents", err)
	}
	return stats, nil
}

// Close releases the database handle and its file locks. Safe to call once;
// a second call returns nil.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	if err != nil {
		return kerrors.DatabaseFatal("close sqlite database", err)
	}
	return nil
}
