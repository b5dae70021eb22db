package store

import (
	"context"
	"sync"

	"github.com/coder/hnsw"
)

// annIndex is an in-memory approximate nearest-neighbor accelerator layered
// on top of the durable SQLite blob storage. It is rebuilt from scratch on
// open and kept incrementally in sync by AddEmbeddings/DeleteDocument.
// Search falls back to the brute force scan only when searchANN returns an
// error; the graph is not otherwise checked against the database.
type annIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	paths map[int64]string // chunkID -> document path, for fallback lookups
}

func newANNIndex() *annIndex {
	g := hnsw.NewGraph[int64]()
	return &annIndex{graph: g, paths: make(map[int64]string)}
}

func (a *annIndex) add(chunkID int64, path string, vector []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.graph.Add(hnsw.MakeNode(chunkID, vector))
	a.paths[chunkID] = path
}

// remove drops every chunk belonging to path. The hnsw graph coder/hnsw
// exposes does not support node deletion cheaply, so a path is removed
// lazily: results for deleted chunks are filtered out in searchANN and the
// graph is fully rebuilt the next time the store opens.
func (a *annIndex) remove(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, p := range a.paths {
		if p == path {
			delete(a.paths, id)
		}
	}
}

func (a *annIndex) search(query []float32, k int) []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	neighbors := a.graph.Search(query, k)
	ids := make([]int64, 0, len(neighbors))
	for _, n := range neighbors {
		if _, live := a.paths[n.Key]; live {
			ids = append(ids, n.Key)
		}
	}
	return ids
}

// buildANNIndex loads every stored embedding into a fresh in-memory graph.
// Called once at open; returns a nil index (not an error) when the store has
// no embeddings yet, since there is nothing to accelerate.
func (s *SQLiteStore) buildANNIndex(ctx context.Context) (*annIndex, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.chunk_id, d.path, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	idx := newANNIndex()
	count := 0
	for rows.Next() {
		var chunkID int64
		var path string
		var blob []byte
		if err := rows.Scan(&chunkID, &path, &blob); err != nil {
			return nil, err
		}
		idx.add(chunkID, path, decodeVector(blob))
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return idx, nil
}

// searchANN shortlists candidates via the HNSW graph, then re-scores and
// re-filters them with the exact cosine similarity used by searchBruteForce
// so an approximate shortlist can never relax the caller's threshold.
func (s *SQLiteStore) searchANN(ctx context.Context, idx *annIndex, query []float32, k int, threshold float32) ([]SearchHit, error) {
	shortlist := idx.search(query, k*4+16)
	if len(shortlist) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil
	}

	placeholders := make([]any, len(shortlist))
	qmarks := ""
	for i, id := range shortlist {
		placeholders[i] = id
		if i > 0 {
			qmarks += ","
		}
		qmarks += "?"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.chunk_id, d.path, c.text, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE e.chunk_id IN (`+qmarks+`)`, placeholders...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var chunkID int64
		var path, text string
		var blob []byte
		if err := rows.Scan(&chunkID, &path, &text, &blob); err != nil {
			return nil, err
		}
		score := cosineSimilarity(query, decodeVector(blob))
		if score < threshold {
			continue
		}
		hits = append(hits, SearchHit{ChunkID: chunkID, Path: path, Score: score, Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Score > hits[i].Score {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
