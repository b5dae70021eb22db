// Package search implements the §12 supplemented "keyword summary search"
// feature: a bleve full-text index over each document's extracted keywords
// (Document.keywords, produced by internal/orchestrator's topKeywords), so a
// caller can find candidate documents by keyword before, or instead of,
// running a full vector search. Grounded on the teacher's
// internal/store/bm25.go BleveBM25Index, generalized from its code-specific
// BM25Config/tokenizer to plain document keyword summaries.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const identifierAnalyzerName = "identifier_analyzer"
const identifierTokenizerName = "identifier_tokenizer"

func init() {
	_ = registry.RegisterTokenizer(identifierTokenizerName, identifierTokenizerConstructor)
}

// Result is one keyword-search hit.
type Result struct {
	DocumentPath string
	Score        float64
	MatchedTerms []string
}

// Stats summarizes the keyword index.
type Stats struct {
	DocumentCount int
}

// Index wraps a bleve index over document keyword summaries. One Index per
// folder, sharing the folder's lifecycle (created alongside the
// VectorStore, closed alongside it).
type Index struct {
	mu     sync.RWMutex
	bleve  bleve.Index
	closed bool
}

type keywordDoc struct {
	Keywords string `json:"keywords"`
}

// Open creates an in-memory index when path is "", or opens/creates a
// disk-backed index at path otherwise.
func Open(path string) (*Index, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("build keyword index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	return &Index{bleve: idx}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(identifierAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     identifierTokenizerName,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = identifierAnalyzerName
	return m, nil
}

// Upsert replaces a document's keyword entry (delete-then-insert, matching
// the same "no duplicate document" invariant the orchestrator enforces on
// VectorStore).
func (i *Index) Upsert(ctx context.Context, documentPath string, keywords []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return fmt.Errorf("keyword index is closed")
	}
	if len(keywords) == 0 {
		return i.bleve.Delete(documentPath)
	}
	return i.bleve.Index(documentPath, keywordDoc{Keywords: strings.Join(keywords, " ")})
}

// Delete removes a document's keyword entry, e.g. on orphan sweep or remove.
func (i *Index) Delete(ctx context.Context, documentPath string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return fmt.Errorf("keyword index is closed")
	}
	return i.bleve.Delete(documentPath)
}

// Search returns documents whose keyword summary matches queryStr, ranked
// by bleve's default TF-IDF scoring.
func (i *Index) Search(ctx context.Context, queryStr string, limit int) ([]Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}

	q := bleve.NewMatchQuery(queryStr)
	q.SetField("keywords")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true

	res, err := i.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Result{
			DocumentPath: hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return out, nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "keywords" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	return terms
}

// Stats returns the document count currently in the index.
func (i *Index) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return Stats{}
	}
	count, _ := i.bleve.DocCount()
	return Stats{DocumentCount: int(count)}
}

// Close releases the underlying bleve index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.bleve.Close()
}

// identifierTokenizerConstructor builds a tokenizer that splits on
// non-alphanumeric boundaries and further splits camelCase/snake_case
// keyword tokens, matching the teacher's code-aware tokenization, since
// keyword summaries over source-heavy folders still contain identifiers.
func identifierTokenizerConstructor(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
	return identifierTokenizer{}, nil
}

type identifierTokenizer struct{}

func (identifierTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	var stream analysis.TokenStream
	pos := 1
	start := -1
	for i, r := range text {
		isWord := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if isWord {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			stream = appendToken(stream, text, start, i, &pos)
			start = -1
		}
	}
	if start != -1 {
		stream = appendToken(stream, text, start, len(text), &pos)
	}
	return stream
}

func appendToken(stream analysis.TokenStream, text string, start, end int, pos *int) analysis.TokenStream {
	for _, sub := range splitIdentifier(text[start:end]) {
		stream = append(stream, &analysis.Token{
			Term:     []byte(sub),
			Start:    start,
			End:      end,
			Position: *pos,
			Type:     analysis.AlphaNumeric,
		})
		*pos++
	}
	return stream
}

// splitIdentifier breaks camelCase and snake_case tokens into sub-words.
func splitIdentifier(token string) []string {
	var parts []string
	var cur strings.Builder
	runes := []rune(token)
	for idx, r := range runes {
		if r == '_' {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			continue
		}
		if idx > 0 && r >= 'A' && r <= 'Z' && runes[idx-1] >= 'a' && runes[idx-1] <= 'z' {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	if len(parts) == 0 {
		return []string{token}
	}
	return parts
}
