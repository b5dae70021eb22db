package search

import (
	"sort"

	"github.com/foldermcp/folderindex/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter (k=60 is
// empirically validated across domains by Azure AI Search, OpenSearch, etc).
const DefaultRRFConstant = 60

// Weights configures the relative importance of keyword vs semantic search
// in Fuse.
type Weights struct {
	Keyword  float64
	Semantic float64
}

// DefaultWeights favors semantic similarity, matching the spec's framing of
// retrieval as fundamentally vector-based (§1) with keyword search as a
// supplement.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.35, Semantic: 0.65}
}

// FusedResult is one document after Reciprocal Rank Fusion of a keyword
// search pass and a vector search pass.
type FusedResult struct {
	DocumentPath string
	RRFScore     float64
	KeywordScore float64
	KeywordRank  int
	VectorScore  float64
	VectorRank   int
	InBothLists  bool
	MatchedTerms []string
}

// RRFFusion combines keyword and vector result lists with Reciprocal Rank
// Fusion: RRF_score(d) = Σ weight_i / (k + rank_i). Grounded on the
// teacher's internal/search/fusion.go RRFFusion, adapted from its
// BM25Result/VectorResult chunk-level inputs to this package's
// document-level Result/store.SearchHit inputs.
type RRFFusion struct {
	K int
}

// NewRRFFusion returns an RRFFusion with the standard k=60 constant.
func NewRRFFusion() *RRFFusion { return &RRFFusion{K: DefaultRRFConstant} }

// Fuse merges keyword and vector results, keyed by document path.
// Documents present in only one list receive that list's contribution at
// missing_rank = max(len(keyword), len(vector)) + 1. Results are sorted by
// RRF score descending, then by presence in both lists, then by keyword
// score, then lexicographically by path for determinism.
func (f *RRFFusion) Fuse(keyword []Result, vector []store.SearchHit, weights Weights) []FusedResult {
	if len(keyword) == 0 && len(vector) == 0 {
		return nil
	}

	scores := make(map[string]*FusedResult, len(keyword)+len(vector))
	get := func(path string) *FusedResult {
		if r, ok := scores[path]; ok {
			return r
		}
		r := &FusedResult{DocumentPath: path}
		scores[path] = r
		return r
	}

	for rank, r := range keyword {
		fr := get(r.DocumentPath)
		fr.KeywordScore = r.Score
		fr.KeywordRank = rank + 1
		fr.MatchedTerms = r.MatchedTerms
		fr.RRFScore += weights.Keyword / float64(f.K+rank+1)
	}
	for rank, r := range vector {
		fr := get(r.Path)
		fr.VectorScore = float64(r.Score)
		fr.VectorRank = rank + 1
		fr.RRFScore += weights.Semantic / float64(f.K+rank+1)
		if fr.KeywordRank > 0 {
			fr.InBothLists = true
		}
	}

	missingRank := len(keyword)
	if len(vector) > missingRank {
		missingRank = len(vector)
	}
	missingRank++
	for _, r := range scores {
		if r.KeywordRank == 0 && r.VectorRank > 0 {
			r.RRFScore += weights.Keyword / float64(f.K+missingRank)
		}
		if r.VectorRank == 0 && r.KeywordRank > 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
	}

	out := make([]FusedResult, 0, len(scores))
	for _, r := range scores {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	normalize(out)
	return out
}

func less(a, b FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.DocumentPath < b.DocumentPath
}

func normalize(results []FusedResult) {
	if len(results) == 0 || results[0].RRFScore == 0 {
		return
	}
	max := results[0].RRFScore
	for i := range results {
		results[i].RRFScore /= max
	}
}
