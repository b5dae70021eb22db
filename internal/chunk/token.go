package chunk

import (
	"context"
	"strings"
)

// TokenChunker splits text into overlapping windows measured in words, using
// the teacher's chars-per-token approximation rather than a real tokenizer
// (token-exact counts depend on the embedder's own vocabulary, which the
// chunker does not have access to per §6's capability boundary).
type TokenChunker struct{}

// NewTokenChunker returns the default word-window chunker.
func NewTokenChunker() *TokenChunker {
	return &TokenChunker{}
}

// Chunk implements Chunker by sliding a chunkSize-token window over text,
// stepping forward by chunkSize-overlap tokens each time. A final fragment
// shorter than MinChunkTokens is merged into the previous chunk rather than
// emitted on its own, avoiding pointless tiny trailing embeddings.
func (c *TokenChunker) Chunk(_ context.Context, file FileInput, chunkSize, overlap int) ([]Span, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}

	words := strings.Fields(file.Content)
	if len(words) == 0 {
		return nil, nil
	}

	wordsPerToken := 1.0 / tokensPerWord()
	windowWords := int(float64(chunkSize) * wordsPerToken)
	if windowWords < 1 {
		windowWords = 1
	}
	strideWords := int(float64(chunkSize-overlap) * wordsPerToken)
	if strideWords < 1 {
		strideWords = 1
	}

	var spans []Span
	for start := 0; start < len(words); start += strideWords {
		end := start + windowWords
		if end > len(words) {
			end = len(words)
		}
		text := strings.Join(words[start:end], " ")
		spans = append(spans, Span{
			Text:       text,
			TokenCount: estimateTokens(text),
			Ordinal:    len(spans),
		})
		if end == len(words) {
			break
		}
	}

	return mergeTrailingFragment(spans), nil
}

// tokensPerWord is a rough English-text constant (~1.3 tokens/word, i.e.
// ~0.75 words/token), derived from the teacher's TokensPerChar=4
// approximation applied to an average 5.3-character word.
func tokensPerWord() float64 {
	return 1.3
}

func mergeTrailingFragment(spans []Span) []Span {
	if len(spans) < 2 {
		return spans
	}
	last := spans[len(spans)-1]
	if last.TokenCount >= MinChunkTokens {
		return spans
	}
	prev := spans[len(spans)-2]
	merged := Span{
		Text:       prev.Text + " " + last.Text,
		TokenCount: prev.TokenCount + last.TokenCount,
		Ordinal:    prev.Ordinal,
	}
	out := append([]Span{}, spans[:len(spans)-2]...)
	return append(out, merged)
}
