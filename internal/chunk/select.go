package chunk

import (
	"context"
	"path/filepath"
	"strings"
)

// Selecting wraps a TokenChunker and a MarkdownChunker, dispatching by file
// extension. It is the Chunker a FolderLifecycleService is configured with
// by default (§6).
type Selecting struct {
	markdown *MarkdownChunker
	token    *TokenChunker
}

// NewSelecting returns the default extension-dispatching Chunker.
func NewSelecting() *Selecting {
	return &Selecting{markdown: NewMarkdownChunker(), token: NewTokenChunker()}
}

var markdownExtensions = map[string]bool{".md": true, ".markdown": true, ".mdx": true}

func (s *Selecting) Chunk(ctx context.Context, file FileInput, chunkSize, overlap int) ([]Span, error) {
	ext := strings.ToLower(filepath.Ext(file.Path))
	if markdownExtensions[ext] {
		return s.markdown.Chunk(ctx, file, chunkSize, overlap)
	}
	return s.token.Chunk(ctx, file, chunkSize, overlap)
}
