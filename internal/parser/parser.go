// Package parser implements the Parser capability from §6: turning a file's
// raw bytes into text plus light metadata, for the Chunker to then split.
// Format-specific parsing (PDF extraction, office documents, and so on) is
// out of scope — a complete repository still needs a concrete,
// swappable implementation so the rest of the pipeline can be exercised.
package parser

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/foldermcp/folderindex/internal/kerrors"
	"github.com/foldermcp/folderindex/internal/scanner"
)

// Metadata is the parse() result's sidecar data (§6's "{text, metadata}").
type Metadata struct {
	ContentType scanner.ContentType
	Language    string
	Title       string // Markdown: first line starting with # (any level); otherwise first non-empty line, cut to 120 bytes
	LineCount   int
}

// Result is what a successful parse produces.
type Result struct {
	Text     string
	Metadata Metadata
}

// Parser is the injected capability the orchestrator calls once per file.
type Parser interface {
	Parse(ctx context.Context, path string, content []byte) (Result, error)
}

// PlainTextParser handles text, markdown, and config/code files by decoding
// them as UTF-8 and deriving a title from the content. It is the one
// concrete Parser this repository ships; document-format parsers (PDF,
// DOCX, ...) are a deliberately unimplemented extension point.
type PlainTextParser struct{}

// New returns the default Parser.
func New() *PlainTextParser {
	return &PlainTextParser{}
}

func (p *PlainTextParser) Parse(_ context.Context, path string, content []byte) (Result, error) {
	if !utf8.Valid(content) {
		return Result{}, kerrors.Parse("file is not valid UTF-8 text", nil)
	}

	text := string(content)
	language := scanner.DetectLanguage(path)
	contentType := scanner.DetectContentType(language)

	return Result{
		Text: text,
		Metadata: Metadata{
			ContentType: contentType,
			Language:    language,
			Title:       deriveTitle(text, contentType),
			LineCount:   strings.Count(text, "\n") + 1,
		},
	}, nil
}

func deriveTitle(text string, contentType scanner.ContentType) string {
	lines := strings.Split(text, "\n")
	if contentType == scanner.ContentTypeMarkdown {
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			}
		}
	}
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if len(trimmed) > 120 {
				trimmed = trimmed[:120]
			}
			return trimmed
		}
	}
	return ""
}
