package chunk

import (
	"context"
	"regexp"
	"strings"
)

// headerPattern matches ATX headers: # Title, ## Title, etc.
var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// MarkdownChunker splits markdown by header boundaries first, falling back
// to TokenChunker for any section too large to be a single chunk. This keeps
// a header's content together when it fits, which the plain token window
// cannot do since it is oblivious to document structure.
type MarkdownChunker struct {
	fallback *TokenChunker
}

// NewMarkdownChunker returns a header-aware chunker for .md/.markdown files.
func NewMarkdownChunker() *MarkdownChunker {
	return &MarkdownChunker{fallback: NewTokenChunker()}
}

type mdSection struct {
	headerPath string
	content    string
}

// Chunk implements Chunker.
func (c *MarkdownChunker) Chunk(ctx context.Context, file FileInput, chunkSize, overlap int) ([]Span, error) {
	if strings.TrimSpace(file.Content) == "" {
		return nil, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	sections := parseSections(file.Content)
	if len(sections) == 0 || (len(sections) == 1 && sections[0].headerPath == "") {
		return c.fallback.Chunk(ctx, file, chunkSize, overlap)
	}

	var spans []Span
	for _, sec := range sections {
		trimmed := strings.TrimSpace(sec.content)
		if trimmed == "" {
			continue
		}
		if estimateTokens(trimmed) <= chunkSize {
			spans = append(spans, Span{
				Text:       withHeaderPath(sec.headerPath, trimmed),
				TokenCount: estimateTokens(trimmed),
				Ordinal:    len(spans),
			})
			continue
		}

		sub, err := c.fallback.Chunk(ctx, FileInput{Path: file.Path, Content: trimmed}, chunkSize, overlap)
		if err != nil {
			return nil, err
		}
		for _, s := range sub {
			spans = append(spans, Span{
				Text:       withHeaderPath(sec.headerPath, s.Text),
				TokenCount: estimateTokens(s.Text),
				Ordinal:    len(spans),
			})
		}
	}
	return spans, nil
}

func withHeaderPath(path, content string) string {
	if path == "" {
		return content
	}
	return "<!-- " + path + " -->\n" + content
}

// parseSections splits content on header lines, tracking a " > "-joined
// header path (e.g. "Intro > Setup") so nested sections keep their context
// once rejoined into chunk text.
func parseSections(content string) []mdSection {
	lines := strings.Split(content, "\n")
	headerStack := make([]string, 6)

	var sections []mdSection
	var current *mdSection
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.content = body.String()
			sections = append(sections, *current)
			body.Reset()
		}
	}

	for _, line := range lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}
			var parts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					parts = append(parts, headerStack[i])
				}
			}
			current = &mdSection{headerPath: strings.Join(parts, " > ")}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		if current == nil {
			current = &mdSection{}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}
