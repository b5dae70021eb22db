package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownChunker_NoHeadersFallsBackToTokenChunker(t *testing.T) {
	c := NewMarkdownChunker()
	spans, err := c.Chunk(context.Background(), FileInput{Path: "a.md", Content: "just plain text, no headers here"}, 50, 10)
	require.NoError(t, err)
	require.Len(t, spans, 1)
}

func TestMarkdownChunker_KeepsSectionTogetherWhenItFits(t *testing.T) {
	content := "# Title\n\nShort intro.\n\n## Setup\n\nShort setup section.\n"
	c := NewMarkdownChunker()
	spans, err := c.Chunk(context.Background(), FileInput{Path: "a.md", Content: content}, 500, 50)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	require.Contains(t, spans[1].Text, "Title > Setup")
}

func TestMarkdownChunker_SplitsOversizedSectionWithFallback(t *testing.T) {
	big := strings.Repeat("word ", 2000)
	content := "# Title\n\n" + big
	c := NewMarkdownChunker()
	spans, err := c.Chunk(context.Background(), FileInput{Path: "a.md", Content: content}, 100, 10)
	require.NoError(t, err)
	require.Greater(t, len(spans), 1)
	for _, s := range spans {
		require.Contains(t, s.Text, "Title")
	}
}
