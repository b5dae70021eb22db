package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_MarkdownTitleFromHeader(t *testing.T) {
	p := New()
	res, err := p.Parse(context.Background(), "notes/readme.md", []byte("\n# Getting Started\n\nSome body text.\n"))
	require.NoError(t, err)
	require.Equal(t, "Getting Started", res.Metadata.Title)
	require.Equal(t, "markdown", res.Metadata.Language)
}

func TestParse_PlainTextTitleFromFirstLine(t *testing.T) {
	p := New()
	res, err := p.Parse(context.Background(), "notes/todo.txt", []byte("\n\nBuy milk\nCall mom\n"))
	require.NoError(t, err)
	require.Equal(t, "Buy milk", res.Metadata.Title)
}

func TestParse_RejectsBinaryContent(t *testing.T) {
	p := New()
	_, err := p.Parse(context.Background(), "blob.bin", []byte{0xff, 0xfe, 0x00, 0xd8})
	require.Error(t, err)
}

func TestParse_LineCount(t *testing.T) {
	p := New()
	res, err := p.Parse(context.Background(), "a.go", []byte("package a\n\nfunc main() {}\n"))
	require.NoError(t, err)
	require.Equal(t, 4, res.Metadata.LineCount)
}
