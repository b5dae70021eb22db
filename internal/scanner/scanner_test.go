package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foldermcp/folderindex/internal/gitignore"
)

func writeFile(t *testing.T, dir, relPath, content string) {
	t.Helper()
	full := filepath.Join(dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestScan_SkipsGitAndNodeModulesAndSensitiveFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, dir, "node_modules/pkg/index.js", "module.exports = {}")
	writeFile(t, dir, ".env", "SECRET=1")

	s, err := New()
	require.NoError(t, err)

	rules, err := gitignore.Load(dir, nil, nil)
	require.NoError(t, err)

	entries, err := s.Scan(context.Background(), dir, rules, ScanOptions{})
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	require.Contains(t, paths, "main.go")
	require.NotContains(t, paths, filepath.Join(".git", "HEAD"))
	require.NotContains(t, paths, filepath.Join("node_modules", "pkg", "index.js"))
	require.NotContains(t, paths, ".env")
}

func TestScan_RespectsNestedGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub/keep.go", "package sub")
	writeFile(t, dir, "sub/skip.log", "noise")
	writeFile(t, dir, "sub/.gitignore", "*.log\n")

	s, err := New()
	require.NoError(t, err)
	rules, err := gitignore.Load(dir, nil, nil)
	require.NoError(t, err)

	entries, err := s.Scan(context.Background(), dir, rules, ScanOptions{})
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	require.Contains(t, paths, filepath.Join("sub", "keep.go"))
	require.NotContains(t, paths, filepath.Join("sub", "skip.log"))
}

func TestScan_SkipsOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	content := ""
	for i := 0; i < 100; i++ {
		content += "a"
	}
	writeFile(t, dir, "big.txt", content)

	s, err := New()
	require.NoError(t, err)
	rules, err := gitignore.Load(dir, nil, nil)
	require.NoError(t, err)

	entries, err := s.Scan(context.Background(), dir, rules, ScanOptions{MaxFileSize: 10})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDetectLanguageAndContentType(t *testing.T) {
	require.Equal(t, "go", DetectLanguage("main.go"))
	require.Equal(t, ContentTypeCode, DetectContentType("go"))
	require.Equal(t, ContentTypeMarkdown, DetectContentType(DetectLanguage("readme.md")))
	require.Equal(t, ContentTypeText, DetectContentType(DetectLanguage("unknown.xyz")))
}
