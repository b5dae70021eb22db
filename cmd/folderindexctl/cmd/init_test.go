package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldermcp/folderindex/internal/output"
)

func TestWriteConfigTemplate_CreatesFileWhenMissing(t *testing.T) {
	dir := t.TempDir()
	out := output.NewPlain(os.Stdout)

	require.NoError(t, writeConfigTemplate(out, dir, false))

	data, err := os.ReadFile(filepath.Join(dir, ".folder-mcp.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "indexing:")
	assert.Contains(t, string(data), "embedding:")
}

func TestWriteConfigTemplate_PreservesExistingFile(t *testing.T) {
	dir := t.TempDir()
	out := output.NewPlain(os.Stdout)
	path := filepath.Join(dir, ".folder-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("custom: true\n"), 0o644))

	require.NoError(t, writeConfigTemplate(out, dir, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom: true\n", string(data))
}

func TestWriteConfigTemplate_ForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	out := output.NewPlain(os.Stdout)
	path := filepath.Join(dir, ".folder-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("custom: true\n"), 0o644))

	require.NoError(t, writeConfigTemplate(out, dir, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "indexing:")
}

func TestEnsureGitignored_NoopWhenNoGitignore(t *testing.T) {
	dir := t.TempDir()
	out := output.NewPlain(os.Stdout)

	require.NoError(t, ensureGitignored(out, dir))
	_, err := os.Stat(filepath.Join(dir, ".gitignore"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureGitignored_AppendsWhenMissingEntry(t *testing.T) {
	dir := t.TempDir()
	out := output.NewPlain(os.Stdout)
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("node_modules\n"), 0o644))

	require.NoError(t, ensureGitignored(out, dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ".folder-mcp/")
}

func TestEnsureGitignored_SkipsWhenAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	out := output.NewPlain(os.Stdout)
	path := filepath.Join(dir, ".gitignore")
	original := "node_modules\n.folder-mcp/\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	require.NoError(t, ensureGitignored(out, dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}
