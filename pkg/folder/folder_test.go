package folder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foldermcp/folderindex/internal/config"
	"github.com/foldermcp/folderindex/internal/lifecycle"
	"github.com/foldermcp/folderindex/pkg/folder"
)

// fakeOllama serves /api/embeddings with a deterministic fixed-dimension
// vector, standing in for a real GPU-runtime-local embedding server.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, 8)
		for i := range vec {
			vec[i] = float32(i) / 8
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestOpen_ScanIndexSearch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello folder indexing world, a reasonably long test document.")
	writeFile(t, dir, "b.txt", "a completely unrelated document about gardening and soil.")

	srv := fakeOllama(t)
	ctx := context.Background()

	f, err := folder.Open(ctx, dir, folder.Options{
		Embedding: &config.EmbeddingConfig{Provider: "ollama", OllamaHost: srv.URL, Model: "test-model"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Scan(ctx))
	require.Equal(t, lifecycle.StateReady, f.State())

	require.NoError(t, f.Index(ctx))
	require.Equal(t, lifecycle.StateActive, f.State())

	info, err := f.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, info.DocumentCount)

	results, err := f.Search(ctx, "folder indexing", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestOpen_RescanUnmodifiedGoesStraightToActive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello folder indexing world, a reasonably long test document.")

	srv := fakeOllama(t)
	ctx := context.Background()

	f, err := folder.Open(ctx, dir, folder.Options{
		Embedding: &config.EmbeddingConfig{Provider: "ollama", OllamaHost: srv.URL, Model: "test-model"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Scan(ctx))
	require.NoError(t, f.Index(ctx))
	require.Equal(t, lifecycle.StateActive, f.State())

	require.NoError(t, f.Reset())
	require.NoError(t, f.Scan(ctx))
	require.Equal(t, lifecycle.StateActive, f.State())
}
