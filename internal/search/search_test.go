package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndex_UpsertAndSearch(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "doc1.go", []string{"embedding", "vector", "search"}))
	require.NoError(t, idx.Upsert(ctx, "doc2.go", []string{"gitignore", "pattern", "matching"}))

	results, err := idx.Search(ctx, "embedding", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "doc1.go", results[0].DocumentPath)
}

func TestIndex_SplitsCamelCaseIdentifiers(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "doc1.go", []string{"changeDetector"}))

	results, err := idx.Search(ctx, "detector", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestIndex_DeleteRemovesDocument(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "doc1.go", []string{"hello"}))
	require.Equal(t, 1, idx.Stats().DocumentCount)

	require.NoError(t, idx.Delete(ctx, "doc1.go"))
	require.Equal(t, 0, idx.Stats().DocumentCount)
}

func TestIndex_EmptyKeywordsDeletesRatherThanIndexesBlank(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "doc1.go", nil))
	require.Equal(t, 0, idx.Stats().DocumentCount)
}
