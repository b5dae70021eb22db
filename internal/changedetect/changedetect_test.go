package changedetect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foldermcp/folderindex/internal/filestate"
	"github.com/foldermcp/folderindex/internal/store"
)

func newTestStores(t *testing.T) (*filestate.Store, *store.SQLiteStore) {
	t.Helper()
	vs, err := store.LoadOrInitialize("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	fss, err := filestate.New(vs.DB(), 3)
	require.NoError(t, err)
	return fss, vs
}

func writeEntry(t *testing.T, dir, relPath, content string) FileEntry {
	t.Helper()
	full := filepath.Join(dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	info, err := os.Stat(full)
	require.NoError(t, err)
	return FileEntry{Path: relPath, AbsPath: full, Size: info.Size()}
}

func TestDetect_NewFileIsAdded(t *testing.T) {
	dir := t.TempDir()
	fss, vs := newTestStores(t)
	d := New(fss, vs, nil, time.Hour)

	entry := writeEntry(t, dir, "a.txt", "hello")
	changes, err := d.Detect(context.Background(), []FileEntry{entry})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, KindAdded, changes[0].Kind)
}

func TestDetect_UnchangedFileIsSkippedAfterSuccess(t *testing.T) {
	dir := t.TempDir()
	fss, vs := newTestStores(t)
	d := New(fss, vs, nil, time.Hour)
	ctx := context.Background()

	entry := writeEntry(t, dir, "a.txt", "hello")
	changes, err := d.Detect(ctx, []FileEntry{entry})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.NoError(t, fss.MarkSuccess(ctx, entry.Path, 1))

	// Record an embedding so the store is no longer "empty" and the global
	// override does not force reprocessing.
	require.NoError(t, vs.AddEmbeddings(ctx, entry.Path, entry.Size, time.Now(), "text",
		[]store.ChunkMetadata{{Ordinal: 0, Text: "hello", TokenCount: 1}},
		[][]float32{{0.1, 0.2}}))

	changes, err = d.Detect(ctx, []FileEntry{entry})
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestDetect_ModifiedFileIsReprocessed(t *testing.T) {
	dir := t.TempDir()
	fss, vs := newTestStores(t)
	d := New(fss, vs, nil, time.Hour)
	ctx := context.Background()

	entry := writeEntry(t, dir, "a.txt", "hello")
	_, err := d.Detect(ctx, []FileEntry{entry})
	require.NoError(t, err)
	require.NoError(t, fss.MarkSuccess(ctx, entry.Path, 1))
	require.NoError(t, vs.AddEmbeddings(ctx, entry.Path, entry.Size, time.Now(), "text",
		[]store.ChunkMetadata{{Ordinal: 0, Text: "hello", TokenCount: 1}},
		[][]float32{{0.1, 0.2}}))

	entry = writeEntry(t, dir, "a.txt", "hello world, now longer")
	changes, err := d.Detect(ctx, []FileEntry{entry})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, KindModified, changes[0].Kind)
}

func TestDetect_EmptyVectorStoreForcesReprocessEvenIfMarkedIndexed(t *testing.T) {
	dir := t.TempDir()
	fss, vs := newTestStores(t)
	d := New(fss, vs, nil, time.Hour)
	ctx := context.Background()

	entry := writeEntry(t, dir, "a.txt", "hello")
	_, err := d.Detect(ctx, []FileEntry{entry})
	require.NoError(t, err)
	require.NoError(t, fss.MarkSuccess(ctx, entry.Path, 1))
	// Deliberately do not write an embedding: store.Stats().EmbeddingCount stays 0.

	changes, err := d.Detect(ctx, []FileEntry{entry})
	require.NoError(t, err)
	require.Len(t, changes, 1, "global override should force reprocessing an empty vector store")
}

func TestSweepOrphans_DeletesMissingDocuments(t *testing.T) {
	fss, vs := newTestStores(t)
	d := New(fss, vs, nil, time.Hour)
	ctx := context.Background()

	require.NoError(t, vs.AddEmbeddings(ctx, "gone.txt", 10, time.Now(), "text",
		[]store.ChunkMetadata{{Ordinal: 0, Text: "x", TokenCount: 1}},
		[][]float32{{0.1, 0.2}}))
	require.NoError(t, vs.AddEmbeddings(ctx, "kept.txt", 10, time.Now(), "text",
		[]store.ChunkMetadata{{Ordinal: 0, Text: "y", TokenCount: 1}},
		[][]float32{{0.3, 0.4}}))

	deleted, ran, err := d.SweepOrphans(ctx, time.Now(), []string{"kept.txt"})
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, deleted)

	paths, err := vs.AllDocumentPaths(ctx)
	require.NoError(t, err)
	require.Contains(t, paths, "kept.txt")
	require.NotContains(t, paths, "gone.txt")
}

func TestSweepOrphans_RespectsInterval(t *testing.T) {
	fss, vs := newTestStores(t)
	d := New(fss, vs, nil, time.Hour)
	ctx := context.Background()

	now := time.Now()
	_, ran, err := d.SweepOrphans(ctx, now, nil)
	require.NoError(t, err)
	require.True(t, ran)

	_, ran, err = d.SweepOrphans(ctx, now.Add(time.Minute), nil)
	require.NoError(t, err)
	require.False(t, ran, "a second sweep within the interval should not run")
}
