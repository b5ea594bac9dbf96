package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/newsqa/internal/types"
	"github.com/xhad/newsqa/pkg/store"
)

func testEntries() []store.Entry {
	return []store.Entry{
		{ID: "a0", Source: "http://example.com/a", Title: "A", Content: "rates", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{ID: "a1", Source: "http://example.com/a", Title: "A", Content: "oil", ChunkIndex: 1, Embedding: []float32{0, 1, 0}},
		{ID: "b0", Source: "http://example.com/b", Title: "", Content: "tech", ChunkIndex: 0, Embedding: []float32{0.7, 0.7, 0}},
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"faiss_store_gemini", "markets-2024", "A"} {
		assert.NoError(t, store.ValidateKey(key), key)
	}
	for _, key := range []string{"", "../escape", "a/b", "with space", "dot.db"} {
		err := store.ValidateKey(key)
		assert.ErrorIs(t, err, types.ErrInputValidation, key)
	}
}

func TestMemoryIndex(t *testing.T) {
	idx, err := store.NewMemoryIndex(testEntries())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 3, idx.Dimension())

	matches, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a0", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "b0", matches[1].ID)

	all, err := idx.Search(context.Background(), []float32{0, 1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "a1", all[0].ID)

	_, err = idx.Search(context.Background(), []float32{1, 0}, 2)
	assert.ErrorIs(t, err, types.ErrRetrieval)
}

func TestMemoryIndexEmptyAndInvalid(t *testing.T) {
	idx, err := store.NewMemoryIndex(nil)
	require.NoError(t, err)
	_, err = idx.Search(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, types.ErrRetrieval)

	_, err = store.NewMemoryIndex([]store.Entry{
		{ID: "x", Embedding: []float32{1, 2}},
		{ID: "y", Embedding: []float32{1}},
	})
	assert.ErrorIs(t, err, types.ErrIndexBuild)
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := store.NewSQLiteBackend(dir)
	require.NoError(t, err)
	defer backend.Close()

	ok, err := backend.Exists(ctx, "news")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = backend.Open(ctx, "news")
	assert.ErrorIs(t, err, types.ErrStoreNotFound)

	require.NoError(t, backend.Replace(ctx, "news", testEntries()))

	ok, err = backend.Exists(ctx, "news")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(dir, "news.db"))

	idx, err := backend.Open(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	for _, e := range testEntries() {
		matches, err := idx.Search(ctx, e.Embedding, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, e, matches[0].Entry)
	}
}

func TestSQLiteBackendReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	backend, err := store.NewSQLiteBackend(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, backend.Replace(ctx, "news", testEntries()))
	require.NoError(t, backend.Replace(ctx, "news", testEntries()[:1]))

	idx, err := backend.Open(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestSQLiteBackendFailedReplaceKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := store.NewSQLiteBackend(dir)
	require.NoError(t, err)

	require.NoError(t, backend.Replace(ctx, "news", testEntries()))

	bad := []store.Entry{
		{ID: "dup", Source: "s", Content: "c", Embedding: []float32{1, 0, 0}},
		{ID: "dup", Source: "s", Content: "c", Embedding: []float32{0, 1, 0}},
	}
	err = backend.Replace(ctx, "news", bad)
	require.Error(t, err)

	idx, err := backend.Open(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	// no temp files left behind
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSQLiteBackendRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	backend, err := store.NewSQLiteBackend(t.TempDir())
	require.NoError(t, err)

	err = backend.Replace(ctx, "../outside", testEntries())
	assert.ErrorIs(t, err, types.ErrInputValidation)

	err = backend.Replace(ctx, "news", nil)
	assert.ErrorIs(t, err, types.ErrInputValidation)
}

func TestSQLiteBackendCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := store.NewSQLiteBackend(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.db"), []byte("not a database at all"), 0o644))

	_, err = backend.Open(ctx, "broken")
	assert.ErrorIs(t, err, types.ErrRetrieval)
}

func TestSQLiteBackendListAndDelete(t *testing.T) {
	ctx := context.Background()
	backend, err := store.NewSQLiteBackend(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, backend.Replace(ctx, "markets", testEntries()))
	require.NoError(t, backend.Replace(ctx, "energy", testEntries()))

	keys, err := backend.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"energy", "markets"}, keys)

	require.NoError(t, backend.Delete(ctx, "energy"))
	require.NoError(t, backend.Delete(ctx, "energy"))

	keys, err = backend.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"markets"}, keys)
}
