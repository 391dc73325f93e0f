package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/reelgraph/store"
	"github.com/smallnest/reelgraph/store/storetest"
)

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Datastore {
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := New(dir)
	require.NoError(t, err)
	require.NotNil(t, s)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := New(dir)
	require.NoError(t, err)
	id, err := first.Upsert(ctx, store.KindArticle, "url-hash", map[string]string{"title": "Qubits"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, store.KindArticle, id+".json"))
	require.NoError(t, err)

	second, err := New(dir)
	require.NoError(t, err)
	rec, err := second.GetByKey(ctx, store.KindArticle, "url-hash")
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)

	again, err := second.Upsert(ctx, store.KindArticle, "url-hash", map[string]string{"title": "Qubits"})
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := New(dir)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, store.KindRun, "r", "x")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.KindRun, "README.txt"), []byte("hi"), 0o644))

	list, err := s.List(ctx, store.KindRun)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFileStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, store.KindScript), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.KindScript, "bad.json"), []byte("{"), 0o644))

	_, err = s.List(context.Background(), store.KindScript)
	assert.Error(t, err)
}
