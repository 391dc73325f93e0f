// Package storetest provides a conformance suite shared by Datastore backends.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/reelgraph/store"
)

type article struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Run exercises a Datastore created by open. Each subtest gets a fresh store.
func Run(t *testing.T, open func(t *testing.T) store.Datastore) {
	t.Run("upsert is idempotent on natural key", func(t *testing.T) {
		ds := open(t)
		ctx := context.Background()

		id1, err := ds.Upsert(ctx, store.KindArticle, "k1", article{URL: "https://a", Title: "first"})
		require.NoError(t, err)
		require.NotEmpty(t, id1)

		id2, err := ds.Upsert(ctx, store.KindArticle, "k1", article{URL: "https://a", Title: "first"})
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		list, err := ds.List(ctx, store.KindArticle)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("upsert replaces payload and keeps id", func(t *testing.T) {
		ds := open(t)
		ctx := context.Background()

		id, err := ds.Upsert(ctx, store.KindArticle, "k1", article{Title: "old"})
		require.NoError(t, err)
		again, err := ds.Upsert(ctx, store.KindArticle, "k1", article{Title: "new"})
		require.NoError(t, err)
		assert.Equal(t, id, again)

		rec, err := ds.Get(ctx, store.KindArticle, id)
		require.NoError(t, err)
		var a article
		require.NoError(t, rec.Decode(&a))
		assert.Equal(t, "new", a.Title)
		assert.Equal(t, "k1", rec.Key)
		assert.Equal(t, store.KindArticle, rec.Kind)
		assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))
	})

	t.Run("get by id and key", func(t *testing.T) {
		ds := open(t)
		ctx := context.Background()

		id, err := ds.Upsert(ctx, store.KindScript, "script-key", map[string]string{"text": "hello"})
		require.NoError(t, err)

		byKey, err := ds.GetByKey(ctx, store.KindScript, "script-key")
		require.NoError(t, err)
		assert.Equal(t, id, byKey.ID)
		assert.JSONEq(t, `{"text":"hello"}`, string(byKey.Payload))

		byID, err := ds.Get(ctx, store.KindScript, id)
		require.NoError(t, err)
		assert.Equal(t, "script-key", byID.Key)
	})

	t.Run("kinds are separate namespaces", func(t *testing.T) {
		ds := open(t)
		ctx := context.Background()

		a, err := ds.Upsert(ctx, store.KindArticle, "same", "x")
		require.NoError(t, err)
		s, err := ds.Upsert(ctx, store.KindScript, "same", "y")
		require.NoError(t, err)
		assert.NotEqual(t, a, s)

		_, err = ds.Get(ctx, store.KindScript, a)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("missing records", func(t *testing.T) {
		ds := open(t)
		ctx := context.Background()

		_, err := ds.Get(ctx, store.KindArticle, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = ds.GetByKey(ctx, store.KindArticle, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)

		list, err := ds.List(ctx, store.KindRun)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("invalid key", func(t *testing.T) {
		ds := open(t)
		_, err := ds.Upsert(context.Background(), "", "k", "x")
		assert.ErrorIs(t, err, store.ErrInvalidKey)
		_, err = ds.Upsert(context.Background(), store.KindArticle, "", "x")
		assert.ErrorIs(t, err, store.ErrInvalidKey)
	})

	t.Run("list is oldest first", func(t *testing.T) {
		ds := open(t)
		ctx := context.Background()

		var ids []string
		for i := range 5 {
			id, err := ds.Upsert(ctx, store.KindRun, fmt.Sprintf("run-%d", i), map[string]int{"n": i})
			require.NoError(t, err)
			ids = append(ids, id)
		}

		list, err := ds.List(ctx, store.KindRun)
		require.NoError(t, err)
		require.Len(t, list, 5)
		for i, r := range list {
			assert.Equal(t, ids[i], r.ID)
		}
	})

	t.Run("concurrent upserts of one key converge", func(t *testing.T) {
		ds := open(t)
		ctx := context.Background()

		const writers = 8
		ids := make([]string, writers)
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := ds.Upsert(ctx, store.KindArticle, "shared", article{Title: "t"})
				assert.NoError(t, err)
				ids[i] = id
			}()
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
		list, err := ds.List(ctx, store.KindArticle)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
