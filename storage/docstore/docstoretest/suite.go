// Package docstoretest checks that a core.DocStore implementation honours the store contract.
package docstoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sportshub/core"
)

type Item struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Count     int       `json:"count"`
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"createdAt"`
	PaidAt    time.Time `json:"paidAt"`
}

func (it *Item) SetDocID(id string)          { it.ID = id }
func (it *Item) StampServerTime(t time.Time) { it.CreatedAt = t }

// Run exercises store. Collections are namespaced with prefix so runs against shared servers do not collide.
func Run(t *testing.T, store core.DocStore, prefix string) {
	coll := prefix + "/items"
	ctx := context.Background()

	t.Run("add get update delete", func(t *testing.T) {
		id, err := store.Add(ctx, coll, &Item{Owner: "a", Count: 1})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		var got Item
		require.NoError(t, store.Get(ctx, coll, id, &got))
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "a", got.Owner)
		assert.False(t, got.CreatedAt.IsZero(), "server timestamp")

		require.NoError(t, store.Update(ctx, coll, id, map[string]interface{}{"paid": true, "paidAt": core.ServerTimestamp}))
		require.NoError(t, store.Get(ctx, coll, id, &got))
		assert.True(t, got.Paid)
		assert.False(t, got.PaidAt.IsZero())
		assert.Equal(t, 1, got.Count)

		require.NoError(t, store.Delete(ctx, coll, id))
		assertNotFound(t, store.Get(ctx, coll, id, &got))
		assertNotFound(t, store.Update(ctx, coll, id, map[string]interface{}{"paid": false}))
	})

	t.Run("set replaces", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, coll, "fixed", &Item{ID: "fixed", Owner: "a", Count: 1}))
		require.NoError(t, store.Set(ctx, coll, "fixed", &Item{ID: "fixed", Owner: "b"}))
		var got Item
		require.NoError(t, store.Get(ctx, coll, "fixed", &got))
		assert.Equal(t, "b", got.Owner)
		assert.Zero(t, got.Count)
		require.NoError(t, store.Delete(ctx, coll, "fixed"))
	})

	t.Run("query", func(t *testing.T) {
		qcoll := coll + "-query"
		require.NoError(t, store.Batch(ctx, []core.Write{
			core.SetWrite(qcoll, "1", &Item{ID: "1", Owner: "a", Count: 1}),
			core.SetWrite(qcoll, "2", &Item{ID: "2", Owner: "b", Count: 1}),
			core.SetWrite(qcoll, "3", &Item{ID: "3", Owner: "a", Count: 2}),
		}))

		var items []Item
		require.NoError(t, store.Query(ctx, qcoll, []core.Filter{core.Where("owner", "a")}, &items))
		assert.Equal(t, []string{"1", "3"}, ids(items))

		require.NoError(t, store.Query(ctx, qcoll, []core.Filter{core.Where("owner", "a"), core.Where("count", 2)}, &items))
		assert.Equal(t, []string{"3"}, ids(items))

		require.NoError(t, store.Query(ctx, qcoll, []core.Filter{core.Where("owner", "zz")}, &items))
		assert.Empty(t, items)

		require.NoError(t, store.Batch(ctx, []core.Write{
			core.DeleteWrite(qcoll, "1"), core.DeleteWrite(qcoll, "2"), core.DeleteWrite(qcoll, "3"),
		}))
		require.NoError(t, store.Query(ctx, qcoll, nil, &items))
		assert.Empty(t, items)
	})

	t.Run("watch", func(t *testing.T) {
		wcoll := coll + "-watch"
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sizes := make(chan int, 20)
		stop, err := store.Watch(wctx, wcoll, []core.Filter{core.Where("owner", "a")}, func(docs []core.Doc) {
			sizes <- len(docs)
		})
		require.NoError(t, err)
		defer stop()

		waitFor(t, sizes, 0)
		require.NoError(t, store.Set(ctx, wcoll, "1", &Item{ID: "1", Owner: "a"}))
		waitFor(t, sizes, 1)
		require.NoError(t, store.Set(ctx, wcoll, "2", &Item{ID: "2", Owner: "a"}))
		waitFor(t, sizes, 2)
		require.NoError(t, store.Delete(ctx, wcoll, "1"))
		waitFor(t, sizes, 1)
		require.NoError(t, store.Delete(ctx, wcoll, "2"))
	})
}

func waitFor(t *testing.T, sizes <-chan int, want int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-sizes:
			if n == want {
				return
			}
		case <-deadline:
			t.Fatalf("no snapshot with %d documents", want)
		}
	}
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err), "%v", err)
	var serr *core.StoreError
	assert.True(t, errors.As(err, &serr))
}

func ids(items []Item) []string {
	res := make([]string, 0, len(items))
	for _, it := range items {
		res = append(res, it.ID)
	}
	return res
}
