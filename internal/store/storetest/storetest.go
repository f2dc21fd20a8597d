// Package storetest checks store.Backend implementations against the
// behaviour the store relies on.
package storetest

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	store "github.com/hanpama/livegraph/internal/store"
)

// RunBackendTests runs the backend contract against fresh backends from
// newBackend.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		b := newBackend(t)
		e, err := b.Get(ctx, store.Key{Type: "Account", ID: "nope"})
		require.NoError(t, err)
		require.Nil(t, e)
	})

	t.Run("put and get", func(t *testing.T) {
		b := newBackend(t)
		key := store.Key{Type: "Account", ID: "a1"}
		in := store.Entity{"id": "a1", "owner": "ada", "tags": []any{"x", "y"}, "active": true}
		require.NoError(t, b.Put(ctx, key, in))

		got, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "ada", got["owner"])
		require.Equal(t, []any{"x", "y"}, got["tags"])
		require.Equal(t, true, got["active"])
	})

	t.Run("copies in and out", func(t *testing.T) {
		b := newBackend(t)
		key := store.Key{Type: "Account", ID: "a1"}
		in := store.Entity{"id": "a1", "tags": []any{"x"}}
		require.NoError(t, b.Put(ctx, key, in))
		in["id"] = "changed"
		in["tags"].([]any)[0] = "changed"

		got, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "a1", got["id"])
		got["tags"].([]any)[0] = "mutated"

		again, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []any{"x"}, again["tags"])
	})

	t.Run("put replaces", func(t *testing.T) {
		b := newBackend(t)
		key := store.Key{Type: "Account", ID: "a1"}
		require.NoError(t, b.Put(ctx, key, store.Entity{"id": "a1", "owner": "ada"}))
		require.NoError(t, b.Put(ctx, key, store.Entity{"id": "a1"}))
		got, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, store.Entity{"id": "a1"}, got)
	})

	t.Run("delete", func(t *testing.T) {
		b := newBackend(t)
		key := store.Key{Type: "Account", ID: "a1"}
		require.NoError(t, b.Put(ctx, key, store.Entity{"id": "a1"}))

		existed, err := b.Delete(ctx, key)
		require.NoError(t, err)
		require.True(t, existed)

		existed, err = b.Delete(ctx, key)
		require.NoError(t, err)
		require.False(t, existed)

		got, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("scan by type", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, store.Key{Type: "Account", ID: "a1"}, store.Entity{"id": "a1"}))
		require.NoError(t, b.Put(ctx, store.Key{Type: "Account", ID: "a2"}, store.Entity{"id": "a2"}))
		require.NoError(t, b.Put(ctx, store.Key{Type: "Transfer", ID: "a3"}, store.Entity{"id": "a3"}))

		got, err := b.Scan(ctx, "Account")
		require.NoError(t, err)
		ids := make([]string, 0, len(got))
		for _, e := range got {
			ids = append(ids, e.ID())
		}
		sort.Strings(ids)
		require.Equal(t, []string{"a1", "a2"}, ids)

		got, err = b.Scan(ctx, "Missing")
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("same id in different types", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, store.Key{Type: "Account", ID: "1"}, store.Entity{"id": "1", "kind": "account"}))
		require.NoError(t, b.Put(ctx, store.Key{Type: "Transfer", ID: "1"}, store.Entity{"id": "1", "kind": "transfer"}))
		got, err := b.Get(ctx, store.Key{Type: "Account", ID: "1"})
		require.NoError(t, err)
		require.Equal(t, "account", got["kind"])
	})

	t.Run("concurrent writers", func(t *testing.T) {
		b := newBackend(t)
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					key := store.Key{Type: "Account", ID: string(rune('a'+w)) + "-" + string(rune('a'+i))}
					if err := b.Put(ctx, key, store.Entity{"id": key.ID, "n": float64(i)}); err != nil {
						t.Error(err)
						return
					}
				}
			}(w)
		}
		wg.Wait()
		got, err := b.Scan(ctx, "Account")
		require.NoError(t, err)
		require.Len(t, got, 100)
	})
}
