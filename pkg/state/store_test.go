package state_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/argus-labs/iris/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------------------------------------------------------------------------------
// Store conformance
// -------------------------------------------------------------------------------------------------
// Every backend runs the same suite so the runtime can switch between them without behavior
// changes. Redis runs against miniredis.
// -------------------------------------------------------------------------------------------------

func backends(t *testing.T) map[string]state.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	rs := state.NewRedisStore(state.RedisOptions{Addr: mr.Addr()}, "test")
	t.Cleanup(func() { _ = rs.Close() })

	return map[string]state.Store{
		"memory": state.NewMemStore(),
		"redis":  rs,
	}
}

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Apply(ctx, state.Batch{
				{Key: "a/2", Value: []byte("two")},
				{Key: "a/1", Value: []byte("one")},
				{Key: "b/1", Value: []byte("other")},
				{Key: "a/3", Value: []byte{}},
			}))

			v, ok, err := store.Get(ctx, "a/1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("one"), v)

			var keys []string
			require.NoError(t, store.Iterate(ctx, "a/", func(k string, _ []byte) bool {
				keys = append(keys, k)
				return true
			}))
			assert.Equal(t, []string{"a/1", "a/2", "a/3"}, keys)

			// Early stop.
			var first []string
			require.NoError(t, store.Iterate(ctx, "a/", func(k string, _ []byte) bool {
				first = append(first, k)
				return false
			}))
			assert.Equal(t, []string{"a/1"}, first)

			require.NoError(t, store.Apply(ctx, state.Batch{{Key: "a/1", Value: nil}}))
			_, ok, err = store.Get(ctx, "a/1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisStore_Namespaced(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	a := state.NewRedisStore(state.RedisOptions{Addr: mr.Addr()}, "node-a")
	b := state.NewRedisStore(state.RedisOptions{Addr: mr.Addr()}, "node-b")
	ctx := context.Background()

	require.NoError(t, a.Ping(ctx))
	require.NoError(t, a.Apply(ctx, state.Batch{{Key: "k", Value: []byte("a")}}))

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("node-a:k"))
}
