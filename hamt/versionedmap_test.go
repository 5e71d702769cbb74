package hamt_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/v3/assert"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
)

func TestVersionedMapGetSetRemove(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()

	m, err := hamt.Empty[string](ctx, store)
	require.NoError(t, err)

	m, err = hamt.Apply(ctx, store, m, []hamt.MapOperation[string]{
		hamt.AddOp("foo", "bar"),
		hamt.AddOp("baz", "qux"),
	})
	require.NoError(t, err)

	v, ok, err := hamt.GetKey(ctx, store, m, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bar", v)

	added, err := hamt.GetAdded(ctx, store, m)
	require.NoError(t, err)
	assert.DeepEqual(t, map[string]string{"foo": "bar", "baz": "qux"}, added)

	m2, err := hamt.Apply(ctx, store, m, []hamt.MapOperation[string]{hamt.RemoveOp[string]("foo")})
	require.NoError(t, err)

	_, ok, err = hamt.GetKey(ctx, store, m2, "foo")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err = hamt.GetKey(ctx, store, m2, "baz")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "qux", v)
}

// TestHAMTCollapseCanonical is scenario #4 of spec.md §8: inserting 20 keys
// (forcing intermediate link nodes), then deleting 18 of them, must produce
// the same HAMT root as inserting only the 2 survivors into a fresh map.
func TestHAMTCollapseCanonical(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()

	keep := map[string]bool{"key-03": true, "key-17": true}

	full, err := hamt.Empty[int](ctx, store)
	require.NoError(t, err)
	var ops []hamt.MapOperation[int]
	for i := 0; i < 20; i++ {
		ops = append(ops, hamt.AddOp(fmt.Sprintf("key-%02d", i), i))
	}
	full, err = hamt.Apply(ctx, store, full, ops)
	require.NoError(t, err)

	var removeOps []hamt.MapOperation[int]
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key-%02d", i)
		if !keep[k] {
			removeOps = append(removeOps, hamt.RemoveOp[int](k))
		}
	}
	collapsed, err := hamt.Apply(ctx, store, full, removeOps)
	require.NoError(t, err)

	fresh, err := hamt.Empty[int](ctx, store)
	require.NoError(t, err)
	fresh, err = hamt.Apply(ctx, store, fresh, []hamt.MapOperation[int]{
		hamt.AddOp("key-03", 3),
		hamt.AddOp("key-17", 17),
	})
	require.NoError(t, err)

	require.True(t, collapsed.HamtRoot.Equals(fresh.HamtRoot))
}

func TestVersionedMapForEach(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()

	m, err := hamt.Empty[int](ctx, store)
	require.NoError(t, err)
	var ops []hamt.MapOperation[int]
	for i := 0; i < 10; i++ {
		ops = append(ops, hamt.AddOp(fmt.Sprintf("k%d", i), i))
	}
	m, err = hamt.Apply(ctx, store, m, ops)
	require.NoError(t, err)

	seen := map[string]int{}
	require.NoError(t, hamt.ForEach(ctx, store, m, func(key string, value int) error {
		seen[key] = value
		return nil
	}))
	require.Len(t, seen, 10)
}
