package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestMemoryStoreUnset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Unset(ctx, "a"))

	_, err := s.Get(ctx, "a")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreForEachPrefixOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "petname/bob", []byte("2")))
	require.NoError(t, s.Set(ctx, "petname/alice", []byte("1")))
	require.NoError(t, s.Set(ctx, "other/thing", []byte("3")))

	var seen []string
	err := s.ForEachPrefix(ctx, "petname/", func(key string, value []byte) error {
		seen = append(seen, key)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"petname/alice", "petname/bob"}, seen)
}

func TestTypedGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type entry struct {
		Count int `cbor:"1,keyasint"`
	}

	require.NoError(t, Set(ctx, s, "k", entry{Count: 7}))
	got, err := Get[entry](ctx, s, "k")
	require.NoError(t, err)
	require.Equal(t, 7, got.Count)
}
