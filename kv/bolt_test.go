package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltStoreSetGet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "sphere/identity", []byte("did:key:z6Mk...")))
	v, err := s.Get(ctx, "sphere/identity")
	require.NoError(t, err)
	require.Equal(t, []byte("did:key:z6Mk..."), v)
}

func TestBoltStoreForEachPrefix(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "addressbook/alice", []byte("1")))
	require.NoError(t, s.Set(ctx, "addressbook/bob", []byte("2")))
	require.NoError(t, s.Set(ctx, "config/height", []byte("3")))

	var seen []string
	err = s.ForEachPrefix(ctx, "addressbook/", func(key string, value []byte) error {
		seen = append(seen, key)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"addressbook/alice", "addressbook/bob"}, seen)
}
