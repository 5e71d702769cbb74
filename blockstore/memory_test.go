package blockstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h, err := s.PutBlock(ctx, link.CodecRaw, []byte("hello"))
	require.NoError(t, err)

	got, err := s.GetBlock(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	has, err := s.HasBlock(ctx, h)
	require.NoError(t, err)
	require.True(t, has)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h, err := link.Sum(link.CodecRaw, []byte("never written"))
	require.NoError(t, err)

	_, err = s.GetBlock(ctx, h)
	require.ErrorIs(t, err, ErrBlockNotFound)

	has, err := s.HasBlock(ctx, h)
	require.NoError(t, err)
	require.False(t, has)
}

func TestMemoryStoreIdempotentPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h1, err := s.PutBlock(ctx, link.CodecRaw, []byte("same"))
	require.NoError(t, err)
	h2, err := s.PutBlock(ctx, link.CodecRaw, []byte("same"))
	require.NoError(t, err)

	require.True(t, h1.Equals(h2))
	require.Equal(t, 1, s.Len())
}

func TestMemoryStorePutGetGeneric(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type record struct {
		Name string `cbor:"1,keyasint"`
	}

	l, err := Put(ctx, s, record{Name: "alice"})
	require.NoError(t, err)

	got, err := Get(ctx, s, l)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Name)
}

func TestMemoryStorePutLinksSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h, err := s.PutBlock(ctx, link.CodecRaw, []byte("already here"))
	require.NoError(t, err)

	err = s.PutLinks(ctx, []link.ContentHash{h}, map[string][]byte{
		string(h.Bytes()): []byte("should be ignored, key already present"),
	})
	require.NoError(t, err)

	got, err := s.GetBlock(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("already here"), got)
}
