package blockstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

func TestBoltStorePutGet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocks.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	h, err := s.PutBlock(ctx, link.CodecDagCBOR, []byte("persisted"))
	require.NoError(t, err)

	got, err := s.GetBlock(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocks.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	h, err := s.PutBlock(ctx, link.CodecRaw, []byte("durable"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetBlock(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("durable"), got)
}

func TestBoltStoreMissing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocks.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	h, err := link.Sum(link.CodecRaw, []byte("absent"))
	require.NoError(t, err)

	_, err = s.GetBlock(ctx, h)
	require.ErrorIs(t, err, ErrBlockNotFound)
}
