package link

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memo struct {
	Body string
}

type loaderFunc func(ctx context.Context, h ContentHash) (memo, error)

func (f loaderFunc) LoadLink(ctx context.Context, h ContentHash) (memo, error) {
	return f(ctx, h)
}

func TestLinkEqualityIgnoresPhantomTag(t *testing.T) {
	h, err := Sum(CodecDagCBOR, []byte("a memo"))
	require.NoError(t, err)

	a := To[memo](h)
	b := To[int](h) // different phantom tag, same hash

	require.True(t, a.Hash.Equals(b.Hash))
}

func TestLinkLoad(t *testing.T) {
	h, err := Sum(CodecDagCBOR, []byte("a memo"))
	require.NoError(t, err)

	want := memo{Body: "hello sphere"}
	loader := loaderFunc(func(ctx context.Context, got ContentHash) (memo, error) {
		require.True(t, h.Equals(got))
		return want, nil
	})

	l := To[memo](h)
	got, err := l.Load(context.Background(), loader)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLinkIsUndef(t *testing.T) {
	var l Link[memo]
	require.True(t, l.IsUndef())

	h, err := Sum(CodecRaw, []byte("x"))
	require.NoError(t, err)
	l = To[memo](h)
	require.False(t, l.IsUndef())
}

func TestLinkCBORRoundTrip(t *testing.T) {
	h, err := Sum(CodecDagCBOR, []byte("a memo"))
	require.NoError(t, err)
	l := To[memo](h)

	encoded, err := l.MarshalCBOR()
	require.NoError(t, err)

	var decoded Link[memo]
	require.NoError(t, decoded.UnmarshalCBOR(encoded))
	require.True(t, l.Equals(decoded))
}
