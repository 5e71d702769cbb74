package sphere_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/sphere"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// iterateDelegations calls fn with the JWTLink of every delegation in
// root's authority map.
func iterateDelegations(ctx context.Context, store blockstore.Reader, root sphere.Root, fn func(hash link.ContentHash)) error {
	return hamt.ForEach(ctx, store, root.Authority.Delegations, func(key string, value sphere.Delegation) error {
		fn(value.JWTLink)
		return nil
	})
}

// loadToken fetches and parses the raw token stored at hash.
func loadToken(t *testing.T, ctx context.Context, store blockstore.Reader, hash link.ContentHash) token.Token {
	t.Helper()
	raw, err := store.GetBlock(ctx, hash)
	require.NoError(t, err)
	tok, err := token.Parse(string(raw), token.DIDKeyResolver{})
	require.NoError(t, err)
	return tok
}
