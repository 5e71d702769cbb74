package memo_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/memo"
)

func TestSignAndVerify(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	bodyLink, err := blockstore.Put(ctx, store, "bar")
	require.NoError(t, err)

	sign := func(data []byte) []byte { return ed25519.Sign(priv, data) }
	verify := func(data, sig []byte) bool { return ed25519.Verify(pub, data, sig) }

	m := memo.Memo{Body: bodyLink.Hash}
	m = m.SetHeader(memo.HeaderContentType, "text/plain")
	m = memo.Sign(m, sign, "did:key:ztest", nil)

	author, ok := m.GetFirstHeader(memo.HeaderAuthor)
	require.True(t, ok)
	require.Equal(t, "did:key:ztest", author)

	ok, err = memo.VerifySignature(m, verify)
	require.NoError(t, err)
	require.True(t, ok)

	_, hasProof := m.GetFirstHeader(memo.HeaderProof)
	require.False(t, hasProof)
}

func TestBranchFromStripsSignatureHeaders(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	bodyLink, err := blockstore.Put(ctx, store, "v1")
	require.NoError(t, err)
	sign := func(data []byte) []byte { return ed25519.Sign(priv, data) }
	genesis := memo.Memo{Body: bodyLink.Hash}
	genesis = genesis.SetHeader(memo.HeaderContentType, "sphere/root")
	genesis = memo.Sign(genesis, sign, "did:key:zgenesis", nil)

	genesisLink, err := blockstore.Put(ctx, store, genesis)
	require.NoError(t, err)

	child, err := memo.BranchFrom(ctx, store, genesisLink.Hash)
	require.NoError(t, err)

	require.NotNil(t, child.Parent)
	require.True(t, child.Parent.Equals(genesisLink.Hash))
	_, hasAuthor := child.GetFirstHeader(memo.HeaderAuthor)
	require.False(t, hasAuthor)
	ct, ok := child.GetFirstHeader(memo.HeaderContentType)
	require.True(t, ok)
	require.Equal(t, "sphere/root", ct)
}

func TestBodyChunkRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	scratch := kv.NewMemoryStore()

	payload := bytes.Repeat([]byte("abcdefghij"), 1000) // 10000 bytes
	head, err := memo.Encode(ctx, bytes.NewReader(payload), store, scratch, 64, memo.Limit(256))
	require.NoError(t, err)

	r := memo.Decode(ctx, store, head)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestBodyChunkEmpty(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	scratch := kv.NewMemoryStore()

	head, err := memo.Encode(ctx, bytes.NewReader(nil), store, scratch, 64, memo.Unbounded)
	require.NoError(t, err)

	r := memo.Decode(ctx, store, head)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Empty(t, got)
}
