package stream_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/v3/assert"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/memo"
	"github.com/subconsciousnetwork/noosphere-sub002/stream"
)

func buildSampleSphere(t *testing.T, ctx context.Context, store blockstore.Store) (genesis, v1 link.ContentHash) {
	t.Helper()

	content, err := hamt.Empty[link.ContentHash](ctx, store)
	require.NoError(t, err)

	bodyLink, err := blockstore.Put(ctx, store, content)
	require.NoError(t, err)

	m := memo.Memo{Body: bodyLink.Hash}
	m = m.SetHeader(memo.HeaderContentType, "test/content")
	gLink, err := blockstore.Put(ctx, store, m)
	require.NoError(t, err)

	post, err := blockstore.Put(ctx, store, "hello")
	require.NoError(t, err)
	newContent, err := hamt.Apply(ctx, store, content, []hamt.MapOperation[link.ContentHash]{
		hamt.AddOp("post", post.Hash),
	})
	require.NoError(t, err)
	newBody, err := blockstore.Put(ctx, store, newContent)
	require.NoError(t, err)
	child, err := memo.BranchFrom(ctx, store, gLink.Hash)
	require.NoError(t, err)
	child.Body = newBody.Hash
	v1Link, err := blockstore.Put(ctx, store, child)
	require.NoError(t, err)

	return gLink.Hash, v1Link.Hash
}

func drain(t *testing.T, blocks <-chan stream.Block, errc <-chan error) []stream.Block {
	t.Helper()
	var out []stream.Block
	for b := range blocks {
		out = append(out, b)
	}
	require.NoError(t, <-errc)
	return out
}

func TestMemoBodyStreamExcludesParent(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	genesis, v1 := buildSampleSphere(t, ctx, store)

	blocks := drain(t, stream.MemoBodyStream(ctx, store, v1, true))
	require.NotEmpty(t, blocks)
	// The memo block itself must be present, but not its parent memo.
	require.True(t, blocks[0].Hash.Equals(v1))
	for _, b := range blocks {
		require.False(t, b.Hash.Equals(genesis), "parent memo must not be streamed")
	}
}

func TestMemoHistoryStreamDedupesSharedBlocks(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	genesis, v1 := buildSampleSphere(t, ctx, store)

	blocks := drain(t, stream.MemoHistoryStream(ctx, store, v1, nil))
	seen := map[string]bool{}
	for _, b := range blocks {
		key := string(b.Hash.Bytes())
		require.False(t, seen[key], "block emitted twice: %s", b.Hash.String())
		seen[key] = true
	}
	require.True(t, seen[string(genesis.Bytes())])
	require.True(t, seen[string(v1.Bytes())])
}

func TestCarRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	_, v1 := buildSampleSphere(t, ctx, store)

	blocks := drain(t, stream.MemoBodyStream(ctx, store, v1, true))

	var buf bytes.Buffer
	feedOut := make(chan stream.Block, len(blocks))
	feedErr := make(chan error, 1)
	for _, b := range blocks {
		feedOut <- b
	}
	close(feedOut)
	close(feedErr)

	err := stream.ToCarStream(ctx, &buf, []link.ContentHash{v1}, feedOut, feedErr)
	require.NoError(t, err)

	roots, carBlocks, carErrc := stream.FromCarStream(ctx, bytes.NewReader(buf.Bytes()))
	require.Len(t, roots, 1)
	require.True(t, roots[0].Equals(v1))

	got := drain(t, carBlocks, carErrc)
	require.Len(t, got, len(blocks))
	for i := range blocks {
		require.True(t, blocks[i].Hash.Equals(got[i].Hash))
		assert.DeepEqual(t, blocks[i].Bytes, got[i].Bytes)
	}
}

func TestRecordStreamOrphans(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	_, v1 := buildSampleSphere(t, ctx, store)
	local := kv.NewMemoryStore()
	ledger := stream.NewLedger(local, "test")

	blocks := drain(t, stream.MemoBodyStream(ctx, store, v1, true))
	feedOut := make(chan stream.Block, len(blocks))
	feedErr := make(chan error, 1)
	for _, b := range blocks {
		feedOut <- b
	}
	close(feedOut)
	close(feedErr)

	passed := drain(t, stream.RecordStreamOrphans(ctx, ledger, feedOut, feedErr))
	require.Len(t, passed, len(blocks))

	isOrphan, err := ledger.IsOrphan(ctx, v1)
	require.NoError(t, err)
	require.True(t, isOrphan, "the memo block itself is never referenced by another block")
}

func TestReverseStream(t *testing.T) {
	ctx := context.Background()
	scratch := kv.NewMemoryStore()

	in := make(chan stream.Block, 3)
	errc := make(chan error, 1)
	h1, _ := link.Sum(link.CodecRaw, []byte("a"))
	h2, _ := link.Sum(link.CodecRaw, []byte("b"))
	h3, _ := link.Sum(link.CodecRaw, []byte("c"))
	in <- stream.Block{Hash: h1, Bytes: []byte("a")}
	in <- stream.Block{Hash: h2, Bytes: []byte("b")}
	in <- stream.Block{Hash: h3, Bytes: []byte("c")}
	close(in)
	close(errc)

	out, outErrc := stream.ReverseStream(ctx, "t1", in, errc, scratch, 0)
	got := drain(t, out, outErrc)
	require.Len(t, got, 3)
	require.True(t, got[0].Hash.Equals(h3))
	require.True(t, got[1].Hash.Equals(h2))
	require.True(t, got[2].Hash.Equals(h1))
}
