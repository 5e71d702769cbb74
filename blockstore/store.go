package blockstore

import (
	"context"

	"github.com/fxamacker/cbor/v2"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// Reader resolves blocks by content hash.
type Reader interface {
	// GetBlock returns the raw bytes stored under h, or ErrBlockNotFound.
	GetBlock(ctx context.Context, h link.ContentHash) ([]byte, error)

	// HasBlock reports whether h is present, without reading its bytes.
	HasBlock(ctx context.Context, h link.ContentHash) (bool, error)
}

// Writer accepts new blocks.
type Writer interface {
	// PutBlock stores bytes under their own content hash and returns it.
	// Writing the same bytes twice is a no-op: blocks are immutable and
	// identified by their own content, so Put is always create-if-absent.
	PutBlock(ctx context.Context, codec link.Codec, bytes []byte) (link.ContentHash, error)
}

// Store is the full block store capability: the read/write split mirrors
// the teacher's ObjectReader/ObjectWriter/ObjectReaderWriter layering, kept
// because callers that only ever read (a gateway serving a fetch) and
// callers that only ever write (a sync client materializing pulled blocks)
// are usefully distinguished at the type level.
type Store interface {
	Reader
	Writer

	// PutLinks stores every entry of blocks that is not already present,
	// used when receiving a batch from a sync peer. roots does not narrow
	// which entries are stored.
	PutLinks(ctx context.Context, roots []link.ContentHash, blocks map[string][]byte) error

	// Flush durably commits any buffered writes. Backends with no write
	// buffering (MemoryStore, BoltStore) may implement this as a no-op.
	Flush(ctx context.Context) error
}

// RequireBlock is GetBlock with the not-found case folded into the error,
// matching spec.md's "require_block" vocabulary for "fetch or fail".
func RequireBlock(ctx context.Context, r Reader, h link.ContentHash) ([]byte, error) {
	b, err := r.GetBlock(ctx, h)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Put encodes v as dag-cbor and stores it, returning a typed Link to it.
func Put[T any](ctx context.Context, w Writer, v T) (link.Link[T], error) {
	encoded, err := cbor.Marshal(v)
	if err != nil {
		return link.Link[T]{}, err
	}
	h, err := w.PutBlock(ctx, link.CodecDagCBOR, encoded)
	if err != nil {
		return link.Link[T]{}, err
	}
	return link.To[T](h), nil
}

// Get loads and decodes the dag-cbor block l points at.
func Get[T any](ctx context.Context, r Reader, l link.Link[T]) (T, error) {
	var zero T
	b, err := r.GetBlock(ctx, l.Hash)
	if err != nil {
		return zero, err
	}
	var v T
	if err := cbor.Unmarshal(b, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// linkLoader implements link.Loader[T] over any Reader. A Store does not
// satisfy link.Loader[T] itself; wrap it with AsLoader wherever a
// Link[T].Load target is expected.
type linkLoader[T any] struct{ r Reader }

// AsLoader adapts r to link.Loader[T] for a concrete T.
func AsLoader[T any](r Reader) link.Loader[T] {
	return linkLoader[T]{r: r}
}

func (l linkLoader[T]) LoadLink(ctx context.Context, h link.ContentHash) (T, error) {
	return Get(ctx, l.r, link.To[T](h))
}
