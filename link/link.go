package link

import "context"

// Loader is the minimal capability Link[T].Load needs from a block store:
// fetch raw bytes by hash and decode them as T. blockstore.AsLoader adapts
// any blockstore.Reader to this interface, so callers outside the
// blockstore package never need to know the concrete store type.
type Loader[T any] interface {
	LoadLink(ctx context.Context, h ContentHash) (T, error)
}

// Link is a ContentHash tagged, at compile time only, with the type of
// block it addresses. It serializes identically to ContentHash (the phantom
// tag never reaches the wire) and two Links with the same hash are equal
// regardless of tag, matching spec.md §3.
type Link[T any] struct {
	Hash ContentHash
}

// To builds a typed Link from an untyped ContentHash.
func To[T any](h ContentHash) Link[T] {
	return Link[T]{Hash: h}
}

// IsUndef reports whether the link points at nothing.
func (l Link[T]) IsUndef() bool {
	return l.Hash.IsUndef()
}

// Equals compares two Links by hash only, ignoring T.
func (l Link[T]) Equals(other Link[T]) bool {
	return l.Hash.Equals(other.Hash)
}

// Load resolves the link through store, decoding the referenced block as T.
func (l Link[T]) Load(ctx context.Context, store Loader[T]) (T, error) {
	return store.LoadLink(ctx, l.Hash)
}

// MarshalCBOR and UnmarshalCBOR let Link[T] appear directly as a struct
// field in any cbor-tagged record (Memo.Parent, SphereRoot.Content, ...)
// without every caller re-deriving ContentHash's own (un)marshaling.
func (l Link[T]) MarshalCBOR() ([]byte, error) {
	return cborMarshalHash(l.Hash)
}

func (l *Link[T]) UnmarshalCBOR(b []byte) error {
	h, err := cborUnmarshalHash(b)
	if err != nil {
		return err
	}
	l.Hash = h
	return nil
}
