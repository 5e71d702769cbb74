package kv

import (
	"context"

	"github.com/fxamacker/cbor/v2"
)

// Store is the untyped byte-level key-value capability. MemoryStore and
// BoltStore implement it directly; Get/Set below layer typed convenience on
// top, the same split blockstore.Store uses for content-addressed blocks.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Unset(ctx context.Context, key string) error

	// ForEachPrefix calls fn for every key sharing prefix, in key order.
	// fn returning an error stops iteration and is returned unwrapped.
	ForEachPrefix(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
}

// Get fetches and decodes the value at key as a V.
func Get[V any](ctx context.Context, s Store, key string) (V, error) {
	var zero V
	b, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	var v V
	if err := cbor.Unmarshal(b, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Set encodes v and stores it at key.
func Set[V any](ctx context.Context, s Store, key string, v V) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, b)
}
