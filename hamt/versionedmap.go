package hamt

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// VersionedMap is spec.md §3's "pair (hamt_root, changelog_root)": a HAMT
// snapshot plus the ops that produced it from its (unrecorded, caller-known)
// parent state. Equality between two VersionedMaps is defined by HamtRoot
// alone — two maps that reach the same state by different mutation paths
// may legitimately carry different ChangelogRoots.
type VersionedMap[V any] struct {
	HamtRoot      link.ContentHash `cbor:"hamt"`
	ChangelogRoot link.ContentHash `cbor:"log"`
}

// Empty is the VersionedMap for a freshly created, empty map: an empty
// root node and an empty changelog.
func Empty[V any](ctx context.Context, store blockstore.Store) (VersionedMap[V], error) {
	hamtHash, err := storeNode(ctx, store, emptyNode[V]())
	if err != nil {
		return VersionedMap[V]{}, err
	}
	logLink, err := blockstore.Put(ctx, store, Changelog[V]{})
	if err != nil {
		return VersionedMap[V]{}, err
	}
	return VersionedMap[V]{HamtRoot: hamtHash, ChangelogRoot: logLink.Hash}, nil
}

// GetKey returns the value stored under key, if any.
func GetKey[V any](ctx context.Context, store blockstore.Reader, m VersionedMap[V], key string) (V, bool, error) {
	root, err := loadNode[V](ctx, store, m.HamtRoot)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return getAt(ctx, store, root, keyHash(key), 0, key)
}

// Require is Get with absence folded into ErrKeyNotFound, matching
// spec.md's require(K) vocabulary.
func Require[V any](ctx context.Context, store blockstore.Reader, m VersionedMap[V], key string) (V, error) {
	v, ok, err := GetKey(ctx, store, m, key)
	if err != nil {
		var zero V
		return zero, err
	}
	if !ok {
		var zero V
		return zero, ErrKeyNotFound
	}
	return v, nil
}

// ForEach calls fn for every key/value pair, in ascending-slot order.
func ForEach[V any](ctx context.Context, store blockstore.Reader, m VersionedMap[V], fn func(key string, value V) error) error {
	root, err := loadNode[V](ctx, store, m.HamtRoot)
	if err != nil {
		return err
	}
	return forEach(ctx, store, root, fn)
}

// Stream returns a channel of every key/value pair, for callers that want
// async iteration (spec.md's stream() -> async iter<(K,V)>) rather than a
// blocking callback. The channel is closed when iteration completes or
// fails; a send failure is reported on errc.
func Stream[V any](ctx context.Context, store blockstore.Reader, m VersionedMap[V]) (<-chan KV[V], <-chan error) {
	out := make(chan KV[V])
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		err := ForEach(ctx, store, m, func(key string, value V) error {
			select {
			case out <- KV[V]{Key: key, Value: value}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errc <- err
		}
	}()
	return out, errc
}

// GetChangelog loads the ops recorded for this revision.
func GetChangelog[V any](ctx context.Context, store blockstore.Reader, m VersionedMap[V]) (Changelog[V], error) {
	return blockstore.Get(ctx, store, link.To[Changelog[V]](m.ChangelogRoot))
}

// GetAdded returns the {key: value} set this revision's changelog added.
func GetAdded[V any](ctx context.Context, store blockstore.Reader, m VersionedMap[V]) (map[string]V, error) {
	log, err := GetChangelog(ctx, store, m)
	if err != nil {
		return nil, err
	}
	return log.Added(), nil
}

// Apply applies ops, in order, to m's HAMT, and persists a fresh Changelog
// containing exactly ops (not the prior revision's ops), returning the
// resulting VersionedMap. This is spec.md §4.4's "applying a mutation": the
// two products (new HAMT root, new changelog) are independent blocks, both
// freshly written, per the invariant that a changelog never references its
// parent's changelog directly (history is reconstructed via the owning
// Memo chain, not via a changelog linked list).
func Apply[V any](ctx context.Context, store blockstore.Store, m VersionedMap[V], ops []MapOperation[V]) (VersionedMap[V], error) {
	root, err := loadNode[V](ctx, store, m.HamtRoot)
	if err != nil {
		return VersionedMap[V]{}, err
	}
	for _, op := range ops {
		hash := keyHash(op.Key)
		switch op.Kind {
		case OpAdd:
			root, err = setAt(ctx, store, root, hash, 0, op.Key, op.Value)
		case OpRemove:
			root, _, err = deleteAt(ctx, store, root, hash, 0, op.Key)
		}
		if err != nil {
			return VersionedMap[V]{}, err
		}
	}
	hamtHash, err := storeNode(ctx, store, root)
	if err != nil {
		return VersionedMap[V]{}, err
	}
	logLink, err := blockstore.Put(ctx, store, Changelog[V]{Ops: ops})
	if err != nil {
		return VersionedMap[V]{}, err
	}
	return VersionedMap[V]{HamtRoot: hamtHash, ChangelogRoot: logLink.Hash}, nil
}
