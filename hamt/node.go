package hamt

import (
	"context"
	"sort"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// MaxArrayWidth bounds the number of inline key/value pairs a single
// pointer slot may hold before it is split into a child node, and the
// number of inline pairs a collapsed cluster of child pointers may be
// folded back into on delete. Matches the bucket size
// original_source/rust/noosphere-collections/src/hamt/pointer.rs calls
// MAX_ARRAY_WIDTH.
const MaxArrayWidth = 3

// KV is one key/value pair inline in a pointer's Values slot.
type KV[V any] struct {
	Key   string `cbor:"k"`
	Value V      `cbor:"v"`
}

// pointer is one of a node's occupied slots: either a small inline list of
// values, or a link to a child Node one trie level deeper. Represented as
// two optional fields rather than a tagged union (idiomatic Go; the
// invariant "exactly one is set" is maintained by construction, never by
// the wire format).
type pointer[V any] struct {
	Values []KV[V]           `cbor:"vs,omitempty"`
	Child  *link.ContentHash `cbor:"cl,omitempty"`
}

func (p pointer[V]) isChild() bool { return p.Child != nil }

// Node is one level of the trie: a bitfield of occupied slots and one
// pointer per occupied slot, in ascending slot order.
type Node[V any] struct {
	Bitfield Bitfield     `cbor:"b"`
	Pointers []pointer[V] `cbor:"p,omitempty"`
}

func emptyNode[V any]() *Node[V] {
	return &Node[V]{}
}

func (n *Node[V]) clone() *Node[V] {
	c := &Node[V]{Bitfield: n.Bitfield, Pointers: make([]pointer[V], len(n.Pointers))}
	copy(c.Pointers, n.Pointers)
	return c
}

func loadNode[V any](ctx context.Context, store blockstore.Reader, h link.ContentHash) (*Node[V], error) {
	n, err := blockstore.Get(ctx, store, link.To[Node[V]](h))
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func storeNode[V any](ctx context.Context, store blockstore.Writer, n *Node[V]) (link.ContentHash, error) {
	l, err := blockstore.Put(ctx, store, *n)
	if err != nil {
		return link.ContentHash{}, err
	}
	return l.Hash, nil
}

// keyHash returns the path bytes a key is walked by: SHA-256 of its UTF-8
// encoding, per spec.md §4.4 ("hashing uses SHA-256 over the key's
// encoding"). 32 bytes bounds trie depth to 32 levels.
func keyHash(key string) []byte {
	digest := link.Sha256Digest([]byte(key))
	return digest[:]
}

func insertPointer[V any](ps []pointer[V], at int, p pointer[V]) []pointer[V] {
	ps = append(ps, pointer[V]{})
	copy(ps[at+1:], ps[at:])
	ps[at] = p
	return ps
}

func removePointer[V any](ps []pointer[V], at int) []pointer[V] {
	return append(ps[:at], ps[at+1:]...)
}

func sortKVs[V any](kvs []KV[V]) {
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
}
