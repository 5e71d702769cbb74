package hamt

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
)

// getAt walks the trie rooted at node looking for key, whose path is hash.
func getAt[V any](ctx context.Context, store blockstore.Reader, node *Node[V], hash []byte, depth int, key string) (V, bool, error) {
	var zero V
	idx := int(hash[depth])
	if !node.Bitfield.Test(idx) {
		return zero, false, nil
	}
	p := node.Pointers[node.Bitfield.Rank(idx)]
	if p.isChild() {
		child, err := loadNode[V](ctx, store, *p.Child)
		if err != nil {
			return zero, false, err
		}
		return getAt(ctx, store, child, hash, depth+1, key)
	}
	for _, kv := range p.Values {
		if kv.Key == key {
			return kv.Value, true, nil
		}
	}
	return zero, false, nil
}

// setAt returns a new trie, structurally sharing nothing with node, with
// key bound to value. The result is always canonical: inline value lists
// are kept sorted by key, so two tries built by different mutation
// histories that end with the same logical contents serialize identically.
func setAt[V any](ctx context.Context, store blockstore.Store, node *Node[V], hash []byte, depth int, key string, value V) (*Node[V], error) {
	idx := int(hash[depth])
	rank := node.Bitfield.Rank(idx)

	if !node.Bitfield.Test(idx) {
		n := node.clone()
		n.Bitfield.Set(idx)
		n.Pointers = insertPointer(n.Pointers, rank, pointer[V]{Values: []KV[V]{{Key: key, Value: value}}})
		return n, nil
	}

	p := node.Pointers[rank]
	if p.isChild() {
		child, err := loadNode[V](ctx, store, *p.Child)
		if err != nil {
			return nil, err
		}
		newChild, err := setAt(ctx, store, child, hash, depth+1, key, value)
		if err != nil {
			return nil, err
		}
		newChildHash, err := storeNode(ctx, store, newChild)
		if err != nil {
			return nil, err
		}
		n := node.clone()
		n.Pointers[rank] = pointer[V]{Child: &newChildHash}
		return n, nil
	}

	values := p.Values
	found := false
	newValues := make([]KV[V], len(values))
	for i, kv := range values {
		if kv.Key == key {
			kv.Value = value
			found = true
		}
		newValues[i] = kv
	}
	if !found {
		newValues = append(newValues, KV[V]{Key: key, Value: value})
	}
	sortKVs(newValues)

	n := node.clone()
	if len(newValues) > MaxArrayWidth {
		child := emptyNode[V]()
		var err error
		for _, kv := range newValues {
			child, err = setAt(ctx, store, child, keyHash(kv.Key), depth+1, kv.Key, kv.Value)
			if err != nil {
				return nil, err
			}
		}
		childHash, err := storeNode(ctx, store, child)
		if err != nil {
			return nil, err
		}
		n.Pointers[rank] = pointer[V]{Child: &childHash}
		return n, nil
	}
	n.Pointers[rank] = pointer[V]{Values: newValues}
	return n, nil
}

// clean inspects node (just rebuilt by a delete one level down) and reports
// whether it should be collapsed into its parent's pointer slot as a plain
// inline value list, per original_source's Pointer::clean: zero pointers
// collapses to an empty list (the slot disappears entirely), exactly one
// all-Values pointer is pulled straight up, and a small cluster of all-Values
// pointers whose combined size still fits MaxArrayWidth is flattened and
// re-sorted. Anything else is left as a Link, unchanged.
func clean[V any](n *Node[V]) ([]KV[V], bool) {
	switch len(n.Pointers) {
	case 0:
		return []KV[V]{}, true
	case 1:
		p := n.Pointers[0]
		if p.isChild() {
			return nil, false
		}
		return p.Values, true
	default:
		if len(n.Pointers) > MaxArrayWidth {
			return nil, false
		}
		total := 0
		for _, p := range n.Pointers {
			if p.isChild() {
				return nil, false
			}
			total += len(p.Values)
		}
		if total > MaxArrayWidth {
			return nil, false
		}
		merged := make([]KV[V], 0, total)
		for _, p := range n.Pointers {
			merged = append(merged, p.Values...)
		}
		sortKVs(merged)
		return merged, true
	}
}

// deleteAt returns a new trie with key removed, and whether key was present
// at all (callers use this to avoid persisting a no-op mutation).
func deleteAt[V any](ctx context.Context, store blockstore.Store, node *Node[V], hash []byte, depth int, key string) (*Node[V], bool, error) {
	idx := int(hash[depth])
	if !node.Bitfield.Test(idx) {
		return node, false, nil
	}
	rank := node.Bitfield.Rank(idx)
	p := node.Pointers[rank]

	if p.isChild() {
		child, err := loadNode[V](ctx, store, *p.Child)
		if err != nil {
			return nil, false, err
		}
		newChild, removed, err := deleteAt(ctx, store, child, hash, depth+1, key)
		if err != nil {
			return nil, false, err
		}
		if !removed {
			return node, false, nil
		}
		n := node.clone()
		if vals, ok := clean(newChild); ok {
			if len(vals) == 0 {
				n.Bitfield.Clear(idx)
				n.Pointers = removePointer(n.Pointers, rank)
			} else {
				n.Pointers[rank] = pointer[V]{Values: vals}
			}
			return n, true, nil
		}
		newChildHash, err := storeNode(ctx, store, newChild)
		if err != nil {
			return nil, false, err
		}
		n.Pointers[rank] = pointer[V]{Child: &newChildHash}
		return n, true, nil
	}

	newValues := make([]KV[V], 0, len(p.Values))
	found := false
	for _, kv := range p.Values {
		if kv.Key == key {
			found = true
			continue
		}
		newValues = append(newValues, kv)
	}
	if !found {
		return node, false, nil
	}
	n := node.clone()
	if len(newValues) == 0 {
		n.Bitfield.Clear(idx)
		n.Pointers = removePointer(n.Pointers, rank)
	} else {
		n.Pointers[rank] = pointer[V]{Values: newValues}
	}
	return n, true, nil
}

// forEach walks every key/value pair in the trie in ascending-slot,
// ascending-key order, calling fn for each.
func forEach[V any](ctx context.Context, store blockstore.Reader, node *Node[V], fn func(key string, value V) error) error {
	for _, p := range node.Pointers {
		if p.isChild() {
			child, err := loadNode[V](ctx, store, *p.Child)
			if err != nil {
				return err
			}
			if err := forEach(ctx, store, child, fn); err != nil {
				return err
			}
			continue
		}
		for _, kv := range p.Values {
			if err := fn(kv.Key, kv.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
