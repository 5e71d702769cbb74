package sphere

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// Mutation is the staging buffer of spec.md §4.8: three (here, four —
// authority splits into its two constituent maps) sub-mutations, local to
// one Sphere Context and never shared across a threading boundary
// implicitly.
type Mutation struct {
	Content     []hamt.MapOperation[link.ContentHash]
	AddressBook []hamt.MapOperation[AddressBookEntry]
	Delegations []hamt.MapOperation[Delegation]
	Revocations []hamt.MapOperation[Revocation]
}

// IsEmpty reports whether every sub-mutation has no staged ops.
func (m *Mutation) IsEmpty() bool {
	return len(m.Content) == 0 && len(m.AddressBook) == 0 &&
		len(m.Delegations) == 0 && len(m.Revocations) == 0
}

// Reset clears every sub-mutation, called after a successful save.
func (m *Mutation) Reset() {
	m.Content = nil
	m.AddressBook = nil
	m.Delegations = nil
	m.Revocations = nil
}

func (m *Mutation) stageContent(op hamt.MapOperation[link.ContentHash]) {
	m.Content = append(m.Content, op)
}

func (m *Mutation) stageAddressBook(op hamt.MapOperation[AddressBookEntry]) {
	m.AddressBook = append(m.AddressBook, op)
}

func (m *Mutation) stageDelegation(op hamt.MapOperation[Delegation]) {
	m.Delegations = append(m.Delegations, op)
}

func (m *Mutation) stageRevocation(op hamt.MapOperation[Revocation]) {
	m.Revocations = append(m.Revocations, op)
}

// DiffContentMutation stages a Mutation whose Content sub-mutation, applied
// to from.Content, reproduces to.Content: it exploits last-write-wins by
// adding every key present in to and removing every key present in from but
// absent from to, rather than replaying whatever sequence of operations
// actually produced to. Used both by Compact (collapsing a revision range)
// and by the sync client (rebasing a locally-saved revision onto a base the
// gateway has since moved past).
func DiffContentMutation(ctx context.Context, store blockstore.Reader, from, to Root) (*Mutation, error) {
	mutation := &Mutation{}
	err := hamt.ForEach(ctx, store, to.Content, func(key string, value link.ContentHash) error {
		mutation.stageContent(hamt.AddOp(key, value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = hamt.ForEach(ctx, store, from.Content, func(key string, value link.ContentHash) error {
		if _, ok, ferr := hamt.GetKey(ctx, store, to.Content, key); ferr == nil && !ok {
			mutation.stageContent(hamt.RemoveOp[link.ContentHash](key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mutation, nil
}
