package sphere

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/memo"
)

// GetPetname returns the address book entry petname resolves to, if any.
func GetPetname(ctx context.Context, store blockstore.Reader, root Root, petname string) (AddressBookEntry, bool, error) {
	return hamt.GetKey(ctx, store, root.AddressBook, petname)
}

// ResolvePetname follows petname's AddressBookEntry to the sphere version
// its LinkRecord currently names, if the entry carries one. A petname with
// no LinkRecord (assigned but never resolved by a name-record fetch) is
// reported as present but unresolved.
func ResolvePetname(ctx context.Context, store blockstore.Reader, root Root, petname string) (*link.ContentHash, bool, error) {
	entry, ok, err := GetPetname(ctx, store, root, petname)
	if err != nil || !ok {
		return nil, ok, err
	}
	return entry.LinkRecord, true, nil
}

// supersedes reports whether candidate is a strict descendant of existing
// (equal hashes report false) on the sphere-version chain rooted at candidate, walking
// parents via the Memo chain — the petname record freshness check of
// spec.md §4.9 ("a record is superseded if the one already stored for this
// petname is a later version than the one supplied").
//
// A record that cannot establish ancestry within maxDepth (no shared
// lineage found locally) is treated as not superseding: the caller only
// has local history to check against, and an unrelated or not-yet-fetched
// lineage is not grounds for rejection by this check alone.
func supersedes(ctx context.Context, store blockstore.Reader, candidate, existing link.ContentHash, maxDepth int) (bool, error) {
	if candidate.Equals(existing) {
		return false, nil
	}
	cur := candidate
	for i := 0; i < maxDepth; i++ {
		m, err := blockstore.Get(ctx, store, link.To[memo.Memo](cur))
		if err != nil {
			return false, err
		}
		if m.Parent == nil {
			return false, nil
		}
		if m.Parent.Equals(existing) {
			return true, nil
		}
		cur = *m.Parent
	}
	return false, nil
}

// maxSupersedeWalk bounds the ancestor walk supersedes performs, matching
// the teacher's convention of bounding any unbounded-looking local walk.
const maxSupersedeWalk = 100_000

// SetPetnameRecord validates and stages a petname's name-record update,
// per spec.md §4.9: the entry must already exist for petname (assigning a
// bare DID happens through SetPetname instead), the record's subject DID
// must match the entry's DID, the record must not target the sphere's own
// identity, and it must not be superseded by whatever LinkRecord the entry
// already carries.
func SetPetnameRecord(ctx context.Context, store blockstore.Reader, root Root, petname string, record AddressBookEntry, newLink link.ContentHash) (AddressBookEntry, error) {
	if record.DID == root.Identity {
		return AddressBookEntry{}, ErrPetnameSelfReference
	}
	existing, ok, err := GetPetname(ctx, store, root, petname)
	if err != nil {
		return AddressBookEntry{}, err
	}
	if !ok {
		return AddressBookEntry{}, ErrPetnameNotAssigned
	}
	if existing.DID != record.DID {
		return AddressBookEntry{}, ErrPetnameNotAssigned
	}
	if existing.LinkRecord != nil {
		superseded, err := supersedes(ctx, store, *existing.LinkRecord, newLink, maxSupersedeWalk)
		if err != nil {
			return AddressBookEntry{}, err
		}
		if superseded {
			return AddressBookEntry{}, ErrPetnameSuperseded
		}
	}
	return AddressBookEntry{DID: record.DID, LinkRecord: &newLink}, nil
}
