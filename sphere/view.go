package sphere

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/memo"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// ContentTypeSphereRoot is the Content-Type every sphere-root Memo carries,
// per spec.md §3/§4.5's type-dispatch discipline.
const ContentTypeSphereRoot = "application/vnd.noosphere.sphere+dag-cbor"

// LoadRoot resolves head to its Memo and the Root it bodies, per spec.md
// §3 ("the Sphere Root is itself the body of a top-level Memo").
func LoadRoot(ctx context.Context, store blockstore.Reader, head link.ContentHash) (Root, memo.Memo, error) {
	m, err := blockstore.Get(ctx, store, link.To[memo.Memo](head))
	if err != nil {
		return Root{}, memo.Memo{}, err
	}
	if m.Body.IsUndef() {
		return Root{}, m, nil
	}
	root, err := blockstore.Get(ctx, store, link.To[Root](m.Body))
	if err != nil {
		return Root{}, memo.Memo{}, err
	}
	return root, m, nil
}

// Mutate creates a child Memo branched from head, applies mutation
// to the content/address-book/authority submaps in turn, stores the
// resulting Root as the child's body, signs it, and returns the new sphere
// version — spec.md §4.7's apply_mutation, with signing folded in (the
// spec's split between apply_mutation and revision.sign exists to let a
// caller inspect the unsigned revision first; this module's callers never
// need that, so Mutate does both in one step).
func Mutate(
	ctx context.Context,
	store blockstore.Store,
	head link.ContentHash,
	mutation *Mutation,
	author KeyMaterial,
	proof *link.ContentHash,
	extraHeaders []memo.Header,
) (link.ContentHash, error) {
	root, _, err := LoadRoot(ctx, store, head)
	if err != nil {
		return link.ContentHash{}, err
	}

	newContent, err := hamt.Apply(ctx, store, root.Content, mutation.Content)
	if err != nil {
		return link.ContentHash{}, err
	}
	newAddressBook, err := hamt.Apply(ctx, store, root.AddressBook, mutation.AddressBook)
	if err != nil {
		return link.ContentHash{}, err
	}
	newDelegations, err := hamt.Apply(ctx, store, root.Authority.Delegations, mutation.Delegations)
	if err != nil {
		return link.ContentHash{}, err
	}
	newRevocations, err := hamt.Apply(ctx, store, root.Authority.Revocations, mutation.Revocations)
	if err != nil {
		return link.ContentHash{}, err
	}

	newRoot := Root{
		Identity:    root.Identity,
		Content:     newContent,
		AddressBook: newAddressBook,
		Authority:   AuthorityRoot{Delegations: newDelegations, Revocations: newRevocations},
	}
	bodyLink, err := blockstore.Put(ctx, store, newRoot)
	if err != nil {
		return link.ContentHash{}, err
	}

	child, err := memo.BranchFrom(ctx, store, head)
	if err != nil {
		return link.ContentHash{}, err
	}
	child.Body = bodyLink.Hash
	child = child.SetHeader(memo.HeaderContentType, ContentTypeSphereRoot)
	for _, h := range extraHeaders {
		child = child.SetHeader(h.Name, h.Value)
	}
	child = memo.Sign(child, author.Sign, author.DID(), proof)

	l, err := blockstore.Put(ctx, store, child)
	if err != nil {
		return link.ContentHash{}, err
	}
	return l.Hash, nil
}

// revokedHashSet loads the authority Revocations map and returns the set
// of token-hash strings currently revoked.
func revokedHashSet(ctx context.Context, store blockstore.Reader, root Root) (map[string]bool, error) {
	revoked := map[string]bool{}
	err := hamt.ForEach(ctx, store, root.Authority.Revocations, func(key string, value Revocation) error {
		revoked[key] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

// VerifyAuthorization validates tok (signature, time bounds, proof chain,
// per token.Reduce — which re-verifies tok itself, not just its proofs) and
// requires that its reduced chain grants Push against identity, per
// spec.md §4.7's Sphere::verify_authorization. It additionally rejects any
// token whose chain passes through a revoked proof (spec.md §8's testable
// property: "AND no revocation targets any token in P").
//
// A token directly issued by identity still must be re-derived through
// Reduce rather than trusted on sight: reduceChain already attributes every
// capability tok claims at its own level to tok.Claims.Issuer as an
// originator, so a self-issued token that actually carries Push is granted
// here with no special case, and one that does not is correctly denied.
func VerifyAuthorization(ctx context.Context, store blockstore.Reader, identity string, root Root, tok token.Token) error {
	revoked, err := revokedHashSet(ctx, store, root)
	if err != nil {
		return err
	}
	reduced, err := token.Reduce(ctx, store, token.DIDKeyResolver{}, tok, revoked)
	if err != nil {
		return err
	}
	if !reduced.Grants(identity, identity, token.AbilityPush) {
		return token.ErrCapabilityDenied
	}
	return nil
}

// Compact rewrites [untilHash, head) into a single signed Memo whose
// parent is untilHash, per spec.md §4.7. It is only valid when no Memo in
// the compacted range mutates the counterpart link (spec.md §4.10's
// counterpart link, stored as an AddressBook entry under the gateway's own
// petname for this relationship) — callers pass counterpartPetname so
// Compact can check this.
func Compact(
	ctx context.Context,
	store blockstore.Store,
	head, untilHash link.ContentHash,
	counterpartPetname string,
	author KeyMaterial,
	proof *link.ContentHash,
) (link.ContentHash, error) {
	untilRoot, _, err := LoadRoot(ctx, store, untilHash)
	if err != nil {
		return link.ContentHash{}, err
	}

	cur := head
	var chain []link.ContentHash
	for !cur.Equals(untilHash) {
		m, err := blockstore.Get(ctx, store, link.To[memo.Memo](cur))
		if err != nil {
			return link.ContentHash{}, err
		}
		chain = append(chain, cur)
		if m.Parent == nil {
			return link.ContentHash{}, ErrNoLocalLineage
		}

		curRoot, _, err := LoadRoot(ctx, store, cur)
		if err != nil {
			return link.ContentHash{}, err
		}
		entry, ok, err := hamt.GetKey(ctx, store, curRoot.AddressBook, counterpartPetname)
		if err != nil {
			return link.ContentHash{}, err
		}
		var curLink *link.ContentHash
		if ok {
			curLink = entry.LinkRecord
		}
		baselineEntry, baselineOK, err := hamt.GetKey(ctx, store, untilRoot.AddressBook, counterpartPetname)
		if err != nil {
			return link.ContentHash{}, err
		}
		var baselineLink *link.ContentHash
		if baselineOK {
			baselineLink = baselineEntry.LinkRecord
		}
		if (curLink == nil) != (baselineLink == nil) || (curLink != nil && baselineLink != nil && !curLink.Equals(*baselineLink)) {
			return link.ContentHash{}, ErrCompactionUnsafe
		}

		cur = *m.Parent
	}

	// Folding every intermediate Content state is unnecessary: the head's
	// Content map already reflects the last-write-wins result of the whole
	// chain, so diffing it directly against untilHash's reproduces the same
	// end state in one step.
	headRoot, _, err := LoadRoot(ctx, store, head)
	if err != nil {
		return link.ContentHash{}, err
	}
	mutation, err := DiffContentMutation(ctx, store, untilRoot, headRoot)
	if err != nil {
		return link.ContentHash{}, err
	}

	return Mutate(ctx, store, untilHash, mutation, author, proof, []memo.Header{})
}
