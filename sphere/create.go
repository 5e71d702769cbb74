package sphere

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/memo"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// Created is the result of CreateSphere: the mnemonic recovering the
// sphere's identity key (shown once, never stored, per spec.md §3) and the
// version of the freshly created sphere: its second revision, which grants
// the owner device a Push delegation on top of the self-signed genesis.
type Created struct {
	Mnemonic string
	Identity string
	Version  link.ContentHash
}

// CreateSphere generates a new sphere identity key, writes its empty
// genesis Root (self-signed, Author == Identity, no Proof, per spec.md
// §4.5's Memo invariant for identity-authored memos), then stages and
// applies a Delegation granting owner Push over the new identity, per
// spec.md §3's sphere-creation lifecycle ("the identity key signs a
// delegation to the first device's key before it is ever used again").
func CreateSphere(ctx context.Context, store blockstore.Store, owner KeyMaterial) (Created, error) {
	mnemonic, identityKey, err := GenerateMnemonicIdentity()
	if err != nil {
		return Created{}, err
	}
	identity := identityKey.DID()

	content, err := hamt.Empty[link.ContentHash](ctx, store)
	if err != nil {
		return Created{}, err
	}
	addressBook, err := hamt.Empty[AddressBookEntry](ctx, store)
	if err != nil {
		return Created{}, err
	}
	delegations, err := hamt.Empty[Delegation](ctx, store)
	if err != nil {
		return Created{}, err
	}
	revocations, err := hamt.Empty[Revocation](ctx, store)
	if err != nil {
		return Created{}, err
	}

	root := Root{
		Identity:    identity,
		Content:     content,
		AddressBook: addressBook,
		Authority:   AuthorityRoot{Delegations: delegations, Revocations: revocations},
	}
	bodyLink, err := blockstore.Put(ctx, store, root)
	if err != nil {
		return Created{}, err
	}

	genesis := memo.Memo{Body: bodyLink.Hash}
	genesis = genesis.SetHeader(memo.HeaderContentType, ContentTypeSphereRoot)
	genesis = memo.Sign(genesis, identityKey.Sign, identity, nil)
	genesisLink, err := blockstore.Put(ctx, store, genesis)
	if err != nil {
		return Created{}, err
	}

	grant, err := token.Sign(identityKey.Priv, token.CapabilityClaims{
		Issuer:       identity,
		Audience:     owner.DID(),
		Capabilities: []token.Capability{token.Push(identity)},
	})
	if err != nil {
		return Created{}, err
	}
	grantHash, err := grant.Hash()
	if err != nil {
		return Created{}, err
	}
	if _, err := store.PutBlock(ctx, link.CodecRaw, []byte(grant.Raw)); err != nil {
		return Created{}, err
	}

	mutation := &Mutation{}
	mutation.stageDelegation(hamt.AddOp(grantHash.String(), Delegation{
		Name:    "owner",
		JWTLink: grantHash,
	}))

	version, err := Mutate(ctx, store, genesisLink.Hash, mutation, identityKey, nil, nil)
	if err != nil {
		return Created{}, err
	}

	return Created{Mnemonic: mnemonic, Identity: identity, Version: version}, nil
}

// Join recovers a sphere's identity key from its mnemonic, for use when a
// second device is being granted authority directly with no gateway in
// the loop (the usual path goes through a delegation chain instead; Join
// exists for the identity-key-holder case, e.g. recovery).
func Join(mnemonic string) Ed25519KeyMaterial {
	return KeyMaterialFromMnemonic(mnemonic)
}
