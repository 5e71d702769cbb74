package sphere

import (
	"context"
	"sync"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// AccessLevel is how a SphereContext's configured author may act on the
// sphere it is open against, per spec.md §4.6.
type AccessLevel int

const (
	AccessReadOnly AccessLevel = iota
	AccessReadWrite
)

// versionKey is the local key-value store key a SphereContext persists the
// most recently saved sphere version under, keyed per sphere identity so
// one local store can hold several spheres' local state.
func versionKey(identity string) string { return "sphere-version:" + identity }

// SphereContext is an authoring session against one sphere, per spec.md
// §4.6: it owns the author's key material and (optional) authorization
// token, the block and local key-value stores, and a Mutation staging
// buffer that accumulates Write calls until Save commits them. A
// SphereContext is not safe to share across goroutines without external
// synchronization beyond what its own mutex provides for Save/Write
// ordering; callers that want concurrent readers should read through a
// separately loaded Root instead.
type SphereContext struct {
	mu sync.Mutex

	Identity string
	Store    blockstore.Store
	Local    kv.Store

	author KeyMaterial
	authz  *token.Token

	pending    Mutation
	accessOnce sync.Once
	access     AccessLevel
	accessErr  error
}

// Open binds a SphereContext to an existing sphere. It takes no version:
// the local head is read from Local under versionKey, and callers set it
// with SeedVersion from a just-created or just-synced version.
func Open(identity string, store blockstore.Store, local kv.Store, author KeyMaterial, authz *token.Token) *SphereContext {
	return &SphereContext{Identity: identity, Store: store, Local: local, author: author, authz: authz}
}

// SeedVersion sets the SphereContext's local head version directly,
// without going through Save — used immediately after CreateSphere or
// after a sync pulls a new head in from a gateway.
func (sc *SphereContext) SeedVersion(ctx context.Context, head link.ContentHash) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.setVersion(ctx, head)
}

// Version returns the SphereContext's locally persisted head version.
func (sc *SphereContext) Version(ctx context.Context) (link.ContentHash, error) {
	b, err := sc.Local.Get(ctx, versionKey(sc.Identity))
	if err != nil {
		return link.ContentHash{}, err
	}
	return link.Parse(b)
}

// setVersion persists head as the SphereContext's new local version.
func (sc *SphereContext) setVersion(ctx context.Context, head link.ContentHash) error {
	return sc.Local.Set(ctx, versionKey(sc.Identity), head.Bytes())
}

// AccessTo computes the author's access level against root: the identity
// key holder always has ReadWrite; otherwise an attached authorization
// token must be audienced to the author and its reduced proof chain must
// grant Push over the sphere identity, per spec.md §4.6's access-level
// derivation. The result is cached for the lifetime of the SphereContext
// (reset only by constructing a new one), matching spec.md's "access level
// is computed once per session, not re-derived per operation."
func (sc *SphereContext) AccessTo(ctx context.Context, root Root) (AccessLevel, error) {
	sc.accessOnce.Do(func() {
		if sc.author.DID() == sc.Identity {
			sc.access = AccessReadWrite
			return
		}
		if sc.authz == nil {
			sc.access = AccessReadOnly
			return
		}
		if sc.authz.Claims.Audience != sc.author.DID() {
			sc.access = AccessReadOnly
			return
		}
		if err := VerifyAuthorization(ctx, sc.Store, sc.Identity, root, *sc.authz); err != nil {
			sc.access = AccessReadOnly
			sc.accessErr = err
			return
		}
		sc.access = AccessReadWrite
	})
	return sc.access, sc.accessErr
}

// requireWrite loads the current Root and asserts the author has
// ReadWrite access, returning the loaded Root for the caller's staging
// step to read the prior state from.
func (sc *SphereContext) requireWrite(ctx context.Context) (Root, error) {
	head, err := sc.Version(ctx)
	if err != nil {
		return Root{}, err
	}
	root, _, err := LoadRoot(ctx, sc.Store, head)
	if err != nil {
		return Root{}, err
	}
	level, err := sc.AccessTo(ctx, root)
	if err != nil {
		return Root{}, err
	}
	if level != AccessReadWrite {
		return Root{}, ErrInsufficientPermission
	}
	return root, nil
}

// Read resolves slug's current value, if any.
func (sc *SphereContext) Read(ctx context.Context, slug string) (link.ContentHash, bool, error) {
	head, err := sc.Version(ctx)
	if err != nil {
		return link.ContentHash{}, false, err
	}
	root, _, err := LoadRoot(ctx, sc.Store, head)
	if err != nil {
		return link.ContentHash{}, false, err
	}
	return hamt.GetKey(ctx, sc.Store, root.Content, slug)
}

// Write stages slug to point at bodyHash, overwriting any prior staged
// write for the same slug within this session.
func (sc *SphereContext) Write(ctx context.Context, slug string, bodyHash link.ContentHash) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, err := sc.requireWrite(ctx); err != nil {
		return err
	}
	sc.pending.stageContent(hamt.AddOp(slug, bodyHash))
	return nil
}

// Remove stages removal of slug.
func (sc *SphereContext) Remove(ctx context.Context, slug string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, err := sc.requireWrite(ctx); err != nil {
		return err
	}
	sc.pending.stageContent(hamt.RemoveOp[link.ContentHash](slug))
	return nil
}

// SetPetname stages petname to resolve to did with no name record yet
// (callers fetch and attach the name record separately via
// SetPetnameRecord).
func (sc *SphereContext) SetPetname(ctx context.Context, petname, did string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if did == sc.Identity {
		return ErrPetnameSelfReference
	}
	if _, err := sc.requireWrite(ctx); err != nil {
		return err
	}
	sc.pending.stageAddressBook(hamt.AddOp(petname, AddressBookEntry{DID: did}))
	return nil
}

// SetPetnameRecord validates and stages a name-record update for petname,
// per the policy in petname.go.
func (sc *SphereContext) SetPetnameRecord(ctx context.Context, petname string, record AddressBookEntry, newLink link.ContentHash) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	root, err := sc.requireWrite(ctx)
	if err != nil {
		return err
	}
	entry, err := SetPetnameRecord(ctx, sc.Store, root, petname, record, newLink)
	if err != nil {
		return err
	}
	sc.pending.stageAddressBook(hamt.AddOp(petname, entry))
	return nil
}

// RemovePetname stages removal of petname.
func (sc *SphereContext) RemovePetname(ctx context.Context, petname string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, err := sc.requireWrite(ctx); err != nil {
		return err
	}
	sc.pending.stageAddressBook(hamt.RemoveOp[AddressBookEntry](petname))
	return nil
}

// GetAuthorization returns the authorization token this context was
// opened with, if any. The boolean reports only whether a token is
// configured; the token's signature, time bounds and proof chain are not
// checked here (AccessTo does that).
func (sc *SphereContext) GetAuthorization() (token.Token, bool) {
	if sc.authz == nil {
		return token.Token{}, false
	}
	return *sc.authz, true
}

// Author returns the KeyMaterial this context signs memos and requests
// with, so collaborators outside this package (the sync protocol's bearer
// token minting, in particular) never need their own copy of the author's
// key.
func (sc *SphereContext) Author() KeyMaterial {
	return sc.author
}

// ProofHash returns the content hash of this context's configured
// authorization token, if any — the Proof a saved Memo carries, and the
// proof a sync bearer token chains to.
func (sc *SphereContext) ProofHash() (*link.ContentHash, error) {
	if sc.authz == nil {
		return nil, nil
	}
	h, err := sc.authz.Hash()
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Rebase replaces this context's local head with newHead directly,
// without going through Save — used by the sync protocol's conflict
// recovery, which computes newHead itself (a Mutate call atop a fetched
// base) rather than staging it as a Mutation.
func (sc *SphereContext) Rebase(ctx context.Context, newHead link.ContentHash) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.setVersion(ctx, newHead)
}

// Save applies the pending Mutation, signs and stores the new head Memo,
// updates the local version pointer, and flushes the block store, per
// spec.md §4.6 ("save: apply_mutation, sign, store, update local head,
// reset pending_mutation"). Saving an empty Mutation is rejected with
// ErrNoChangesToSave rather than silently producing a no-op revision.
func (sc *SphereContext) Save(ctx context.Context) (link.ContentHash, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.pending.IsEmpty() {
		return link.ContentHash{}, ErrNoChangesToSave
	}
	if _, err := sc.requireWrite(ctx); err != nil {
		return link.ContentHash{}, err
	}
	head, err := sc.Version(ctx)
	if err != nil {
		return link.ContentHash{}, err
	}

	var proof *link.ContentHash
	if sc.authz != nil {
		h, err := sc.authz.Hash()
		if err != nil {
			return link.ContentHash{}, err
		}
		proof = &h
	}

	newHead, err := Mutate(ctx, sc.Store, head, &sc.pending, sc.author, proof, nil)
	if err != nil {
		return link.ContentHash{}, err
	}
	if err := sc.setVersion(ctx, newHead); err != nil {
		return link.ContentHash{}, err
	}
	if err := sc.Store.Flush(ctx); err != nil {
		return link.ContentHash{}, err
	}
	sc.pending.Reset()
	return newHead, nil
}
