package sphere

import (
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// AddressBookEntry is spec.md §3's `{ did, link_record? }`: a peer
// reference, optionally resolved to a specific sphere version via a
// signed name record token.
type AddressBookEntry struct {
	DID       string            `cbor:"d"`
	LinkRecord *link.ContentHash `cbor:"r,omitempty"`
}

// Delegation is spec.md §3's `{ name, jwt_link }`: a human label and a
// link to the signed authorization token it names, keyed in the authority
// map by the hash of that token.
type Delegation struct {
	Name    string           `cbor:"n"`
	JWTLink link.ContentHash `cbor:"j"`
}

// Revocation is spec.md §3's `{ issuer_did, revoked_token_hash,
// challenge_signature }`, keyed in the authority map by the same hash as
// the delegation it targets.
type Revocation struct {
	IssuerDID          string           `cbor:"i"`
	RevokedTokenHash   link.ContentHash `cbor:"h"`
	ChallengeSignature []byte           `cbor:"s"`
}

// ChallengeMessage is the exact bytes a Revocation's ChallengeSignature
// covers: "REVOKE:" followed by the target token's hash string, per
// spec.md §3.
func ChallengeMessage(targetHash link.ContentHash) []byte {
	return []byte("REVOKE:" + targetHash.String())
}

// AuthorityRoot is spec.md §3's `authority` sub-object: the sphere's
// delegation and revocation maps.
type AuthorityRoot struct {
	Delegations hamt.VersionedMap[Delegation] `cbor:"d"`
	Revocations hamt.VersionedMap[Revocation] `cbor:"r"`
}

// Root is spec.md §3's Sphere Root: the body of the sphere's top-level
// Memo. Content maps a slug to a Link to the Memo holding that slug's
// current version; AddressBook maps a petname to a peer reference;
// Authority holds the delegation/revocation maps.
type Root struct {
	Identity    string                           `cbor:"i"`
	Content     hamt.VersionedMap[link.ContentHash] `cbor:"c"`
	AddressBook hamt.VersionedMap[AddressBookEntry] `cbor:"a"`
	Authority   AuthorityRoot                       `cbor:"t"`
}
