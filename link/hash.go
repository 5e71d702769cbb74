package link

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Codec identifies the block format a ContentHash addresses. Only the two
// codecs the sphere core actually interprets are named; any other value
// round-trips but cannot be decoded by this package.
type Codec uint64

const (
	// CodecDagCBOR marks a structured IPLD record that may carry links to
	// other blocks (Memo, SphereRoot, VersionedMap nodes, Delegation, ...).
	CodecDagCBOR Codec = 0x71
	// CodecRaw marks an opaque byte chunk (a BodyChunk payload, a Token's
	// encoded bytes).
	CodecRaw Codec = 0x55
)

func (c Codec) String() string {
	switch c {
	case CodecDagCBOR:
		return "dag-cbor"
	case CodecRaw:
		return "raw"
	default:
		return fmt.Sprintf("codec(0x%x)", uint64(c))
	}
}

// multihash code used for all ContentHash values: blake2b-256, per spec.md
// §4.1 ("the hash by (codec-id, blake2b-256(encoded-bytes))").
const multihashCode = mh.BLAKE2B_MIN + 31 // the 256-bit (32 byte) blake2b variant

// ContentHash is a self-describing content identifier: a tuple of
// (version, codec, multihash). It wraps cid.Cid, which already carries
// exactly this tuple, so ContentHash is mostly a thin, sphere-domain-named
// facade that restricts construction to the two codecs this package
// understands and exposes the hashing helper the Block Store needs.
type ContentHash struct {
	c cid.Cid
}

// Undef is the zero ContentHash, used the way cid.Undef is used: as an
// explicit "no link" sentinel distinct from a valid all-zero hash.
var Undef = ContentHash{}

// IsUndef reports whether h is the zero value.
func (h ContentHash) IsUndef() bool {
	return !h.c.Defined()
}

// Codec returns the codec tag carried by the hash.
func (h ContentHash) Codec() Codec {
	return Codec(h.c.Type())
}

// Bytes returns the canonical binary form of the hash (version + codec +
// multihash), suitable for use as a Block Store key.
func (h ContentHash) Bytes() []byte {
	return h.c.Bytes()
}

// String renders the hash using the standard CID text encoding.
func (h ContentHash) String() string {
	return h.c.String()
}

// Equals reports whether two hashes address the same bytes under the same
// codec. This is the equality spec.md's Link<T> uses: "Two Links with the
// same hash are equal regardless of phantom tag."
func (h ContentHash) Equals(other ContentHash) bool {
	return h.c.Equals(other.c)
}

// Multihash returns the multihash (hash-function code, digest length and
// digest) without the CID's version/codec prefix. The HAMT's key hashing
// does not use it; block stores that index by multihash (e.g. a bucketed
// KV layout) can.
func (h ContentHash) Multihash() mh.Multihash {
	return h.c.Hash()
}

// Cid exposes the underlying cid.Cid for interop with libraries that expect
// one (e.g. CAR framing).
func (h ContentHash) Cid() cid.Cid {
	return h.c
}

// FromCid wraps an existing cid.Cid as a ContentHash without validating its
// codec. Used when decoding a CAR stream, whose roots may reference any
// codec a peer chose to write.
func FromCid(c cid.Cid) ContentHash {
	return ContentHash{c: c}
}

// Parse decodes a ContentHash from its canonical binary form.
func Parse(b []byte) (ContentHash, error) {
	c, err := cid.Cast(b)
	if err != nil {
		return ContentHash{}, fmt.Errorf("%w: %s", ErrInvalidMultihash, err)
	}
	return ContentHash{c: c}, nil
}

// ParseString decodes a ContentHash from its text (base32/base58/...) form.
func ParseString(s string) (ContentHash, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return ContentHash{}, fmt.Errorf("%w: %s", ErrInvalidMultihash, err)
	}
	return ContentHash{c: c}, nil
}

// Sum computes the ContentHash of encoded under the given codec, using
// blake2b-256 as spec.md §4.1 mandates.
func Sum(codec Codec, encoded []byte) (ContentHash, error) {
	digest, err := mh.Sum(encoded, multihashCode, 32)
	if err != nil {
		return ContentHash{}, fmt.Errorf("link: hashing block: %w", err)
	}
	return ContentHash{c: cid.NewCidV1(uint64(codec), digest)}, nil
}

// dagCBORLinkTag is the IPLD dag-cbor convention for an embedded CID: tag 42
// wrapping a byte string whose first byte is the multibase-identity prefix
// 0x00 followed by the CID's own bytes.
const dagCBORLinkTag = 42

// MarshalCBOR encodes h the way any dag-cbor block embeds a link: as a
// tag-42 byte string. This lets ContentHash (and Link[T], via the helpers
// below) appear as an ordinary field in any cbor-tagged struct in this
// module (Memo, hamt.Node, ...).
func (h ContentHash) MarshalCBOR() ([]byte, error) {
	return cborMarshalHash(h)
}

// UnmarshalCBOR decodes h from the tag-42 form written by MarshalCBOR.
func (h *ContentHash) UnmarshalCBOR(b []byte) error {
	decoded, err := cborUnmarshalHash(b)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

func cborMarshalHash(h ContentHash) ([]byte, error) {
	if h.IsUndef() {
		return cbor.Marshal(nil)
	}
	tagged := cbor.Tag{
		Number:  dagCBORLinkTag,
		Content: append([]byte{0x00}, h.Bytes()...),
	}
	return cbor.Marshal(tagged)
}

func cborUnmarshalHash(b []byte) (ContentHash, error) {
	if len(b) == 1 && b[0] == 0xf6 { // CBOR null: the undef sentinel
		return ContentHash{}, nil
	}
	var tagged cbor.Tag
	if err := cbor.Unmarshal(b, &tagged); err != nil {
		return ContentHash{}, fmt.Errorf("%w: %s", ErrInvalidMultihash, err)
	}
	content, ok := tagged.Content.([]byte)
	if !ok || len(content) == 0 || content[0] != 0x00 {
		return ContentHash{}, fmt.Errorf("%w: malformed dag-cbor link", ErrInvalidMultihash)
	}
	return Parse(content[1:])
}

// Sha256Digest hashes b with SHA-256, used by the HAMT (spec.md §4.4:
// "hashing uses SHA-256 over the key's encoding") rather than by
// ContentHash, which is always blake2b-256. Exported here since both live in
// the content-addressing layer and callers outside this package need it for
// HAMT path derivation without taking a second crypto dependency.
func Sha256Digest(b []byte) [32]byte {
	return sha256.Sum256(b)
}
