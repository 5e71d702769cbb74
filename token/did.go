package token

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	varint "github.com/multiformats/go-varint"
)

const didKeyPrefix = "did:key:z"

// ed25519MulticodecCode is the multicodec code for an Ed25519 public key,
// per the did:key method spec: 0xed.
const ed25519MulticodecCode = 0xed

// DIDFromPublicKey encodes an Ed25519 public key as a did:key string: the
// multicodec-prefixed key, base58btc-encoded, with a 'z' multibase marker.
func DIDFromPublicKey(pub ed25519.PublicKey) string {
	prefix := varint.ToUvarint(ed25519MulticodecCode)
	encoded := append(prefix, pub...)
	return didKeyPrefix + base58.Encode(encoded)
}

// ParseDID recovers the Ed25519 public key from a did:key string.
func ParseDID(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, didKeyPrefix) {
		return nil, fmt.Errorf("%w: %q is not a did:key", ErrInvalidDID, did)
	}
	decoded, err := base58.Decode(strings.TrimPrefix(did, didKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDID, err)
	}
	code, n, err := varint.FromUvarint(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad multicodec prefix: %s", ErrInvalidDID, err)
	}
	if code != ed25519MulticodecCode {
		return nil, fmt.Errorf("%w: unsupported did:key codec 0x%x", ErrInvalidDID, code)
	}
	pub := decoded[n:]
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: wrong key length for ed25519", ErrInvalidDID)
	}
	return ed25519.PublicKey(pub), nil
}

// KeyResolver resolves a DID to the public key that should verify
// signatures claiming that DID as issuer. DIDKeyResolver is stateless
// because key-DIDs are self-describing; other resolvers (e.g. one that
// checks a revocation list) can wrap it.
type KeyResolver interface {
	ResolveVerifyKey(did string) (ed25519.PublicKey, error)
}

// DIDKeyResolver resolves did:key strings directly, with no network or
// storage lookup.
type DIDKeyResolver struct{}

func (DIDKeyResolver) ResolveVerifyKey(did string) (ed25519.PublicKey, error) {
	return ParseDID(did)
}
