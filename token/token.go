package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// CapabilityClaims is the payload of a sphere authorization token: spec.md
// §4.3's "{issuer, audience, not_before?, expires_at?, nonce?,
// capabilities, facts?, proofs?}". It implements jwt.Claims directly so it
// plugs into golang-jwt's sign/parse machinery without an intermediate
// registered-claims type.
type CapabilityClaims struct {
	Issuer       string       `json:"iss"`
	Audience     string       `json:"aud"`
	NotBefore    *int64       `json:"nbf,omitempty"`
	ExpiresAt    *int64       `json:"exp,omitempty"`
	Nonce        string       `json:"nnc,omitempty"`
	Capabilities []Capability `json:"cap"`
	Facts        []string     `json:"fct,omitempty"`
	// Proofs holds the content hash (raw codec, text form) of each proof
	// token in the chain, per spec.md §4.3 ("proofs resolve by content
	// hash to tokens whose audience equals this token's issuer").
	Proofs []string `json:"prf,omitempty"`
}

// Valid implements jwt.Claims. It is the sole place time-bound checking
// happens; golang-jwt calls it during ParseWithClaims and wraps any
// non-nil error in a *jwt.ValidationError, unwrapped again in Parse below.
func (c CapabilityClaims) Valid() error {
	now := time.Now().Unix()
	if c.NotBefore != nil && now < *c.NotBefore {
		return ErrTokenNotYetValid
	}
	if c.ExpiresAt != nil && now > *c.ExpiresAt {
		return ErrTokenExpired
	}
	return nil
}

// Token is a verified or about-to-be-signed capability token.
type Token struct {
	Raw    string
	Claims CapabilityClaims
}

// Hash is the token's stable identity: the content hash of its encoded
// (compact JWT) form, under the raw codec, per spec.md §4.3.
func (t Token) Hash() (link.ContentHash, error) {
	return link.Sum(link.CodecRaw, []byte(t.Raw))
}

// Sign encodes and signs claims as a compact JWT using EdDSA, the core's
// default signing primitive (spec.md §9).
func Sign(key ed25519.PrivateKey, claims CapabilityClaims) (Token, error) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: raw, Claims: claims}, nil
}

// jwtHeader mirrors the header golang-jwt's SigningMethodEdDSA writes, so
// a token signed through SignClaims parses identically (via Parse below)
// to one signed through Sign's concrete ed25519.PrivateKey path.
type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Signer is the minimal signing capability SignClaims needs: a detached
// signature over arbitrary bytes, and the DID identifying the key that
// signature verifies under. This mirrors sphere.KeyMaterial's shape
// without importing it — sphere already imports token, so the reverse
// import would cycle — and any KeyMaterial implementation satisfies it
// structurally with no adapter required.
type Signer interface {
	Sign(data []byte) []byte
	DID() string
}

// SignClaims encodes and signs claims as a compact JWT using signer's own
// Sign closure rather than a concrete ed25519.PrivateKey, so any
// KeyMaterial implementation — not just one backed by a raw Ed25519
// private key — can mint a token. spec.md §9's "the core is generic over
// a signing primitive" applies to token minting exactly as it does to
// Memo.Sign; Sign above is kept for call sites that already hold a
// concrete ed25519.PrivateKey and want golang-jwt to do the encoding.
func SignClaims(signer Signer, claims CapabilityClaims) (Token, error) {
	claims.Issuer = signer.DID()
	headerJSON, err := json.Marshal(jwtHeader{Alg: "EdDSA", Typ: "JWT"})
	if err != nil {
		return Token{}, err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return Token{}, err
	}
	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	sig := signer.Sign([]byte(signingInput))
	raw := signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
	return Token{Raw: raw, Claims: claims}, nil
}

// Parse decodes and verifies raw: signature against the issuer's resolved
// key, and the time bounds in Valid(). It does not walk the proof chain —
// use Reduce for that.
func Parse(raw string, resolver KeyResolver) (Token, error) {
	claims := &CapabilityClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, ErrUnsupportedAlgorithm
		}
		pub, err := resolver.ResolveVerifyKey(claims.Issuer)
		if err != nil {
			return nil, err
		}
		return pub, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Inner != nil {
			return Token{}, verr.Inner
		}
		return Token{}, ErrSignatureInvalid
	}
	if !parsed.Valid {
		return Token{}, ErrSignatureInvalid
	}
	return Token{Raw: raw, Claims: *claims}, nil
}
