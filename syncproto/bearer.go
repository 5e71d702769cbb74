package syncproto

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// MintBearer builds and signs the short-lived capability token every sync
// request carries, spec.md §4.10: a bearer claiming exactly the ability
// this request needs against resource, expiring bearerTTLSeconds from now,
// chained to proof (the caller's own standing authorization, if any) via
// the token envelope's Proofs field.
func MintBearer(signer token.Signer, resource string, ability token.Ability, proof *link.ContentHash) (token.Token, error) {
	now := time.Now().Unix()
	expires := now + bearerTTLSeconds
	claims := token.CapabilityClaims{
		Audience:     resource,
		NotBefore:    &now,
		ExpiresAt:    &expires,
		Nonce:        uuid.NewString(),
		Capabilities: []token.Capability{{Resource: resource, Ability: ability}},
	}
	if proof != nil {
		claims.Proofs = []string{proof.String()}
	}
	return token.SignClaims(signer, claims)
}

// ucanHeader renders tok as the "ucan: <hash> <jwt>" header value spec.md
// §4.10 specifies for carrying one proof-chain token.
func ucanHeader(tok token.Token) (string, error) {
	h, err := tok.Hash()
	if err != nil {
		return "", err
	}
	return h.String() + " " + tok.Raw, nil
}

// CollectUcanHeaders walks tok's proof chain (resolving each proof by
// content hash from store) and returns one "ucan" header value per proof
// token encountered, so a client need not ask its caller to separately
// track which proofs a bearer's chain touches.
//
// spec.md §9 notes the source leaves "sync proofs once per pairing" as a
// legal, unimplemented optimization; this always re-sends the full chain.
// TODO: a per-pairing proof cache would replace this walk with a lookup
// keyed by (gateway, sphere) once that optimization is implemented.
func CollectUcanHeaders(ctx context.Context, store blockstore.Reader, resolver token.KeyResolver, tok token.Token) ([]string, error) {
	var headers []string
	seen := map[string]bool{}
	var walk func(token.Token) error
	walk = func(t token.Token) error {
		h, err := t.Hash()
		if err != nil {
			return err
		}
		if seen[h.String()] {
			return nil
		}
		seen[h.String()] = true
		hdr, err := ucanHeader(t)
		if err != nil {
			return err
		}
		headers = append(headers, hdr)
		for _, proofHashStr := range t.Claims.Proofs {
			proofHash, err := link.ParseString(proofHashStr)
			if err != nil {
				return fmt.Errorf("syncproto: parsing proof hash: %w", err)
			}
			raw, err := store.GetBlock(ctx, proofHash)
			if err != nil {
				return fmt.Errorf("syncproto: fetching proof token: %w", err)
			}
			proofTok, err := token.Parse(string(raw), resolver)
			if err != nil {
				return err
			}
			if err := walk(proofTok); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(tok); err != nil {
		return nil, err
	}
	return headers, nil
}

// parseUcanHeader splits a "ucan: <hash> <jwt>" header value into its
// declared hash and carried JWT.
func parseUcanHeader(value string) (link.ContentHash, string, error) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return link.ContentHash{}, "", fmt.Errorf("%w: malformed ucan header", ErrMalformedRequest)
	}
	hash, err := link.ParseString(parts[0])
	if err != nil {
		return link.ContentHash{}, "", fmt.Errorf("%w: %s", ErrMalformedRequest, err)
	}
	return hash, parts[1], nil
}

// ingestUcanHeaders stores each header's JWT into store keyed by its own
// content hash, rejecting any header whose declared hash does not match
// the hash the JWT actually encodes to, per spec.md §4.10: "the server
// writes each jwt into its token store, verifies the declared hash
// matches ... rejects on mismatch."
func ingestUcanHeaders(ctx context.Context, store blockstore.Writer, headers []string) error {
	for _, h := range headers {
		declaredHash, raw, err := parseUcanHeader(h)
		if err != nil {
			return err
		}
		actualHash, err := store.PutBlock(ctx, link.CodecRaw, []byte(raw))
		if err != nil {
			return err
		}
		if !actualHash.Equals(declaredHash) {
			return fmt.Errorf("%w: ucan header hash does not match its token", ErrMalformedRequest)
		}
	}
	return nil
}
