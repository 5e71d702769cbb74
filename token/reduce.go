package token

import (
	"context"
	"fmt"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// entitlement pairs a claimed capability with the set of DIDs that appear
// as issuers along some path in the proof chain granting it — its
// "originators", per spec.md §4.7.
type entitlement struct {
	cap         Capability
	originators map[string]bool
}

// Reduced is the result of walking a token's proof chain leaf-to-root and
// recording, for every capability claimed anywhere in the chain, who
// originated it.
type Reduced struct {
	entitlements []entitlement
}

// Grants reports whether sphereIdentity is an originator of some
// capability in the reduced set that enables (resource, ability).
func (r Reduced) Grants(sphereIdentity, resource string, ability Ability) bool {
	want := Capability{Resource: resource, Ability: ability}
	for _, e := range r.entitlements {
		if e.cap.Enables(want) && e.originators[sphereIdentity] {
			return true
		}
	}
	return false
}

// revokedInChain reports whether any token hash in hashes is present
// in revoked.
func revokedInChain(hashes []link.ContentHash, revoked map[string]bool) bool {
	for _, h := range hashes {
		if revoked[h.String()] {
			return true
		}
	}
	return false
}

// Reduce walks tok's proof chain (fetching each proof from store by its
// declared content hash) and returns the reduced capability set, per
// spec.md §4.7's reduce_capabilities. revoked, if non-nil, short-circuits
// with ErrCapabilityDenied as soon as a revoked token is found anywhere in
// the chain.
//
// tok itself is re-verified here — signature against its issuer's resolved
// key, and time bounds via Valid() — before any of its claims are trusted.
// A caller-constructed Token whose Claims were never parsed from a signed
// Raw (or whose Raw has expired) must not be able to seed an originator by
// simply asserting an Issuer/Capabilities pair; every token in the chain,
// leaf or subject, goes through the same Parse gate as the proofs do.
func Reduce(ctx context.Context, store blockstore.Reader, resolver KeyResolver, tok Token, revoked map[string]bool) (Reduced, error) {
	verified, err := Parse(tok.Raw, resolver)
	if err != nil {
		return Reduced{}, err
	}
	ents, _, err := reduceChain(ctx, store, resolver, verified, map[string]bool{}, revoked)
	if err != nil {
		return Reduced{}, err
	}
	return Reduced{entitlements: ents}, nil
}

func reduceChain(ctx context.Context, store blockstore.Reader, resolver KeyResolver, tok Token, seen map[string]bool, revoked map[string]bool) ([]entitlement, link.ContentHash, error) {
	hash, err := tok.Hash()
	if err != nil {
		return nil, hash, err
	}
	if revoked != nil && revoked[hash.String()] {
		return nil, hash, ErrCapabilityDenied
	}
	if seen[hash.String()] {
		return nil, hash, ErrProofCycle
	}
	seen[hash.String()] = true

	var parentEnts []entitlement
	for _, proofHashStr := range tok.Claims.Proofs {
		proofHash, err := link.ParseString(proofHashStr)
		if err != nil {
			return nil, hash, fmt.Errorf("token: parsing proof hash: %w", err)
		}
		raw, err := store.GetBlock(ctx, proofHash)
		if err != nil {
			return nil, hash, fmt.Errorf("token: fetching proof token: %w", err)
		}
		proofTok, err := Parse(string(raw), resolver)
		if err != nil {
			return nil, hash, err
		}
		if proofTok.Claims.Audience != tok.Claims.Issuer {
			return nil, hash, ErrAudienceMismatch
		}
		sub, _, err := reduceChain(ctx, store, resolver, proofTok, seen, revoked)
		if err != nil {
			return nil, hash, err
		}
		parentEnts = append(parentEnts, sub...)
	}

	result := make([]entitlement, 0, len(tok.Claims.Capabilities))
	for _, c := range tok.Claims.Capabilities {
		origins := map[string]bool{tok.Claims.Issuer: true}
		for _, pe := range parentEnts {
			if pe.cap.Enables(c) {
				for o := range pe.originators {
					origins[o] = true
				}
			}
		}
		result = append(result, entitlement{cap: c, originators: origins})
	}
	return result, hash, nil
}
