// Package token implements the sphere core's signed authorization tokens
// (spec.md §4.3): a JWT compact-serialized envelope carrying a capability
// set, plus the capability partial order and proof-chain reduction that
// give those tokens meaning (spec.md §4.7).
package token

import "errors"

var (
	// ErrSignatureInvalid is returned when a token's signature does not
	// verify against its issuer's resolved key.
	ErrSignatureInvalid = errors.New("token: signature invalid")

	// ErrTokenNotYetValid is returned when now is before the token's
	// not_before bound.
	ErrTokenNotYetValid = errors.New("token: not yet valid")

	// ErrTokenExpired is returned when now is after the token's
	// expires_at bound.
	ErrTokenExpired = errors.New("token: expired")

	// ErrAudienceMismatch is returned when a proof's audience does not
	// equal the issuer of the token it is offered to support.
	ErrAudienceMismatch = errors.New("token: proof audience does not match issuer")

	// ErrProofCycle is returned when a proof chain references itself.
	ErrProofCycle = errors.New("token: proof chain contains a cycle")

	// ErrCapabilityDenied is returned when a reduced proof chain does not
	// grant the capability a verification call requires.
	ErrCapabilityDenied = errors.New("token: capability denied")

	// ErrInvalidDID is returned when a DID string cannot be parsed as a
	// key-DID.
	ErrInvalidDID = errors.New("token: invalid DID")

	// ErrUnsupportedAlgorithm is returned for a token whose header alg
	// this build does not implement a verifier for.
	ErrUnsupportedAlgorithm = errors.New("token: unsupported algorithm")

	// ErrUnknownAbility is returned when a capability names an ability
	// outside the fixed fetch/push/publish/authorize vocabulary.
	ErrUnknownAbility = errors.New("token: unknown ability")
)
