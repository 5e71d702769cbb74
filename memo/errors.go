// Package memo implements spec.md §3/§4.5's Memo: the signed, headered,
// parent-chaining unit of versioned content every sphere revision is built
// from, plus its body-chunk encoding for arbitrary byte streams.
package memo

import "errors"

var (
	// ErrNoParent is returned by BranchFrom-adjacent helpers that require
	// a resolvable parent and are given link.Undef.
	ErrNoParent = errors.New("memo: no parent to branch from")

	// ErrIncompatibleParent is returned when a memo's parent resolves to
	// a Memo whose Content-Type is incompatible with the child's, per
	// spec.md §3's parent-compatibility invariant.
	ErrIncompatibleParent = errors.New("memo: parent has incompatible content-type")

	// ErrMissingHeader is returned when a mandatory header is absent from a
	// Memo presented for verification. VerifySignature returns it for a
	// missing Signature; Content-Type and Author are not checked for.
	ErrMissingHeader = errors.New("memo: missing mandatory header")
)
