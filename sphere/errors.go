// Package sphere implements the spec.md core: the signed, content-addressed
// Sphere Root, its authority/versioned-map structure, the staged-mutation
// authoring session (Sphere Context), and the identity lifecycle
// (create/join/escalate).
package sphere

import (
	"errors"

	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// Kind classifies an error at the sphere/gateway boundary, per spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindCodecMismatch
	KindSignatureInvalid
	KindCapabilityDenied
	KindTokenExpired
	KindAudienceMismatch
	KindInsufficientPermission
	KindConflict
	KindNoLocalLineage
	KindNoChangesToSave
	KindTimeout
	KindTransportError
)

var (
	ErrNoChangesToSave       = errors.New("sphere: save called with an empty mutation")
	ErrInsufficientPermission = errors.New("sphere: author lacks push capability for this sphere")
	ErrCapabilityDenied      = errors.New("sphere: capability denied")
	ErrPetnameNotAssigned    = errors.New("sphere: petname is not assigned to the record's subject")
	ErrPetnameSuperseded     = errors.New("sphere: record is superseded by an already-stored one")
	ErrPetnameSelfReference  = errors.New("sphere: a petname record's subject must not be the sphere itself")
	ErrIncompatibleContentType = errors.New("sphere: parent memo has incompatible content-type")
	ErrNoLocalLineage        = errors.New("sphere: no local lineage for declared base")
	ErrCompactionUnsafe      = errors.New("sphere: compaction range mutates the counterpart link")
)

// KindOf classifies err into one of the spec.md §7 error kinds, consulting
// both sphere's own sentinels and the token package's authority-chain
// sentinels it wraps.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNoChangesToSave):
		return KindNoChangesToSave
	case errors.Is(err, ErrInsufficientPermission):
		return KindInsufficientPermission
	case errors.Is(err, ErrCapabilityDenied), errors.Is(err, token.ErrCapabilityDenied):
		return KindCapabilityDenied
	case errors.Is(err, token.ErrTokenExpired), errors.Is(err, token.ErrTokenNotYetValid):
		return KindTokenExpired
	case errors.Is(err, token.ErrAudienceMismatch):
		return KindAudienceMismatch
	case errors.Is(err, token.ErrSignatureInvalid):
		return KindSignatureInvalid
	case errors.Is(err, ErrNoLocalLineage):
		return KindNoLocalLineage
	default:
		return KindUnknown
	}
}
