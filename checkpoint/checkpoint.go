// Package checkpoint implements an optional, out-of-band integrity
// attestation a sphere owner can publish alongside the mandatory
// Token-Envelope authority chain: a COSE Sign1 message committing to a
// sphere's identity and current version hash at a point in time. This is
// additive to spec.md (§4.7's design notes call compaction and sync
// "hard engineering"; a periodic signed checkpoint is the same shape of
// attestation the teacher's massif root-signing provides for its own
// commitments, adapted from Memo-style signing to a standalone COSE
// envelope for callers — dashboards, auditors — that want to check a
// sphere's head without walking the authority chain themselves).
package checkpoint

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

var (
	// ErrUnsupportedAlgorithm is returned when a checkpoint's COSE
	// protected header names an algorithm other than EdDSA.
	ErrUnsupportedAlgorithm = errors.New("checkpoint: unsupported algorithm")
)

// SphereCheckpoint is the payload signed inside the COSE Sign1 envelope:
// a sphere's identity, its version at signing time, and when it was
// signed. Re-signable at any time (a sphere may publish many checkpoints
// across its lifetime); each is independently verifiable.
type SphereCheckpoint struct {
	Identity  string `cbor:"1,keyasint"`
	Version   string `cbor:"2,keyasint"`
	Timestamp int64  `cbor:"3,keyasint"`
}

// Sign builds and signs a checkpoint for identity at version, stamped with
// the current time, returning the encoded COSE Sign1 message bytes.
func Sign(priv ed25519.PrivateKey, identity string, version link.ContentHash) ([]byte, error) {
	checkpoint := SphereCheckpoint{
		Identity:  identity,
		Version:   version.String(),
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := cbor.Marshal(checkpoint)
	if err != nil {
		return nil, err
	}

	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, priv)
	if err != nil {
		return nil, err
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmEdDSA)
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}
