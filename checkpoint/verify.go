package checkpoint

import (
	"crypto/ed25519"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// Verify decodes a COSE Sign1 checkpoint message, checks its signature
// against pub, and returns the enclosed SphereCheckpoint. Callers compare
// the returned Identity/Version against what they already trust; Verify
// itself makes no claim about authority — it only proves pub produced
// this exact bytes-for-bytes checkpoint.
func Verify(encoded []byte, pub ed25519.PublicKey) (SphereCheckpoint, error) {
	msg := cose.NewSign1Message()
	if err := msg.UnmarshalCBOR(encoded); err != nil {
		return SphereCheckpoint{}, err
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return SphereCheckpoint{}, err
	}
	if alg != cose.AlgorithmEdDSA {
		return SphereCheckpoint{}, ErrUnsupportedAlgorithm
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, pub)
	if err != nil {
		return SphereCheckpoint{}, err
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return SphereCheckpoint{}, err
	}

	var checkpoint SphereCheckpoint
	if err := cbor.Unmarshal(msg.Payload, &checkpoint); err != nil {
		return SphereCheckpoint{}, err
	}
	return checkpoint, nil
}
