package sphere

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/tyler-smith/go-bip39"

	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// KeyMaterial is the signing primitive spec.md §9 leaves generic: sign,
// verify, and report a DID. Ed25519KeyMaterial is the only implementation
// this module carries (spec.md §9 names Ed25519 as the default). Most call
// sites take KeyMaterial by interface; CreateSphere signs the owner
// delegation with the concrete Ed25519 private key, and the gateway's
// checkpoint sealing only works with an Ed25519KeyMaterial.
type KeyMaterial interface {
	Sign(data []byte) []byte
	Verify(data, sig []byte) bool
	DID() string
	PublicKey() ed25519.PublicKey
}

// Ed25519KeyMaterial is the default KeyMaterial: a bare Ed25519 keypair
// whose DID is the did:key encoding of its public key.
type Ed25519KeyMaterial struct {
	Priv ed25519.PrivateKey
}

func (k Ed25519KeyMaterial) Sign(data []byte) []byte {
	return ed25519.Sign(k.Priv, data)
}

func (k Ed25519KeyMaterial) Verify(data, sig []byte) bool {
	return ed25519.Verify(k.Priv.Public().(ed25519.PublicKey), data, sig)
}

func (k Ed25519KeyMaterial) DID() string {
	return token.DIDFromPublicKey(k.Priv.Public().(ed25519.PublicKey))
}

func (k Ed25519KeyMaterial) PublicKey() ed25519.PublicKey {
	return k.Priv.Public().(ed25519.PublicKey)
}

// GenerateKeyMaterial creates a fresh, non-recoverable Ed25519 keypair —
// used for device keys that are authorized by a sphere's identity key
// rather than being that identity themselves.
func GenerateKeyMaterial() (Ed25519KeyMaterial, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Ed25519KeyMaterial{}, err
	}
	return Ed25519KeyMaterial{Priv: priv}, nil
}

// GenerateMnemonicIdentity creates a fresh sphere identity key deterministically
// derived from a freshly generated BIP-39 mnemonic, per spec.md §3's
// sphere-creation lifecycle ("the result is a mnemonic ... returned once
// and never stored") and §6 ("Mnemonic: BIP-39 style word sequence encoding
// a seed from which the identity key is deterministically derived").
func GenerateMnemonicIdentity() (mnemonic string, key Ed25519KeyMaterial, err error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", Ed25519KeyMaterial{}, err
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", Ed25519KeyMaterial{}, err
	}
	return mnemonic, KeyMaterialFromMnemonic(mnemonic), nil
}

// KeyMaterialFromMnemonic deterministically re-derives the identity key a
// mnemonic was generated for, used when a replica recovers a sphere's
// identity key from its recovery phrase.
func KeyMaterialFromMnemonic(mnemonic string) Ed25519KeyMaterial {
	seed := bip39.NewSeed(mnemonic, "")
	return Ed25519KeyMaterial{Priv: ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])}
}
