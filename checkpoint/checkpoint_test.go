package checkpoint_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subconsciousnetwork/noosphere-sub002/checkpoint"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	version, err := link.Sum(link.CodecDagCBOR, []byte("sphere-root-bytes"))
	require.NoError(t, err)

	encoded, err := checkpoint.Sign(priv, "did:key:ztest", version)
	require.NoError(t, err)

	cp, err := checkpoint.Verify(encoded, pub)
	require.NoError(t, err)
	require.Equal(t, "did:key:ztest", cp.Identity)
	require.Equal(t, version.String(), cp.Version)
	require.Positive(t, cp.Timestamp)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	version, err := link.Sum(link.CodecDagCBOR, []byte("x"))
	require.NoError(t, err)
	encoded, err := checkpoint.Sign(priv, "did:key:ztest", version)
	require.NoError(t, err)

	_, err = checkpoint.Verify(encoded, otherPub)
	require.Error(t, err)
}
