package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumDeterministic(t *testing.T) {
	body := []byte(`{"hello":"world"}`)

	a, err := Sum(CodecDagCBOR, body)
	require.NoError(t, err)
	b, err := Sum(CodecDagCBOR, body)
	require.NoError(t, err)

	require.True(t, a.Equals(b))
	require.Equal(t, a.String(), b.String())
}

func TestSumDistinguishesCodec(t *testing.T) {
	body := []byte("same bytes")

	raw, err := Sum(CodecRaw, body)
	require.NoError(t, err)
	dag, err := Sum(CodecDagCBOR, body)
	require.NoError(t, err)

	require.False(t, raw.Equals(dag))
	require.Equal(t, CodecRaw, raw.Codec())
	require.Equal(t, CodecDagCBOR, dag.Codec())
}

func TestParseStringRoundTrip(t *testing.T) {
	h, err := Sum(CodecDagCBOR, []byte("round trip me"))
	require.NoError(t, err)

	parsed, err := ParseString(h.String())
	require.NoError(t, err)
	require.True(t, h.Equals(parsed))

	viaBytes, err := Parse(h.Bytes())
	require.NoError(t, err)
	require.True(t, h.Equals(viaBytes))
}

func TestUndef(t *testing.T) {
	require.True(t, Undef.IsUndef())

	h, err := Sum(CodecRaw, []byte("x"))
	require.NoError(t, err)
	require.False(t, h.IsUndef())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xff, 0xff})
	require.ErrorIs(t, err, ErrInvalidMultihash)

	_, err = ParseString("not a cid")
	require.ErrorIs(t, err, ErrInvalidMultihash)
}

func TestContentHashCBORRoundTrip(t *testing.T) {
	h, err := Sum(CodecDagCBOR, []byte("cbor me"))
	require.NoError(t, err)

	encoded, err := h.MarshalCBOR()
	require.NoError(t, err)

	var decoded ContentHash
	require.NoError(t, decoded.UnmarshalCBOR(encoded))
	require.True(t, h.Equals(decoded))
}

func TestUndefCBORRoundTrip(t *testing.T) {
	encoded, err := Undef.MarshalCBOR()
	require.NoError(t, err)

	var decoded ContentHash
	require.NoError(t, decoded.UnmarshalCBOR(encoded))
	require.True(t, decoded.IsUndef())
}

func TestSha256DigestStable(t *testing.T) {
	a := Sha256Digest([]byte("petname:alice"))
	b := Sha256Digest([]byte("petname:alice"))
	require.Equal(t, a, b)

	c := Sha256Digest([]byte("petname:bob"))
	require.NotEqual(t, a, c)
}
