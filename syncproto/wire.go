// Package syncproto implements the sphere core's three-phase
// synchronization protocol (spec.md §4.10) between a client sphere and a
// gateway sphere that manages a counterpart sphere on the client's behalf,
// together with the HTTP gateway server (spec.md §6) the client half of
// this package speaks to.
package syncproto

import (
	"bufio"
	"io"

	"github.com/fxamacker/cbor/v2"
	varint "github.com/multiformats/go-varint"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// API path constants, spec.md §6.
const (
	PathIdentify = "/api/v0/identify"
	PathFetch    = "/api/v0/fetch"
	PathPush     = "/api/v0/push"
)

// bearerTTLSeconds is the lifetime of a sync request's bearer token, spec.md
// §4.10 ("short-lived bearer token (lifetime ~120 s)").
const bearerTTLSeconds = 120

// fetchKind discriminates the two FetchResponse variants, spec.md §6.
type fetchKind string

const (
	fetchKindUpToDate   fetchKind = "UpToDate"
	fetchKindNewChanges fetchKind = "NewChanges"
)

// fetchEnvelope is the DAG-CBOR header a /fetch response opens with,
// spec.md §6 ("FetchResponse (application/octet-stream, CAR body after
// DAG-CBOR envelope)"). When Kind is NewChanges, a CAR v1 byte stream of
// Blocks immediately follows the envelope in the same body.
type fetchEnvelope struct {
	Kind fetchKind         `cbor:"kind"`
	Tip  *link.ContentHash `cbor:"tip,omitempty"`
}

// pushKind discriminates the two PushResponse variants, spec.md §6.
type pushKind string

const (
	pushKindNoChange pushKind = "NoChange"
	pushKindAccepted pushKind = "Accepted"
)

// pushRequestEnvelope is the DAG-CBOR header a PUT /push request opens
// with; a CAR v1 byte stream of the pushed blocks immediately follows.
type pushRequestEnvelope struct {
	Sphere string            `cbor:"sphere"`
	Base   *link.ContentHash `cbor:"base,omitempty"`
	Tip    link.ContentHash  `cbor:"tip"`
}

// pushResponseEnvelope is the DAG-CBOR header a /push response opens
// with; when Kind is Accepted, a CAR v1 byte stream of the gateway's delta
// immediately follows.
type pushResponseEnvelope struct {
	Kind   pushKind          `cbor:"kind"`
	NewTip *link.ContentHash `cbor:"new_tip,omitempty"`
}

// identifyEnvelope is the DAG-CBOR body of GET /identify, spec.md §6.
type identifyEnvelope struct {
	GatewayIdentity string `cbor:"gateway_identity"`
	SphereIdentity  string `cbor:"sphere_identity"`
	Signature       string `cbor:"signature"`
	Proof           string `cbor:"proof"`
}

// writeEnvelope writes v as a varint-length-prefixed DAG-CBOR block, the
// same framing stream.ToCarStream uses for its own header, so a reader can
// tell where the fixed envelope ends and a following CAR stream (if any)
// begins.
func writeEnvelope(w io.Writer, v interface{}) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(varint.ToUvarint(uint64(len(b)))); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// readEnvelope is the inverse of writeEnvelope.
func readEnvelope(r *bufio.Reader, v interface{}) error {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}
	return cbor.Unmarshal(b, v)
}
