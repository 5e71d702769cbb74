package memo

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// Mandatory header names, spec.md §3. Header lookups are case-insensitive
// on read (GetFirstHeader lowercases both sides); these constants are the
// canonical casing new headers are written with.
const (
	HeaderContentType = "Content-Type"
	HeaderAuthor      = "Author"
	HeaderSignature   = "Signature"
	HeaderProof       = "Proof"
)

// Header is one (name, value) pair. Duplicates are allowed; GetFirstHeader
// resolves "first wins" per spec.md §3.
type Header struct {
	Name  string `cbor:"n"`
	Value string `cbor:"v"`
}

// Memo is the unit of versioned content: an optional parent, an ordered
// header list, and a link to the body. The body's codec/shape is opaque to
// Memo itself — it may be a SphereRoot, a BodyChunk chain head, or any
// other dag-cbor/raw block the caller chooses.
type Memo struct {
	Parent  *link.ContentHash `cbor:"p,omitempty"`
	Headers []Header          `cbor:"h,omitempty"`
	Body    link.ContentHash  `cbor:"b"`
}

// GetFirstHeader returns the value of the first header matching name
// case-insensitively, per spec.md §3 ("first-wins for get_first_header").
func (m Memo) GetFirstHeader(name string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader replaces every existing header matching name (case-
// insensitively) with a single header carrying value, preserving the
// position of the first match, or appends if none existed.
func (m Memo) SetHeader(name, value string) Memo {
	out := make([]Header, 0, len(m.Headers)+1)
	replaced := false
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			if !replaced {
				out = append(out, Header{Name: name, Value: value})
				replaced = true
			}
			continue
		}
		out = append(out, h)
	}
	if !replaced {
		out = append(out, Header{Name: name, Value: value})
	}
	m.Headers = out
	return m
}

// WithoutHeader drops every header matching name case-insensitively.
func (m Memo) WithoutHeader(name string) Memo {
	out := make([]Header, 0, len(m.Headers))
	for _, h := range m.Headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	m.Headers = out
	return m
}

// DiffHeaders returns every header present in m that is absent from other,
// or whose first value differs, per spec.md §4.5.
func (m Memo) DiffHeaders(other Memo) []Header {
	var diffs []Header
	for _, h := range m.Headers {
		if ov, ok := other.GetFirstHeader(h.Name); !ok || ov != h.Value {
			diffs = append(diffs, h)
		}
	}
	return diffs
}

// BranchFrom loads the Memo at parentHash and returns a child skeleton:
// parent set to parentHash, Signature/Proof/Author stripped (Sign
// re-attaches them), Body left equal to the parent's (the caller overwrites
// it before signing, per spec.md §4.5). Content-Type and any other headers
// carry over unchanged — callers that want a different Content-Type call
// SetHeader afterward.
func BranchFrom(ctx context.Context, store blockstore.Reader, parentHash link.ContentHash) (Memo, error) {
	if parentHash.IsUndef() {
		return Memo{}, ErrNoParent
	}
	parent, err := blockstore.Get(ctx, store, link.To[Memo](parentHash))
	if err != nil {
		return Memo{}, err
	}
	child := parent.
		WithoutHeader(HeaderAuthor).
		WithoutHeader(HeaderSignature).
		WithoutHeader(HeaderProof)
	child.Parent = &parentHash
	return child, nil
}

// Sign sets Author to did, computes Signature over the body hash's
// canonical bytes using sign (the sphere core is generic over the signing
// primitive, spec.md §9), and — when proof is non-nil — attaches Proof as
// the content hash of the authorization token chain granting did the
// capability to author this sphere's memos. It does not persist the memo;
// callers store the returned value themselves (so the caller controls
// whether signing and persistence are transactional).
func Sign(m Memo, sign func([]byte) []byte, did string, proof *link.ContentHash) Memo {
	sig := sign(m.Body.Bytes())
	m = m.SetHeader(HeaderAuthor, did)
	m = m.SetHeader(HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	if proof != nil {
		m = m.SetHeader(HeaderProof, proof.String())
	} else {
		m = m.WithoutHeader(HeaderProof)
	}
	return m
}

// VerifySignature checks that Signature, decoded and checked with verify,
// covers the body hash's canonical bytes. It does not check authority
// (that the Author is allowed to author this sphere) — see the sphere
// package's VerifyAuthorization for the full chain.
func VerifySignature(m Memo, verify func(data, sig []byte) bool) (bool, error) {
	sigStr, ok := m.GetFirstHeader(HeaderSignature)
	if !ok {
		return false, ErrMissingHeader
	}
	sig, err := base64.StdEncoding.DecodeString(sigStr)
	if err != nil {
		return false, err
	}
	return verify(m.Body.Bytes(), sig), nil
}
