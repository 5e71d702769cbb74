package syncproto

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fxamacker/cbor/v2"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/sphere"
	"github.com/subconsciousnetwork/noosphere-sub002/stream"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// Client speaks the three sync phases (spec.md §4.10) against one
// gateway's HTTP surface (spec.md §6).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client against baseURL, using http.DefaultClient
// when httpClient is nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTPClient: httpClient}
}

// IdentifyResponse is the gateway's answer to GET /api/v0/identify,
// spec.md §6.
type IdentifyResponse struct {
	GatewayIdentity string
	SphereIdentity  string
	Signature       []byte
	Proof           string
}

// Identify fetches and decodes the gateway's /identify response. It does
// not itself verify the response — call VerifyIdentify, which needs a
// block store to resolve the proof chain.
func (c *Client) Identify(ctx context.Context) (IdentifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+PathIdentify, nil)
	if err != nil {
		return IdentifyResponse{}, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return IdentifyResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return IdentifyResponse{}, errorFromStatus(resp.StatusCode, string(body))
	}
	var env identifyEnvelope
	if err := cbor.NewDecoder(resp.Body).Decode(&env); err != nil {
		return IdentifyResponse{}, err
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return IdentifyResponse{}, fmt.Errorf("%w: %s", ErrIdentifyInvalid, err)
	}
	return IdentifyResponse{
		GatewayIdentity: env.GatewayIdentity,
		SphereIdentity:  env.SphereIdentity,
		Signature:       sig,
		Proof:           env.Proof,
	}, nil
}

// VerifyIdentify checks resp against spec.md §4.10's identify phase: the
// gateway's signature over gateway_did||counterpart_did verifies under its
// own DID, and resp.Proof's reduced chain grants the gateway Push over the
// counterpart sphere. The client MUST abort the sync on any failure here.
func VerifyIdentify(ctx context.Context, store blockstore.Reader, resp IdentifyResponse) error {
	pub, err := token.ParseDID(resp.GatewayIdentity)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIdentifyInvalid, err)
	}
	msg := []byte(resp.GatewayIdentity + resp.SphereIdentity)
	if len(resp.Signature) == 0 || !ed25519.Verify(pub, msg, resp.Signature) {
		return fmt.Errorf("%w: signature does not verify", ErrIdentifyInvalid)
	}
	proofTok, err := token.Parse(resp.Proof, token.DIDKeyResolver{})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIdentifyInvalid, err)
	}
	reduced, err := token.Reduce(ctx, store, token.DIDKeyResolver{}, proofTok, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIdentifyInvalid, err)
	}
	if !reduced.Grants(resp.SphereIdentity, resp.SphereIdentity, token.AbilityPush) {
		return fmt.Errorf("%w: proof does not grant push over the counterpart", ErrIdentifyInvalid)
	}
	return nil
}

// FetchResult is the decoded shape of a /fetch response: either UpToDate,
// or a new Tip with its block stream still being drained from the HTTP
// response body.
type FetchResult struct {
	UpToDate bool
	Tip      link.ContentHash
	Blocks   <-chan stream.Block
	Errc     <-chan error
}

// Fetch runs spec.md §4.10's phase 2: it asks the gateway for every block
// reachable from its current tip that was not reachable from since, and
// streams them back as a CAR body following a DAG-CBOR envelope. When
// UpToDate is false the caller is responsible for draining Blocks/Errc to
// completion; when it is true those channels are nil.
func (c *Client) Fetch(ctx context.Context, since *link.ContentHash, bearer string, ucanHeaders []string) (FetchResult, error) {
	u := c.BaseURL + PathFetch
	if since != nil {
		u += "?since=" + url.QueryEscape(since.String())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for _, h := range ucanHeaders {
		req.Header.Add("ucan", h)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return FetchResult{}, errorFromStatus(resp.StatusCode, string(body))
	}

	br := bufio.NewReader(resp.Body)
	var env fetchEnvelope
	if err := readEnvelope(br, &env); err != nil {
		resp.Body.Close()
		return FetchResult{}, err
	}
	if env.Kind == fetchKindUpToDate {
		resp.Body.Close()
		return FetchResult{UpToDate: true}, nil
	}
	_, blocks, errc := stream.FromCarStream(ctx, br)
	return FetchResult{Tip: *env.Tip, Blocks: blocks, Errc: closeOnDone(resp.Body, errc)}, nil
}

// PushResult is the decoded shape of a /push response.
type PushResult struct {
	NoChange bool
	NewTip   link.ContentHash
	Blocks   <-chan stream.Block
	Errc     <-chan error
}

// Push runs spec.md §4.10's phase 3: it streams every block from base to
// tip (exclusive of base) as a CAR body following a DAG-CBOR envelope
// naming sphere/base/tip, and decodes the gateway's response.
func (c *Client) Push(
	ctx context.Context,
	sphereID string,
	base *link.ContentHash,
	tip link.ContentHash,
	blocks <-chan stream.Block,
	blockErrc <-chan error,
	bearer string,
	ucanHeaders []string,
) (PushResult, error) {
	pr, pw := io.Pipe()
	go func() {
		bw := bufio.NewWriter(pw)
		if err := writeEnvelope(bw, pushRequestEnvelope{Sphere: sphereID, Base: base, Tip: tip}); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := stream.ToCarStream(ctx, bw, []link.ContentHash{tip}, blocks, blockErrc); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := bw.Flush(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+PathPush, pr)
	if err != nil {
		return PushResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for _, h := range ucanHeaders {
		req.Header.Add("ucan", h)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return PushResult{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		br := bufio.NewReader(resp.Body)
		var env pushResponseEnvelope
		if err := readEnvelope(br, &env); err != nil {
			resp.Body.Close()
			return PushResult{}, err
		}
		if env.Kind == pushKindNoChange {
			resp.Body.Close()
			return PushResult{NoChange: true}, nil
		}
		_, respBlocks, respErrc := stream.FromCarStream(ctx, br)
		return PushResult{NewTip: *env.NewTip, Blocks: respBlocks, Errc: closeOnDone(resp.Body, respErrc)}, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return PushResult{}, errorFromStatus(resp.StatusCode, string(body))
	}
}

// closeOnDone returns a channel that forwards errc's single value and then
// closes body — used to keep an HTTP response body open until its CAR
// stream goroutine (reading from that body) has finished draining it.
func closeOnDone(body io.Closer, errc <-chan error) <-chan error {
	out := make(chan error, 1)
	go func() {
		err := <-errc
		body.Close()
		out <- err
		close(out)
	}()
	return out
}

// bearerFor mints a bearer token claiming ability against resource, using
// sc's own author key and (if configured) chaining to its authorization,
// and collects the "ucan" headers carrying that authorization's proof
// chain. This is the single place a sync client builds wire credentials,
// per spec.md §4.10's "every request carries a short-lived bearer token
// ... whose proof chain is carried as ucan headers."
func bearerFor(ctx context.Context, store blockstore.Reader, sc *sphere.SphereContext, resource string, ability token.Ability) (string, []string, error) {
	proof, err := sc.ProofHash()
	if err != nil {
		return "", nil, err
	}
	bearer, err := MintBearer(sc.Author(), resource, ability, proof)
	if err != nil {
		return "", nil, err
	}
	var headers []string
	if authz, ok := sc.GetAuthorization(); ok {
		headers, err = CollectUcanHeaders(ctx, store, token.DIDKeyResolver{}, authz)
		if err != nil {
			return "", nil, err
		}
	}
	return bearer.Raw, headers, nil
}
