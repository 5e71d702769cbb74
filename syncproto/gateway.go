package syncproto

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/sphere"
	"github.com/subconsciousnetwork/noosphere-sub002/stream"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// Gateway serves spec.md §6's HTTP surface for one (gateway sphere,
// counterpart sphere) pairing. The gateway holds its own sphere — Context
// — whose content map has exactly one entry of interest, keyed by
// CounterpartIdentity, pointing at the counterpart's most-recently-pushed
// version (spec.md §4.10's "counterpart-sphere link").
//
// A production deployment would multiplex many counterparts behind one
// gateway identity; this type models the single-counterpart case the
// testable properties in spec.md §8 describe, and is built to be embedded
// in something that dispatches to one Gateway per pairing.
type Gateway struct {
	Context             *sphere.SphereContext
	CounterpartIdentity string
	CounterpartProof    token.Token
	Resolver            token.KeyResolver
	Log                 *zap.Logger
}

// NewGateway wraps an already-open gateway sphere context. counterpartProof
// must be a token the gateway holds proving it has Push authority over
// counterpartIdentity — spec.md §4.10's identify phase presents it as-is.
func NewGateway(gwContext *sphere.SphereContext, counterpartIdentity string, counterpartProof token.Token) *Gateway {
	log := zap.L()
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		Context:             gwContext,
		CounterpartIdentity: counterpartIdentity,
		CounterpartProof:    counterpartProof,
		Resolver:            token.DIDKeyResolver{},
		Log:                 log,
	}
}

// Router builds the chi.Router spec.md §6 describes: GET /identify, GET
// /fetch, PUT /push.
func (gw *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Get(PathIdentify, gw.handleIdentify)
	r.Get(PathFetch, gw.handleFetch)
	r.Put(PathPush, gw.handlePush)
	return r
}

func (gw *Gateway) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	gw.Log.Sugar().Infow("sync request failed", "status", status, "err", err)
	http.Error(w, err.Error(), status)
}

// authorize parses bearer, ingests ucanHeaders into the block store, and
// checks that the reduced proof chain grants ability over
// gw.CounterpartIdentity, per spec.md §4.10's request authorization.
func (gw *Gateway) authorize(ctx context.Context, bearer string, ucanHeaders []string, ability token.Ability) error {
	if err := ingestUcanHeaders(ctx, gw.Context.Store, ucanHeaders); err != nil {
		return err
	}
	if bearer == "" {
		return ErrUnauthorized
	}
	tok, err := token.Parse(bearer, gw.Resolver)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}
	revoked, err := gw.counterpartRevocations(ctx)
	if err != nil {
		return err
	}
	reduced, err := token.Reduce(ctx, gw.Context.Store, gw.Resolver, tok, revoked)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}
	if !reduced.Grants(gw.CounterpartIdentity, gw.CounterpartIdentity, ability) {
		return ErrUnauthorized
	}
	return nil
}

// counterpartRevocations loads the counterpart sphere's own revocation set
// from the most recent version the gateway has mirrored, if any, so a
// bearer chaining through a proof the counterpart has since revoked is
// rejected the same way sphere.VerifyAuthorization rejects one.
func (gw *Gateway) counterpartRevocations(ctx context.Context) (map[string]bool, error) {
	head, ok, err := gw.Context.Read(ctx, gw.CounterpartIdentity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	root, _, err := sphere.LoadRoot(ctx, gw.Context.Store, head)
	if err != nil {
		return nil, err
	}
	revoked := map[string]bool{}
	err = hamt.ForEach(ctx, gw.Context.Store, root.Authority.Revocations, func(key string, _ sphere.Revocation) error {
		revoked[key] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

func bearerAndUcans(r *http.Request) (string, []string) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	var bearer string
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		bearer = auth[len(prefix):]
	}
	return bearer, r.Header.Values("ucan")
}

// handleIdentify answers GET /api/v0/identify, spec.md §6: a plain
// DAG-CBOR body (no CAR stream) naming the gateway, the counterpart, a
// signature over their concatenated DIDs, and the gateway's proof of Push
// authority over the counterpart.
func (gw *Gateway) handleIdentify(w http.ResponseWriter, r *http.Request) {
	msg := []byte(gw.Context.Identity + gw.CounterpartIdentity)
	sig := gw.Context.Author().Sign(msg)
	env := identifyEnvelope{
		GatewayIdentity: gw.Context.Identity,
		SphereIdentity:  gw.CounterpartIdentity,
		Signature:       base64.StdEncoding.EncodeToString(sig),
		Proof:           gw.CounterpartProof.Raw,
	}
	w.Header().Set("Content-Type", "application/cbor")
	if err := cbor.NewEncoder(w).Encode(env); err != nil {
		gw.writeError(w, err)
	}
}

// handleFetch answers GET /api/v0/fetch, spec.md §4.10 phase 2: every
// block reachable from the gateway's tip but not from since, plus every
// block reachable from the counterpart link at tip but not at since.
func (gw *Gateway) handleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bearer, ucanHeaders := bearerAndUcans(r)
	if err := gw.authorize(ctx, bearer, ucanHeaders, token.AbilityFetch); err != nil {
		gw.writeError(w, err)
		return
	}

	var since *link.ContentHash
	if s := r.URL.Query().Get("since"); s != "" {
		h, err := link.ParseString(s)
		if err != nil {
			gw.writeError(w, fmt.Errorf("%w: %s", ErrMalformedRequest, err))
			return
		}
		since = &h
	}

	tip, err := gw.Context.Version(ctx)
	if err != nil {
		gw.writeError(w, err)
		return
	}
	if since != nil && since.Equals(tip) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_ = writeEnvelope(w, fetchEnvelope{Kind: fetchKindUpToDate})
		return
	}

	counterpartAtTip, hasTip, err := gw.Context.Read(ctx, gw.CounterpartIdentity)
	if err != nil {
		gw.writeError(w, err)
		return
	}
	var counterpartAtSince *link.ContentHash
	if since != nil {
		sinceRoot, _, err := sphere.LoadRoot(ctx, gw.Context.Store, *since)
		if err != nil {
			gw.writeError(w, err)
			return
		}
		if h, ok, err := hamt.GetKey(ctx, gw.Context.Store, sinceRoot.Content, gw.CounterpartIdentity); err != nil {
			gw.writeError(w, err)
			return
		} else if ok {
			counterpartAtSince = &h
		}
	}

	ownBlocks, ownErrc := stream.MemoHistoryStream(ctx, gw.Context.Store, tip, since)
	sources := []blockSource{{ownBlocks, ownErrc}}
	if hasTip {
		cBlocks, cErrc := stream.MemoHistoryStream(ctx, gw.Context.Store, counterpartAtTip, counterpartAtSince)
		sources = append(sources, blockSource{cBlocks, cErrc})
	}
	merged, mergedErrc := chainBlocks(ctx, sources...)

	w.Header().Set("Content-Type", "application/octet-stream")
	if err := writeEnvelope(w, fetchEnvelope{Kind: fetchKindNewChanges, Tip: &tip}); err != nil {
		gw.Log.Sugar().Errorw("writing fetch envelope", "err", err)
		return
	}
	if err := stream.ToCarStream(ctx, w, []link.ContentHash{tip}, merged, mergedErrc); err != nil {
		gw.Log.Sugar().Errorw("streaming fetch body", "err", err)
	}
}

// handlePush answers PUT /api/v0/push, spec.md §4.10 phase 3 / §4.10's
// gateway-write description.
func (gw *Gateway) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bearer, ucanHeaders := bearerAndUcans(r)
	if err := gw.authorize(ctx, bearer, ucanHeaders, token.AbilityPush); err != nil {
		drainRequestBody(r)
		gw.writeError(w, err)
		return
	}

	var env pushRequestEnvelope
	br := bufio.NewReader(r.Body)
	if err := readEnvelope(br, &env); err != nil {
		gw.writeError(w, fmt.Errorf("%w: %s", ErrMalformedRequest, err))
		return
	}
	_, blocks, errc := stream.FromCarStream(ctx, br)

	if env.Sphere != gw.CounterpartIdentity {
		drainBlocks(blocks, errc)
		gw.writeError(w, ErrWrongCounterpart)
		return
	}

	recordedBase, hasRecorded, err := gw.Context.Read(ctx, gw.CounterpartIdentity)
	if err != nil {
		drainBlocks(blocks, errc)
		gw.writeError(w, err)
		return
	}
	switch {
	case hasRecorded && (env.Base == nil || !env.Base.Equals(recordedBase)):
		drainBlocks(blocks, errc)
		gw.writeError(w, ErrConflict)
		return
	case !hasRecorded && env.Base != nil:
		drainBlocks(blocks, errc)
		gw.writeError(w, sphere.ErrNoLocalLineage)
		return
	}

	if hasRecorded && env.Tip.Equals(recordedBase) {
		drainBlocks(blocks, errc)
		w.Header().Set("Content-Type", "application/octet-stream")
		_ = writeEnvelope(w, pushResponseEnvelope{Kind: pushKindNoChange})
		return
	}

	if err := materialize(ctx, gw.Context.Store, blocks, errc); err != nil {
		gw.writeError(w, err)
		return
	}
	if err := hydrate(ctx, gw.Context.Store, env.Tip, env.Base); err != nil {
		gw.writeError(w, err)
		return
	}

	oldGatewayTip, err := gw.Context.Version(ctx)
	if err != nil {
		gw.writeError(w, err)
		return
	}
	if err := gw.Context.Write(ctx, gw.CounterpartIdentity, env.Tip); err != nil {
		gw.writeError(w, err)
		return
	}
	newGatewayTip, err := gw.Context.Save(ctx)
	if err != nil {
		gw.writeError(w, err)
		return
	}

	gw.sealCheckpoint(ctx, newGatewayTip)

	deltaBlocks, deltaErrc := stream.MemoHistoryStream(ctx, gw.Context.Store, newGatewayTip, &oldGatewayTip)
	w.Header().Set("Content-Type", "application/octet-stream")
	if err := writeEnvelope(w, pushResponseEnvelope{Kind: pushKindAccepted, NewTip: &newGatewayTip}); err != nil {
		gw.Log.Sugar().Errorw("writing push response envelope", "err", err)
		return
	}
	if err := stream.ToCarStream(ctx, w, []link.ContentHash{newGatewayTip}, deltaBlocks, deltaErrc); err != nil {
		gw.Log.Sugar().Errorw("streaming push response body", "err", err)
	}
}

// hydrate walks every block reachable from tip back to base, erroring if
// any is missing from store — spec.md §4.10's "hydrates each version
// between base and tip (ensures every referenced block is present
// locally)".
func hydrate(ctx context.Context, store blockstore.Reader, tip link.ContentHash, base *link.ContentHash) error {
	blocks, errc := stream.MemoHistoryStream(ctx, store, tip, base)
	for range blocks {
	}
	return <-errc
}

func drainBlocks(blocks <-chan stream.Block, errc <-chan error) {
	for range blocks {
	}
	<-errc
}

func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		_, _ = io.Copy(io.Discard, r.Body)
	}
}

// blockSource pairs one stream.MemoHistoryStream call's channels so
// chainBlocks can drain several in sequence.
type blockSource struct {
	Blocks <-chan stream.Block
	Errc   <-chan error
}

// chainBlocks drains each source in order into a single output stream,
// used by handleFetch to present the gateway's own history and the
// counterpart's mirrored history as one CAR body.
func chainBlocks(ctx context.Context, sources ...blockSource) (<-chan stream.Block, <-chan error) {
	out := make(chan stream.Block, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, src := range sources {
		drain:
			for {
				select {
				case b, ok := <-src.Blocks:
					if !ok {
						break drain
					}
					select {
					case out <- b:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if err := <-src.Errc; err != nil {
				errc <- err
				return
			}
		}
	}()
	return out, errc
}
