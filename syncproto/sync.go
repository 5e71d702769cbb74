package syncproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/sphere"
	"github.com/subconsciousnetwork/noosphere-sub002/stream"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// Extent selects which of spec.md §4.10's phases 2/3 a Sync call runs.
type Extent int

const (
	// ExtentFetchAndPush runs both fetch and rebase+push, the default.
	ExtentFetchAndPush Extent = iota
	// ExtentFetchOnly stops after fetch.
	ExtentFetchOnly
	// ExtentPushOnly skips fetch.
	ExtentPushOnly
)

// Recovery is spec.md §4.10's conflict-recovery policy: SyncRecovery::None
// is Recovery{Retries: 0}; SyncRecovery::Retry(n) is Recovery{Retries: n}.
type Recovery struct {
	Retries int
}

// NoRecovery bubbles a 409 conflict to the caller on the first occurrence.
func NoRecovery() Recovery { return Recovery{Retries: 0} }

// RetryRecovery retries a 409 conflict up to n times before failing.
func RetryRecovery(n int) Recovery { return Recovery{Retries: n} }

// DefaultRecovery is spec.md §4.10's stated default: FetchAndPush with
// Retry(3).
var DefaultRecovery = RetryRecovery(3)

func gatewayTipKey(identity string) string { return "gateway-tip:" + identity }
func pushBaseKey(identity string) string   { return "push-base:" + identity }

// lastKnownGatewayTip returns the client's last-known gateway sphere tip,
// persisted under the reserved KV layout this package extends (spec.md §6
// names <sphere-did>, counterpart, and gateway-url; gateway-tip and
// push-base are this package's own bookkeeping additions, namespaced the
// same way).
func lastKnownGatewayTip(ctx context.Context, local kv.Store, identity string) (link.ContentHash, error) {
	b, err := local.Get(ctx, gatewayTipKey(identity))
	if err != nil {
		return link.ContentHash{}, err
	}
	return link.Parse(b)
}

// lastKnownGatewayTipPtr is lastKnownGatewayTip, reporting "never synced"
// as a nil pointer instead of kv.ErrKeyNotFound, for use as Fetch's since.
func lastKnownGatewayTipPtr(ctx context.Context, local kv.Store, identity string) (*link.ContentHash, error) {
	h, err := lastKnownGatewayTip(ctx, local, identity)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func loadPushBase(ctx context.Context, local kv.Store, identity string) (*link.ContentHash, error) {
	h, err := local.Get(ctx, pushBaseKey(identity))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := link.Parse(h)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func setPushBase(ctx context.Context, local kv.Store, identity string, head link.ContentHash) error {
	return local.Set(ctx, pushBaseKey(identity), head.Bytes())
}

// materialize drains a block stream into store, then waits for the
// stream's error channel to settle. Per spec.md §5, a cancel here between
// a block put and the caller's subsequent version-pointer update leaves
// orphan blocks, never a corrupted one — the version pointer is the
// commit point.
func materialize(ctx context.Context, store blockstore.Writer, blocks <-chan stream.Block, errc <-chan error) error {
	for b := range blocks {
		if _, err := store.PutBlock(ctx, b.Hash.Codec(), b.Bytes); err != nil {
			return err
		}
	}
	return <-errc
}

// Sync runs the extent of spec.md §4.10's protocol that extent selects,
// for sc against the gateway c speaks to, persisting the client's
// last-known gateway tip and push base in local across calls, and
// retrying a 409 conflict per recovery.
func Sync(ctx context.Context, c *Client, store blockstore.Store, local kv.Store, sc *sphere.SphereContext, extent Extent, recovery Recovery) (link.ContentHash, error) {
	idResp, err := c.Identify(ctx)
	if err != nil {
		return link.ContentHash{}, err
	}
	if err := VerifyIdentify(ctx, store, idResp); err != nil {
		return link.ContentHash{}, err
	}
	if idResp.SphereIdentity != sc.Identity {
		return link.ContentHash{}, ErrWrongCounterpart
	}

	if extent != ExtentPushOnly {
		if _, err := fetchPhase(ctx, c, store, local, sc); err != nil {
			return link.ContentHash{}, err
		}
	}
	if extent == ExtentFetchOnly {
		return lastKnownGatewayTip(ctx, local, sc.Identity)
	}
	return pushPhase(ctx, c, store, local, sc, recovery)
}

// fetchPhase runs spec.md §4.10's phase 2 once (no conflict handling: the
// fetch phase itself never conflicts) and returns the gateway's tip.
func fetchPhase(ctx context.Context, c *Client, store blockstore.Store, local kv.Store, sc *sphere.SphereContext) (link.ContentHash, error) {
	since, err := lastKnownGatewayTipPtr(ctx, local, sc.Identity)
	if err != nil {
		return link.ContentHash{}, err
	}
	bearer, ucanHeaders, err := bearerFor(ctx, store, sc, sc.Identity, token.AbilityFetch)
	if err != nil {
		return link.ContentHash{}, err
	}
	result, err := c.Fetch(ctx, since, bearer, ucanHeaders)
	if err != nil {
		return link.ContentHash{}, err
	}
	if result.UpToDate {
		if since != nil {
			return *since, nil
		}
		return link.ContentHash{}, nil
	}
	if err := materialize(ctx, store, result.Blocks, result.Errc); err != nil {
		return link.ContentHash{}, err
	}
	if err := local.Set(ctx, gatewayTipKey(sc.Identity), result.Tip.Bytes()); err != nil {
		return link.ContentHash{}, err
	}
	return result.Tip, nil
}

// counterpartBaseAt loads the gateway's sphere Root at gatewayTip and
// returns the version it currently records for clientIdentity — the
// "gateway's counterpart-link tip" spec.md §4.10 describes. ok is false
// when the gateway has no lineage for this client sphere yet.
func counterpartBaseAt(ctx context.Context, store blockstore.Reader, gatewayTip link.ContentHash, clientIdentity string) (link.ContentHash, bool, error) {
	root, _, err := sphere.LoadRoot(ctx, store, gatewayTip)
	if err != nil {
		return link.ContentHash{}, false, err
	}
	return hamt.GetKey(ctx, store, root.Content, clientIdentity)
}

// rebaseLocal folds the Content difference between oldBase (nil meaning
// "no prior base", diffed against an empty map) and localHead into a
// single mutation applied atop recordedBase, producing the new local head
// a conflict retry pushes instead. This is spec.md §4.10's "re-applies any
// still-unsaved local mutation on top of the new base," implemented the
// same way sphere.Compact folds a revision range: via
// sphere.DiffContentMutation rather than replaying the original op
// sequence.
func rebaseLocal(ctx context.Context, store blockstore.Store, sc *sphere.SphereContext, oldBase *link.ContentHash, localHead, recordedBase link.ContentHash) (link.ContentHash, error) {
	var fromRoot sphere.Root
	var err error
	if oldBase != nil {
		fromRoot, _, err = sphere.LoadRoot(ctx, store, *oldBase)
		if err != nil {
			return link.ContentHash{}, err
		}
	} else {
		emptyContent, eerr := hamt.Empty[link.ContentHash](ctx, store)
		if eerr != nil {
			return link.ContentHash{}, eerr
		}
		fromRoot = sphere.Root{Content: emptyContent}
	}
	toRoot, _, err := sphere.LoadRoot(ctx, store, localHead)
	if err != nil {
		return link.ContentHash{}, err
	}
	mutation, err := sphere.DiffContentMutation(ctx, store, fromRoot, toRoot)
	if err != nil {
		return link.ContentHash{}, err
	}
	proof, err := sc.ProofHash()
	if err != nil {
		return link.ContentHash{}, err
	}
	return sphere.Mutate(ctx, store, recordedBase, mutation, sc.Author(), proof, nil)
}

// pushPhase runs spec.md §4.10's phase 3, retrying up to recovery.Retries
// times on a 409 conflict: each retry re-fetches, rebases the client's
// unpushed local history atop the gateway's new counterpart base, and
// pushes again.
func pushPhase(ctx context.Context, c *Client, store blockstore.Store, local kv.Store, sc *sphere.SphereContext, recovery Recovery) (link.ContentHash, error) {
	attempt := 0
	for {
		localHead, err := sc.Version(ctx)
		if err != nil {
			return link.ContentHash{}, err
		}
		base, err := loadPushBase(ctx, local, sc.Identity)
		if err != nil {
			return link.ContentHash{}, err
		}
		if base != nil && base.Equals(localHead) {
			return localHead, nil
		}

		var blocks <-chan stream.Block
		var errc <-chan error
		blocks, errc = stream.MemoHistoryStream(ctx, store, localHead, base)

		bearer, ucanHeaders, err := bearerFor(ctx, store, sc, sc.Identity, token.AbilityPush)
		if err != nil {
			return link.ContentHash{}, err
		}

		result, err := c.Push(ctx, sc.Identity, base, localHead, blocks, errc, bearer, ucanHeaders)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				if attempt >= recovery.Retries {
					return link.ContentHash{}, fmt.Errorf("%w: %w", ErrRecoveryExhausted, err)
				}
				attempt++
				newGatewayTip, ferr := fetchPhase(ctx, c, store, local, sc)
				if ferr != nil {
					return link.ContentHash{}, ferr
				}
				recordedBase, ok, rerr := counterpartBaseAt(ctx, store, newGatewayTip, sc.Identity)
				if rerr != nil {
					return link.ContentHash{}, rerr
				}
				if !ok {
					return link.ContentHash{}, sphere.ErrNoLocalLineage
				}
				rebased, rerr := rebaseLocal(ctx, store, sc, base, localHead, recordedBase)
				if rerr != nil {
					return link.ContentHash{}, rerr
				}
				if err := sc.Rebase(ctx, rebased); err != nil {
					return link.ContentHash{}, err
				}
				if err := setPushBase(ctx, local, sc.Identity, recordedBase); err != nil {
					return link.ContentHash{}, err
				}
				continue
			}
			return link.ContentHash{}, err
		}

		if result.NoChange {
			if err := setPushBase(ctx, local, sc.Identity, localHead); err != nil {
				return link.ContentHash{}, err
			}
			return localHead, nil
		}
		if err := materialize(ctx, store, result.Blocks, result.Errc); err != nil {
			return link.ContentHash{}, err
		}
		if err := setPushBase(ctx, local, sc.Identity, localHead); err != nil {
			return link.ContentHash{}, err
		}
		if err := local.Set(ctx, gatewayTipKey(sc.Identity), result.NewTip.Bytes()); err != nil {
			return link.ContentHash{}, err
		}
		return localHead, nil
	}
}
