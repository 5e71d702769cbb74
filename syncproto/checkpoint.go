package syncproto

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/checkpoint"
	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/sphere"
)

// checkpointKey is the Local key-value key a Gateway's most recent
// checkpoint for identity is stored under.
func checkpointKey(identity string) string { return "checkpoint:" + identity }

// sealCheckpoint signs a checkpoint.SphereCheckpoint over the gateway's own
// newly-accepted head and persists it to gw.Context.Local, turning every
// accepted push into a live attestation rather than leaving checkpoint
// reachable only from its own tests. Sealing is best-effort: a gateway
// identity key of a type other than sphere.Ed25519KeyMaterial (or a storage
// failure) logs and is otherwise swallowed, since a checkpoint is additive
// to the Token-Envelope authority chain that already accepted this push,
// never a precondition for it.
func (gw *Gateway) sealCheckpoint(ctx context.Context, head link.ContentHash) {
	km, ok := gw.Context.Author().(sphere.Ed25519KeyMaterial)
	if !ok {
		gw.Log.Sugar().Warnw("sealing checkpoint: gateway key is not an Ed25519KeyMaterial")
		return
	}
	encoded, err := checkpoint.Sign(km.Priv, gw.Context.Identity, head)
	if err != nil {
		gw.Log.Sugar().Warnw("sealing checkpoint", "err", err)
		return
	}
	if err := gw.Context.Local.Set(ctx, checkpointKey(gw.Context.Identity), encoded); err != nil {
		gw.Log.Sugar().Warnw("persisting checkpoint", "err", err)
	}
}

// LatestCheckpoint returns the most recent COSE Sign1 checkpoint sealed for
// the gateway's own sphere identity, if any push has been accepted since
// this gateway's Local store was last empty.
func (gw *Gateway) LatestCheckpoint(ctx context.Context) ([]byte, bool, error) {
	encoded, err := gw.Context.Local.Get(ctx, checkpointKey(gw.Context.Identity))
	if err != nil {
		if err == kv.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return encoded, true, nil
}
