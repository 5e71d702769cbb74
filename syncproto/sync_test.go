package syncproto_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/checkpoint"
	"github.com/subconsciousnetwork/noosphere-sub002/hamt"
	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/sphere"
	"github.com/subconsciousnetwork/noosphere-sub002/syncproto"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

// harness wires one client sphere and one gateway sphere against their own
// independent block stores, connected over a real HTTP server — the same
// split a client and gateway have in production, where pushed/fetched
// blocks genuinely cross a wire rather than sharing memory.
type harness struct {
	identityKey sphere.Ed25519KeyMaterial
	identity    string

	clientStore blockstore.Store
	clientLocal kv.Store
	sc          *sphere.SphereContext

	gatewayStore blockstore.Store
	gw           *syncproto.Gateway
	server       *httptest.Server
	client       *syncproto.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	clientStore := blockstore.NewMemoryStore()
	clientLocal := kv.NewMemoryStore()
	owner, err := sphere.GenerateKeyMaterial()
	require.NoError(t, err)
	created, err := sphere.CreateSphere(ctx, clientStore, owner)
	require.NoError(t, err)
	identityKey := sphere.KeyMaterialFromMnemonic(created.Mnemonic)
	sc := sphere.Open(created.Identity, clientStore, clientLocal, identityKey, nil)
	require.NoError(t, sc.SeedVersion(ctx, created.Version))

	gatewayStore := blockstore.NewMemoryStore()
	gatewayLocal := kv.NewMemoryStore()
	gwOwner, err := sphere.GenerateKeyMaterial()
	require.NoError(t, err)
	gwCreated, err := sphere.CreateSphere(ctx, gatewayStore, gwOwner)
	require.NoError(t, err)
	gwIdentityKey := sphere.KeyMaterialFromMnemonic(gwCreated.Mnemonic)
	gwContext := sphere.Open(gwCreated.Identity, gatewayStore, gatewayLocal, gwIdentityKey, nil)
	require.NoError(t, gwContext.SeedVersion(ctx, gwCreated.Version))

	counterpartProof, err := token.SignClaims(identityKey, token.CapabilityClaims{
		Audience:     gwCreated.Identity,
		Capabilities: []token.Capability{token.Push(created.Identity)},
	})
	require.NoError(t, err)

	gw := syncproto.NewGateway(gwContext, created.Identity, counterpartProof)
	server := httptest.NewServer(gw.Router())
	t.Cleanup(server.Close)

	return &harness{
		identityKey:  identityKey,
		identity:     created.Identity,
		clientStore:  clientStore,
		clientLocal:  clientLocal,
		sc:           sc,
		gatewayStore: gatewayStore,
		gw:           gw,
		server:       server,
		client:       syncproto.NewClient(server.URL, nil),
	}
}

func TestVerifyIdentifyRejectsTamperedSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.client.Identify(ctx)
	require.NoError(t, err)
	require.Equal(t, h.identity, resp.SphereIdentity)

	resp.Signature[0] ^= 0xFF
	err = syncproto.VerifyIdentify(ctx, h.clientStore, resp)
	require.ErrorIs(t, err, syncproto.ErrIdentifyInvalid)
}

func TestSyncPushesAndMirrorsContentOnTheGateway(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bodyLink, err := blockstore.Put(ctx, h.clientStore, "hello gateway")
	require.NoError(t, err)
	require.NoError(t, h.sc.Write(ctx, "post", bodyLink.Hash))
	newHead, err := h.sc.Save(ctx)
	require.NoError(t, err)

	finalHead, err := syncproto.Sync(ctx, h.client, h.clientStore, h.clientLocal, h.sc, syncproto.ExtentFetchAndPush, syncproto.DefaultRecovery)
	require.NoError(t, err)
	require.True(t, finalHead.Equals(newHead))

	recorded, ok, err := h.gw.Context.Read(ctx, h.identity)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, recorded.Equals(newHead))

	_, err = h.gatewayStore.GetBlock(ctx, bodyLink.Hash)
	require.NoError(t, err, "the gateway must receive the pushed blocks, not just record the pointer")

	// A second sync with nothing new to push is a no-op.
	sameHead, err := syncproto.Sync(ctx, h.client, h.clientStore, h.clientLocal, h.sc, syncproto.ExtentFetchAndPush, syncproto.DefaultRecovery)
	require.NoError(t, err)
	require.True(t, sameHead.Equals(newHead))
}

// TestSyncPushSealsACheckpoint checks that an accepted push leaves a
// verifiable, up-to-date checkpoint behind for the gateway's own identity,
// per spec.md §4.7's design notes on out-of-band integrity attestations —
// no longer reachable only from checkpoint's own tests.
func TestSyncPushSealsACheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.gw.LatestCheckpoint(ctx)
	require.NoError(t, err)

	bodyLink, err := blockstore.Put(ctx, h.clientStore, "hello gateway")
	require.NoError(t, err)
	require.NoError(t, h.sc.Write(ctx, "post", bodyLink.Hash))
	newHead, err := h.sc.Save(ctx)
	require.NoError(t, err)

	finalHead, err := syncproto.Sync(ctx, h.client, h.clientStore, h.clientLocal, h.sc, syncproto.ExtentFetchAndPush, syncproto.DefaultRecovery)
	require.NoError(t, err)
	require.True(t, finalHead.Equals(newHead))

	encoded, ok, err := h.gw.LatestCheckpoint(ctx)
	require.NoError(t, err)
	require.True(t, ok, "an accepted push must leave a checkpoint behind")

	gwKey, ok := h.gw.Context.Author().(sphere.Ed25519KeyMaterial)
	require.True(t, ok)
	cp, err := checkpoint.Verify(encoded, gwKey.PublicKey())
	require.NoError(t, err)
	require.Equal(t, h.gw.Context.Identity, cp.Identity)

	gatewayTip, err := h.gw.Context.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, gatewayTip.String(), cp.Version)
}

// TestSyncRetriesOnConflict reproduces spec.md §8 scenario 3: a concurrent
// replica advances the gateway's counterpart link before this client's
// push lands, and the client's conflict recovery rebases and retries.
func TestSyncRetriesOnConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Establish a baseline: the gateway's counterpart link and the
	// client's push-base both record T0.
	t0, err := syncproto.Sync(ctx, h.client, h.clientStore, h.clientLocal, h.sc, syncproto.ExtentFetchAndPush, syncproto.DefaultRecovery)
	require.NoError(t, err)

	// The client stages a local write and saves to T1 atop T0, but has
	// not pushed it yet.
	aLink, err := blockstore.Put(ctx, h.clientStore, "client's own note")
	require.NoError(t, err)
	require.NoError(t, h.sc.Write(ctx, "a", aLink.Hash))
	t1, err := h.sc.Save(ctx)
	require.NoError(t, err)

	// Meanwhile, another replica of the same sphere pushes directly
	// (bypassing this test's client/gateway wiring, since it models a
	// concurrent actor), advancing the gateway to T0'.
	replicaLink, err := blockstore.Put(ctx, h.gatewayStore, "from another replica")
	require.NoError(t, err)
	replicaLocal := kv.NewMemoryStore()
	replicaSC := sphere.Open(h.identity, h.gatewayStore, replicaLocal, h.identityKey, nil)
	require.NoError(t, replicaSC.SeedVersion(ctx, t0))
	require.NoError(t, replicaSC.Write(ctx, "replica-note", replicaLink.Hash))
	t0Prime, err := replicaSC.Save(ctx)
	require.NoError(t, err)
	require.NoError(t, h.gw.Context.Write(ctx, h.identity, t0Prime))
	_, err = h.gw.Context.Save(ctx)
	require.NoError(t, err)

	// The client's push now claims a stale base (T0) against the
	// gateway's recorded T0'; it must conflict, then recover.
	finalHead, err := syncproto.Sync(ctx, h.client, h.clientStore, h.clientLocal, h.sc, syncproto.ExtentFetchAndPush, syncproto.RetryRecovery(3))
	require.NoError(t, err)
	require.False(t, finalHead.Equals(t1), "a successful rebase produces a new head, not the pre-conflict one")

	recorded, ok, err := h.gw.Context.Read(ctx, h.identity)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, recorded.Equals(finalHead))

	// The rebased head carries both the concurrent replica's change and
	// this client's own staged write.
	root, _, err := sphere.LoadRoot(ctx, h.gatewayStore, finalHead)
	require.NoError(t, err)
	_, ok, err = hamt.GetKey(ctx, h.gatewayStore, root.Content, "replica-note")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = hamt.GetKey(ctx, h.gatewayStore, root.Content, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSyncNoRecoverySurfacesConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := syncproto.Sync(ctx, h.client, h.clientStore, h.clientLocal, h.sc, syncproto.ExtentFetchAndPush, syncproto.DefaultRecovery)
	require.NoError(t, err)

	aLink, err := blockstore.Put(ctx, h.clientStore, "stale write")
	require.NoError(t, err)
	require.NoError(t, h.sc.Write(ctx, "a", aLink.Hash))
	_, err = h.sc.Save(ctx)
	require.NoError(t, err)

	replicaLink, err := blockstore.Put(ctx, h.gatewayStore, "concurrent write")
	require.NoError(t, err)
	replicaLocal := kv.NewMemoryStore()
	recorded, _, err := h.gw.Context.Read(ctx, h.identity)
	require.NoError(t, err)
	replicaSC := sphere.Open(h.identity, h.gatewayStore, replicaLocal, h.identityKey, nil)
	require.NoError(t, replicaSC.SeedVersion(ctx, recorded))
	require.NoError(t, replicaSC.Write(ctx, "replica-note", replicaLink.Hash))
	newRecorded, err := replicaSC.Save(ctx)
	require.NoError(t, err)
	require.NoError(t, h.gw.Context.Write(ctx, h.identity, newRecorded))
	_, err = h.gw.Context.Save(ctx)
	require.NoError(t, err)

	_, err = syncproto.Sync(ctx, h.client, h.clientStore, h.clientLocal, h.sc, syncproto.ExtentPushOnly, syncproto.NoRecovery())
	require.ErrorIs(t, err, syncproto.ErrRecoveryExhausted)
}
