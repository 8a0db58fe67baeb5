package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/statemachine"
	"github.com/probeum/mina-core/internal/transition/frontier"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// xorHasher is a stand-in ledger hasher: parent = left XOR right. The BFS
// only ever compares through the interface, so any deterministic combiner
// exercises it.
type xorHasher struct{}

func (xorHasher) CombineChildren(left, right common.Hash) common.Hash {
	var out common.Hash
	for i := range out {
		out[i] = left[i] ^ right[i]
	}
	return out
}

type acceptAllParts struct{}

func (acceptAllParts) Validate(interface{}, common.Hash) bool { return true }

func hashFrom(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func peerFrom(b byte) common.PeerID {
	var p common.PeerID
	p[0] = b
	return p
}

func newRunnerHarness(t *testing.T) (*Runner, *service.Loopback) {
	t.Helper()
	hub := service.NewLoopback(64)
	env := statemachine.Env{P2p: hub, Ledger: hub, Verifier: hub}
	kernel := action.NewKernel[statemachine.State]()
	statemachine.Register(kernel, env)

	state := statemachine.New(consensus.Params{K: 10, LedgerDepth: 0}, nil)
	state.SetCollaborators(xorHasher{}, acceptAllParts{})
	return New(kernel, state, hub, fixedClock{t: time.Unix(100, 0)}), hub
}

// drain delivers every queued service reply, including those generated by
// the deliveries themselves, until the hub is quiet.
func drain(r *Runner, hub *service.Loopback) {
	for {
		ev, ok := hub.TryNext()
		if !ok {
			return
		}
		r.Deliver(ev)
	}
}

// A received block flows through the verifier round trip and both ledger
// sync phases to a committed best chain, with every service reply arriving
// asynchronously through the event queue the way a real deployment's
// would.
func TestRunnerDrivesBlockThroughVerifyAndSyncToCommit(t *testing.T) {
	r, hub := newRunnerHarness(t)
	peer := peerFrom(1)

	r.Inject(statemachine.PeerAdd{ID: peer, Addrs: []string{"addr"}, Direction: p2pdir.DirOutgoing})
	r.Inject(statemachine.PeerReady{ID: peer, Channels: []string{statemachine.ChannelSnarkPool}})

	summary := consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1}
	r.Inject(statemachine.BlockReceived{Summary: summary, From: peer})
	drain(r, hub)

	s := r.State()
	require.NotNil(t, s.BestTip)
	require.Equal(t, summary.Hash, s.BestTip.Hash)
	// Zero-depth BFS resolved immediately; the sync is now waiting on the
	// staged-ledger parts it requested from the peer.
	require.Equal(t, frontier.SyncPending, s.Frontier.Sync.Kind)
	require.Equal(t, frontier.PhaseStagedLedgerParts, s.Frontier.Sync.Phase)

	r.Inject(statemachine.StagedLedgerPartsReceived{Parts: nil})
	drain(r, hub)

	require.Equal(t, frontier.SyncSynced, s.Frontier.Sync.Kind)
	tip, ok := s.Frontier.BestTip()
	require.True(t, ok)
	require.Equal(t, summary.Hash, tip.Hash)
	require.Nil(t, s.Apply)
	require.Nil(t, s.StagedSync)
}

// A verify reply whose request id matches no pending candidate is the
// cancellation contract in action: the event is dropped, state untouched.
func TestRunnerDropsStaleServiceReplies(t *testing.T) {
	r, _ := newRunnerHarness(t)

	r.Deliver(service.Event{
		Kind:    service.EventSnarkVerifyReply,
		Payload: service.SnarkVerifyReply{ID: 999, Block: true, OK: true},
	})
	require.Nil(t, r.State().BestTip)

	r.Deliver(service.Event{
		Kind:    service.EventBlockApplyReply,
		Payload: service.BlockApplyReply{ID: 999, OK: true},
	})
	require.Equal(t, frontier.SyncIdle, r.State().Frontier.Sync.Kind)
}

// Events whose payload already is an action pass through verbatim.
func TestRunnerPassesActionPayloadsThrough(t *testing.T) {
	r, _ := newRunnerHarness(t)
	peer := peerFrom(3)

	r.Deliver(service.Event{
		Kind:    service.EventP2pMessage,
		Payload: statemachine.PeerAdd{ID: peer, Direction: p2pdir.DirIncoming},
	})
	p, ok := r.State().Peers.Get(peer)
	require.True(t, ok)
	require.Equal(t, p2pdir.StatusConnecting, p.Status.Kind)
}

func TestRunnerRunStopsOnContextCancel(t *testing.T) {
	r, hub := newRunnerHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	hub.Push(service.Event{
		Kind:    service.EventP2pMessage,
		Payload: statemachine.PeerAdd{ID: peerFrom(9), Direction: p2pdir.DirIncoming},
	})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on cancel")
	}
	_, ok := r.State().Peers.Get(peerFrom(9))
	require.True(t, ok, "event pushed before cancel must have been processed")
}
