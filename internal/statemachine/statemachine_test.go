package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/candidate"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/timeoutdriver"
)

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

func newTestKernel() *action.Kernel[State] {
	k := action.NewKernel[State]()
	Register(k, Env{})
	return k
}

func TestBlockReceivedPipelineAdvancesBestTip(t *testing.T) {
	k := newTestKernel()
	s := New(consensus.Params{K: 10}, map[timeoutdriver.RequestKind]time.Duration{
		timeoutdriver.KindP2pRpc: 30 * time.Second,
	})
	now := time.Unix(0, 0)

	peer := peerFrom(1)
	k.Dispatch(s, PeerAdd{ID: peer, Direction: p2pdir.DirOutgoing}, now)
	k.Dispatch(s, PeerReady{ID: peer, Channels: []string{"gossip"}}, now)
	require.Len(t, s.Peers.ReadyPeers(), 1)

	summary := consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1}
	k.Dispatch(s, BlockReceived{Summary: summary, From: peer}, now)

	require.NotNil(t, s.BestTip)
	require.Equal(t, summary.Hash, s.BestTip.Hash)
	require.Nil(t, s.PreviousBestTip)

	cand, ok := s.Candidates.Get(summary.Hash)
	require.True(t, ok)
	require.Equal(t, candidate.StatusShortRangeForkResolve, cand.Status)
	require.NotNil(t, cand.Decision)
	require.True(t, cand.Decision.UseAsBestTip())
}

// A second, higher candidate replaces the first as best tip and the
// previous tip is recorded, checking best-tip history is tracked
// alongside the new pointer rather than overwritten silently.
func TestSecondBlockReplacesBestTipAndRecordsPrevious(t *testing.T) {
	k := newTestKernel()
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	first := consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1}
	k.Dispatch(s, BlockReceived{Summary: first, From: peerFrom(1)}, now)
	require.Equal(t, first.Hash, s.BestTip.Hash)

	second := consensus.BlockSummary{Hash: hashFrom(0x02), Height: 2}
	k.Dispatch(s, BlockReceived{Summary: second, From: peerFrom(2)}, now)

	require.Equal(t, second.Hash, s.BestTip.Hash)
	require.NotNil(t, s.PreviousBestTip)
	require.Equal(t, first.Hash, s.PreviousBestTip.Hash)
}

// A candidate whose parent is the current best tip must be classified
// short-range, not misrouted through the long-range min-window-density
// rule for want of a wired AncestryChecker.
func TestDirectChildCandidateTakesShortRangePath(t *testing.T) {
	k := newTestKernel()
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	first := consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1}
	k.Dispatch(s, BlockReceived{Summary: first, From: peerFrom(1)}, now)

	second := consensus.BlockSummary{Hash: hashFrom(0x02), Height: 2, ParentHash: first.Hash}
	k.Dispatch(s, BlockReceived{Summary: second, From: peerFrom(2)}, now)

	require.Equal(t, second.Hash, s.BestTip.Hash)
	cand, ok := s.Candidates.Get(second.Hash)
	require.True(t, ok)
	require.Equal(t, candidate.StatusShortRangeForkResolve, cand.Status)
	require.Equal(t, consensus.ReasonLongerChain, cand.Decision.Reason)
}

func TestDuplicateBlockReceivedIsNoOp(t *testing.T) {
	k := newTestKernel()
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	summary := consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1}
	k.Dispatch(s, BlockReceived{Summary: summary, From: peerFrom(1)}, now)
	k.Dispatch(s, BlockReceived{Summary: summary, From: peerFrom(2)}, now)

	require.Equal(t, 1, s.Candidates.Len())
}

func TestCheckTimeoutsDispatchesRequestTimedOut(t *testing.T) {
	k := newTestKernel()
	s := New(consensus.Params{K: 10}, map[timeoutdriver.RequestKind]time.Duration{
		timeoutdriver.KindP2pRpc: 30 * time.Second,
	})
	start := time.Unix(0, 0)
	peer := peerFrom(9)
	s.Timeouts.Track(timeoutdriver.KindP2pRpc, 1, peer, start)

	k.Dispatch(s, CheckTimeouts{}, start.Add(31*time.Second))
	require.Equal(t, 0, s.Timeouts.Len())

	// A repeat tick is idempotent: nothing left to expire, no crash from
	// re-registering a reducer for an action the kernel already drained.
	k.Dispatch(s, CheckTimeouts{}, start.Add(32*time.Second))
	require.Equal(t, 0, s.Timeouts.Len())
}

func TestPeerLifecycleTransitions(t *testing.T) {
	k := newTestKernel()
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)
	peer := peerFrom(3)

	k.Dispatch(s, PeerAdd{ID: peer, Direction: p2pdir.DirIncoming}, now)
	k.Dispatch(s, PeerReady{ID: peer, Channels: []string{"gossip"}}, now)
	k.Dispatch(s, PeerDisconnecting{ID: peer}, now.Add(time.Second))
	k.Dispatch(s, PeerDisconnected{ID: peer}, now.Add(2*time.Second))

	p, ok := s.Peers.Get(peer)
	require.True(t, ok)
	require.Equal(t, p2pdir.StatusDisconnected, p.Status.Kind)
}

// Replaying the same action log against a freshly constructed State must
// reach byte-for-byte equivalent best-tip state, the determinism contract
// the whole kernel is built around.
func TestReplayEquivalence(t *testing.T) {
	run := func() *State {
		k := newTestKernel()
		s := New(consensus.Params{K: 10}, nil)
		now := time.Unix(0, 0)
		peer := peerFrom(1)
		k.Dispatch(s, PeerAdd{ID: peer, Direction: p2pdir.DirOutgoing}, now)
		k.Dispatch(s, PeerReady{ID: peer, Channels: []string{"gossip"}}, now)
		k.Dispatch(s, BlockReceived{Summary: consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1}, From: peer}, now)
		k.Dispatch(s, BlockReceived{Summary: consensus.BlockSummary{Hash: hashFrom(0x02), Height: 2}, From: peer}, now)
		return s
	}

	a, b := run(), run()
	require.Equal(t, a.BestTip, b.BestTip)
	require.Equal(t, a.PreviousBestTip, b.PreviousBestTip)
	require.Equal(t, a.Candidates.Len(), b.Candidates.Len())
}
