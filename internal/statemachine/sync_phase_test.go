package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/transition/frontier"
)

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

// A depth-1 snarked sync runs its full query ladder: num-accounts first,
// then the root hash query, then one account-batch fetch per leaf, each
// request leaving through the transport before its reply is delivered as
// an action.
func TestSnarkedSyncWalksNumAccountsHashesThenAccounts(t *testing.T) {
	hub := service.NewLoopback(32)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10, LedgerDepth: 1}, nil)
	s.SetCollaborators(xorHasher{}, acceptAllParts{})
	now := time.Unix(0, 0)
	peer := peerFrom(1)

	k.Dispatch(s, PeerAdd{ID: peer, Addrs: []string{"addr"}, Direction: p2pdir.DirOutgoing}, now)
	k.Dispatch(s, PeerReady{ID: peer, Channels: []string{ChannelSnarkPool}}, now)

	left, right := hashFrom(0x11), hashFrom(0x22)
	ledgerHash := (xorHasher{}).CombineChildren(left, right)
	summary := consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1, SnarkedLedgerHash: ledgerHash, StagedLedgerHash: hashFrom(0x33)}
	k.Dispatch(s, BlockReceived{Summary: summary, From: peer}, now)

	require.NotNil(t, s.SnarkedSync)
	require.True(t, s.SnarkedSync.NeedsNumAccounts())
	requireOutboundRpc(t, hub, SnarkedLedgerNumAccountsRequest{LedgerHash: ledgerHash})

	k.Dispatch(s, SnarkedLedgerNumAccountsResolved{Peer: peer, ReqID: service.RequestID(idFromHash(ledgerHash)), Num: 2}, now)
	require.False(t, s.SnarkedSync.NeedsNumAccounts())

	root := service.MerkleAddress{}
	k.Dispatch(s, SnarkedLedgerChildrenResolved{Addr: root, Peer: peer, Left: left, Right: right}, now)

	// Both leaves now have in-flight account fetches; answering each with
	// its own hash completes the walk and advances the frontier phase.
	k.Dispatch(s, SnarkedLedgerAccountsResolved{Addr: root.Child(false), Peer: peer, ContentHash: left}, now)
	require.Equal(t, frontier.PhaseSnarkedLedger, s.Frontier.Sync.Phase)
	k.Dispatch(s, SnarkedLedgerAccountsResolved{Addr: root.Child(true), Peer: peer, ContentHash: right}, now)

	require.Equal(t, frontier.PhaseStagedLedgerParts, s.Frontier.Sync.Phase)
	require.NotNil(t, s.StagedSync)
}

func requireOutboundRpc(t *testing.T, hub *service.Loopback, want interface{}) {
	t.Helper()
	for _, o := range hub.OutboundLog() {
		if o.Kind == service.OutboundSendRpc && o.Payload == want {
			return
		}
	}
	t.Fatalf("no outbound rpc matching %+v", want)
}

// A ledger query whose peer times out is failed and requeued: the address
// becomes issuable against another peer.
func TestSnarkedQueryTimeoutRequeuesAddress(t *testing.T) {
	hub := service.NewLoopback(32)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10, LedgerDepth: 1}, nil)
	s.SetCollaborators(xorHasher{}, acceptAllParts{})
	now := time.Unix(0, 0)
	p1, p2 := peerFrom(1), peerFrom(2)

	for _, p := range []common.PeerID{p1, p2} {
		k.Dispatch(s, PeerAdd{ID: p, Addrs: []string{"addr"}, Direction: p2pdir.DirOutgoing}, now)
		k.Dispatch(s, PeerReady{ID: p, Channels: []string{ChannelSnarkPool}}, now)
	}

	left, right := hashFrom(0x11), hashFrom(0x22)
	ledgerHash := (xorHasher{}).CombineChildren(left, right)
	summary := consensus.BlockSummary{Hash: hashFrom(0x01), Height: 1, SnarkedLedgerHash: ledgerHash}
	k.Dispatch(s, BlockReceived{Summary: summary, From: p1}, now)
	k.Dispatch(s, SnarkedLedgerNumAccountsResolved{Peer: p1, ReqID: service.RequestID(idFromHash(ledgerHash)), Num: 2}, now)

	// The root hash query is in flight against the first (sorted) peer.
	root := service.MerkleAddress{}
	reqID, inFlight := s.SnarkedSync.RequestFor(root, p1)
	altReq, altInFlight := s.SnarkedSync.RequestFor(root, p2)
	require.True(t, inFlight || altInFlight, "root query must be in flight against one peer")
	if !inFlight {
		reqID = altReq
	}

	k.Dispatch(s, SnarkedLedgerQueryTimedOut{ReqID: reqID}, now.Add(10*time.Second))

	// The failed address was requeued and the issuance chain immediately
	// re-dispatched it: a fresh query is in flight again.
	_, r1 := s.SnarkedSync.RequestFor(root, p1)
	_, r2 := s.SnarkedSync.RequestFor(root, p2)
	require.True(t, r1 || r2, "root query must be re-issued after the timeout")

	k.Dispatch(s, SnarkedLedgerChildrenResolved{Addr: root, Peer: p1, Left: left, Right: right}, now.Add(11*time.Second))
	_, leafPending := s.SnarkedSync.NextPendingAccounts()
	inFlightCount := s.SnarkedSync.InFlight(p1) + s.SnarkedSync.InFlight(p2)
	require.True(t, leafPending || inFlightCount > 0, "level resolved, leaf fetches underway")
}

// When the connection count falls below the min-peers target, the
// maintenance tick re-dials disconnected peers with known addresses.
func TestPeerMaintenanceRedialsBelowMinPeers(t *testing.T) {
	hub := service.NewLoopback(32)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10}, nil)
	s.SetLimits(Limits{MaxPeers: 10, MinPeers: 3})
	now := time.Unix(0, 0)
	peer := peerFrom(1)

	k.Dispatch(s, PeerAdd{ID: peer, Addrs: []string{"addr"}, Direction: p2pdir.DirOutgoing}, now)
	k.Dispatch(s, PeerReady{ID: peer, Channels: []string{ChannelSnarkPool}}, now)
	k.Dispatch(s, PeerDisconnecting{ID: peer}, now.Add(time.Second))
	k.Dispatch(s, PeerDisconnected{ID: peer}, now.Add(2*time.Second))

	k.Dispatch(s, CheckTimeouts{}, now.Add(3*time.Second))

	p, ok := s.Peers.Get(peer)
	require.True(t, ok)
	require.Equal(t, p2pdir.StatusConnecting, p.Status.Kind)
	require.Empty(t, s.PendingDials)

	var dials int
	for _, o := range hub.OutboundLog() {
		if o.Kind == service.OutboundDial && o.Peer == peer {
			dials++
		}
	}
	require.GreaterOrEqual(t, dials, 2, "initial dial plus the maintenance redial")
}
