package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/snarkpool"
	"github.com/probeum/mina-core/internal/txpool"
)

func newHubKernel(hub *service.Loopback) *action.Kernel[State] {
	k := action.NewKernel[State]()
	Register(k, Env{P2p: hub})
	return k
}

// readyGossipPeer dials a peer in, completes its handshake on both pool
// channels, and records an announced tip plus published limits.
func readyGossipPeer(k *action.Kernel[State], s *State, id common.PeerID, tip common.Hash, limit uint8, now time.Time) {
	k.Dispatch(s, PeerAdd{ID: id, Direction: p2pdir.DirIncoming}, now)
	k.Dispatch(s, PeerReady{ID: id, Channels: []string{ChannelSnarkPool, ChannelTxPool}}, now)
	k.Dispatch(s, PeerBestTip{Peer: id, Tip: tip}, now)
	k.Dispatch(s, PeerChannelLimit{Peer: id, Channel: ChannelSnarkPool, Limit: limit}, now)
	k.Dispatch(s, PeerChannelLimit{Peer: id, Channel: ChannelTxPool, Limit: limit}, now)
}

func TestGossipTickSendsPoolEntriesAndAdvancesCursor(t *testing.T) {
	hub := service.NewLoopback(16)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	tip := consensus.BlockSummary{Hash: hashFrom(0xaa), Height: 5}
	s.BestTip = &tip

	peer := peerFrom(1)
	readyGossipPeer(k, s, peer, tip.Hash, 4, now)

	job := hashFrom(0x10)
	s.SnarkPool.Entries().Insert(snarkpool.Entry{JobID: job, Snark: &snarkpool.Snark{Fee: 3}})
	txh := hashFrom(0x20)
	s.TxPool.Entries().Insert(txpool.Entry{Hash: txh, Command: txpool.Command{Payload: "cmd"}})

	k.Dispatch(s, GossipTick{}, now)

	cur, ok := s.Peers.ChannelCursor(peer, ChannelSnarkPool)
	require.True(t, ok)
	require.Equal(t, uint64(1), cur.NextSeq)
	cur, _ = s.Peers.ChannelCursor(peer, ChannelTxPool)
	require.Equal(t, uint64(1), cur.NextSeq)
	require.Empty(t, s.PendingGossipSends, "handoff must be drained after the send effect")

	var sends int
	for _, o := range hub.OutboundLog() {
		if o.Kind == service.OutboundSendRpc {
			if _, isBatch := o.Payload.(GossipBatch); isBatch {
				sends++
			}
		}
	}
	require.Equal(t, 2, sends, "one batch per channel")

	// A second tick finds nothing new: each entry is delivered at most once
	// per peer.
	k.Dispatch(s, GossipTick{}, now.Add(time.Second))
	var sendsAfter int
	for _, o := range hub.OutboundLog() {
		if o.Kind == service.OutboundSendRpc {
			if _, isBatch := o.Payload.(GossipBatch); isBatch {
				sendsAfter++
			}
		}
	}
	require.Equal(t, sends, sendsAfter)
}

// Peer cursors never move backwards across ticks, even as entries are
// removed and re-added at fresh sequence numbers.
func TestGossipCursorIsMonotonic(t *testing.T) {
	hub := service.NewLoopback(16)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	tip := consensus.BlockSummary{Hash: hashFrom(0xaa), Height: 5}
	s.BestTip = &tip
	peer := peerFrom(1)
	readyGossipPeer(k, s, peer, tip.Hash, 2, now)

	var prev uint64
	for i := byte(0); i < 5; i++ {
		s.SnarkPool.Entries().Insert(snarkpool.Entry{JobID: hashFrom(0x30 + i), Snark: &snarkpool.Snark{Fee: uint64(i)}})
		k.Dispatch(s, GossipTick{}, now.Add(time.Duration(i)*time.Second))
		cur, ok := s.Peers.ChannelCursor(peer, ChannelSnarkPool)
		require.True(t, ok)
		require.GreaterOrEqual(t, cur.NextSeq, prev)
		prev = cur.NextSeq
	}
}

// A peer whose announced head is unrelated to ours gets no pool gossip.
func TestGossipSkipsPeersOnDistantTips(t *testing.T) {
	hub := service.NewLoopback(16)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	tip := consensus.BlockSummary{Hash: hashFrom(0xaa), ParentHash: hashFrom(0xa9), Height: 5}
	s.BestTip = &tip
	peer := peerFrom(1)
	readyGossipPeer(k, s, peer, hashFrom(0x77), 4, now)

	s.SnarkPool.Entries().Insert(snarkpool.Entry{JobID: hashFrom(0x10), Snark: &snarkpool.Snark{Fee: 1}})
	k.Dispatch(s, GossipTick{}, now)

	cur, _ := s.Peers.ChannelCursor(peer, ChannelSnarkPool)
	require.Equal(t, uint64(0), cur.NextSeq)
}

// A peer one block behind our head is still eligible (our tip extends its
// head by one).
func TestGossipServesPeerOneBlockBehind(t *testing.T) {
	hub := service.NewLoopback(16)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	parent := hashFrom(0xa9)
	tip := consensus.BlockSummary{Hash: hashFrom(0xaa), ParentHash: parent, Height: 5}
	s.BestTip = &tip
	peer := peerFrom(1)
	readyGossipPeer(k, s, peer, parent, 4, now)

	s.TxPool.Entries().Insert(txpool.Entry{Hash: hashFrom(0x20), Command: txpool.Command{}})
	k.Dispatch(s, GossipTick{}, now)

	cur, _ := s.Peers.ChannelCursor(peer, ChannelTxPool)
	require.Equal(t, uint64(1), cur.NextSeq)
}

// A published limit of zero means the peer accepts nothing; the cursor
// stays put.
func TestGossipZeroLimitSendsNothing(t *testing.T) {
	hub := service.NewLoopback(16)
	k := newHubKernel(hub)
	s := New(consensus.Params{K: 10}, nil)
	now := time.Unix(0, 0)

	tip := consensus.BlockSummary{Hash: hashFrom(0xaa), Height: 5}
	s.BestTip = &tip
	peer := peerFrom(1)
	k.Dispatch(s, PeerAdd{ID: peer, Direction: p2pdir.DirIncoming}, now)
	k.Dispatch(s, PeerReady{ID: peer, Channels: []string{ChannelSnarkPool}}, now)
	k.Dispatch(s, PeerBestTip{Peer: peer, Tip: tip.Hash}, now)

	s.SnarkPool.Entries().Insert(snarkpool.Entry{JobID: hashFrom(0x10), Snark: &snarkpool.Snark{Fee: 1}})
	k.Dispatch(s, GossipTick{}, now)

	cur, _ := s.Peers.ChannelCursor(peer, ChannelSnarkPool)
	require.Equal(t, uint64(0), cur.NextSeq)
}
