// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package statemachine

import (
	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/pool"
	"github.com/probeum/mina-core/internal/snarkpool"
	"github.com/probeum/mina-core/internal/txpool"
)

// PeerBestTip records the best tip a Ready peer announced, the input the
// propagation pass needs to decide which peers are close enough to our
// head to receive pool gossip.
type PeerBestTip struct {
	Peer common.PeerID
	Tip  common.Hash
}

func (PeerBestTip) Kind() string { return "PeerBestTip" }

// PeerChannelLimit records the per-poll batch size a peer published for
// one of its gossip channels.
type PeerChannelLimit struct {
	Peer    common.PeerID
	Channel string
	Limit   uint8
}

func (PeerChannelLimit) Kind() string { return "PeerChannelLimit" }

// GossipTick walks every eligible Ready peer's channel cursors, collects
// the pool entries each is owed, and advances the cursors; the effect puts
// the batches on the wire. It rides the same timer as CheckTimeouts.
type GossipTick struct{}

func (GossipTick) Kind() string { return "GossipTick" }

// gossipSendsDrained clears the transient send handoff once every batch
// has been handed to the transport.
type gossipSendsDrained struct{}

func (gossipSendsDrained) Kind() string { return "gossipSendsDrained" }

// GossipSend is one per-(peer, channel) replication batch the tick's
// reducer assembled, handed to the effect that sends it.
type GossipSend struct {
	Peer     common.PeerID
	Channel  string
	Items    []interface{}
	FirstSeq uint64
	LastSeq  uint64
}

func registerGossipActions(k *action.Kernel[State], env Env) {
	k.Register(PeerBestTip{}.Kind(), reducePeerBestTip, nil)
	k.Register(PeerChannelLimit{}.Kind(), reducePeerChannelLimit, nil)
	k.Register(GossipTick{}.Kind(), reduceGossipTick, nil)
	k.Register(gossipSendsDrained{}.Kind(), reduceGossipSendsDrained, nil)

	k.Effect(CheckTimeouts{}.Kind(), effectGossipTick)
	k.Effect(GossipTick{}.Kind(), makeEffectGossipSends(env))
}

func reducePeerBestTip(s *State, a action.Action, _ action.Meta) {
	bt := a.(PeerBestTip)
	s.Peers.SetBestTip(bt.Peer, bt.Tip)
}

func reducePeerChannelLimit(s *State, a action.Action, _ action.Meta) {
	cl := a.(PeerChannelLimit)
	s.Peers.SetChannelLimit(cl.Peer, cl.Channel, cl.Limit)
}

func effectGossipTick(_ *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
	dispatch(GossipTick{})
}

// gossipEligible reports whether peer's announced head is close enough to
// ours for pool replication: it matches our best tip, or sits one block
// behind it (our tip extends the peer's head by one).
func gossipEligible(s *State, peerTip *common.Hash) bool {
	if s.BestTip == nil || peerTip == nil {
		return false
	}
	return *peerTip == s.BestTip.Hash || *peerTip == s.BestTip.ParentHash
}

func reduceGossipTick(s *State, _ action.Action, meta action.Meta) {
	if s.BestTip == nil {
		return
	}
	peers := readyPeersSorted(s)
	if len(peers) == 0 {
		return
	}
	// Rotate the visit order per tick so no peer is systematically served
	// first; the rotation is drawn from the action's own meta, keeping
	// replay exact.
	r := newDetRand(meta)
	rot := int(r.next() % uint64(len(peers)))
	peers = append(append([]common.PeerID{}, peers[rot:]...), peers[:rot]...)

	for _, id := range peers {
		p, ok := s.Peers.Get(id)
		if !ok || !gossipEligible(s, p.Status.BestTip) {
			continue
		}
		s.collectGossip(id, ChannelSnarkPool)
		s.collectGossip(id, ChannelTxPool)
	}
}

// collectGossip assembles one (peer, channel) batch from the channel's
// pool at the peer's cursor and advances the cursor past what was
// visited; the cursor only ever moves forward.
func (s *State) collectGossip(peer common.PeerID, channel string) {
	cur, ok := s.Peers.ChannelCursor(peer, channel)
	if !ok || cur.Limit == 0 {
		return
	}
	cursor := pool.Cursor{From: cur.NextSeq, Limit: cur.Limit}

	var (
		items []interface{}
		first uint64
		last  uint64
	)
	switch channel {
	case ChannelSnarkPool:
		items, first, last = s.SnarkPool.Entries().NextToSend(cursor, func(e snarkpool.Entry) (interface{}, bool) {
			if e.Snark == nil && e.Commitment == nil {
				return nil, false
			}
			return e, true
		})
	case ChannelTxPool:
		items, first, last = s.TxPool.Entries().NextToSend(cursor, func(e txpool.Entry) (interface{}, bool) {
			return e.Command, true
		})
	default:
		return
	}
	if len(items) == 0 {
		return
	}
	s.Peers.AdvanceChannel(peer, channel, last+1, cur.Limit)
	s.PendingGossipSends = append(s.PendingGossipSends, GossipSend{
		Peer:     peer,
		Channel:  channel,
		Items:    items,
		FirstSeq: first,
		LastSeq:  last,
	})
}

// makeEffectGossipSends hands every assembled batch to the transport and
// clears the handoff.
func makeEffectGossipSends(env Env) action.EffectFunc[State] {
	return func(s *State, _ action.Action, _ action.Meta, dispatch action.Dispatch) {
		if len(s.PendingGossipSends) == 0 {
			return
		}
		if env.P2p != nil {
			for _, send := range s.PendingGossipSends {
				batch := GossipBatch{Channel: send.Channel, Items: send.Items}
				if err := env.P2p.SendRpc(env.ctx(), send.Peer, send.LastSeq, batch); err != nil {
					action.BugCondition(GossipTick{}.Kind(), "gossip send failed", "peer", send.Peer, "err", err)
				}
			}
		}
		dispatch(gossipSendsDrained{})
	}
}

func reduceGossipSendsDrained(s *State, _ action.Action, _ action.Meta) {
	s.PendingGossipSends = nil
}
