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

package p2pdir

import (
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/probeum/mina-core/common"
)

// Directory tracks every peer the node knows about, keyed by identity.
type Directory struct {
	peers map[common.PeerID]*Peer
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{peers: make(map[common.PeerID]*Peer)}
}

// Add registers a new peer in StatusConnecting. It is a no-op (returns
// false) if the peer is already known, matching the reducer's "disabled
// transitions are rejected silently" rule for duplicate Add actions.
func (d *Directory) Add(id common.PeerID, addrs []string, dir Direction, now time.Time) bool {
	if _, ok := d.peers[id]; ok {
		return false
	}
	d.peers[id] = NewPeer(id, addrs, dir, now)
	return true
}

// Get returns the peer record for id, if known.
func (d *Directory) Get(id common.PeerID) (*Peer, bool) {
	p, ok := d.peers[id]
	return p, ok
}

// Remove drops id from the directory entirely (used when a peer is pruned
// long after disconnect, not part of the normal lifecycle transitions).
func (d *Directory) Remove(id common.PeerID) {
	delete(d.peers, id)
}

// Len reports how many peers are tracked, in any state.
func (d *Directory) Len() int { return len(d.peers) }

// ReadyPeers returns the ids of every peer currently in StatusReady.
func (d *Directory) ReadyPeers() []common.PeerID {
	var out []common.PeerID
	for id, p := range d.peers {
		if p.Status.Kind == StatusReady {
			out = append(out, id)
		}
	}
	return out
}

// ReadyPeerSet is the same as ReadyPeers but as a set, for fast membership
// tests (e.g. "is this candidate's source still a ready peer").
func (d *Directory) ReadyPeerSet() mapset.Set {
	s := mapset.NewThreadUnsafeSet()
	for _, id := range d.ReadyPeers() {
		s.Add(id)
	}
	return s
}

// MarkReady transitions a Connecting peer to Ready, resetting its channel
// cursors: channel offsets never survive a Ready re-entry.
// Returns false if the peer is unknown or not in StatusConnecting.
func (d *Directory) MarkReady(id common.PeerID, channels []string, now time.Time) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusConnecting {
		return false
	}
	cursors := make(map[string]ChannelCursor, len(channels))
	for _, ch := range channels {
		cursors[ch] = ChannelCursor{NextSeq: 0, Limit: 0}
	}
	p.Status = Status{Kind: StatusReady, Channels: cursors, ReadySince: now}
	return true
}

// MarkDisconnecting transitions a Ready peer to Disconnecting.
func (d *Directory) MarkDisconnecting(id common.PeerID, now time.Time) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusReady {
		return false
	}
	p.Status = Status{Kind: StatusDisconnecting, Since: now}
	return true
}

// MarkDisconnected transitions any non-terminal peer to Disconnected.
func (d *Directory) MarkDisconnected(id common.PeerID, now time.Time) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind == StatusDisconnected {
		return false
	}
	p.Status = Status{Kind: StatusDisconnected, Since: now}
	return true
}

// SetBestTip records the best tip a Ready peer has announced.
func (d *Directory) SetBestTip(id common.PeerID, tip common.Hash) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusReady {
		return false
	}
	p.Status.BestTip = &tip
	return true
}

// ChannelCursor returns the current cursor for (peer, channel).
func (d *Directory) ChannelCursor(id common.PeerID, channel string) (ChannelCursor, bool) {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusReady {
		return ChannelCursor{}, false
	}
	c, ok := p.Status.Channels[channel]
	return c, ok
}

// AdvanceChannel sets the (peer, channel) cursor's NextSeq forward to
// nextSeq and Limit to limit. It never moves NextSeq backwards: per
// (peer, channel) the cursor is non-decreasing, matching the "advance on
// P2pSend{peer}" rule.
func (d *Directory) AdvanceChannel(id common.PeerID, channel string, nextSeq uint64, limit uint8) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusReady {
		return false
	}
	cur := p.Status.Channels[channel]
	if nextSeq > cur.NextSeq {
		cur.NextSeq = nextSeq
	}
	cur.Limit = limit
	p.Status.Channels[channel] = cur
	return true
}

// ConnectedCount reports how many peers are Connecting or Ready, the
// figure the min-peers maintenance pass compares against its target.
func (d *Directory) ConnectedCount() int {
	n := 0
	for _, p := range d.peers {
		if p.Status.Kind == StatusConnecting || p.Status.Kind == StatusReady {
			n++
		}
	}
	return n
}

// DisconnectedDialable returns every Disconnected peer that has dial
// addresses to try again.
func (d *Directory) DisconnectedDialable() []common.PeerID {
	var out []common.PeerID
	for id, p := range d.peers {
		if p.Status.Kind == StatusDisconnected && len(p.DialAddrs) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// MarkReconnecting moves a Disconnected peer back to Connecting for a
// fresh outgoing dial.
func (d *Directory) MarkReconnecting(id common.PeerID, now time.Time) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusDisconnected {
		return false
	}
	p.Status = Status{Kind: StatusConnecting, Direction: DirOutgoing}
	return true
}

// SetChannelLimit records the per-poll batch size a Ready peer published
// for one of its channels, without touching the cursor position.
func (d *Directory) SetChannelLimit(id common.PeerID, channel string, limit uint8) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusReady {
		return false
	}
	cur, ok := p.Status.Channels[channel]
	if !ok {
		return false
	}
	cur.Limit = limit
	p.Status.Channels[channel] = cur
	return true
}

// StablePeerDuration is how long a peer must have been Ready before it may
// be preempted to make room for another dial.
const StablePeerDuration = 90 * time.Second

// IsStable reports whether the peer has been continuously Ready for at
// least StablePeerDuration as of now.
func (d *Directory) IsStable(id common.PeerID, now time.Time) bool {
	p, ok := d.peers[id]
	if !ok || p.Status.Kind != StatusReady {
		return false
	}
	return now.Sub(p.Status.ReadySince) >= StablePeerDuration
}
