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

// Package p2pdir tracks peer lifecycle and per-channel gossip cursors. It
// speaks no wire protocol itself; it only records the states a transport
// collaborator reports.
package p2pdir

import (
	"time"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/service"
)

// Direction distinguishes an outgoing dial from an accepted incoming
// connection while a peer is still in the Connecting state.
type Direction int

const (
	DirOutgoing Direction = iota
	DirIncoming
)

// StatusKind is the coarse lifecycle stage of a peer.
type StatusKind int

const (
	StatusConnecting StatusKind = iota
	StatusReady
	StatusDisconnecting
	StatusDisconnected
)

func (k StatusKind) String() string {
	switch k {
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ChannelCursor is a peer's gossip backpressure state for one channel:
// the next sequence number owed to it and how many items it accepts per
// poll.
type ChannelCursor struct {
	NextSeq uint64
	Limit   uint8
}

// Status is the full lifecycle record for one peer.
type Status struct {
	Kind StatusKind

	// valid when Kind == StatusConnecting
	Direction Direction

	// valid when Kind == StatusReady
	Channels   map[string]ChannelCursor
	BestTip    *common.Hash
	ReadySince time.Time

	// valid when Kind == StatusDisconnecting / StatusDisconnected
	Since time.Time
}

// Peer is one entry in the directory.
type Peer struct {
	ID         common.PeerID
	DialAddrs  []string // ordered dial options, WebRTC signaling or multiaddrs
	Status     Status
	AddedAt    time.Time
}

// NewPeer returns a freshly-added peer in StatusConnecting.
func NewPeer(id common.PeerID, addrs []string, dir Direction, now time.Time) *Peer {
	return &Peer{
		ID:        id,
		DialAddrs: addrs,
		AddedAt:   now,
		Status: Status{
			Kind:      StatusConnecting,
			Direction: dir,
		},
	}
}

// DialOptions renders the peer's ordered addresses as a service.DialOptions
// value for the P2pService collaborator.
func (p *Peer) DialOptions() service.DialOptions {
	return service.DialOptions{Peer: p.ID, Addrs: append([]string(nil), p.DialAddrs...)}
}
