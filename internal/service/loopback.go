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

package service

import (
	"context"
	"sync"

	"github.com/probeum/mina-core/common"
)

// OutboundKind tags one entry of a Loopback's outbound log.
type OutboundKind int

const (
	OutboundSendRpc OutboundKind = iota
	OutboundBroadcast
	OutboundDial
	OutboundDisconnect
)

// Outbound records one P2pService call a Loopback absorbed, so tests and
// the dev-mode node can inspect what the core would have put on the wire.
type Outbound struct {
	Kind    OutboundKind
	Peer    common.PeerID
	RpcID   uint64
	Topic   string
	Reason  string
	Payload interface{}
}

// Loopback is an in-process implementation of every collaborator interface
// the core consumes: an EventSource fed by its own service methods. Each
// LedgerService/SnarkVerifier request immediately enqueues a successful
// typed reply event carrying a fresh RequestID, and each P2pService call is
// absorbed into an outbound log. It backs the node's dev mode (no real
// transport or ledger wired) and the runner's tests; the asynchronous
// request/reply round trip through the event queue is real, only the work
// behind it is simulated.
type Loopback struct {
	mu       sync.Mutex
	nextID   RequestID
	events   chan Event
	outbound []Outbound
}

// NewLoopback returns a hub whose event queue buffers up to queueLen
// events before service calls block.
func NewLoopback(queueLen int) *Loopback {
	return &Loopback{events: make(chan Event, queueLen)}
}

func (l *Loopback) allocID() RequestID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return l.nextID
}

// Push enqueues an arbitrary event, for callers standing in for a real
// collaborator (tests injecting peer traffic, the dev-mode CLI injecting
// dials).
func (l *Loopback) Push(ev Event) {
	l.events <- ev
}

// TryNext pops the next queued event without blocking, for callers (the
// dev-mode startup path, tests) draining the queue between their own
// dispatches rather than from a live loop.
func (l *Loopback) TryNext() (Event, bool) {
	select {
	case ev := <-l.events:
		return ev, true
	default:
		return Event{}, false
	}
}

// NextEvent implements EventSource.
func (l *Loopback) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev := <-l.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// OutboundLog returns a copy of every absorbed P2pService call so far.
func (l *Loopback) OutboundLog() []Outbound {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Outbound, len(l.outbound))
	copy(out, l.outbound)
	return out
}

func (l *Loopback) logOutbound(o Outbound) {
	l.mu.Lock()
	l.outbound = append(l.outbound, o)
	l.mu.Unlock()
}

// --- LedgerService ---

func (l *Loopback) reply(kind EventKind, payload interface{}) {
	l.events <- Event{Kind: kind, Payload: payload}
}

func (l *Loopback) GetAccountsAt(_ context.Context, _ common.Hash, addr MerkleAddress) (RequestID, error) {
	id := l.allocID()
	l.reply(EventLedgerReply, LedgerReply{ID: id, Op: LedgerOpGetAccounts, OK: true, Addr: addr})
	return id, nil
}

func (l *Loopback) GetNumAccounts(_ context.Context, _ common.Hash) (RequestID, error) {
	id := l.allocID()
	l.reply(EventLedgerReply, LedgerReply{ID: id, Op: LedgerOpGetNumAccounts, OK: true})
	return id, nil
}

func (l *Loopback) GetChildHashesAt(_ context.Context, _ common.Hash, addr MerkleAddress) (RequestID, error) {
	id := l.allocID()
	l.reply(EventLedgerReply, LedgerReply{ID: id, Op: LedgerOpGetChildHashes, OK: true, Addr: addr})
	return id, nil
}

func (l *Loopback) ApplyBlock(_ context.Context, _ interface{}) (RequestID, error) {
	id := l.allocID()
	l.reply(EventBlockApplyReply, BlockApplyReply{ID: id, OK: true})
	return id, nil
}

func (l *Loopback) ReconstructStaged(_ context.Context, _ common.Hash, _ interface{}) (RequestID, error) {
	id := l.allocID()
	l.reply(EventLedgerReply, LedgerReply{ID: id, Op: LedgerOpReconstructStaged, OK: true})
	return id, nil
}

func (l *Loopback) GetMaskByHash(_ context.Context, _ common.Hash) (RequestID, error) {
	id := l.allocID()
	l.reply(EventLedgerReply, LedgerReply{ID: id, Op: LedgerOpGetMask, OK: true})
	return id, nil
}

// --- SnarkVerifier ---

func (l *Loopback) VerifyBlock(_ context.Context, _ interface{}) (RequestID, error) {
	id := l.allocID()
	l.reply(EventSnarkVerifyReply, SnarkVerifyReply{ID: id, Block: true, OK: true})
	return id, nil
}

func (l *Loopback) VerifyWorkBatch(_ context.Context, _ []interface{}) (RequestID, error) {
	id := l.allocID()
	l.reply(EventSnarkVerifyReply, SnarkVerifyReply{ID: id, Block: false, OK: true})
	return id, nil
}

// --- P2pService ---

func (l *Loopback) SendRpc(_ context.Context, peer common.PeerID, rpcID uint64, request interface{}) error {
	l.logOutbound(Outbound{Kind: OutboundSendRpc, Peer: peer, RpcID: rpcID, Payload: request})
	return nil
}

func (l *Loopback) Broadcast(_ context.Context, topic string, msg interface{}) error {
	l.logOutbound(Outbound{Kind: OutboundBroadcast, Topic: topic, Payload: msg})
	return nil
}

func (l *Loopback) Dial(_ context.Context, opts DialOptions) error {
	l.logOutbound(Outbound{Kind: OutboundDial, Peer: opts.Peer, Payload: opts})
	return nil
}

func (l *Loopback) Disconnect(_ context.Context, peer common.PeerID, reason string) error {
	l.logOutbound(Outbound{Kind: OutboundDisconnect, Peer: peer, Reason: reason})
	return nil
}
