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

// Package service declares the collaborator interfaces the consensus core
// consumes. Implementations live outside
// this module (transport, ledger storage, the snark verifier worker pool);
// the core only ever calls through these interfaces, never imports a
// concrete transport or storage package, so it can be replay-tested with
// fakes.
package service

import (
	"context"
	"time"

	"github.com/probeum/mina-core/common"
)

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventP2pMessage EventKind = iota
	EventRpc
	EventLedgerReply
	EventSnarkVerifyReply
	EventBlockApplyReply
	EventTimerTick
	EventNew // a collaborator-defined event opaque to the core
)

// Event is one item the EventSource delivers to the state-machine loop.
type Event struct {
	Kind    EventKind
	Payload interface{}
}

// EventSource feeds the single-threaded loop. NextEvent blocks
// until an event is available or ctx is done.
type EventSource interface {
	NextEvent(ctx context.Context) (Event, error)
}

// LedgerService exposes the request/reply operations the sync pipeline and
// block-apply pipeline need from the ledger storage/execution layer. Every
// call is request/reply; replies arrive as EventLedgerReply events
// (ApplyBlock's as EventBlockApplyReply) carrying the original RequestID so
// the core can match them to pending state.
type LedgerService interface {
	GetAccountsAt(ctx context.Context, ledgerHash common.Hash, address MerkleAddress) (RequestID, error)
	GetNumAccounts(ctx context.Context, ledgerHash common.Hash) (RequestID, error)
	GetChildHashesAt(ctx context.Context, ledgerHash common.Hash, address MerkleAddress) (RequestID, error)
	ApplyBlock(ctx context.Context, block interface{}) (RequestID, error)
	ReconstructStaged(ctx context.Context, snarkedHash common.Hash, parts interface{}) (RequestID, error)
	GetMaskByHash(ctx context.Context, hash common.Hash) (RequestID, error)
}

// SnarkVerifier exposes the two verification operations the candidate
// pipeline and the snark-work pipeline need. RPC-cost hints are
// the caller's responsibility to track; the verifier itself just reports
// success/failure against the original request id.
type SnarkVerifier interface {
	VerifyBlock(ctx context.Context, block interface{}) (RequestID, error)
	VerifyWorkBatch(ctx context.Context, batch []interface{}) (RequestID, error)
}

// P2pService exposes outbound network operations. Incoming traffic arrives
// through EventSource as EventP2pMessage events, never as a return value
// here.
type P2pService interface {
	SendRpc(ctx context.Context, peer common.PeerID, rpcID uint64, request interface{}) error
	Broadcast(ctx context.Context, topic string, msg interface{}) error
	Dial(ctx context.Context, opts DialOptions) error
	Disconnect(ctx context.Context, peer common.PeerID, reason string) error
}

// DialOptions carries the ordered dial alternatives for one peer, WebRTC
// signaling or libp2p-multiaddr variants.
type DialOptions struct {
	Peer   common.PeerID
	Addrs  []string
}

// Clock supplies the monotonic timestamp the reducer is allowed to read via
// Meta.Time; the core itself never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall-clock Clock implementation used outside of
// tests and replay.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RNG is a deterministic, seedable source used for peer selection and
// propagation jitter. Implementations must never consult process-wide
// randomness, so that replaying a recorded action log reproduces the
// exact same state.
type RNG interface {
	// Uint64 returns the next pseudo-random value.
	Uint64() uint64
	// Seed reseeds the generator deterministically; called once per Meta,
	// typically seeded from (meta.Time, meta.ID) so replay reproduces the
	// same sequence of choices.
	Seed(seed uint64)
}

// RequestID identifies one outstanding collaborator request so its eventual
// reply can be matched back to the pending state that issued it.
type RequestID uint64

// MerkleAddress is a BFS path into the snarked ledger's Merkle tree: a
// sequence of left/right choices from the root, represented as a bit
// string of at most Depth bits.
type MerkleAddress struct {
	Depth uint8
	Path  uint64 // bit i (0 = root-adjacent) selects left(0)/right(1)
}

// Child returns the address one level deeper, choosing the left (right=
// false) or right (right=true) subtree.
func (a MerkleAddress) Child(right bool) MerkleAddress {
	path := a.Path
	if right {
		path |= 1 << a.Depth
	}
	return MerkleAddress{Depth: a.Depth + 1, Path: path}
}

// Parent returns the address one level shallower. Calling Parent on the
// root address is a programming error and returns the root unchanged.
func (a MerkleAddress) Parent() MerkleAddress {
	if a.Depth == 0 {
		return a
	}
	return MerkleAddress{Depth: a.Depth - 1, Path: a.Path &^ (1 << (a.Depth - 1))}
}
